package routes

import (
	"encoding/json"
	"net/http"

	"github.com/cloudcanvas/accounts/middlewares"
	"github.com/cloudcanvas/accounts/oauth"
	"github.com/cloudcanvas/accounts/passwords"
	"github.com/cloudcanvas/accounts/sessions"
	"github.com/cloudcanvas/accounts/twofactor"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

var validate *validator.Validate

// API bundles the injected collaborators the handlers need.
type API struct {
	Users      UserStore
	Passwords  *passwords.Service
	Sessions   *sessions.Manager
	TwoFactor  *twofactor.Engine
	Providers  oauth.Registry
	Reconciler *oauth.Reconciler
	Logger     *zap.Logger

	// Secure controls the cookie Secure attribute; true in production.
	Secure   bool
	AppURL   string
	LoginURL string
}

func CreateRoutes(r *mux.Router, api *API) {
	validate = validator.New()
	lmt := middlewares.NewCredentialLimiter()
	s := r.PathPrefix("/api/auth").Subrouter()
	api.AuthRouter(s, lmt)
	api.TwoFactorRouter(s.PathPrefix("/2fa").Subrouter(), lmt)
	api.OAuthRouter(s.PathPrefix("/oauth").Subrouter())
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
