package routes

import (
	"errors"
	"net/http"

	"github.com/cloudcanvas/accounts/sessions"
	"github.com/cloudcanvas/accounts/utils"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const oauthStateCookie = "oauth_state"

func (api *API) OAuthRouter(s *mux.Router) {
	s.HandleFunc("/{provider}", api.OAuthStart).Methods("GET")
	s.HandleFunc("/{provider}/callback", api.OAuthCallback).Methods("GET")
}

// OAuthStart redirects the browser to the provider's authorization page with
// a short-lived state cookie for CSRF protection.
func (api *API) OAuthStart(w http.ResponseWriter, r *http.Request) {
	provider, ok := api.Providers.Lookup(mux.Vars(r)["provider"])
	if !ok {
		api.redirectError(w, r, utils.OAUTH_ERR_GENERIC)
		return
	}
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   api.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// OAuthCallback handles the provider redirect. This leg runs in the
// browser's top-level navigation, so failures become login-page redirects
// with a machine-readable error parameter, never API error bodies. The
// exchange-fetch-reconcile chain is abandoned whole on any failure; no row
// is written until the email is confirmed present.
func (api *API) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("error") != "" {
		api.redirectError(w, r, utils.OAUTH_ERR_GENERIC)
		return
	}
	code := query.Get("code")
	if code == "" {
		api.redirectError(w, r, utils.OAUTH_ERR_MISSING_CODE)
		return
	}
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != query.Get("state") {
		api.redirectError(w, r, utils.OAUTH_ERR_GENERIC)
		return
	}
	providerName := mux.Vars(r)["provider"]
	provider, ok := api.Providers.Lookup(providerName)
	if !ok {
		api.redirectError(w, r, utils.OAUTH_ERR_GENERIC)
		return
	}

	token, err := provider.ExchangeCode(r.Context(), code)
	if err != nil {
		api.Logger.Warn("oauth code exchange failed", zap.String("provider", providerName), zap.Error(err))
		api.redirectError(w, r, utils.OAUTH_ERR_TOKEN_EXCHANGE)
		return
	}
	if token.AccessToken == "" {
		api.redirectError(w, r, utils.OAUTH_ERR_NO_ACCESS_TOKEN)
		return
	}
	profile, err := provider.FetchProfile(r.Context(), token)
	if err != nil {
		api.Logger.Warn("oauth profile fetch failed", zap.String("provider", providerName), zap.Error(err))
		api.redirectError(w, r, utils.OAUTH_ERR_USER_INFO)
		return
	}

	user, err := api.Reconciler.Reconcile(r.Context(), providerName, profile, token)
	if err != nil {
		if errors.Is(err, utils.ErrProviderEmailMissing) {
			api.redirectError(w, r, utils.OAUTH_ERR_NO_EMAIL)
			return
		}
		api.Logger.Error("identity reconciliation failed", zap.String("provider", providerName), zap.Error(err))
		api.redirectError(w, r, utils.OAUTH_ERR_GENERIC)
		return
	}

	// Federated logins default to long-lived sessions.
	sessionToken, _, err := api.Sessions.Issue(r.Context(), user, true)
	if err != nil {
		api.Logger.Error("failed to issue session", zap.Error(err))
		api.redirectError(w, r, utils.OAUTH_ERR_GENERIC)
		return
	}
	sessions.WriteCookie(w, sessionToken, true, api.Secure)
	http.Redirect(w, r, api.AppURL, http.StatusFound)
}

func (api *API) redirectError(w http.ResponseWriter, r *http.Request, errorCode string) {
	http.Redirect(w, r, api.LoginURL+"?error="+errorCode, http.StatusFound)
}
