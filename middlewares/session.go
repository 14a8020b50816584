package middlewares

import (
	"context"
	"net/http"

	"github.com/cloudcanvas/accounts/sessions"
	"github.com/cloudcanvas/accounts/utils"
)

type contextKey string

const identityKey contextKey = "identity"

// RequireSession verifies the session cookie and attaches the verified
// payload to the request context. Any failure answers a single generic
// unauthorized message.
func RequireSession(manager *sessions.Manager, f http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(utils.SESSION_COOKIE_NAME)
		if err != nil {
			http.Error(w, utils.UNAUTHORIZED_ERROR, http.StatusUnauthorized)
			return
		}
		payload, err := manager.Verify(r.Context(), cookie.Value)
		if err != nil {
			http.Error(w, utils.UNAUTHORIZED_ERROR, http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, payload)
		f(w, r.WithContext(ctx))
	}
}

// IdentityFrom returns the verified session payload placed by RequireSession.
func IdentityFrom(r *http.Request) (*sessions.Payload, bool) {
	payload, ok := r.Context().Value(identityKey).(*sessions.Payload)
	return payload, ok
}

// SessionToken returns the raw token presented on this request.
func SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(utils.SESSION_COOKIE_NAME)
	if err != nil {
		return ""
	}
	return cookie.Value
}
