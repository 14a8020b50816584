package sessions

import (
	"net/http"

	"github.com/cloudcanvas/accounts/utils"
)

// WriteCookie delivers the session token to the browser. The cookie is
// HttpOnly, SameSite=Lax, scoped to the whole site, and Secure in
// production; Max-Age mirrors the issued lifetime.
func WriteCookie(w http.ResponseWriter, token string, remember bool, secure bool) {
	maxAge := int(DefaultDuration.Seconds())
	if remember {
		maxAge = int(RememberDuration.Seconds())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     utils.SESSION_COOKIE_NAME,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie immediately.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     utils.SESSION_COOKIE_NAME,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
