package middlewares

import (
	"net/http"
	"time"

	"github.com/cloudcanvas/accounts/utils"
	"github.com/didip/tollbooth/v6"
	"github.com/didip/tollbooth/v6/limiter"
)

// NewCredentialLimiter throttles the endpoints that accept credentials or
// one-time codes. Per-IP, small burst, generic message.
func NewCredentialLimiter() *limiter.Limiter {
	lmt := tollbooth.NewLimiter(5, &limiter.ExpirableOptions{
		DefaultExpirationTTL: time.Hour,
	})
	lmt.SetMessage(utils.GENERIC_RATE_LIMIT_ERROR)
	lmt.SetMessageContentType("text/plain; charset=utf-8")
	return lmt
}

// Limited wraps a handler with the limiter.
func Limited(lmt *limiter.Limiter, f http.HandlerFunc) http.Handler {
	return tollbooth.LimitFuncHandler(lmt, f)
}
