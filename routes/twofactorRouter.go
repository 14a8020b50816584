package routes

import (
	"errors"
	"net/http"

	"github.com/cloudcanvas/accounts/middlewares"
	"github.com/cloudcanvas/accounts/models"
	"github.com/cloudcanvas/accounts/sessions"
	"github.com/cloudcanvas/accounts/utils"
	"github.com/didip/tollbooth/v6/limiter"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type EnrollmentResponse struct {
	Secret      string   `json:"secret"`
	QRPayload   string   `json:"qrPayload"`
	BackupCodes []string `json:"backupCodes"`
}

type BackupCodesResponse struct {
	BackupCodes []string `json:"backupCodes"`
}

func (api *API) TwoFactorRouter(s *mux.Router, lmt *limiter.Limiter) {
	s.Handle("/verify", middlewares.Limited(lmt, api.VerifyTwoFactor)).Methods("POST")
	s.HandleFunc("/totp/init", middlewares.RequireSession(api.Sessions, api.InitTOTP)).Methods("POST")
	s.HandleFunc("/email/init", middlewares.RequireSession(api.Sessions, api.InitEmail)).Methods("POST")
	s.Handle("/confirm", middlewares.Limited(lmt, middlewares.RequireSession(api.Sessions, api.ConfirmTwoFactor))).Methods("POST")
	s.HandleFunc("/backup-codes", middlewares.RequireSession(api.Sessions, api.RegenerateBackupCodes)).Methods("POST")
	s.HandleFunc("/disable", middlewares.RequireSession(api.Sessions, api.DisableTwoFactor)).Methods("POST")
}

// VerifyTwoFactor finishes a pending login. Wrong and expired codes both
// answer 400 with a generic message; the distinction lives in the error
// code only.
func (api *API) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	attempt, err := DecodeValidBody[TwoFactorVerifyAttempt](r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: utils.MISSING_REQUEST_DATA})
		return
	}

	result, err := api.TwoFactor.VerifyChallenge(r.Context(), attempt.SessionID, attempt.Code)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrChallengeExpired):
			respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "challenge_expired"})
		case errors.Is(err, utils.ErrChallengeCodeInvalid):
			respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: utils.GENERIC_CODE_ERROR})
		default:
			api.Logger.Error("two-factor verification failed", zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: utils.GENERIC_SERVER_ERROR})
		}
		return
	}

	sessions.WriteCookie(w, result.Token, result.Remember, api.Secure)
	respondJSON(w, http.StatusOK, SessionResponse{User: summarize(result.User)})
}

func (api *API) InitTOTP(w http.ResponseWriter, r *http.Request) {
	user, ok := api.currentUser(w, r)
	if !ok {
		return
	}
	enrollment, err := api.TwoFactor.InitTOTP(r.Context(), user.ID)
	if err != nil {
		api.Logger.Error("totp init failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: utils.GENERIC_SERVER_ERROR})
		return
	}
	respondJSON(w, http.StatusOK, EnrollmentResponse{
		Secret:      enrollment.Secret,
		QRPayload:   enrollment.QRPayload,
		BackupCodes: enrollment.BackupCodes,
	})
}

func (api *API) InitEmail(w http.ResponseWriter, r *http.Request) {
	user, ok := api.currentUser(w, r)
	if !ok {
		return
	}
	if err := api.TwoFactor.InitEmail(r.Context(), user.ID); err != nil {
		api.Logger.Error("email init failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: utils.GENERIC_SERVER_ERROR})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "Verification code sent!"})
}

func (api *API) ConfirmTwoFactor(w http.ResponseWriter, r *http.Request) {
	user, ok := api.currentUser(w, r)
	if !ok {
		return
	}
	attempt, err := DecodeValidBody[TwoFactorConfirmAttempt](r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: utils.MISSING_REQUEST_DATA})
		return
	}
	if err := api.TwoFactor.ConfirmEnrollment(r.Context(), user.ID, attempt.Method, attempt.Code); err != nil {
		if errors.Is(err, utils.ErrChallengeCodeInvalid) {
			respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: utils.GENERIC_CODE_ERROR})
			return
		}
		api.Logger.Error("two-factor confirm failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: utils.GENERIC_SERVER_ERROR})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "Two-factor authentication enabled."})
}

func (api *API) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	user, ok := api.currentUser(w, r)
	if !ok {
		return
	}
	codes, err := api.TwoFactor.RegenerateBackupCodes(r.Context(), user.ID)
	if err != nil {
		api.Logger.Error("backup code regeneration failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: utils.GENERIC_SERVER_ERROR})
		return
	}
	respondJSON(w, http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}

// DisableTwoFactor clears the whole second-factor setup. Accounts with a
// password must re-prove it first.
func (api *API) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	user, ok := api.currentUser(w, r)
	if !ok {
		return
	}
	attempt, err := DecodeValidBody[TwoFactorDisableAttempt](r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: utils.MISSING_REQUEST_DATA})
		return
	}
	if user.HasPassword() && !api.Passwords.Verify(attempt.Password, user.PasswordHash) {
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: utils.GENERIC_LOGIN_ERROR})
		return
	}
	if err := api.TwoFactor.Disable(r.Context(), user.ID); err != nil {
		api.Logger.Error("two-factor disable failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: utils.GENERIC_SERVER_ERROR})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "Two-factor authentication disabled."})
}

// currentUser resolves the verified session identity to a user row.
func (api *API) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	identity, ok := middlewares.IdentityFrom(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: utils.UNAUTHORIZED_ERROR})
		return nil, false
	}
	user, err := api.Users.ByPublicID(r.Context(), identity.UserID)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: utils.UNAUTHORIZED_ERROR})
		return nil, false
	}
	return user, true
}
