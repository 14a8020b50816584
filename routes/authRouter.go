package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cloudcanvas/accounts/middlewares"
	"github.com/cloudcanvas/accounts/models"
	"github.com/cloudcanvas/accounts/sessions"
	"github.com/cloudcanvas/accounts/utils"
	"github.com/didip/tollbooth/v6/limiter"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// UserStore is what the handlers need from user persistence.
type UserStore interface {
	ByEmail(ctx context.Context, email string) (*models.User, error)
	ByPublicID(ctx context.Context, publicID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Save(ctx context.Context, user *models.User) error
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type PolicyErrorResponse struct {
	Error      string   `json:"error"`
	Violations []string `json:"violations"`
	Score      int      `json:"score"`
}

// UserSummary is the identity payload returned alongside a session.
type UserSummary struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Role             string `json:"role"`
	EmailVerified    bool   `json:"emailVerified"`
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
	TwoFactorMethod  string `json:"twoFactorMethod,omitempty"`
}

func summarize(user *models.User) UserSummary {
	return UserSummary{
		ID:               user.PublicID,
		Email:            user.Email,
		FirstName:        user.FirstName,
		LastName:         user.LastName,
		Role:             user.Role,
		EmailVerified:    user.EmailVerified,
		TwoFactorEnabled: user.TwoFactorEnabled,
		TwoFactorMethod:  user.TwoFactorMethod,
	}
}

type SessionResponse struct {
	User UserSummary `json:"user"`
}

// TwoFactorRequiredResponse is the expected intermediate state when a
// password check succeeds for an MFA-enabled user. Delivered with HTTP 200,
// not an error status.
type TwoFactorRequiredResponse struct {
	RequiresTwoFactor bool   `json:"requiresTwoFactor"`
	SessionID         string `json:"sessionId"`
	Method            string `json:"method"`
}

type LoginAttempt struct {
	Email      string `validate:"required,email"`
	Password   string `validate:"required"`
	RememberMe bool
}

type SignupAttempt struct {
	Email           string `validate:"required,email"`
	FirstName       string `validate:"required,max=64"`
	LastName        string `validate:"required,max=64"`
	Telephone       string `validate:"omitempty,max=32"`
	Password        string `validate:"required,max=64,eqfield=ConfirmPassword"`
	ConfirmPassword string `validate:"required"`
}

type PasswordChangeAttempt struct {
	CurrentPassword string `validate:"required"`
	NewPassword     string `validate:"required,max=64"`
}

type TwoFactorVerifyAttempt struct {
	SessionID string `json:"sessionId" validate:"required"`
	Code      string `json:"code" validate:"required"`
}

type TwoFactorConfirmAttempt struct {
	Method string `json:"method" validate:"required,oneof=totp email"`
	Code   string `json:"code" validate:"required"`
}

type TwoFactorDisableAttempt struct {
	Password string `json:"password"`
}

type RequestBody interface {
	LoginAttempt | SignupAttempt | PasswordChangeAttempt |
		TwoFactorVerifyAttempt | TwoFactorConfirmAttempt | TwoFactorDisableAttempt
}

func DecodeValidBody[B RequestBody](r *http.Request) (B, error) {
	decoder := json.NewDecoder(r.Body)
	var requestBody B
	err := decoder.Decode(&requestBody)
	if err != nil {
		return requestBody, err
	}
	err = validate.Struct(requestBody)
	if err != nil {
		return requestBody, err
	}
	return requestBody, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (api *API) AuthRouter(s *mux.Router, lmt *limiter.Limiter) {
	s.Handle("/login", middlewares.Limited(lmt, api.Login)).Methods("POST")
	s.Handle("/signup", middlewares.Limited(lmt, api.Signup)).Methods("POST")
	s.HandleFunc("/logout", api.Logout).Methods("POST")
	s.HandleFunc("/me", middlewares.RequireSession(api.Sessions, api.Me)).Methods("GET")
	s.Handle("/password", middlewares.Limited(lmt, middlewares.RequireSession(api.Sessions, api.ChangePassword))).Methods("POST")
}

// Login runs the password leg. Authentication failures all answer the same
// generic message so an unknown email and a wrong password are telling the
// caller nothing different.
func (api *API) Login(w http.ResponseWriter, r *http.Request) {
	attempt, err := DecodeValidBody[LoginAttempt](r)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: utils.GENERIC_LOGIN_ERROR})
		return
	}

	user, err := api.Users.ByEmail(r.Context(), normalizeEmail(attempt.Email))
	if err != nil {
		if !errors.Is(err, utils.ErrNotFound) {
			api.Logger.Error("user lookup failed", zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: utils.GENERIC_SERVER_ERROR})
			return
		}
		// Burn a verify anyway so absent accounts cost the same time.
		api.Passwords.Verify(attempt.Password, "")
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: utils.GENERIC_LOGIN_ERROR})
		return
	}

	if !user.EmailVerified {
		respondJSON(w, http.StatusForbidden, ErrorResponse{Error: utils.EMAIL_NOT_VERIFIED_ERROR})
		return
	}
	if !user.HasPassword() {
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: utils.PASSWORD_LOGIN_UNAVAILABLE_ERROR})
		return
	}
	if !api.Passwords.Verify(attempt.Password, user.PasswordHash) {
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: utils.GENERIC_LOGIN_ERROR})
		return
	}

	if user.TwoFactorEnabled {
		challenge, err := api.TwoFactor.Begin(r.Context(), user, attempt.RememberMe)
		if err != nil {
			api.Logger.Error("failed to begin two-factor challenge", zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: utils.GENERIC_SERVER_ERROR})
			return
		}
		respondJSON(w, http.StatusOK, TwoFactorRequiredResponse{
			RequiresTwoFactor: true,
			SessionID:         challenge.SessionID,
			Method:            challenge.Method,
		})
		return
	}

	token, _, err := api.Sessions.Issue(r.Context(), user, attempt.RememberMe)
	if err != nil {
		api.Logger.Error("failed to issue session", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: utils.GENERIC_SERVER_ERROR})
		return
	}
	sessions.WriteCookie(w, token, attempt.RememberMe, api.Secure)
	respondJSON(w, http.StatusOK, SessionResponse{User: summarize(user)})
}

func (api *API) Signup(w http.ResponseWriter, r *http.Request) {
	attempt, err := DecodeValidBody[SignupAttempt](r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: utils.MISSING_REQUEST_DATA})
		return
	}

	strength := api.Passwords.ValidateStrength(attempt.Password)
	if !strength.IsValid {
		respondJSON(w, http.StatusBadRequest, PolicyErrorResponse{
			Error:      "password_policy_violation",
			Violations: strength.Violations,
			Score:      strength.Score,
		})
		return
	}

	passwordHash, err := api.Passwords.Hash(attempt.Password)
	if err != nil {
		api.Logger.Error("failed to hash password", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: utils.GENERIC_SIGNUP_ERROR})
		return
	}

	user := &models.User{
		PublicID:     uuid.NewString(),
		Email:        normalizeEmail(attempt.Email),
		PasswordHash: passwordHash,
		FirstName:    attempt.FirstName,
		LastName:     attempt.LastName,
		Telephone:    attempt.Telephone,
		Role:         models.RoleUser,
	}
	if err := api.Users.Create(r.Context(), user); err != nil {
		// A taken email reads the same as any other failure; signup must
		// not confirm whether an address is registered.
		if !errors.Is(err, utils.ErrConflict) {
			api.Logger.Error("failed to create user", zap.Error(err))
		}
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: utils.GENERIC_SIGNUP_ERROR})
		return
	}
	if err := api.Passwords.RecordHistory(r.Context(), user.ID, passwordHash); err != nil {
		api.Logger.Error("failed to record password history", zap.Error(err))
	}

	token, _, err := api.Sessions.Issue(r.Context(), user, false)
	if err != nil {
		api.Logger.Error("failed to issue session", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: utils.GENERIC_SIGNUP_ERROR})
		return
	}
	sessions.WriteCookie(w, token, false, api.Secure)
	respondJSON(w, http.StatusCreated, SessionResponse{User: summarize(user)})
}

func (api *API) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middlewares.SessionToken(r); token != "" {
		if err := api.Sessions.Revoke(r.Context(), token); err != nil {
			api.Logger.Error("failed to revoke session", zap.Error(err))
		}
	}
	sessions.ClearCookie(w, api.Secure)
	respondJSON(w, http.StatusOK, StatusResponse{Status: "Logged out."})
}

func (api *API) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middlewares.IdentityFrom(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: utils.UNAUTHORIZED_ERROR})
		return
	}
	user, err := api.Users.ByPublicID(r.Context(), identity.UserID)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: utils.UNAUTHORIZED_ERROR})
		return
	}
	respondJSON(w, http.StatusOK, SessionResponse{User: summarize(user)})
}

// ChangePassword verifies the current password, enforces strength and reuse
// policy, then revokes the user's other sessions.
func (api *API) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := middlewares.IdentityFrom(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: utils.UNAUTHORIZED_ERROR})
		return
	}
	attempt, err := DecodeValidBody[PasswordChangeAttempt](r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: utils.MISSING_REQUEST_DATA})
		return
	}

	user, err := api.Users.ByPublicID(r.Context(), identity.UserID)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: utils.UNAUTHORIZED_ERROR})
		return
	}
	if !user.HasPassword() {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: utils.PASSWORD_LOGIN_UNAVAILABLE_ERROR})
		return
	}
	if !api.Passwords.Verify(attempt.CurrentPassword, user.PasswordHash) {
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: utils.GENERIC_LOGIN_ERROR})
		return
	}

	strength := api.Passwords.ValidateStrength(attempt.NewPassword)
	if !strength.IsValid {
		respondJSON(w, http.StatusBadRequest, PolicyErrorResponse{
			Error:      "password_policy_violation",
			Violations: strength.Violations,
			Score:      strength.Score,
		})
		return
	}
	reused, err := api.Passwords.CheckReuse(r.Context(), user.ID, attempt.NewPassword)
	if err != nil {
		api.Logger.Error("reuse check failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: utils.GENERIC_PASSWORD_CHANGE_ERROR})
		return
	}
	if reused {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "password_reused"})
		return
	}

	newHash, err := api.Passwords.Hash(attempt.NewPassword)
	if err != nil {
		api.Logger.Error("failed to hash password", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: utils.GENERIC_PASSWORD_CHANGE_ERROR})
		return
	}
	user.PasswordHash = newHash
	if err := api.Users.Save(r.Context(), user); err != nil {
		api.Logger.Error("failed to save user", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: utils.GENERIC_PASSWORD_CHANGE_ERROR})
		return
	}
	if err := api.Passwords.RecordHistory(r.Context(), user.ID, newHash); err != nil {
		api.Logger.Error("failed to record password history", zap.Error(err))
	}
	if err := api.Sessions.RevokeOthers(r.Context(), user.ID, middlewares.SessionToken(r)); err != nil {
		api.Logger.Error("failed to revoke other sessions", zap.Error(err))
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "Password changed."})
}
