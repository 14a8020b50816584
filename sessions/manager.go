// Package sessions issues, verifies, and revokes signed session tokens
// backed by a persisted session record.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/cloudcanvas/accounts/models"
	"github.com/cloudcanvas/accounts/utils"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session lifetimes. "Remember me" grants a week, otherwise a day.
const (
	RememberDuration = 7 * 24 * time.Hour
	DefaultDuration  = 24 * time.Hour
)

// Payload is the identity a verified token carries.
type Payload struct {
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// Store is the persisted-session half of the dual check.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	ByToken(ctx context.Context, token string) (*models.Session, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByUserExcept(ctx context.Context, userID uint, keepToken string) error
}

// Manager mints HS256 tokens and writes the matching session record. A
// session is live only while both the signature and the record agree, so
// deleting the record revokes instantly even though the signed token stays
// cryptographically valid until its embedded expiry.
type Manager struct {
	secret []byte
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(secret []byte, store Store, logger *zap.Logger) *Manager {
	return &Manager{
		secret: secret,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Issue signs a token embedding {jti, userId, email, role, exp} and persists
// the session record with the same token and expiry. The jti makes every
// token unique, so two logins in the same second still mint two distinct
// sessions and revoking one cannot touch the other.
func (m *Manager) Issue(ctx context.Context, user *models.User, remember bool) (string, time.Time, error) {
	duration := DefaultDuration
	if remember {
		duration = RememberDuration
	}
	expiresAt := m.now().Add(duration)

	claims := jwt.MapClaims{
		"jti":    uuid.NewString(),
		"userId": user.PublicID,
		"email":  user.Email,
		"role":   user.Role,
		"exp":    expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	record := models.Session{
		Token:     tokenString,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
	}
	if err := m.store.Create(ctx, &record); err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// Verify checks the signature, the embedded expiry, and the stored record's
// expiry. Every failure collapses to utils.ErrSessionInvalid: distinguishing
// "expired" from "tampered" from "revoked" would hand an attacker an oracle.
func (m *Manager) Verify(ctx context.Context, tokenString string) (*Payload, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, utils.ErrSessionInvalid
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, utils.ErrSessionInvalid
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, utils.ErrSessionInvalid
	}
	expiresAt := time.Unix(int64(exp), 0)
	if m.now().After(expiresAt) {
		return nil, utils.ErrSessionInvalid
	}

	record, err := m.store.ByToken(ctx, tokenString)
	if err != nil {
		if !errors.Is(err, utils.ErrNotFound) {
			m.logger.Error("session store lookup failed", zap.Error(err))
		}
		return nil, utils.ErrSessionInvalid
	}
	if m.now().After(record.ExpiresAt) {
		return nil, utils.ErrSessionInvalid
	}

	userID, _ := claims["userId"].(string)
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	if userID == "" {
		return nil, utils.ErrSessionInvalid
	}
	return &Payload{
		UserID:    userID,
		Email:     email,
		Role:      role,
		ExpiresAt: expiresAt,
	}, nil
}

// Revoke deletes the session record for this exact token; the user's
// concurrent sessions on other devices are unaffected.
func (m *Manager) Revoke(ctx context.Context, tokenString string) error {
	return m.store.DeleteByToken(ctx, tokenString)
}

// RevokeOthers deletes every other session of the user, keeping the one
// presented. Used after a password change.
func (m *Manager) RevokeOthers(ctx context.Context, userID uint, keepToken string) error {
	return m.store.DeleteByUserExcept(ctx, userID, keepToken)
}
