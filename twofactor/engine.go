// Package twofactor manages the pending second-factor state between a
// successful password check and full authentication, plus enrollment and
// backup codes.
package twofactor

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/cloudcanvas/accounts/mailer"
	"github.com/cloudcanvas/accounts/models"
	"github.com/cloudcanvas/accounts/sessions"
	"github.com/cloudcanvas/accounts/utils"
	"github.com/google/uuid"
	"github.com/xlzd/gotp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// ChallengeTTL bounds how long a login may sit between password and
	// second factor.
	ChallengeTTL = 10 * time.Minute
	// CodeTTL bounds emailed one-time codes.
	CodeTTL = 5 * time.Minute
	// BackupCodeCount is the size of a freshly generated backup-code set.
	BackupCodeCount = 10

	totpStepSeconds = 30
)

type UserStore interface {
	ByID(ctx context.Context, id uint) (*models.User, error)
	Save(ctx context.Context, user *models.User) error
}

type ChallengeStore interface {
	Create(ctx context.Context, challenge *models.PendingTwoFactorChallenge) error
	BySessionID(ctx context.Context, sessionID string) (*models.PendingTwoFactorChallenge, error)
	Delete(ctx context.Context, sessionID string) error
}

type CodeStore interface {
	Replace(ctx context.Context, destination, purpose, code string, expiresAt time.Time) error
	Find(ctx context.Context, destination, purpose string) (*models.OneTimeCode, error)
	Delete(ctx context.Context, destination, purpose string) error
}

type BackupStore interface {
	Replace(ctx context.Context, userID uint, hashes []string) error
	ByUser(ctx context.Context, userID uint) ([]models.BackupCode, error)
	Consume(ctx context.Context, id uint) error
}

// Challenge is returned to the login flow in place of a session token.
type Challenge struct {
	SessionID string
	Method    string
}

// Engine runs the challenge flow and finalizes login through the session
// manager on success.
type Engine struct {
	users      UserStore
	challenges ChallengeStore
	codes      CodeStore
	backups    BackupStore
	sessions   *sessions.Manager
	mail       mailer.Sender
	logger     *zap.Logger
	issuer     string
	now        func() time.Time
}

func NewEngine(
	users UserStore,
	challenges ChallengeStore,
	codes CodeStore,
	backups BackupStore,
	sessionManager *sessions.Manager,
	mail mailer.Sender,
	issuer string,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		users:      users,
		challenges: challenges,
		codes:      codes,
		backups:    backups,
		sessions:   sessionManager,
		mail:       mail,
		logger:     logger,
		issuer:     issuer,
		now:        time.Now,
	}
}

// Begin records a pending challenge for a user who just passed the password
// check, carrying the login's rememberMe choice forward. For the email
// method a one-time code is dispatched immediately.
func (e *Engine) Begin(ctx context.Context, user *models.User, remember bool) (*Challenge, error) {
	challenge := models.PendingTwoFactorChallenge{
		SessionID:  uuid.NewString(),
		UserID:     user.ID,
		Method:     user.TwoFactorMethod,
		RememberMe: remember,
		ExpiresAt:  e.now().Add(ChallengeTTL),
	}
	if err := e.challenges.Create(ctx, &challenge); err != nil {
		return nil, err
	}
	if user.TwoFactorMethod == models.TwoFactorMethodEmail {
		if err := e.dispatchCode(ctx, user, models.CodePurposeTwoFactor); err != nil {
			return nil, err
		}
	}
	return &Challenge{SessionID: challenge.SessionID, Method: challenge.Method}, nil
}

// Result is a finalized login: the issued session plus what the cookie
// writer needs.
type Result struct {
	Token     string
	ExpiresAt time.Time
	Remember  bool
	User      *models.User
}

// VerifyChallenge proves the second factor and finishes the login. A missing
// or stale challenge answers ErrChallengeExpired; a wrong code answers
// ErrChallengeCodeInvalid and leaves the challenge in place for a retry
// within the TTL. Success consumes the challenge, so a replay of the same
// sessionID fails as expired.
func (e *Engine) VerifyChallenge(ctx context.Context, sessionID, code string) (*Result, error) {
	challenge, err := e.challenges.BySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.ErrChallengeExpired
		}
		return nil, err
	}
	if e.now().After(challenge.ExpiresAt) {
		if err := e.challenges.Delete(ctx, sessionID); err != nil {
			e.logger.Error("failed to delete stale challenge", zap.Error(err))
		}
		return nil, utils.ErrChallengeExpired
	}

	user, err := e.users.ByID(ctx, challenge.UserID)
	if err != nil {
		return nil, err
	}

	proven := e.tryBackupCode(ctx, user.ID, code)
	if !proven {
		switch challenge.Method {
		case models.TwoFactorMethodTOTP:
			proven = e.validTOTP(user.TwoFactorSecret, code)
		case models.TwoFactorMethodEmail:
			proven = e.consumeEmailCode(ctx, user.Email, models.CodePurposeTwoFactor, code)
		}
	}
	if !proven {
		return nil, utils.ErrChallengeCodeInvalid
	}

	if err := e.challenges.Delete(ctx, sessionID); err != nil {
		return nil, err
	}
	token, expiresAt, err := e.sessions.Issue(ctx, user, challenge.RememberMe)
	if err != nil {
		return nil, err
	}
	return &Result{
		Token:     token,
		ExpiresAt: expiresAt,
		Remember:  challenge.RememberMe,
		User:      user,
	}, nil
}

// validTOTP accepts the current step and one step of drift either side.
func (e *Engine) validTOTP(secret, code string) bool {
	if secret == "" || code == "" {
		return false
	}
	totp := gotp.NewDefaultTOTP(secret)
	ts := int(e.now().Unix())
	for _, offset := range []int{0, -totpStepSeconds, totpStepSeconds} {
		if subtle.ConstantTimeCompare([]byte(totp.At(ts+offset)), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

// consumeEmailCode checks the stored one-time code for the destination and
// deletes it on success, so it proves the factor exactly once.
func (e *Engine) consumeEmailCode(ctx context.Context, destination, purpose, code string) bool {
	record, err := e.codes.Find(ctx, destination, purpose)
	if err != nil {
		if !errors.Is(err, utils.ErrNotFound) {
			e.logger.Error("one-time code lookup failed", zap.Error(err))
		}
		return false
	}
	if e.now().After(record.ExpiresAt) {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
		return false
	}
	if err := e.codes.Delete(ctx, destination, purpose); err != nil {
		e.logger.Error("failed to delete consumed code", zap.Error(err))
		return false
	}
	return true
}

// tryBackupCode accepts a valid unused backup code as alternate proof and
// consumes it.
func (e *Engine) tryBackupCode(ctx context.Context, userID uint, code string) bool {
	if code == "" {
		return false
	}
	records, err := e.backups.ByUser(ctx, userID)
	if err != nil {
		e.logger.Error("backup code lookup failed", zap.Error(err))
		return false
	}
	for _, record := range records {
		if bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(code)) == nil {
			if err := e.backups.Consume(ctx, record.ID); err != nil {
				e.logger.Error("failed to consume backup code", zap.Error(err))
				return false
			}
			return true
		}
	}
	return false
}

// dispatchCode generates, stores, and mails a fresh one-time code. A failed
// store write is returned: without the stored code the challenge could never
// be satisfied. Delivery failure is logged only; the stored code stays valid
// and resend is cheap.
func (e *Engine) dispatchCode(ctx context.Context, user *models.User, purpose string) error {
	code := generateNumericCode()
	if err := e.codes.Replace(ctx, user.Email, purpose, code, e.now().Add(CodeTTL)); err != nil {
		e.logger.Error("failed to store one-time code", zap.Error(err))
		return err
	}
	if err := e.mail.SendOneTimeCode(ctx, user.Email, code, user.FirstName); err != nil {
		e.logger.Error("failed to deliver one-time code", zap.Error(err))
	}
	return nil
}
