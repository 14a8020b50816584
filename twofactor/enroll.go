package twofactor

import (
	"context"
	"errors"

	"github.com/cloudcanvas/accounts/models"
	"github.com/cloudcanvas/accounts/utils"
	"github.com/xlzd/gotp"
	"golang.org/x/crypto/bcrypt"
)

// Enrollment is the one-time disclosure of a fresh TOTP secret. BackupCodes
// are returned in the clear exactly once; only their hashes are stored.
type Enrollment struct {
	Secret      string
	QRPayload   string
	BackupCodes []string
}

// InitTOTP generates a fresh secret and backup-code set. Nothing is enabled
// yet: the secret sits inert on the user record until ConfirmEnrollment
// proves the authenticator actually captured it.
func (e *Engine) InitTOTP(ctx context.Context, userID uint) (*Enrollment, error) {
	user, err := e.users.ByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	secret := gotp.RandomSecret(32)
	uri := gotp.NewDefaultTOTP(secret).ProvisioningUri(user.Email, e.issuer)

	codes, hashes, err := generateBackupCodes(BackupCodeCount)
	if err != nil {
		return nil, err
	}

	user.TwoFactorSecret = secret
	if err := e.users.Save(ctx, user); err != nil {
		return nil, err
	}
	if err := e.backups.Replace(ctx, user.ID, hashes); err != nil {
		return nil, err
	}
	return &Enrollment{Secret: secret, QRPayload: uri, BackupCodes: codes}, nil
}

// InitEmail sends a confirmation code to the user's registered address to
// prove receipt capability before the email method can be enabled.
func (e *Engine) InitEmail(ctx context.Context, userID uint) error {
	user, err := e.users.ByID(ctx, userID)
	if err != nil {
		return err
	}
	return e.dispatchCode(ctx, user, models.CodePurposeEnroll)
}

// ConfirmEnrollment flips twoFactorEnabled only after the user proves the
// chosen factor works: a current TOTP code, or the emailed confirmation code.
func (e *Engine) ConfirmEnrollment(ctx context.Context, userID uint, method, code string) error {
	user, err := e.users.ByID(ctx, userID)
	if err != nil {
		return err
	}

	switch method {
	case models.TwoFactorMethodTOTP:
		if !e.validTOTP(user.TwoFactorSecret, code) {
			return utils.ErrChallengeCodeInvalid
		}
	case models.TwoFactorMethodEmail:
		if !e.consumeEmailCode(ctx, user.Email, models.CodePurposeEnroll, code) {
			return utils.ErrChallengeCodeInvalid
		}
	default:
		return errors.New("unknown two-factor method: " + method)
	}

	user.TwoFactorEnabled = true
	user.TwoFactorMethod = method
	if method != models.TwoFactorMethodTOTP {
		user.TwoFactorSecret = ""
	}
	return e.users.Save(ctx, user)
}

// RegenerateBackupCodes replaces the whole set atomically; there is never a
// window where old and new codes are both valid.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID uint) ([]string, error) {
	codes, hashes, err := generateBackupCodes(BackupCodeCount)
	if err != nil {
		return nil, err
	}
	if err := e.backups.Replace(ctx, userID, hashes); err != nil {
		return nil, err
	}
	return codes, nil
}

// Disable clears the enabled flag, method, secret, and all backup codes.
func (e *Engine) Disable(ctx context.Context, userID uint) error {
	user, err := e.users.ByID(ctx, userID)
	if err != nil {
		return err
	}
	user.TwoFactorEnabled = false
	user.TwoFactorMethod = ""
	user.TwoFactorSecret = ""
	if err := e.users.Save(ctx, user); err != nil {
		return err
	}
	return e.backups.Replace(ctx, user.ID, nil)
}

func hashBackupCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	return string(hash), err
}
