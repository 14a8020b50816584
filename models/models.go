package models

import (
	"time"

	"gorm.io/gorm"
)

// Role values for User.Role.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Two-factor methods for User.TwoFactorMethod.
const (
	TwoFactorMethodTOTP  = "totp"
	TwoFactorMethodEmail = "email"
)

// One-time code purposes.
const (
	CodePurposeTwoFactor = "two_factor"
	CodePurposeEnroll    = "two_factor_enroll"
)

// User is the local account record. PasswordHash is empty for provider-only
// accounts; that absence is the first-class "no password credential" state.
type User struct {
	gorm.Model
	PublicID         string `gorm:"uniqueIndex;size:36"`
	Email            string `gorm:"uniqueIndex;size:191"`
	PasswordHash     string
	FirstName        string
	LastName         string
	Telephone        string
	Role             string `gorm:"size:32;default:user"`
	EmailVerified    bool
	TwoFactorEnabled bool
	TwoFactorMethod  string `gorm:"size:16"`
	TwoFactorSecret  string
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// LinkedAccount ties one external identity to exactly one local user. The
// composite unique index on (provider, provider_profile_id) is the invariant
// keeping a single external identity from attaching to two users; concurrent
// reconciliations race on it and the loser re-reads the winner's row.
type LinkedAccount struct {
	gorm.Model
	UserID            uint   `gorm:"index"`
	Provider          string `gorm:"uniqueIndex:idx_provider_profile;size:32"`
	ProviderProfileID string `gorm:"uniqueIndex:idx_provider_profile;size:128"`
	AccessToken       string
	RefreshToken      string
}

// Session backs a signed session token. Both the token signature and this
// row must agree for the session to be live, so deleting the row revokes
// the session even while the signature stays valid.
type Session struct {
	gorm.Model
	Token     string `gorm:"uniqueIndex;size:512"`
	UserID    uint   `gorm:"index"`
	ExpiresAt time.Time
}

// PasswordHistoryEntry is append-only; the newest five entries form the
// reuse-rejection window.
type PasswordHistoryEntry struct {
	gorm.Model
	UserID       uint `gorm:"index"`
	PasswordHash string
}

// PendingTwoFactorChallenge marks a login that passed the password check and
// awaits a second factor. RememberMe carries the original login's choice so
// the eventual session honors it.
type PendingTwoFactorChallenge struct {
	gorm.Model
	SessionID  string `gorm:"uniqueIndex;size:36"`
	UserID     uint   `gorm:"index"`
	Method     string `gorm:"size:16"`
	RememberMe bool
	ExpiresAt  time.Time
}

// OneTimeCode is an emailed short-lived code, keyed by destination and
// purpose. Expiry is enforced by comparing ExpiresAt at read time.
type OneTimeCode struct {
	gorm.Model
	Destination string `gorm:"index:idx_dest_purpose;size:191"`
	Purpose     string `gorm:"index:idx_dest_purpose;size:32"`
	Code        string `gorm:"size:16"`
	ExpiresAt   time.Time
}

// BackupCode is a single-use recovery code, stored hashed. Consumption
// deletes the row.
type BackupCode struct {
	gorm.Model
	UserID   uint `gorm:"index"`
	CodeHash string
}
