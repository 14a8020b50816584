package utils

import "errors"

// ErrNotFound is returned by repositories when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned by repositories when an insert loses to a
// uniqueness constraint. Callers retry it as a read of the winning row.
var ErrConflict = errors.New("record already exists")

// ErrSessionInvalid covers every session verification failure: bad signature,
// embedded expiry passed, store record missing, or store expiry passed.
// Collapsing them denies an attacker a token-forging oracle.
var ErrSessionInvalid = errors.New("session invalid")

// MFA challenge errors.
var ErrChallengeExpired = errors.New("two-factor challenge expired")
var ErrChallengeCodeInvalid = errors.New("two-factor code invalid")

// Identity reconciliation errors.
var ErrProviderEmailMissing = errors.New("provider supplied no email")
var ErrProviderExchangeFailed = errors.New("provider code exchange failed")
var ErrLinkConflict = errors.New("external identity already linked to another user")
