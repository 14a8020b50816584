// Package passwords is the credential store: bcrypt hashing and verification,
// strength scoring, and reuse-history checking.
package passwords

import (
	"context"
	"runtime"
	"unicode"

	"github.com/cloudcanvas/accounts/models"
	"golang.org/x/crypto/bcrypt"
)

// HASH_ROUNDS is the bcrypt work factor. 12 keeps brute forcing expensive;
// raising it later is safe because each hash self-describes its cost.
const HASH_ROUNDS = 12

// HISTORY_WINDOW is how many previous passwords are rejected on reuse.
const HISTORY_WINDOW = 5

// Strength violation labels, stable for per-field client feedback.
const (
	ViolationTooShort    = "too_short"
	ViolationNoUppercase = "missing_uppercase"
	ViolationNoLowercase = "missing_lowercase"
	ViolationNoDigit     = "missing_digit"
	ViolationNoSymbol    = "missing_symbol"
)

// Strength is the outcome of ValidateStrength. Score is the displayed 0..4
// meter; IsValid is the sole gate and requires every check to pass, so a
// password can show 4/4 and still be invalid.
type Strength struct {
	IsValid    bool     `json:"isValid"`
	Score      int      `json:"score"`
	Violations []string `json:"violations"`
}

// HistoryStore is the append-only password history needed for reuse checks.
type HistoryStore interface {
	Recent(ctx context.Context, userID uint, n int) ([]models.PasswordHistoryEntry, error)
	Append(ctx context.Context, userID uint, passwordHash string) error
}

// Service hashes behind a semaphore so bcrypt work cannot saturate request
// dispatch under a burst of signups.
type Service struct {
	history HistoryStore
	hashSem chan struct{}
}

func NewService(history HistoryStore) *Service {
	return &Service{
		history: history,
		hashSem: make(chan struct{}, runtime.GOMAXPROCS(0)),
	}
}

// Hash produces a salted bcrypt credential for the plaintext.
func (s *Service) Hash(password string) (string, error) {
	s.hashSem <- struct{}{}
	defer func() { <-s.hashSem }()
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), HASH_ROUNDS)
	return string(bytes), err
}

// Verify reports whether the plaintext matches the credential. bcrypt's
// comparison does not leak prefix-match timing.
func (s *Service) Verify(password, credential string) bool {
	if credential == "" {
		return false
	}
	s.hashSem <- struct{}{}
	defer func() { <-s.hashSem }()
	return bcrypt.CompareHashAndPassword([]byte(credential), []byte(password)) == nil
}

// ValidateStrength runs the five checks. The meter caps at 4 even when all
// five pass.
func (s *Service) ValidateStrength(password string) Strength {
	var violations []string
	passed := 0

	if len(password) >= 8 {
		passed++
	} else {
		violations = append(violations, ViolationTooShort)
	}

	hasUpper, hasLower, hasDigit, hasSymbol := false, false, false, false
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	checks := []struct {
		ok        bool
		violation string
	}{
		{hasUpper, ViolationNoUppercase},
		{hasLower, ViolationNoLowercase},
		{hasDigit, ViolationNoDigit},
		{hasSymbol, ViolationNoSymbol},
	}
	for _, c := range checks {
		if c.ok {
			passed++
		} else {
			violations = append(violations, c.violation)
		}
	}

	score := passed
	if score > 4 {
		score = 4
	}
	return Strength{
		IsValid:    len(violations) == 0,
		Score:      score,
		Violations: violations,
	}
}

// CheckReuse compares the candidate against the newest HISTORY_WINDOW
// history entries and short-circuits on the first match. Read-only; callers
// append to history only after a successful change.
func (s *Service) CheckReuse(ctx context.Context, userID uint, password string) (bool, error) {
	entries, err := s.history.Recent(ctx, userID, HISTORY_WINDOW)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if s.Verify(password, entry.PasswordHash) {
			return true, nil
		}
	}
	return false, nil
}

// RecordHistory appends a credential to the user's history.
func (s *Service) RecordHistory(ctx context.Context, userID uint, credential string) error {
	return s.history.Append(ctx, userID, credential)
}
