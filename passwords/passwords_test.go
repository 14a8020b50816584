package passwords

import (
	"context"
	"testing"

	"github.com/cloudcanvas/accounts/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	entries []models.PasswordHistoryEntry
}

func (f *fakeHistory) Recent(ctx context.Context, userID uint, n int) ([]models.PasswordHistoryEntry, error) {
	// newest first
	var out []models.PasswordHistoryEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < n; i-- {
		if f.entries[i].UserID == userID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeHistory) Append(ctx context.Context, userID uint, passwordHash string) error {
	f.entries = append(f.entries, models.PasswordHistoryEntry{UserID: userID, PasswordHash: passwordHash})
	return nil
}

func TestHashVerifyRoundtrip(t *testing.T) {
	s := NewService(&fakeHistory{})

	hash, err := s.Hash("Password1!")
	require.NoError(t, err)
	assert.NotEqual(t, "Password1!", hash)

	assert.True(t, s.Verify("Password1!", hash))
	assert.False(t, s.Verify("Password2!", hash))
}

func TestVerifyEmptyCredential(t *testing.T) {
	s := NewService(&fakeHistory{})
	assert.False(t, s.Verify("anything", ""))
}

func TestValidateStrengthAllChecksPass(t *testing.T) {
	s := NewService(&fakeHistory{})

	strength := s.ValidateStrength("Password1!")
	assert.True(t, strength.IsValid)
	assert.Equal(t, 4, strength.Score)
	assert.Empty(t, strength.Violations)
}

func TestValidateStrengthLowercaseOnly(t *testing.T) {
	s := NewService(&fakeHistory{})

	strength := s.ValidateStrength("password")
	assert.False(t, strength.IsValid)
	assert.ElementsMatch(t, []string{
		ViolationNoUppercase,
		ViolationNoDigit,
		ViolationNoSymbol,
	}, strength.Violations)
}

func TestValidateStrengthScoreIsNotTheGate(t *testing.T) {
	s := NewService(&fakeHistory{})

	// Four character classes present but below minimum length: the meter
	// can read 4 while the password stays invalid.
	strength := s.ValidateStrength("Aa1!")
	assert.Equal(t, 4, strength.Score)
	assert.False(t, strength.IsValid)
	assert.Equal(t, []string{ViolationTooShort}, strength.Violations)
}

func TestCheckReuseWindow(t *testing.T) {
	ctx := context.Background()
	history := &fakeHistory{}
	s := NewService(history)

	generations := []string{
		"OldPass0!", "OldPass1!", "OldPass2!",
		"OldPass3!", "OldPass4!", "OldPass5!",
	}
	for _, p := range generations {
		hash, err := s.Hash(p)
		require.NoError(t, err)
		require.NoError(t, s.RecordHistory(ctx, 1, hash))
	}

	// All of the newest five are rejected.
	for _, p := range generations[1:] {
		reused, err := s.CheckReuse(ctx, 1, p)
		require.NoError(t, err)
		assert.True(t, reused, p)
	}

	// The sixth-generations-old password fell out of the window.
	reused, err := s.CheckReuse(ctx, 1, generations[0])
	require.NoError(t, err)
	assert.False(t, reused)

	// A fresh password is never reused.
	reused, err = s.CheckReuse(ctx, 1, "BrandNew9?")
	require.NoError(t, err)
	assert.False(t, reused)
}

func TestCheckReuseOtherUsersHistoryIgnored(t *testing.T) {
	ctx := context.Background()
	history := &fakeHistory{}
	s := NewService(history)

	hash, err := s.Hash("SharedPass1!")
	require.NoError(t, err)
	require.NoError(t, s.RecordHistory(ctx, 2, hash))

	reused, err := s.CheckReuse(ctx, 1, "SharedPass1!")
	require.NoError(t, err)
	assert.False(t, reused)
}
