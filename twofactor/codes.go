package twofactor

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/xlzd/gotp"
)

// generateNumericCode yields a 6-digit code from a throwaway random secret.
func generateNumericCode() string {
	return gotp.NewDefaultTOTP(gotp.RandomSecret(16)).Now()
}

// generateBackupCodes returns n fresh 8-hex-char codes alongside their
// bcrypt hashes.
func generateBackupCodes(n int) ([]string, []string, error) {
	codes := make([]string, 0, n)
	hashes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		raw := make([]byte, 4)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, err
		}
		code := hex.EncodeToString(raw)
		hash, err := hashBackupCode(code)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, hash)
	}
	return codes, hashes, nil
}
