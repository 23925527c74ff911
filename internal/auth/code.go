package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	codeDigits = 4
	devCode    = "0000"
)

var codeSpace = big.NewInt(10000)

// generateCode returns a uniformly random 4-digit code
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// hashCode binds a code to one session: SHA-256(session:code:salt)
func hashCode(sessionID uuid.UUID, code, salt string) []byte {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", sessionID, code, salt)))
	return sum[:]
}

func codeMatches(sessionID uuid.UUID, code, salt string, stored []byte) bool {
	return subtle.ConstantTimeCompare(hashCode(sessionID, code, salt), stored) == 1
}
