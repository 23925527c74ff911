package auth

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// passwordCost is lowered in tests
var passwordCost = bcrypt.DefaultCost

var (
	dummyOnce   sync.Once
	dummyDigest []byte
)

// HashPassword returns a salted bcrypt digest of password
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// VerifyPassword reports whether password matches digest. A malformed digest
// yields false.
func VerifyPassword(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

// burnPasswordCheck spends one bcrypt comparison so unknown phones take about
// as long as wrong passwords.
func burnPasswordCheck(password string) {
	dummyOnce.Do(func() {
		dummyDigest, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), passwordCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyDigest, []byte(password))
}
