package auth

import (
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode_FourDigits(t *testing.T) {
	re := regexp.MustCompile(`^\d{4}$`)
	for i := 0; i < 200; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		assert.Regexp(t, re, code)
	}
}

func TestHashCode_Deterministic(t *testing.T) {
	id := uuid.New()
	h1 := hashCode(id, "1234", "salt")
	h2 := hashCode(id, "1234", "salt")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 32)
}

func TestHashCode_BoundToSession(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.NotEqual(t, hashCode(a, "1234", "salt"), hashCode(b, "1234", "salt"))
	assert.NotEqual(t, hashCode(a, "1234", "salt"), hashCode(a, "4321", "salt"))
	assert.NotEqual(t, hashCode(a, "1234", "salt"), hashCode(a, "1234", "pepper"))
}

func TestCodeMatches(t *testing.T) {
	id := uuid.New()
	stored := hashCode(id, "0042", "salt")

	assert.True(t, codeMatches(id, "0042", "salt", stored))
	assert.False(t, codeMatches(id, "0043", "salt", stored))
	assert.False(t, codeMatches(uuid.New(), "0042", "salt", stored))
	assert.False(t, codeMatches(id, "0042", "salt", nil))
}
