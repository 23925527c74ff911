package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	digest, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.NotEqual(t, "correct horse", digest)
	assert.True(t, VerifyPassword("correct horse", digest))
	assert.False(t, VerifyPassword("battery staple", digest))
}

func TestHashPassword_Salted(t *testing.T) {
	a, err := HashPassword("same")
	require.NoError(t, err)
	b, err := HashPassword("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyPassword_MalformedDigest(t *testing.T) {
	assert.False(t, VerifyPassword("x", ""))
	assert.False(t, VerifyPassword("x", "not-a-bcrypt-digest"))
}
