package cache

import (
	"context"
	"os"
	"path"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCurrentUserKey(t *testing.T) {
	uid := uuid.MustParse("0190c7a2-1111-7000-8000-000000000001")
	sid := uuid.MustParse("0190c7a2-2222-7000-8000-000000000002")

	assert.Equal(t,
		"v2:users:get_current:user_uuid:0190c7a2-1111-7000-8000-000000000001:session_uuid:0190c7a2-2222-7000-8000-000000000002",
		CurrentUserKey(uid, sid))
}

func TestCurrentUserPatternMatchesOnlyThatUser(t *testing.T) {
	uid := uuid.New()
	other := uuid.New()
	pattern := CurrentUserPattern(uid)

	ok, err := path.Match(pattern, CurrentUserKey(uid, uuid.New()))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = path.Match(pattern, CurrentUserKey(other, uuid.New()))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.NoError(t, c.InvalidatePattern(ctx, "*"))
}

func TestRedisCache_InvalidatePattern(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := NewRedisCache(ctx, url, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	uid := uuid.New()
	keep := CurrentUserKey(uuid.New(), uuid.New())
	k1 := CurrentUserKey(uid, uuid.New())
	k2 := CurrentUserKey(uid, uuid.New())
	for _, k := range []string{keep, k1, k2} {
		require.NoError(t, c.Set(ctx, k, []byte("x"), time.Minute))
	}

	require.NoError(t, c.InvalidatePattern(ctx, CurrentUserPattern(uid)))

	_, err = c.Get(ctx, k1)
	assert.ErrorIs(t, err, ErrMiss)
	_, err = c.Get(ctx, k2)
	assert.ErrorIs(t, err, ErrMiss)
	v, err := c.Get(ctx, keep)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), v)
}
