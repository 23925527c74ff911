package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capiorg/backend-auth/internal/metrics"
)

// Invalidator drops cached identities in the background. Failures are
// logged and counted, never returned.
type Invalidator struct {
	cache   Cache
	timeout time.Duration
	repeat  time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewInvalidator(c Cache, timeout time.Duration, logger *zap.Logger) *Invalidator {
	return &Invalidator{cache: c, timeout: timeout, logger: logger}
}

// WithRepeat deletes each pattern a second time after d. The second pass
// catches an identity cached by a read that raced the first delete.
func (i *Invalidator) WithRepeat(d time.Duration) *Invalidator {
	i.repeat = d
	return i
}

// User drops every cached identity of userID
func (i *Invalidator) User(userID uuid.UUID) {
	i.run(CurrentUserPattern(userID))
}

// Session drops the cached identity of one user session
func (i *Invalidator) Session(userID, sessionID uuid.UUID) {
	i.run(CurrentUserKey(userID, sessionID))
}

// Wait blocks until in-flight invalidations finish
func (i *Invalidator) Wait() {
	i.wg.Wait()
}

func (i *Invalidator) run(pattern string) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.invalidate(pattern)
		if i.repeat > 0 {
			time.Sleep(i.repeat)
			i.invalidate(pattern)
		}
	}()
}

func (i *Invalidator) invalidate(pattern string) {
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	if err := i.cache.InvalidatePattern(ctx, pattern); err != nil {
		metrics.CacheInvalidationFailures.Inc()
		i.logger.Warn("cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
	}
}
