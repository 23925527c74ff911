package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNew_OpensAfterRepeatedFailures(t *testing.T) {
	cb := New("test-open", time.Minute, zap.NewNop())
	boom := errors.New("upstream down")

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestNew_StaysClosedBelowRatio(t *testing.T) {
	cb := New("test-closed", time.Minute, zap.NewNop())
	boom := errors.New("flaky")

	results := []error{nil, boom, nil, nil, boom}
	for _, res := range results {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, res })
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestNew_HalfOpenAfterTimeout(t *testing.T) {
	cb := New("test-half-open", 10*time.Millisecond, zap.NewNop())
	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, errors.New("down") })
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, gobreaker.StateHalfOpen, cb.State())
}
