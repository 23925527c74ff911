package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	logger, err := New("debug", true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = New("WARN", false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New("chatty", false)
	assert.Error(t, err)
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+7********67", MaskPhone("+79991234567"))
	assert.Equal(t, "****", MaskPhone("+79"))
}
