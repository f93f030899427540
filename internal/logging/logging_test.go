package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuku/schemapool/internal/logging"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	t.Run("defaults to info", func(t *testing.T) {
		l, err := logging.New("", false)
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zap.InfoLevel))
		assert.False(t, l.Core().Enabled(zap.DebugLevel))
	})

	t.Run("debug in development", func(t *testing.T) {
		l, err := logging.New("debug", true)
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zap.DebugLevel))
	})

	t.Run("rejects unknown levels", func(t *testing.T) {
		_, err := logging.New("verbose", false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}
