package logging

import (
	"testing"

	"github.com/mikey/ocr-spam-filter/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLevelForVerbosity(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, levelFor(-1))
	assert.Equal(t, zapcore.WarnLevel, levelFor(VerbosityQuiet))
	assert.Equal(t, zapcore.InfoLevel, levelFor(VerbosityNormal))
	assert.Equal(t, zapcore.DebugLevel, levelFor(VerbosityDebug))
	assert.Equal(t, zapcore.DebugLevel, levelFor(VerbosityTrace))
}

func TestInitLoggerRespectsVerbosity(t *testing.T) {
	v := config.NewEmptyViper()
	v.Set("logging.verbosity", VerbosityDebug)
	v.Set("logging.format", "json")

	logger, err := InitLogger(config.NewFromViper(v))
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestInitLoggerQuietSuppressesInfo(t *testing.T) {
	v := config.NewEmptyViper()
	v.Set("logging.verbosity", VerbosityQuiet)
	v.Set("logging.format", "json")

	logger, err := InitLogger(config.NewFromViper(v))
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
}
