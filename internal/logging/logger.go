package logging

import (
	"fmt"

	"github.com/mikey/ocr-spam-filter/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Scan verbosity levels. Level 0 keeps only warnings and errors, 1 adds
// per-message summaries, 2 adds per-step tool and matcher detail, 3
// additionally annotates entries with caller information for chain
// debugging.
const (
	VerbosityQuiet = iota
	VerbosityNormal
	VerbosityDebug
	VerbosityTrace
)

// levelFor maps a scan verbosity to the zap level it enables
func levelFor(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityQuiet:
		return zapcore.WarnLevel
	case verbosity == VerbosityNormal:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// InitLogger initializes a logger from the logging configuration section:
// an integer scan verbosity plus an output format.
func InitLogger(cfg *config.Config) (*zap.Logger, error) {
	return build(cfg.GetInt("logging.verbosity"), cfg.GetString("logging.format") == "json")
}

// InitConsoleLogger initializes a console-friendly logger for one-shot
// command line runs; verbose selects the debug verbosity.
func InitConsoleLogger(verbose bool, jsonFormat bool) (*zap.Logger, error) {
	verbosity := VerbosityNormal
	if verbose {
		verbosity = VerbosityDebug
	}
	return build(verbosity, jsonFormat)
}

func build(verbosity int, jsonFormat bool) (*zap.Logger, error) {
	var logConfig zap.Config
	if jsonFormat {
		logConfig = zap.NewProductionConfig()
	} else {
		logConfig = zap.NewDevelopmentConfig()
		logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logConfig.Level = zap.NewAtomicLevelAt(levelFor(verbosity))
	logConfig.DisableCaller = verbosity < VerbosityTrace
	logConfig.DisableStacktrace = verbosity < VerbosityTrace

	logger, err := logConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger, nil
}
