package logging

import (
	"context"
	"os"

	zap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvDebug switches the logger to the development configuration.
const EnvDebug = "NUMADEDUP_DEBUG"

// level is shared by every logger built by NewLogger.
var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// NewLogger returns a new zap.SugaredLogger
func NewLogger() *zap.SugaredLogger {
	var config zap.Config
	debugMode, ok := os.LookupEnv(EnvDebug)
	if ok && debugMode == "true" {
		config = zap.NewDevelopmentConfig()
		level.SetLevel(zapcore.DebugLevel)
	} else {
		config = zap.NewProductionConfig()
	}
	config.Level = level
	// Logs go to stderr, stdout is reserved for changelog output.
	config.OutputPaths = []string{"stderr"}
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger.Named("numadedup").Sugar()
}

// SetLevel changes the level of every logger built by NewLogger, e.g. "debug" or "warn".
func SetLevel(l string) error {
	return level.UnmarshalText([]byte(l))
}

// Level returns the current level.
func Level() string {
	return level.String()
}

type loggerKey struct{}

// WithLogger returns a copy of parent context in which the
// value associated with logger key is the supplied logger.
func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger in the context.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
		return logger
	}
	return NewLogger()
}
