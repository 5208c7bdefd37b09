package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewTestLogger returns a logger backed by an in-memory observer, along
// with the observed logs for assertions.
func NewTestLogger() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{zap: zap.New(core), config: NewDefaultConfig()}, logs
}

// TestContext returns a context carrying a test logger. The observed logs
// are returned for assertions.
func TestContext(ctx context.Context) (context.Context, *observer.ObservedLogs) {
	logger, logs := NewTestLogger()
	return WithLogger(ctx, logger), logs
}
