package logging

import (
	"context"

	"go.uber.org/zap"
)

// Context key types.
type attemptCtxKey struct{}
type moduleCtxKey struct{}
type ruleCtxKey struct{}
type loggerCtxKey struct{}

// WithAttemptID tags the context with a remediation attempt id.
func WithAttemptID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, attemptCtxKey{}, id)
}

// AttemptIDFromContext extracts the attempt id, or "".
func AttemptIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(attemptCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithModule tags the context with the module identity being processed.
func WithModule(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, moduleCtxKey{}, identity)
}

// ModuleFromContext extracts the module identity, or "".
func ModuleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(moduleCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRule tags the context with the rule id being remediated.
func WithRule(ctx context.Context, ruleID string) context.Context {
	return context.WithValue(ctx, ruleCtxKey{}, ruleID)
}

// RuleFromContext extracts the rule id, or "".
func RuleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ruleCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextFields extracts correlation fields from the context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 3)
	if id := AttemptIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("attempt.id", id))
	}
	if m := ModuleFromContext(ctx); m != "" {
		fields = append(fields, zap.String("module", m))
	}
	if r := RuleFromContext(ctx); r != "" {
		fields = append(fields, zap.String("rule", r))
	}
	return fields
}

// Context-aware logging methods.

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Debug(msg, append(ContextFields(ctx), fields...)...)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Info(msg, append(ContextFields(ctx), fields...)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Warn(msg, append(ContextFields(ctx), fields...)...)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Error(msg, append(ContextFields(ctx), fields...)...)
}

// WithLogger stores the logger in the context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger from the context, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
