package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"json format", func(c *Config) { c.Format = "json" }, false},
		{"bad format", func(c *Config) { c.Format = "xml" }, true},
		{"bad level", func(c *Config) { c.Level = "loud" }, true},
		{"empty field key", func(c *Config) { c.Fields = map[string]string{"": "x"} }, true},
		{"empty field value", func(c *Config) { c.Fields = map[string]string{"k": ""} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, logger.Underlying())

	_, err = NewLogger(&Config{Level: "info", Format: "bogus"})
	assert.Error(t, err)
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ContextFields(ctx))

	ctx = WithAttemptID(ctx, "a1")
	ctx = WithModule(ctx, "payments-api")
	ctx = WithRule(ctx, "naming.role_suffix")

	fields := ContextFields(ctx)
	require.Len(t, fields, 3)
	assert.Equal(t, "a1", AttemptIDFromContext(ctx))
	assert.Equal(t, "payments-api", ModuleFromContext(ctx))
	assert.Equal(t, "naming.role_suffix", RuleFromContext(ctx))
}

func TestLogger_ContextAwareLogging(t *testing.T) {
	logger, logs := NewTestLogger()

	ctx := WithModule(context.Background(), "billing")
	logger.Info(ctx, "classified", zap.String("role", "pure_aggregator"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "classified", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "billing", fields["module"])
	assert.Equal(t, "pure_aggregator", fields["role"])
}

func TestFromContext(t *testing.T) {
	// Missing logger yields a usable nop.
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	logger.Info(context.Background(), "no-op")

	want, _ := NewTestLogger()
	ctx := WithLogger(context.Background(), want)
	assert.Same(t, want, FromContext(ctx))
}
