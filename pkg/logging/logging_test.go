package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("loud"))
}

func TestNewInstallsGlobal(t *testing.T) {
	prev := zap.L()
	defer zap.ReplaceGlobals(prev)

	l, err := New(&Config{Level: "error", Encoding: "console"})
	require.NoError(t, err)
	assert.Same(t, l, zap.L())
	assert.False(t, l.Core().Enabled(zapcore.WarnLevel))
	assert.True(t, l.Core().Enabled(zapcore.ErrorLevel))
}

func TestFromContextCarriesRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	ctx := WithLogger(context.Background(), zap.New(core))
	ctx = WithRequestID(ctx, "")
	id := RequestID(ctx)
	require.NotEmpty(t, id)

	FromContext(ctx).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ContextMap()["request_id"])
}

func TestComponent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Component(zap.New(core), "publisher").Info("tick")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "publisher", logs.All()[0].LoggerName)
	assert.Equal(t, "publisher", logs.All()[0].ContextMap()["component"])
}
