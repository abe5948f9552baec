package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launchpad.log")
	cfg := DefaultConfig()
	cfg.LogFile = path

	l, err := New(cfg)
	require.NoError(t, err)

	l.Named("engine").Info("Token launched", zap.String("asset", "post-1"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Token launched"`)
	assert.Contains(t, string(data), `"asset":"post-1"`)
}

func TestWithOperationAddsCorrelationID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core))

	l.WithOperation("buy").Info("done")
	WithAsset(l.Logger, "post-1").Info("asset")

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "buy", fields["operation"])
	assert.NotEmpty(t, fields["correlation_id"])
	assert.Equal(t, "post-1", entries[1].ContextMap()["asset"])
}

func TestTrackPerformance(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	end := TrackPerformance(zap.New(core), "launch")
	end()

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Operation completed", entries[1].Message)
	assert.Contains(t, entries[1].ContextMap(), "duration")
}
