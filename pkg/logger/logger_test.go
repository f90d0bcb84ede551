package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	l := newLogger()

	formatter, ok := l.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
}

func TestGetLogger_WithoutContextLogger(t *testing.T) {
	retrieved := G(context.Background())

	require.NotNil(t, retrieved)
	assert.Equal(t, L.Logger, retrieved.Logger)
}

func TestGetLogger_WithContextLogger(t *testing.T) {
	custom := logrus.NewEntry(logrus.New()).WithField("test", "value")
	ctx := WithLogger(context.Background(), custom)

	retrieved := G(ctx)
	assert.Equal(t, "value", retrieved.Data["test"])
}

func TestWithRun(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	setLoggerFormat(l, "json")

	ctx := WithLogger(context.Background(), logrus.NewEntry(l))
	ctx, runID := WithRun(ctx, "morning")

	_, err := uuid.Parse(runID)
	require.NoError(t, err)

	G(ctx).Info("agent finished")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, runID, entry["run_id"])
	assert.Equal(t, "morning", entry["variant"])
	assert.Equal(t, "agent finished", entry["message"])
	assert.Equal(t, "info", entry["logLevel"])
}

func TestWithRun_DistinctIDs(t *testing.T) {
	_, first := WithRun(context.Background(), "evening")
	_, second := WithRun(context.Background(), "evening")

	assert.NotEqual(t, first, second)
}

func TestSetLogLevel(t *testing.T) {
	orig := L.Logger.GetLevel()
	defer L.Logger.SetLevel(orig)

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	assert.Error(t, SetLogLevel("loud"))
}

func TestSetLogFormat(t *testing.T) {
	orig := L.Logger.Formatter
	defer func() { L.Logger.Formatter = orig }()

	SetLogFormat("json")
	assert.IsType(t, &logrus.JSONFormatter{}, L.Logger.Formatter)

	SetLogFormat("anything-else")
	assert.IsType(t, &logrus.TextFormatter{}, L.Logger.Formatter)
}
