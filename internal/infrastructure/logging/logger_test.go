package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerAddsCategories(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewZapFromCore(zap.New(core))

	extra := map[ExtraKey]any{Room: "channel:1"}
	logger.Warn(Gateway, Delivery, "queue full", extra)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "queue full", entries[0].Message)
	assert.Equal(t, "Gateway", fields["Category"])
	assert.Equal(t, "Delivery", fields["SubCategory"])
	assert.Equal(t, "channel:1", fields["Room"])
	assert.Len(t, extra, 1, "caller map must not be mutated")
}

func TestZeroLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := &zeroLogger{cfg: &LoggerConfig{AppName: "chorus", Level: "info"}, out: &buf}
	logger.Init()

	logger.Debug(General, Startup, "hidden", nil)
	logger.Info(Relay, Subscription, "subscribed", map[ExtraKey]any{Driver: "redis"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "subscribed", line["message"])
	assert.Equal(t, "Relay", line["Category"])
	assert.Equal(t, "redis", line["Driver"])
	assert.Equal(t, "chorus", line["AppName"])
}

func TestNewLoggerRejectsUnknownBackend(t *testing.T) {
	assert.Panics(t, func() { NewLogger(&LoggerConfig{Logger: "logrus"}) })
}
