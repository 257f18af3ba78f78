package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestFieldEncoding(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{zl: zerolog.New(&buf)}

	l.Info("fields",
		String("symbol", "BTC/USDT"),
		Int("cycle", 7),
		Int64("trades", 9),
		Bool("dry_run", true),
		Duration("elapsed", 1500*time.Millisecond),
		Error(errors.New("boom")),
		Any("ratio", 0.42),
	)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	require.Equal(t, "info", m["level"])
	require.Equal(t, "fields", m["message"])
	require.Equal(t, "BTC/USDT", m["symbol"])
	require.Equal(t, float64(7), m["cycle"])
	require.Equal(t, float64(9), m["trades"])
	require.Equal(t, true, m["dry_run"])
	require.Equal(t, float64(1500), m["elapsed"])
	require.Equal(t, "boom", m["error"])
	require.Equal(t, 0.42, m["ratio"])
}

func TestLevelThresholdFilters(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{zl: zerolog.New(&buf).Level(zerolog.WarnLevel)}

	l.Debug("hidden")
	l.Info("hidden")
	require.Zero(t, buf.Len())

	l.Warn("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestWarnAndErrorFeedCollector(t *testing.T) {
	pub := &capturePublisher{}
	l := &Logger{zl: zerolog.New(io.Discard)}
	l.AddCollector(&CollectionConfig{
		TimeInterval: time.Hour,
		Topic:        "logs",
		Publisher:    pub,
	})

	l.Info("not collected")
	l.Warn("order rejected", String("symbol", "BTC/USDT"), Error(errors.New("boom")))
	l.RemoveCollector()

	entries := pub.all()
	require.Len(t, entries, 1)
	require.Equal(t, "warn", entries[0].Level)
	require.Equal(t, "order rejected", entries[0].Message)
	require.Equal(t, "BTC/USDT", entries[0].Fields["symbol"])
	require.Equal(t, "boom", entries[0].Fields["error"])
	require.Contains(t, entries[0].Caller, "logger_test.go")

	// Detached: further records go nowhere and must not panic.
	l.Error("after detach")
	require.Len(t, pub.all(), 1)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	require.Error(t, err)
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Output: path})
	require.NoError(t, err)

	l.Info("engine started", String("symbol", "BTC/USDT"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "engine started")
	require.Contains(t, string(raw), "BTC/USDT")
}
