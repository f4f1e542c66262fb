package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("whatever"))
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "text"}, &buf)

	logger.Debug("hidden")
	logger.With("agentID", "a1").WithGroup("world").Info("applied", "players", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INF applied")
	assert.Contains(t, out, "agentID=a1")
	assert.Contains(t, out, "world.players=3")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("slow tick", "lag", "12ms")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "slow tick", rec["msg"])
	assert.Equal(t, "12ms", rec["lag"])
}

type recordingHandler struct {
	records *[]slog.Record
	attrs   []slog.Attr
}

func (h recordingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h recordingHandler) Handle(_ context.Context, r slog.Record) error {
	r.AddAttrs(h.attrs...)
	*h.records = append(*h.records, r)
	return nil
}
func (h recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return recordingHandler{records: h.records, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}
func (h recordingHandler) WithGroup(string) slog.Handler { return h }

func TestNew_FansOutToExtraHandlers(t *testing.T) {
	var buf bytes.Buffer
	var records []slog.Record
	logger := New(Config{Level: "error", Format: "text"}, &buf, recordingHandler{records: &records})

	logger.With("agentID", "a1").Info("joined")

	assert.Empty(t, buf.String())
	require.Len(t, records, 1)
	assert.Equal(t, "joined", records[0].Message)
	var keys []string
	records[0].Attrs(func(a slog.Attr) bool {
		keys = append(keys, a.Key)
		return true
	})
	assert.Equal(t, []string{"agentID"}, keys)
}
