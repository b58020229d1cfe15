package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pixivcrawl/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug json", cfg: &config.LoggingConfig{Level: "debug", JSON: true}},
		{name: "invalid level", cfg: &config.LoggingConfig{Level: "chatty"}, wantErr: true},
		{name: "file output", cfg: &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && l == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
		err   bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"trace", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := parseLogLevel(tt.input)
		if (err != nil) != tt.err {
			t.Errorf("parseLogLevel(%q) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestWithFieldsWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&config.LoggingConfig{Level: "debug"}, &buf)
	require.NoError(t, err)

	child := l.WithField("keyword", "landscape").WithFields(map[string]interface{}{
		"page":    int64(2),
		"elapsed": time.Second,
	})
	child.InfoWithFields("Page scanned", map[string]interface{}{"accepted": 3})
	l.Info("parent untouched")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "Page scanned", lines[0]["message"])
	assert.Equal(t, "landscape", lines[0]["keyword"])
	assert.Equal(t, float64(2), lines[0]["page"])
	assert.Equal(t, float64(3), lines[0]["accepted"])
	assert.Equal(t, "pixivcrawl", lines[0]["app"])

	assert.Equal(t, "parent untouched", lines[1]["message"])
	_, hasKeyword := lines[1]["keyword"]
	assert.False(t, hasKeyword)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&config.LoggingConfig{Level: "warn"}, &buf)
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	l.WithError(errors.New("boom")).Error("shown too")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "boom", lines[1]["error"])
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l, err := New(&config.LoggingConfig{Level: "info", File: path})
	require.NoError(t, err)

	l.Info("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"to file"`)
}

func TestGlobalLogger(t *testing.T) {
	prev := globalLogger
	defer SetLogger(prev)

	tl := NewTestLogger()
	SetLogger(tl)

	Info("global info")
	WithField("component", "crawler").Warn("global warn")

	assert.True(t, tl.HasMessage("global info"))
	warns := tl.GetMessagesByLevel("WARN")
	require.Len(t, warns, 1)
	assert.Equal(t, "crawler", warns[0].Fields["component"])
}

func TestHelpers(t *testing.T) {
	tl := NewTestLogger()

	LogPageScanned(tl, "landscape", 1, 30, 28, 2)
	LogFallback(tl, 102, "http://mirror/img.jpg", 404, nil)
	LogComponentStart(tl, "worker_pool", map[string]interface{}{"workers": 4})
	LogFallback(tl, 103, "http://mirror/img.png", 0, errors.New("connection refused"))
	LogRequest(tl, "GET", "/v1/search/illust", 503, 20*time.Millisecond)

	infos := tl.GetMessagesByLevel("INFO")
	require.Len(t, infos, 2)
	assert.Equal(t, 28, infos[0].Fields["accepted"])
	assert.Equal(t, "worker_pool", infos[1].Fields["component"])
	assert.Equal(t, 4, infos[1].Fields["workers"])

	warns := tl.GetMessagesByLevel("WARN")
	require.Len(t, warns, 2)
	assert.Equal(t, 404, warns[0].Fields["status_code"])
	assert.Equal(t, "connection refused", warns[1].Fields["error"])
	_, hasStatus := warns[1].Fields["status_code"]
	assert.False(t, hasStatus)

	errs := tl.GetMessagesByLevel("ERROR")
	require.Len(t, errs, 1)
	assert.Equal(t, 503, errs[0].Fields["status_code"])
}

func TestTestLoggerChildrenShareCapture(t *testing.T) {
	tl := NewTestLogger()
	child := tl.WithField("a", 1).WithFields(map[string]interface{}{"b": 2})
	child.Info("hello")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, msgs[0].Fields)

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
	assert.False(t, tl.HasError())
}
