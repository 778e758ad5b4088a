package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, out *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNew_JSONLevels(t *testing.T) {
	tests := []struct {
		level     string
		wantLevel []string
	}{
		{level: "debug", wantLevel: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{level: "info", wantLevel: []string{"INFO", "WARN", "ERROR"}},
		{level: "WARN", wantLevel: []string{"WARN", "ERROR"}},
		{level: "error", wantLevel: []string{"ERROR"}},
		{level: "bogus", wantLevel: []string{"INFO", "WARN", "ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			out := &bytes.Buffer{}
			l, err := New(&Config{Level: tt.level, Format: "json", writer: out})
			require.NoError(t, err)

			l.Debug("d")
			l.Info("i")
			l.Warn("w")
			l.Error("e")

			var got []string
			for _, e := range decodeLines(t, out) {
				got = append(got, e["level"].(string))
			}
			assert.Equal(t, tt.wantLevel, got)
		})
	}
}

func TestNew_ServiceAttribute(t *testing.T) {
	out := &bytes.Buffer{}
	l, err := New(&Config{Format: "json", Service: "api-service", writer: out})
	require.NoError(t, err)

	l.Info("Payment created", slog.String("payment_id", "PAY1"))

	entries := decodeLines(t, out)
	require.Len(t, entries, 1)
	assert.Equal(t, "api-service", entries[0]["service"])
	assert.Equal(t, "PAY1", entries[0]["payment_id"])
}

func TestNew_RedactsSecrets(t *testing.T) {
	out := &bytes.Buffer{}
	l, err := New(&Config{Format: "json", writer: out})
	require.NoError(t, err)

	l.Warn("Rejected webhook",
		slog.String("signature", "sha256=deadbeef"),
		slog.String("API_KEY", "k"),
		slog.String("payment_id", "PAY1"),
	)

	entries := decodeLines(t, out)
	require.Len(t, entries, 1)
	assert.Equal(t, redacted, entries[0]["signature"])
	assert.Equal(t, redacted, entries[0]["API_KEY"])
	assert.Equal(t, "PAY1", entries[0]["payment_id"])
}

func TestNew_Console(t *testing.T) {
	out := &bytes.Buffer{}
	l, err := New(&Config{Format: "console", writer: out})
	require.NoError(t, err)

	l.Info("console test")
	assert.Contains(t, out.String(), "INF")
	assert.Contains(t, out.String(), "console test")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	l, err := New(&Config{Format: "json", Output: path})
	require.NoError(t, err)
	l.Info("to file")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
}

func TestNew_FileOutputError(t *testing.T) {
	_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}

func TestNewDefault(t *testing.T) {
	l := NewDefault()
	require.NotNil(t, l)
	assert.NoError(t, l.Close())
}
