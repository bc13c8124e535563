package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"trace": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	logger.Debug("Hidden")
	logger.Info("Recording started", slog.Int("sample_rate", 16000))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected one line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if entry["msg"] != "Recording started" || entry["sample_rate"] != float64(16000) {
		t.Errorf("Unexpected entry %v", entry)
	}
}

func TestTextFormatWithSource(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)

	logger.Debug("Engine initialized")
	out := buf.String()
	if !strings.Contains(out, "msg=\"Engine initialized\"") {
		t.Errorf("Unexpected output %q", out)
	}
	if !strings.Contains(out, "source=") {
		t.Errorf("Expected source at debug level, got %q", out)
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vt.log")
	logger, closeFn := New(config.LoggingConfig{Level: "info", Format: "text", Output: path})

	logger.Info("Service starting")
	if err := closeFn(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "Service starting") {
		t.Errorf("Log file missing entry: %q", data)
	}
}
