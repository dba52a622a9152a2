package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"invalid", slog.LevelInfo},
		{"  debug  ", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestInitWriterJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWriter("info", "json", &buf)

	slog.Info("broker starting", "addr", ":8443")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v (output: %s)", err, buf.String())
	}
	if msg, ok := entry["msg"].(string); !ok || msg != "broker starting" {
		t.Errorf("msg = %v, want %q", entry["msg"], "broker starting")
	}
	if addr, ok := entry["addr"].(string); !ok || addr != ":8443" {
		t.Errorf("addr = %v, want %q", entry["addr"], ":8443")
	}
}

func TestInitWriterTextFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWriter("info", "text", &buf)

	slog.Info("hello text")

	if !strings.Contains(buf.String(), "hello text") {
		t.Errorf("text output should contain message, got: %s", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err == nil {
		t.Errorf("text format should not parse as JSON")
	}
}

func TestInitWriterLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWriter("warn", "json", &buf)

	slog.Info("should be filtered")
	if buf.Len() > 0 {
		t.Errorf("INFO should be filtered at WARN level, got: %s", buf.String())
	}

	slog.Warn("should appear")
	if buf.Len() == 0 {
		t.Error("WARN should not be filtered at WARN level")
	}
}

func TestSetLevelAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	InitWriter("error", "json", &buf)

	slog.Info("before change")
	if buf.Len() > 0 {
		t.Errorf("INFO should be filtered at ERROR level")
	}

	SetLevel("debug")

	slog.Debug("after change")
	if buf.Len() == 0 {
		t.Error("DEBUG should pass after level change")
	}
}

func TestPasswordAttributeRedacted(t *testing.T) {
	var buf bytes.Buffer
	InitWriter("info", "json", &buf)

	slog.Info("authenticate received", "username", "Euler", "password", "Leonhard")

	out := buf.String()
	if strings.Contains(out, "Leonhard") {
		t.Fatalf("password leaked into log output: %s", out)
	}
	if !strings.Contains(out, "<redacted>") {
		t.Fatalf("expected redaction marker in output: %s", out)
	}
	if !strings.Contains(out, "Euler") {
		t.Fatalf("non-credential attributes should survive: %s", out)
	}
}

func TestWithClientLogID(t *testing.T) {
	var buf bytes.Buffer
	InitWriter("info", "json", &buf)

	WithClientLogID(slog.Default(), "log-42").Info("hello received")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}
	if id, ok := entry["client_log_id"].(string); !ok || id != "log-42" {
		t.Errorf("client_log_id = %v, want %q", entry["client_log_id"], "log-42")
	}

	buf.Reset()
	WithClientLogID(slog.Default(), "").Info("no header")
	if strings.Contains(buf.String(), "client_log_id") {
		t.Errorf("empty id should add no attribute: %s", buf.String())
	}
}

func TestWithSessionKeyTruncates(t *testing.T) {
	var buf bytes.Buffer
	InitWriter("info", "json", &buf)

	full := "0123456789abcdef"
	WithSessionKey(slog.Default(), full).Info("session updated")

	out := buf.String()
	if strings.Contains(out, full) {
		t.Fatalf("full session key must not be logged: %s", out)
	}
	if !strings.Contains(out, `"session":"01234567"`) {
		t.Fatalf("expected truncated session attribute: %s", out)
	}
}

func TestStdlogBridge(t *testing.T) {
	var buf bytes.Buffer
	InitWriter("info", "json", &buf)

	log.Print("stdlib message")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse bridged log: %v (output: %s)", err, buf.String())
	}
	if msg, ok := entry["msg"].(string); !ok || msg != "stdlib message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "stdlib message")
	}
	if src, ok := entry["logger"].(string); !ok || src != "stdlog" {
		t.Errorf("logger = %v, want %q", entry["logger"], "stdlog")
	}
}
