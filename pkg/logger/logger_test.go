package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"concierge/pkg/config"
)

func TestNewJSONLoggerEmitsStructuredEntries(t *testing.T) {
	var buf bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "debug"}, &buf)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.With("component", "turn.executor").Info("turn started", "session_key", "telegram:direct:100")

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v (line %q)", err, buf.String())
	}

	if entry.Level != "info" {
		t.Fatalf("level = %q, want info", entry.Level)
	}
	if entry.Component != "turn.executor" {
		t.Fatalf("component = %q, want turn.executor", entry.Component)
	}
	if entry.Fields["session_key"] != "telegram:direct:100" {
		t.Fatalf("fields = %v, want session_key", entry.Fields)
	}
}

func TestNewTextLoggerWritesOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "text", Level: "info"}, &buf)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("gateway started")

	if !strings.Contains(buf.String(), "gateway started") {
		t.Fatalf("output %q does not contain message", buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(config.LoggingConfig{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for unsupported level")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "warn"}, &buf)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Debug("hidden")
	log.Info("hidden too")
	log.Warn("visible")

	lines := strings.Count(strings.TrimSpace(buf.String()), "\n") + 1
	if strings.TrimSpace(buf.String()) == "" {
		t.Fatal("expected warn output")
	}
	if lines != 1 {
		t.Fatalf("line count = %d, want 1", lines)
	}
}
