package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestInitWriter_EmitsServiceField(t *testing.T) {
	var buf bytes.Buffer
	l := InitWriter(&buf, "tradesim", slog.LevelInfo)
	l.Info("hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if rec["service"] != "tradesim" {
		t.Errorf("expected service=tradesim, got %v", rec["service"])
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel("debug"); err != nil || l != slog.LevelDebug {
		t.Errorf("debug: got %v, %v", l, err)
	}
	if l, err := ParseLevel(" Warn "); err != nil || l != slog.LevelWarn {
		t.Errorf("warn: got %v, %v", l, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestRunID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No run ID set
	if id := RunID(ctx); id != "" {
		t.Errorf("expected empty run id, got %q", id)
	}

	ctx = WithRunID(ctx, "run-123")
	if id := RunID(ctx); id != "run-123" {
		t.Errorf("expected 'run-123', got %q", id)
	}
}

func TestGenerateRunID(t *testing.T) {
	id := GenerateRunID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected a UUID, got %q: %v", id, err)
	}
	if id == GenerateRunID() {
		t.Error("expected distinct run ids")
	}
}

func TestLogWithRun(t *testing.T) {
	ctx := context.Background()

	if attrs := LogWithRun(ctx); attrs != nil {
		t.Errorf("expected nil attrs when no run id, got %v", attrs)
	}

	ctx = WithRunID(ctx, "abc-123")
	if attrs := LogWithRun(ctx); len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with run id set")
	}
}
