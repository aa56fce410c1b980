package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("component", "driver")).Debug(context.Background(), "tick complete",
		Int("crossed", 2),
		Duration("elapsed", 5*time.Second),
		Err(errors.New("boom")),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "tick complete" {
		t.Fatalf("msg = %v, want %q", entry["msg"], "tick complete")
	}
	if entry["component"] != "driver" || entry["crossed"] != float64(2) || entry["error"] != "boom" {
		t.Fatalf("unexpected fields: %v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level filtering failed: %q", out)
	}
}

func TestWithRunLoggerReusesExistingID(t *testing.T) {
	ctx := ContextWithRunID(context.Background(), "run-1")
	ctx, _ = WithRunLogger(ctx, nil)
	if got := RunIDFromContext(ctx); got != "run-1" {
		t.Fatalf("RunIDFromContext = %q, want run-1", got)
	}

	fresh, id := EnsureRunID(context.Background())
	if id == "" || RunIDFromContext(fresh) != id {
		t.Fatalf("EnsureRunID did not attach a new id: %q", id)
	}
	if NewRunID() == NewRunID() {
		t.Fatalf("NewRunID returned duplicate ids")
	}
}

func TestLoggerFromContext(t *testing.T) {
	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("expected nil logger on bare context")
	}
	ctx := ContextWithLogger(context.Background(), nil)
	if LoggerFromContext(ctx) == nil {
		t.Fatalf("expected noop logger to be stored")
	}
}
