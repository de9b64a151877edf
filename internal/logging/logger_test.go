package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValidLevel(t *testing.T) {
	if !ValidLevel("Warn") {
		t.Fatal("expected Warn to be valid")
	}
	if ValidLevel("trace") {
		t.Fatal("expected trace to be invalid")
	}
}

func TestNewWithOptionsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOptions("thrudrop", Options{Level: "debug", Format: "json", Output: &buf})
	logger.Debug("hello", "filename", "a.bin")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if rec["app"] != "thrudrop" {
		t.Fatalf("expected app attribute, got %v", rec["app"])
	}
	if _, ok := rec["pid"]; !ok {
		t.Fatal("expected pid attribute")
	}
	if rec["filename"] != "a.bin" {
		t.Fatalf("expected filename attribute, got %v", rec["filename"])
	}
}

func TestNewWithOptionsFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOptions("thrudrop", Options{Level: "warn", Output: &buf})
	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "msg=kept") {
		t.Fatalf("expected text-format warn line, got %q", out)
	}
}
