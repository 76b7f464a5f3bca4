package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" info ", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestZeroValueIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger not IsZero")
	}
	// Must not panic.
	l.Info("nothing happens", String("k", "v"), Err(errors.New("x")))
	l.With(String("comp", "test")).Warn("still nothing")
}

func TestFileSinkWritesJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs", "herd.log")

	l, closeFn, err := New(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l = l.With(String("comp", "test"))
	l.Info("hello", Int("n", 7))
	l.Debug("fine detail")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var rec map[string]any
	line := b
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		line = b[:i]
	}
	if err := json.Unmarshal(line, &rec); err != nil {
		t.Fatalf("not JSON: %q: %v", line, err)
	}
	if rec["message"] != "hello" || rec["comp"] != "test" || rec["n"] != float64(7) {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["level"] != "info" {
		t.Fatalf("level = %v", rec["level"])
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "herd.log")

	l, closeFn, err := New(Config{Level: "warn", File: FileConfig{Enabled: true, Path: path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.Enabled(LevelDebug) {
		t.Fatal("debug enabled at warn level")
	}
	l.Info("suppressed")
	l.Warn("kept")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := 0
	for _, c := range b {
		if c == '\n' {
			lines++
		}
	}
	if lines != 1 {
		t.Fatalf("lines = %d, want only the warn record", lines)
	}
}
