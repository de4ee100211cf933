package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", DebugLevel, true},
		{"INFO", InfoLevel, true},
		{"warning", WarnLevel, true},
		{"error", ErrorLevel, true},
		{"nope", InfoLevel, false},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if c.ok && err != nil {
			t.Fatalf("ParseLevel(%q): %v", c.in, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("ParseLevel(%q): expected error", c.in)
		}
		if c.ok && got != c.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestTextFormatterFieldsSortedAndLevelGate(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(
		WithLevel(InfoLevel),
		WithFormatter(&TextFormatter{DisableTimestamp: true}),
		WithOutput(NewWriterOutput(&buf)),
	)
	l.Debug("should be dropped")
	l.Info("hello", Str("b", "2"), Str("a", "1"))

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("debug entry not gated: %q", out)
	}
	if !strings.Contains(out, "[INFO]: hello a=1 b=2") {
		t.Fatalf("unexpected text output: %q", out)
	}
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(
		WithFormatter(&TextFormatter{DisableTimestamp: true}),
		WithOutput(NewWriterOutput(&buf)),
	).With(Component("consumer"), Source("bsky.network"))
	l.Warn("reconnect")
	if !strings.Contains(buf.String(), "component=consumer") || !strings.Contains(buf.String(), "source=bsky.network") {
		t.Fatalf("base fields missing: %q", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(
		WithFormatter(&JSONFormatter{}),
		WithOutput(NewWriterOutput(&buf)),
	)
	l.Error("boom", Int("seq", 42))
	var obj map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &obj); err != nil {
		t.Fatalf("invalid json output %q: %v", buf.String(), err)
	}
	if obj["level"] != "ERROR" || obj["msg"] != "boom" {
		t.Fatalf("unexpected json entry: %v", obj)
	}
	if obj["seq"].(float64) != 42 {
		t.Fatalf("field lost: %v", obj)
	}
}

func TestApplyConfigFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log", "streamer_stdout.log")
	l, err := ApplyConfig(&Config{Level: "info", Format: "text", File: path})
	if err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	l.Info("persisted")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "persisted") {
		t.Fatalf("entry not written to file: %q", string(b))
	}
}

func TestApplyConfigRejectsUnknown(t *testing.T) {
	if _, err := ApplyConfig(&Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
