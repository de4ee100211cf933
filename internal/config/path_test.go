package config

import (
	"strings"
	"testing"
)

func TestDefaultDataDirXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg")
	got := DefaultDataDir()
	if !strings.HasPrefix(got, "/tmp/xdg") {
		t.Fatalf("expected XDG override, got %q", got)
	}
	if !strings.Contains(got, "bluesky-streamer") {
		t.Fatalf("expected app dir in path, got %q", got)
	}
}
