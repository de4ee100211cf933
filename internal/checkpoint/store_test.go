package checkpoint

import (
	"testing"

	pebblestore "github.com/osome-iu/osome-bluesky-streamer/internal/storage/pebble"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	seq, ok, err := s.Get("bsky.network")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok || seq != 0 {
		t.Fatalf("missing checkpoint should be (0, false), got (%d, %v)", seq, ok)
	}
}

func TestCommitAndGet(t *testing.T) {
	s := newTestStore(t)
	if err := s.Commit("bsky.network", 120); err != nil {
		t.Fatalf("commit: %v", err)
	}
	seq, ok, err := s.Get("bsky.network")
	if err != nil || !ok || seq != 120 {
		t.Fatalf("get = (%d, %v, %v), want (120, true, nil)", seq, ok, err)
	}
}

func TestCommitNeverRegresses(t *testing.T) {
	s := newTestStore(t)
	if err := s.Commit("bsky.network", 50); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Commit("bsky.network", 30); err != nil {
		t.Fatalf("lower commit should be a no-op, got %v", err)
	}
	if err := s.Commit("bsky.network", 50); err != nil {
		t.Fatalf("equal commit should be a no-op, got %v", err)
	}
	seq, _, err := s.Get("bsky.network")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if seq != 50 {
		t.Fatalf("checkpoint regressed to %d", seq)
	}
}

func TestSourcesAreIndependent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Commit("a.example", 10); err != nil {
		t.Fatalf("commit a: %v", err)
	}
	if err := s.Commit("b.example", 99); err != nil {
		t.Fatalf("commit b: %v", err)
	}
	if seq, _, _ := s.Get("a.example"); seq != 10 {
		t.Fatalf("a = %d, want 10", seq)
	}
	if seq, _, _ := s.Get("b.example"); seq != 99 {
		t.Fatalf("b = %d, want 99", seq)
	}
}
