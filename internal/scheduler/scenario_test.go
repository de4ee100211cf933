package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/osome-iu/osome-bluesky-streamer/internal/backoff"
	"github.com/osome-iu/osome-bluesky-streamer/internal/checkpoint"
	"github.com/osome-iu/osome-bluesky-streamer/internal/consumer"
	"github.com/osome-iu/osome-bluesky-streamer/internal/eventlog"
	"github.com/osome-iu/osome-bluesky-streamer/internal/source"
	pebblestore "github.com/osome-iu/osome-bluesky-streamer/internal/storage/pebble"
	"github.com/osome-iu/osome-bluesky-streamer/internal/transport"
)

// scriptedStream yields its frames, then either fails or stalls until
// the round closes.
type scriptedStream struct {
	frames []transport.Frame
	final  error // nil means stall
	i      int
}

func (s *scriptedStream) Next(ctx context.Context) (transport.Frame, error) {
	if s.i < len(s.frames) {
		fr := s.frames[s.i]
		s.i++
		return fr, nil
	}
	if s.final != nil {
		return transport.Frame{}, s.final
	}
	<-ctx.Done()
	return transport.Frame{}, ctx.Err()
}

func (s *scriptedStream) Close() error { return nil }

type scriptedDialer struct {
	mu      sync.Mutex
	script  func(id string) *scriptedStream
	cursors map[string][]uint64
	dialed  chan string
}

func (d *scriptedDialer) Dial(ctx context.Context, src source.Source, cursor uint64) (transport.Stream, error) {
	d.mu.Lock()
	d.cursors[src.ID] = append(d.cursors[src.ID], cursor)
	d.mu.Unlock()
	select {
	case d.dialed <- src.ID:
	default:
	}
	return d.script(src.ID), nil
}

func frames(seqs ...uint64) []transport.Frame {
	out := make([]transport.Frame, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, transport.Frame{Seq: seq, Time: time.Now().UTC(), Ops: []json.RawMessage{json.RawMessage(`{}`)}})
	}
	return out
}

// Three sources, K=2: a fills its log then stalls, b dies permanently,
// c only gets a slot in the second round and starts from zero. The
// stalled batch must close on quiescence, not on the round cap.
func TestRoundRotationWithRealConsumers(t *testing.T) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	defer db.Close()
	store := checkpoint.NewStore(db)
	streamDir := t.TempDir()

	dialer := &scriptedDialer{
		cursors: make(map[string][]uint64),
		dialed:  make(chan string, 16),
		script: func(id string) *scriptedStream {
			switch id {
			case "b":
				return &scriptedStream{frames: frames(1, 2), final: transport.Permanent(errors.New("labeler gone"))}
			default:
				if id == "a" {
					return &scriptedStream{frames: frames(1, 2, 3, 4, 5)}
				}
				return &scriptedStream{}
			}
		},
	}

	ctrl := backoff.New(time.Millisecond, 4*time.Millisecond, time.Millisecond)
	factory := func(src source.Source) Consumer {
		return consumer.New(src, dialer, store, ctrl, consumer.Options{
			StreamDir:          streamDir,
			CheckpointEvery:    100,
			CheckpointInterval: time.Hour,
		}, testLogger())
	}
	resolver := &checkpoint.Resolver{Store: store, StreamDir: streamDir}

	s, err := New(testSources("a", "b", "c"), factory, resolver.Resolve, Options{
		Concurrency: 2,
		RoundLength: time.Minute,
		Quiescence:  100 * time.Millisecond,
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		// Stop once c has been given a slot.
		for id := range dialer.dialed {
			if id == "c" {
				cancel()
				return
			}
		}
	}()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("scheduler did not reach source c")
	}

	for id, wantSeq := range map[string]uint64{"a": 5, "b": 2} {
		tail, ok, err := eventlog.TailSeq(eventlog.Path(streamDir, id))
		if err != nil || !ok {
			t.Fatalf("tail(%s): ok=%v err=%v", id, ok, err)
		}
		if tail != wantSeq {
			t.Fatalf("log(%s) tail = %d, want %d", id, tail, wantSeq)
		}
		cp, ok, err := store.Get(id)
		if err != nil || !ok {
			t.Fatalf("checkpoint(%s): ok=%v err=%v", id, ok, err)
		}
		if cp != wantSeq {
			t.Fatalf("checkpoint(%s) = %d, want %d", id, cp, wantSeq)
		}
	}

	if !s.Terminal("b") {
		t.Fatal("b not marked terminal")
	}
	dialer.mu.Lock()
	cCursors := append([]uint64(nil), dialer.cursors["c"]...)
	dialer.mu.Unlock()
	if len(cCursors) == 0 || cCursors[0] != 0 {
		t.Fatalf("c dial cursors = %v, want first dial from 0", cCursors)
	}
}
