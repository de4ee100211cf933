package transport

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestClassOf(t *testing.T) {
	cases := []struct {
		err  error
		want Class
	}{
		{Transient(errors.New("conn reset")), ClassTransient},
		{Permanent(errors.New("gone")), ClassPermanent},
		{Decode(errors.New("bad frame")), ClassDecode},
		{RateLimited(time.Second, true, nil), ClassRateLimited},
		{fmt.Errorf("wrapped: %w", Permanent(errors.New("gone"))), ClassPermanent},
		{errors.New("anonymous"), ClassTransient},
	}
	for _, c := range cases {
		if got := ClassOf(c.err); got != c.want {
			t.Fatalf("ClassOf(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestHintOf(t *testing.T) {
	hint, ok := HintOf(RateLimited(42*time.Second, true, nil))
	if !ok || hint != 42*time.Second {
		t.Fatalf("HintOf = (%v, %v), want (42s, true)", hint, ok)
	}
	if _, ok := HintOf(RateLimited(0, false, nil)); ok {
		t.Fatal("hintless rate limit should report no hint")
	}
	if _, ok := HintOf(errors.New("plain")); ok {
		t.Fatal("plain error should report no hint")
	}
}

func TestWaitHintHeaders(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	h := http.Header{}
	h.Set("Retry-After", "30")
	d, ok := waitHint(h, now)
	if !ok || d != 30*time.Second {
		t.Fatalf("Retry-After hint = (%v, %v), want (30s, true)", d, ok)
	}

	h = http.Header{}
	h.Set("ratelimit-reset", "1700000060")
	d, ok = waitHint(h, now)
	if !ok || d != 60*time.Second {
		t.Fatalf("reset hint = (%v, %v), want (60s, true)", d, ok)
	}

	// A reset in the past yields a negative hint; the backoff layer
	// clamps it.
	h = http.Header{}
	h.Set("ratelimit-reset", "1699999990")
	d, ok = waitHint(h, now)
	if !ok || d >= 0 {
		t.Fatalf("past reset hint = (%v, %v), want negative", d, ok)
	}

	if _, ok := waitHint(http.Header{}, now); ok {
		t.Fatal("empty headers should carry no hint")
	}
}

func TestDecodeFrame(t *testing.T) {
	fr, err := decodeFrame([]byte(`{"seq":12,"time":"2025-06-01T00:00:00Z","ops":[{"a":1},{"b":2}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fr.Seq != 12 || len(fr.Ops) != 2 {
		t.Fatalf("unexpected frame: %+v", fr)
	}

	// Without an ops array the whole message is one record.
	fr, err = decodeFrame([]byte(`{"seq":3,"uri":"at://x","val":"spam"}`))
	if err != nil {
		t.Fatalf("decode single: %v", err)
	}
	if fr.Seq != 3 || len(fr.Ops) != 1 {
		t.Fatalf("unexpected single frame: %+v", fr)
	}

	if _, err := decodeFrame([]byte(`not json`)); ClassOf(err) != ClassDecode {
		t.Fatalf("want decode class, got %v", err)
	}
	if _, err := decodeFrame([]byte(`{"no_seq":true}`)); ClassOf(err) != ClassDecode {
		t.Fatalf("want decode class for missing seq, got %v", err)
	}
}
