package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/osome-iu/osome-bluesky-streamer/internal/source"
)

// Class partitions every transport failure into one retry policy.
type Class int

const (
	// ClassTransient covers network and server errors worth retrying
	// with backoff.
	ClassTransient Class = iota
	// ClassRateLimited is a scheduling hint, not an error; the wait hint
	// (when present) must be honored exactly.
	ClassRateLimited
	// ClassPermanent means the resource is gone; the source must not be
	// retried.
	ClassPermanent
	// ClassDecode marks a malformed frame; the frame is skipped and the
	// stream continues.
	ClassDecode
)

// String returns the class name used in logs.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate_limited"
	case ClassPermanent:
		return "permanent"
	case ClassDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is a classified transport failure.
type Error struct {
	Class Class
	// Hint is a server-supplied wait for rate-limited failures, valid
	// when HasHint is true.
	Hint    time.Duration
	HasHint bool
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return e.Class.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure.
func Transient(err error) *Error { return &Error{Class: ClassTransient, Err: err} }

// Permanent wraps err as a terminal failure for the source.
func Permanent(err error) *Error { return &Error{Class: ClassPermanent, Err: err} }

// Decode wraps err as a single-frame decode failure.
func Decode(err error) *Error { return &Error{Class: ClassDecode, Err: err} }

// RateLimited builds a rate-limit signal carrying an optional wait hint.
func RateLimited(hint time.Duration, hasHint bool, err error) *Error {
	return &Error{Class: ClassRateLimited, Hint: hint, HasHint: hasHint, Err: err}
}

// ClassOf extracts the class from err. Unclassified errors count as
// transient: retrying is the safe default for unknown failures.
func ClassOf(err error) Class {
	var te *Error
	if errors.As(err, &te) {
		return te.Class
	}
	return ClassTransient
}

// HintOf extracts the rate-limit wait hint from err, if any.
func HintOf(err error) (time.Duration, bool) {
	var te *Error
	if errors.As(err, &te) && te.HasHint {
		return te.Hint, true
	}
	return 0, false
}

// Frame is one inbound message, already split from the wire but with its
// payloads left opaque. A frame fans out into zero or more records, all
// sharing the frame's sequence number.
type Frame struct {
	Seq  uint64
	Time time.Time
	Ops  []json.RawMessage
}

// Stream is one live connection to one source.
type Stream interface {
	// Next blocks for the next frame. Errors are classified; decode
	// errors consume the bad frame so the stream remains usable.
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Dialer opens a Stream for a source, resuming after cursor.
type Dialer interface {
	Dial(ctx context.Context, src source.Source, cursor uint64) (Stream, error)
}

// frameEnvelope is the shared wire shape: a sequence number, an optional
// event time, and either an ops array or a single-record body.
type frameEnvelope struct {
	Seq  uint64            `json:"seq"`
	Time string            `json:"time,omitempty"`
	Ops  []json.RawMessage `json:"ops,omitempty"`
}

// decodeFrame parses one wire message into a Frame. Messages without an
// ops array are a single record whose payload is the whole message.
func decodeFrame(data []byte) (Frame, error) {
	var env frameEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, Decode(fmt.Errorf("parse frame: %w", err))
	}
	if env.Seq == 0 {
		return Frame{}, Decode(errors.New("frame has no sequence number"))
	}
	fr := Frame{Seq: env.Seq, Ops: env.Ops}
	if env.Time != "" {
		if ts, err := time.Parse(time.RFC3339Nano, env.Time); err == nil {
			fr.Time = ts
		}
	}
	if len(fr.Ops) == 0 {
		fr.Ops = []json.RawMessage{json.RawMessage(append([]byte(nil), data...))}
	}
	return fr, nil
}

// waitHint extracts a rate-limit wait from response headers. Retry-After
// carries seconds; ratelimit-reset carries a unix timestamp, measured
// against now. Both appear in the wild.
func waitHint(h http.Header, now time.Time) (time.Duration, bool) {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second, true
		}
	}
	if v := h.Get("ratelimit-reset"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(ts, 0).Sub(now), true
		}
	}
	return 0, false
}
