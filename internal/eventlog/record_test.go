package eventlog

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestEncodeDecodeRecord(t *testing.T) {
	in := Record{
		SourceID:    "bsky.network",
		Seq:         1042,
		CollectedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Payload:     json.RawMessage(`{"action":"create","uri":"at://did:plc:x/app.bsky.feed.post/1"}`),
	}
	line, err := EncodeRecord(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.HasSuffix(line, []byte("\n")) {
		t.Fatalf("encoded record not newline terminated: %q", line)
	}
	if bytes.Count(line, []byte("\n")) != 1 {
		t.Fatalf("record spans multiple lines: %q", line)
	}

	out, err := DecodeRecord(line)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.SourceID != in.SourceID || out.Seq != in.Seq || !out.CollectedAt.Equal(in.CollectedAt) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if string(out.Payload) != string(in.Payload) {
		t.Fatalf("payload altered: %s", out.Payload)
	}
}

func TestDecodeRecordRejects(t *testing.T) {
	if _, err := DecodeRecord([]byte(`{"seq": 5`)); err == nil {
		t.Fatal("expected error for truncated json")
	}
	if _, err := DecodeRecord([]byte(`{"source_id":"x"}`)); err == nil {
		t.Fatal("expected error for missing seq")
	}
}
