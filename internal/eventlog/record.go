package eventlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Record is a single ingested event. Payload is opaque to the streamer;
// it is stored exactly as the source delivered it.
type Record struct {
	SourceID    string          `json:"source_id"`
	Seq         uint64          `json:"seq"`
	CollectedAt time.Time       `json:"collected_at"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

var errMissingSeq = errors.New("eventlog: record has no sequence number")

// EncodeRecord renders the record as one JSON line (newline included).
func EncodeRecord(r Record) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("eventlog: encode record seq=%d: %w", r.Seq, err)
	}
	return append(b, '\n'), nil
}

// DecodeRecord parses one complete log line back into a Record.
func DecodeRecord(line []byte) (Record, error) {
	line = bytes.TrimSpace(line)
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, fmt.Errorf("eventlog: decode record: %w", err)
	}
	if r.Seq == 0 {
		return Record{}, errMissingSeq
	}
	return r, nil
}
