package eventlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/osome-iu/osome-bluesky-streamer/internal/source"
)

// ErrStaleSequence reports an append whose sequence number does not
// advance the log. Callers treat it as replay and skip the frame.
var ErrStaleSequence = errors.New("eventlog: sequence does not advance log")

// Log is the append-only event log for one source. A Log has exactly one
// owner at a time; methods are still mutex-guarded so a flush racing a
// late append during shutdown stays safe.
type Log struct {
	mu      sync.Mutex
	f       *os.File
	w       *bufio.Writer
	path    string
	lastSeq uint64
}

// Path returns the artifact path for a source ID inside dir.
func Path(dir, sourceID string) string {
	return filepath.Join(dir, source.SafeName(sourceID)+".jsonl")
}

// Open opens (creating if needed) the log for sourceID under dir,
// recovers the last complete record's sequence from the tail, and
// truncates any partial trailing write left by a crash.
func Open(dir, sourceID string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create stream dir: %w", err)
	}
	path := Path(dir, sourceID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	lastSeq, validSize, err := recoverTail(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Truncate(validSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("eventlog: truncate partial tail of %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	return &Log{f: f, w: bufio.NewWriter(f), path: path, lastSeq: lastSeq}, nil
}

// Append writes the records of one decoded frame as a unit. All records
// in a frame share the frame's sequence number; the frame must advance
// the log or ErrStaleSequence is returned and nothing is written.
func (l *Log) Append(recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	seq := recs[0].Seq
	if seq <= l.lastSeq {
		return fmt.Errorf("%w: seq=%d last=%d", ErrStaleSequence, seq, l.lastSeq)
	}
	for _, r := range recs {
		line, err := EncodeRecord(r)
		if err != nil {
			return err
		}
		if _, err := l.w.Write(line); err != nil {
			return fmt.Errorf("eventlog: append to %s: %w", l.path, err)
		}
	}
	l.lastSeq = seq
	return nil
}

// Sync flushes buffered records and fsyncs the file. A checkpoint must
// only be advanced after Sync returns.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("eventlog: flush %s: %w", l.path, err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("eventlog: fsync %s: %w", l.path, err)
	}
	return nil
}

// LastSeq returns the sequence number of the last appended record.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// Close flushes, fsyncs, and closes the log file.
func (l *Log) Close() error {
	if err := l.Sync(); err != nil {
		l.f.Close()
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
