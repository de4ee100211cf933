package eventlog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// tailChunk bounds how far back the tail scan reads. Records are small
// JSON lines, so 256 KiB covers far more than one frame.
const tailChunk = 256 * 1024

// TailSeq reads the tail of the log artifact at path and returns the
// sequence number of the last complete, parseable record. ok is false
// when the file is missing or holds no usable record. This is the
// uniform resume primitive: it never consults file metadata.
func TailSeq(path string) (seq uint64, ok bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer f.Close()
	seq, _, err = scanTail(f)
	if err != nil {
		return 0, false, err
	}
	return seq, seq > 0, nil
}

// recoverTail returns the last complete record's sequence and the byte
// offset up to which the file holds only complete lines. Bytes past that
// offset are a partial trailing write and must be discarded.
func recoverTail(f *os.File) (seq uint64, validSize int64, err error) {
	return scanTail(f)
}

func scanTail(f *os.File) (uint64, int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}
	size := info.Size()
	if size == 0 {
		return 0, 0, nil
	}

	readFrom := size - tailChunk
	if readFrom < 0 {
		readFrom = 0
	}
	buf := make([]byte, size-readFrom)
	if _, err := f.ReadAt(buf, readFrom); err != nil && err != io.EOF {
		return 0, 0, fmt.Errorf("eventlog: read tail: %w", err)
	}

	// Everything up to the last newline is complete; the remainder is a
	// partial trailing write.
	lastNL := bytes.LastIndexByte(buf, '\n')
	if lastNL < 0 {
		if readFrom > 0 {
			// A line longer than the scan window; treat as unrecoverable
			// rather than silently resuming from the wrong place.
			return 0, 0, fmt.Errorf("eventlog: no line boundary within %d tail bytes", tailChunk)
		}
		return 0, 0, nil
	}
	validSize := readFrom + int64(lastNL) + 1

	complete := buf[:lastNL]
	for len(complete) > 0 {
		var line []byte
		if i := bytes.LastIndexByte(complete, '\n'); i >= 0 {
			line = complete[i+1:]
			complete = complete[:i]
		} else {
			line = complete
			complete = nil
			if readFrom > 0 {
				// The first line of the window may be cut off; do not
				// trust it.
				break
			}
		}
		rec, err := DecodeRecord(line)
		if err != nil {
			// Corrupt or foreign line; keep walking back.
			continue
		}
		return rec.Seq, validSize, nil
	}
	return 0, validSize, nil
}
