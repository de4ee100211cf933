package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"

	pebblestore "github.com/osome-iu/osome-bluesky-streamer/internal/storage/pebble"
)

const keyPrefix = "cp/"

// Store is the durable source→sequence map. Safe for concurrent use
// across different source IDs; each source ID has a single writer (the
// consumer currently attached to it).
type Store struct {
	db *pebblestore.DB
}

// NewStore wraps db as a checkpoint store.
func NewStore(db *pebblestore.DB) *Store {
	return &Store{db: db}
}

func key(sourceID string) []byte {
	return []byte(keyPrefix + sourceID)
}

// Get returns the stored sequence for sourceID; ok is false when no
// checkpoint exists yet.
func (s *Store) Get(sourceID string) (uint64, bool, error) {
	val, err := s.db.Get(key(sourceID))
	if errors.Is(err, pebblestore.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("checkpoint: get %s: %w", sourceID, err)
	}
	if len(val) < 8 {
		return 0, false, fmt.Errorf("checkpoint: corrupt value for %s (%d bytes)", sourceID, len(val))
	}
	return binary.BigEndian.Uint64(val[:8]), true, nil
}

// Commit stores seq for sourceID. A commit at or below the stored value
// is ignored, keeping checkpoints monotonically non-decreasing.
func (s *Store) Commit(sourceID string, seq uint64) error {
	prev, ok, err := s.Get(sourceID)
	if err != nil {
		return err
	}
	if ok && seq <= prev {
		return nil
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	if err := s.db.Set(key(sourceID), buf[:]); err != nil {
		return fmt.Errorf("checkpoint: commit %s seq=%d: %w", sourceID, seq, err)
	}
	return nil
}
