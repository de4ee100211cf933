package checkpoint

import (
	"fmt"

	"github.com/osome-iu/osome-bluesky-streamer/internal/eventlog"
)

// Resolver decides where a newly started consumer resumes. Precedence,
// highest first: an explicit operator override, the event-log tail (the
// log is the source of truth), the stored checkpoint, zero.
type Resolver struct {
	Store     *Store
	StreamDir string
	Overrides map[string]uint64
}

// Resolve returns the resume sequence for sourceID.
func (r *Resolver) Resolve(sourceID string) (uint64, error) {
	if seq, ok := r.Overrides[sourceID]; ok {
		return seq, nil
	}
	seq, ok, err := eventlog.TailSeq(eventlog.Path(r.StreamDir, sourceID))
	if err != nil {
		return 0, fmt.Errorf("checkpoint: resolve %s from log tail: %w", sourceID, err)
	}
	if ok {
		return seq, nil
	}
	if r.Store != nil {
		seq, ok, err := r.Store.Get(sourceID)
		if err != nil {
			return 0, err
		}
		if ok {
			return seq, nil
		}
	}
	return 0, nil
}
