package consumer

import (
	"sync"
	"time"
)

// Status is a point-in-time view of one consumer's activity. The
// scheduler reads it to decide quiescence and terminal exclusion.
type Status struct {
	SourceID string
	// LastSeq is the highest sequence appended to the event log.
	LastSeq uint64
	// CommittedSeq is the highest sequence made durable in the
	// checkpoint store. CommittedSeq <= LastSeq always.
	CommittedSeq uint64
	// Records counts records appended during this process lifetime.
	Records uint64
	// LastEventAt is when the most recent record was appended.
	LastEventAt time.Time
	// Terminal is set once the source fails permanently; the scheduler
	// never runs a terminal source again.
	Terminal bool
}

type snapshot struct {
	mu sync.Mutex
	s  Status
}

func (sn *snapshot) init(sourceID string) {
	sn.mu.Lock()
	sn.s = Status{SourceID: sourceID}
	sn.mu.Unlock()
}

func (sn *snapshot) get() Status {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	return sn.s
}

func (sn *snapshot) setCommitted(seq uint64) {
	sn.mu.Lock()
	if seq > sn.s.CommittedSeq {
		sn.s.CommittedSeq = seq
	}
	if seq > sn.s.LastSeq {
		sn.s.LastSeq = seq
	}
	sn.mu.Unlock()
}

func (sn *snapshot) recordAppend(seq uint64, n int, at time.Time) {
	sn.mu.Lock()
	sn.s.LastSeq = seq
	sn.s.Records += uint64(n)
	sn.s.LastEventAt = at
	sn.mu.Unlock()
}

func (sn *snapshot) markTerminal() {
	sn.mu.Lock()
	sn.s.Terminal = true
	sn.mu.Unlock()
}
