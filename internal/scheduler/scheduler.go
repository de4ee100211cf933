package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/osome-iu/osome-bluesky-streamer/internal/consumer"
	"github.com/osome-iu/osome-bluesky-streamer/internal/source"
	"github.com/osome-iu/osome-bluesky-streamer/internal/transport"
	"github.com/osome-iu/osome-bluesky-streamer/pkg/log"
)

// State reports what the scheduler is currently doing.
type State int32

const (
	// StateDiscovering: loading and ordering the source list.
	StateDiscovering State = iota
	// StateBatchActive: a round of consumers is running.
	StateBatchActive
	// StateDraining: stop requested, waiting for the active round.
	StateDraining
	// StateStopped: no round will run again.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDiscovering:
		return "discovering"
	case StateBatchActive:
		return "batch-active"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Consumer is one source's ingestion loop as the scheduler sees it.
// *consumer.Consumer satisfies it; tests substitute fakes.
type Consumer interface {
	Run(ctx context.Context, resumeFrom uint64) error
	Snapshot() consumer.Status
}

// Factory builds the consumer for one source. A fresh consumer is
// built every time the source is picked for a round.
type Factory func(src source.Source) Consumer

// ResolveFunc resolves the sequence a source should resume from.
type ResolveFunc func(sourceID string) (uint64, error)

// Options tunes the round loop.
type Options struct {
	// Concurrency is K: the most consumers live at once.
	Concurrency int
	// RoundLength is D: the longest a round may run.
	RoundLength time.Duration
	// Quiescence ends a round early once every consumer has gone this
	// long without appending a record.
	Quiescence time.Duration
}

// Scheduler rotates through the source list in rounds.
type Scheduler struct {
	sources []source.Source
	factory Factory
	resolve ResolveFunc
	opts    Options
	logger  log.Logger

	state atomic.Int32

	mu       sync.Mutex
	cursor   int
	terminal map[string]bool
	active   map[string]struct{}
}

// New builds a scheduler over srcs. The slice is copied and stably
// sorted by source id so rotation order is deterministic across runs.
func New(srcs []source.Source, factory Factory, resolve ResolveFunc, opts Options, logger log.Logger) (*Scheduler, error) {
	if opts.Concurrency <= 0 {
		return nil, fmt.Errorf("scheduler: concurrency must be positive, got %d", opts.Concurrency)
	}
	if opts.RoundLength <= 0 {
		return nil, errors.New("scheduler: round length must be positive")
	}
	if opts.Quiescence <= 0 {
		return nil, errors.New("scheduler: quiescence window must be positive")
	}
	ordered := make([]source.Source, len(srcs))
	copy(ordered, srcs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	return &Scheduler{
		sources:  ordered,
		factory:  factory,
		resolve:  resolve,
		opts:     opts,
		logger:   logger.With(log.Component("scheduler")),
		terminal: make(map[string]bool),
		active:   make(map[string]struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Terminal reports whether a source has been permanently excluded.
func (s *Scheduler) Terminal(sourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal[sourceID]
}

// Active returns the sources whose consumers have not yet acknowledged
// cancellation, sorted. Shutdown uses it to name the sources of an
// unclean stop.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Scheduler) setActive(sourceID string, on bool) {
	s.mu.Lock()
	if on {
		s.active[sourceID] = struct{}{}
	} else {
		delete(s.active, sourceID)
	}
	s.mu.Unlock()
}

// Run executes rounds until ctx is cancelled, every source is
// terminal, or a durability failure forces a stop. Cancellation is the
// normal way to stop; Run returns nil for it.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.state.Store(int32(StateStopped))

	s.state.Store(int32(StateDiscovering))
	if len(s.sources) == 0 {
		s.logger.Warn("no sources configured")
		return nil
	}
	s.logger.Info("source list ready",
		log.Int("sources", len(s.sources)),
		log.Int("concurrency", s.opts.Concurrency),
	)

	pool, err := ants.NewPool(s.opts.Concurrency)
	if err != nil {
		return fmt.Errorf("scheduler: create worker pool: %w", err)
	}
	defer pool.Release()

	// Stop requested while a round is active: reflect it immediately.
	// The watcher must not outlive Run when it exits uncancelled.
	runDone := make(chan struct{})
	defer close(runDone)
	go func() {
		select {
		case <-ctx.Done():
			s.state.CompareAndSwap(int32(StateBatchActive), int32(StateDraining))
		case <-runDone:
		}
	}()

	round := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		picked := s.pick()
		if len(picked) == 0 {
			s.logger.Info("all sources terminal, stopping")
			return nil
		}

		round++
		s.state.Store(int32(StateBatchActive))
		fatal := s.runRound(ctx, pool, round, picked)
		if fatal != nil {
			return fatal
		}
		if ctx.Err() != nil {
			s.state.Store(int32(StateDraining))
			return nil
		}
	}
}

// pick selects up to K non-terminal sources, continuing the rotation
// from where the previous round left off.
func (s *Scheduler) pick() []source.Source {
	s.mu.Lock()
	defer s.mu.Unlock()

	var picked []source.Source
	n := len(s.sources)
	for scanned := 0; scanned < n && len(picked) < s.opts.Concurrency; scanned++ {
		src := s.sources[s.cursor%n]
		s.cursor = (s.cursor + 1) % n
		if s.terminal[src.ID] {
			continue
		}
		picked = append(picked, src)
	}
	return picked
}

func (s *Scheduler) runRound(ctx context.Context, pool *ants.Pool, round int, picked []source.Source) error {
	roundCtx, cancel := context.WithTimeout(ctx, s.opts.RoundLength)
	defer cancel()
	start := time.Now()

	s.logger.Info("round started", log.Int("round", round), log.Int("sources", len(picked)))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		consumers []Consumer
		fatal     error
	)
	for _, src := range picked {
		from, err := s.resolve(src.ID)
		if err != nil {
			// A source whose resume point cannot be read sits this
			// round out rather than risking a gap.
			s.logger.Error("resume resolution failed", log.Source(src.ID), log.Err(err))
			continue
		}
		c := s.factory(src)
		mu.Lock()
		consumers = append(consumers, c)
		mu.Unlock()

		src := src
		wg.Add(1)
		// Submit blocks when the pool is saturated, so the pool size
		// is the hard ceiling on live consumers.
		if err := pool.Submit(func() {
			defer wg.Done()
			s.setActive(src.ID, true)
			defer s.setActive(src.ID, false)
			err := c.Run(roundCtx, from)
			if err == nil {
				return
			}
			if errors.Is(err, consumer.ErrDurability) {
				s.logger.Error("durability failure, stopping engine", log.Source(src.ID), log.Err(err))
				mu.Lock()
				if fatal == nil {
					fatal = err
				}
				mu.Unlock()
				cancel()
				return
			}
			if transport.ClassOf(err) == transport.ClassPermanent {
				s.markTerminal(src.ID)
				return
			}
			s.logger.Error("consumer stopped with error", log.Source(src.ID), log.Err(err))
		}); err != nil {
			wg.Done()
			s.logger.Error("pool rejected consumer", log.Source(src.ID), log.Err(err))
		}
	}

	mu.Lock()
	started := len(consumers)
	mu.Unlock()
	if started == 0 {
		// Every pick failed resolution; pause before retrying so the
		// loop does not spin.
		t := time.NewTimer(s.opts.Quiescence)
		select {
		case <-roundCtx.Done():
		case <-t.C:
		}
		t.Stop()
		return nil
	}

	stopWatch := make(chan struct{})
	go s.watchQuiescence(roundCtx, cancel, start, stopWatch, func() []Consumer {
		mu.Lock()
		defer mu.Unlock()
		return append([]Consumer(nil), consumers...)
	})

	wg.Wait()
	cancel()
	close(stopWatch)

	s.logger.Info("round finished",
		log.Int("round", round),
		log.Dur("elapsed", time.Since(start)),
	)

	mu.Lock()
	defer mu.Unlock()
	return fatal
}

// watchQuiescence cancels the round once every consumer has been quiet
// for the quiescence window. A consumer that has not appended anything
// yet counts as quiet since the round started.
func (s *Scheduler) watchQuiescence(ctx context.Context, cancel context.CancelFunc, start time.Time, stop <-chan struct{}, snapshot func() []Consumer) {
	interval := s.opts.Quiescence / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if s.allQuiet(snapshot(), start) {
				s.logger.Info("round idle, closing early", log.Dur("quiescence", s.opts.Quiescence))
				cancel()
				return
			}
		}
	}
}

func (s *Scheduler) allQuiet(consumers []Consumer, start time.Time) bool {
	if len(consumers) == 0 {
		return false
	}
	now := time.Now()
	for _, c := range consumers {
		last := c.Snapshot().LastEventAt
		if last.IsZero() {
			last = start
		}
		if now.Sub(last) < s.opts.Quiescence {
			return false
		}
	}
	return true
}

func (s *Scheduler) markTerminal(sourceID string) {
	s.mu.Lock()
	s.terminal[sourceID] = true
	s.mu.Unlock()
	s.logger.Warn("source excluded from future rounds", log.Source(sourceID))
}
