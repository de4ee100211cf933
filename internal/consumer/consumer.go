package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/osome-iu/osome-bluesky-streamer/internal/backoff"
	"github.com/osome-iu/osome-bluesky-streamer/internal/checkpoint"
	"github.com/osome-iu/osome-bluesky-streamer/internal/eventlog"
	"github.com/osome-iu/osome-bluesky-streamer/internal/source"
	"github.com/osome-iu/osome-bluesky-streamer/internal/transport"
	"github.com/osome-iu/osome-bluesky-streamer/pkg/log"
)

// ErrDurability marks a failure to persist the event log or checkpoint.
// The consumer must stop rather than keep consuming without recording.
var ErrDurability = errors.New("consumer: local durability failure")

// Options tunes one consumer.
type Options struct {
	// StreamDir holds the per-source event log artifacts.
	StreamDir string
	// CheckpointEvery flushes after this many appended records.
	CheckpointEvery int
	// CheckpointInterval flushes after this much time since the last
	// flush, even when fewer records arrived.
	CheckpointInterval time.Duration
}

// Consumer ingests one source's stream.
type Consumer struct {
	src         source.Source
	dialer      transport.Dialer
	checkpoints *checkpoint.Store
	backoff     *backoff.Controller
	opts        Options
	logger      log.Logger

	snap snapshot
}

// flushState is the checkpoint bookkeeping shared between the frame
// loop and the interval flusher.
type flushState struct {
	mu        sync.Mutex
	pending   int
	lastFlush time.Time
	cursor    uint64
}

func (fs *flushState) resume() uint64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.cursor
}

// New builds a consumer for src. The caller supplies the shared
// checkpoint store and backoff controller; the consumer opens the
// source's event log itself when Run starts.
func New(src source.Source, dialer transport.Dialer, checkpoints *checkpoint.Store, bo *backoff.Controller, opts Options, logger log.Logger) *Consumer {
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = 20
	}
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = 5 * time.Second
	}
	c := &Consumer{
		src:         src,
		dialer:      dialer,
		checkpoints: checkpoints,
		backoff:     bo,
		opts:        opts,
		logger:      logger.With(log.Component("consumer"), log.Source(src.ID)),
	}
	c.snap.init(src.ID)
	return c
}

// Snapshot returns a read-only view of this consumer's activity. The
// scheduler polls it for quiescence detection; no other state is shared.
func (c *Consumer) Snapshot() Status { return c.snap.get() }

// Run consumes the source until ctx is cancelled or an unrecoverable
// error occurs. Cancellation is a normal termination path: the last
// in-flight records are flushed and checkpointed before Run returns nil.
func (c *Consumer) Run(ctx context.Context, resumeFrom uint64) error {
	lg, err := eventlog.Open(c.opts.StreamDir, c.src.ID)
	if err != nil {
		return fmt.Errorf("%w: open log for %s: %v", ErrDurability, c.src.ID, err)
	}
	defer lg.Close()

	// The log tail is the source of truth; never dial below it.
	cursor := resumeFrom
	if tail := lg.LastSeq(); tail > cursor {
		cursor = tail
	}
	c.snap.setCommitted(cursor)

	fs := &flushState{lastFlush: time.Now(), cursor: cursor}
	flush := func() error {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		return c.flushLocked(lg, fs)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var fatalMu sync.Mutex
	var fatal error
	setFatal := func(err error) {
		fatalMu.Lock()
		if fatal == nil {
			fatal = err
		}
		fatalMu.Unlock()
		cancelRun()
	}

	// The interval half of the checkpoint cadence must fire even while
	// Next blocks on a stalled stream, so it runs on its own ticker.
	flusherDone := make(chan struct{})
	go func() {
		defer close(flusherDone)
		ticker := time.NewTicker(c.opts.CheckpointInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := flush(); err != nil {
					setFatal(err)
					return
				}
			}
		}
	}()
	// Stop the flusher before the deferred lg.Close runs.
	defer func() {
		cancelRun()
		<-flusherDone
	}()

	finish := func() error {
		ferr := flush()
		fatalMu.Lock()
		f := fatal
		fatalMu.Unlock()
		if f != nil {
			return f
		}
		return ferr
	}

	for {
		if runCtx.Err() != nil {
			return finish()
		}

		st, err := c.dialer.Dial(runCtx, c.src, fs.resume())
		if err != nil {
			if runCtx.Err() != nil {
				return finish()
			}
			done, ferr := c.onFailure(runCtx, err)
			if ferr != nil {
				if flushErr := flush(); flushErr != nil {
					c.logger.Error("flush during terminal stop failed", log.Err(flushErr))
				}
				return ferr
			}
			if done {
				return finish()
			}
			continue
		}

		err = c.consumeStream(runCtx, st, lg, fs, flush)
		st.Close()
		if err != nil {
			return err
		}
		if runCtx.Err() != nil {
			return finish()
		}
	}
}

// flushLocked syncs the log and commits the checkpoint. fs.mu is held.
func (c *Consumer) flushLocked(lg *eventlog.Log, fs *flushState) error {
	if fs.pending == 0 {
		fs.lastFlush = time.Now()
		return nil
	}
	if err := lg.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrDurability, err)
	}
	if err := c.checkpoints.Commit(c.src.ID, lg.LastSeq()); err != nil {
		return fmt.Errorf("%w: %v", ErrDurability, err)
	}
	fs.cursor = lg.LastSeq()
	c.snap.setCommitted(fs.cursor)
	fs.pending = 0
	fs.lastFlush = time.Now()
	return nil
}

// consumeStream reads frames until the stream fails or ctx is cancelled.
// A nil return means the caller should reconnect (or stop when ctx is
// done); a non-nil return ends the consumer.
func (c *Consumer) consumeStream(ctx context.Context, st transport.Stream, lg *eventlog.Log, fs *flushState, flush func() error) error {
	for {
		fr, err := st.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			switch transport.ClassOf(err) {
			case transport.ClassDecode:
				// One malformed frame must not lose the stream.
				c.logger.Warn("skipping undecodable frame", log.Err(err))
				continue
			default:
				// Flush before reconnecting so the dial cursor is the
				// last durable sequence, then let the caller redial.
				if ferr := flush(); ferr != nil {
					return ferr
				}
				if _, ferr := c.onFailure(ctx, err); ferr != nil {
					return ferr
				}
				return nil
			}
		}

		c.backoff.Reset(c.src.ID)

		if fr.Seq <= lg.LastSeq() {
			// Replay from the reconnect cursor; already recorded.
			continue
		}

		now := time.Now().UTC()
		recs := make([]eventlog.Record, 0, len(fr.Ops))
		for _, op := range fr.Ops {
			recs = append(recs, eventlog.Record{
				SourceID:    c.src.ID,
				Seq:         fr.Seq,
				CollectedAt: now,
				Payload:     op,
			})
		}
		if err := lg.Append(recs); err != nil {
			if errors.Is(err, eventlog.ErrStaleSequence) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrDurability, err)
		}
		c.snap.recordAppend(fr.Seq, len(recs), now)

		fs.mu.Lock()
		fs.pending += len(recs)
		due := fs.pending >= c.opts.CheckpointEvery
		fs.mu.Unlock()
		if due {
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

// onFailure classifies err, reports it to the backoff controller, and
// waits out the computed delay. It returns done=true when ctx was
// cancelled during the wait, or a non-nil error for terminal failures.
func (c *Consumer) onFailure(ctx context.Context, err error) (done bool, terminal error) {
	class := transport.ClassOf(err)
	if class == transport.ClassPermanent {
		c.snap.markTerminal()
		c.logger.Error("source failed permanently", log.Err(err))
		return false, fmt.Errorf("source %s: %w", c.src.ID, err)
	}

	hint, hasHint := transport.HintOf(err)
	delay := c.backoff.NextDelay(c.src.ID, backoff.Failure{
		RateLimited: class == transport.ClassRateLimited,
		Hint:        hint,
		HasHint:     hasHint,
	})
	if class == transport.ClassRateLimited {
		c.logger.Warn("rate limited", log.Dur("wait", delay), log.Bool("hinted", hasHint))
	} else {
		c.logger.Warn("stream failed, backing off",
			log.Err(err),
			log.Dur("wait", delay),
			log.Int("attempts", c.backoff.Attempts(c.src.ID)),
		)
	}
	if werr := backoff.Wait(ctx, delay); werr != nil {
		return true, nil
	}
	return false, nil
}
