package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/osome-iu/osome-bluesky-streamer/pkg/log"
)

// ErrUnclean is returned when the workload did not stop within the
// grace period. On-disk state stays consistent (appends are atomic and
// checkpoints only ever trail the log) but the final flush may be lost.
var ErrUnclean = errors.New("shutdown: grace period exceeded")

// Coordinator owns the signal → cancellation → drain sequence.
type Coordinator struct {
	grace   time.Duration
	logger  log.Logger
	signals []os.Signal
	stuck   func() []string
}

// New builds a coordinator. Extra signals may be passed for tests; by
// default SIGINT and SIGTERM trigger the stop.
func New(grace time.Duration, logger log.Logger, signals ...os.Signal) *Coordinator {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	return &Coordinator{
		grace:   grace,
		logger:  logger.With(log.Component("shutdown")),
		signals: signals,
	}
}

// OnUnclean registers a callback naming the sources that had not
// acknowledged cancellation when the grace period expired. Each one is
// logged individually so an unclean stop can be traced per source.
func (c *Coordinator) OnUnclean(fn func() []string) { c.stuck = fn }

// Run executes fn with a context that is cancelled on the first stop
// signal (or when parent is cancelled). Repeated signals do not cancel
// again; the stop decision is made once. fn's own error is returned
// as-is when it stops in time.
func (c *Coordinator) Run(parent context.Context, fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(parent, c.signals...)
	defer stop()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("shutdown: workload panic: %v\n%s", r, debug.Stack())
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	c.logger.Info("stop requested, draining", log.Dur("grace", c.grace))
	t := time.NewTimer(c.grace)
	defer t.Stop()
	select {
	case err := <-done:
		c.logger.Info("drained cleanly")
		return err
	case <-t.C:
		if c.stuck != nil {
			for _, id := range c.stuck() {
				c.logger.Error("unclean stop: source did not acknowledge cancellation", log.Source(id))
			}
		}
		c.logger.Error("unclean stop: workload did not drain in time", log.Dur("grace", c.grace))
		return ErrUnclean
	}
}
