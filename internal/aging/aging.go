// Package aging runs the periodic housekeeping task that ages out stale CAM
// entries and empty multicast groups, and samples interface/CAM/multicast
// state into the metrics recorder.
package aging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/malbeclabs/l2switch/internal/cam"
	"github.com/malbeclabs/l2switch/internal/iface"
	"github.com/malbeclabs/l2switch/internal/mcast"
	"github.com/malbeclabs/l2switch/internal/metrics"
)

// DefaultPeriod is the default interval between cleanup/sampling ticks.
const DefaultPeriod = time.Second

// Worker periodically ages the CAM table, garbage-collects empty multicast
// groups, and samples counters into the metrics recorder. It follows the
// same Start/Stop/Run lifecycle shape as trafficloop.Worker.
type Worker struct {
	log     *slog.Logger
	period  time.Duration
	stack   *iface.Stack
	cam     *cam.Table
	mcast   *mcast.Stack
	metrics metrics.Recorder

	prevCounters map[string]iface.Counters

	wg      sync.WaitGroup
	running atomic.Bool

	cancel   context.CancelFunc
	cancelMu sync.RWMutex
}

// New wires an aging Worker. period defaults to DefaultPeriod if <= 0.
func New(log *slog.Logger, period time.Duration, stack *iface.Stack, camTable *cam.Table, mcastStack *mcast.Stack, recorder metrics.Recorder) *Worker {
	if period <= 0 {
		period = DefaultPeriod
	}
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Worker{
		log:          log,
		period:       period,
		stack:        stack,
		cam:          camTable,
		mcast:        mcastStack,
		metrics:      recorder,
		prevCounters: make(map[string]iface.Counters),
	}
}

// Start launches the run loop if not already running.
func (w *Worker) Start(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancelMu.Lock()
	w.cancel = cancel
	w.cancelMu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.Run(ctx)
		w.running.Store(false)
	}()
}

// Stop cancels the worker, if running, and blocks until Run returns.
func (w *Worker) Stop() {
	w.cancelMu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.cancelMu.Unlock()
	w.wg.Wait()
}

// IsRunning reports whether the run loop is currently active.
func (w *Worker) IsRunning() bool {
	return w.running.Load()
}

// Run ticks every period, performing cleanup and sampling, until ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("aging: worker started", "period", w.period)
	defer w.log.Debug("aging: worker stopped")

	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

// Tick runs one cleanup+sampling cycle immediately, without waiting for the
// next ticker fire. Exported for tests.
func (w *Worker) Tick() {
	w.tick()
}

func (w *Worker) tick() {
	w.cam.Cleanup()
	w.mcast.Cleanup()
	w.sample()
}

func (w *Worker) sample() {
	w.metrics.CAMOccupancy(w.cam.Len(), w.cam.Capacity())
	w.metrics.MulticastGroups(w.mcast.Len())

	for _, i := range w.stack.All() {
		cur := i.Counters()
		prev := w.prevCounters[i.Name()]

		if d := cur.SentBytes - prev.SentBytes; d > 0 {
			w.metrics.InterfaceBytes(i.Name(), "sent", int(d))
		}
		if d := cur.SentFrames - prev.SentFrames; d > 0 {
			w.metrics.InterfaceFrames(i.Name(), "sent", int(d))
		}
		if d := cur.RecvBytes - prev.RecvBytes; d > 0 {
			w.metrics.InterfaceBytes(i.Name(), "recv", int(d))
		}
		if d := cur.RecvFrames - prev.RecvFrames; d > 0 {
			w.metrics.InterfaceFrames(i.Name(), "recv", int(d))
		}

		w.prevCounters[i.Name()] = cur
	}
}
