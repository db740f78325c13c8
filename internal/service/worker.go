package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Worker drives the scheduler: every Interval it dispatches due executions,
// then plans new ones, then runs auto-read.
type Worker struct {
	Dispatcher *Dispatcher
	Planner    *Planner
	AutoReader *AutoReader
	Interval   time.Duration

	deps    *Deps
	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker builds the scheduler loop. autoReader may be nil to disable
// auto-read; a non-positive interval falls back to 10s.
func NewWorker(d *Deps, dispatcher *Dispatcher, planner *Planner, autoReader *AutoReader, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Worker{
		Dispatcher: dispatcher,
		Planner:    planner,
		AutoReader: autoReader,
		Interval:   interval,
		deps:       d,
	}
}

// Start begins ticking in the background. It is a no-op if already started.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)
	w.deps.Logger.Info("scheduler started", zap.Duration("interval", w.Interval))
}

// Stop cancels the loop and waits for the current tick and pending reads.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	if w.AutoReader != nil {
		w.AutoReader.Wait()
	}
	w.deps.Logger.Info("scheduler stopped")
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.deps.Clock.After(w.Interval):
			w.Tick(ctx)
		}
	}
}

// Tick runs one dispatch and plan cycle. Ticks never overlap: if a tick is
// already running, Tick returns false without doing anything.
func (w *Worker) Tick(ctx context.Context) bool {
	if !w.running.CompareAndSwap(false, true) {
		w.deps.Metrics.TickSkipped()
		w.deps.Logger.Debug("tick skipped, previous tick still running")
		return false
	}
	defer w.running.Store(false)

	start := time.Now()
	log := w.deps.Logger

	res, err := w.Dispatcher.DispatchDue(ctx)
	if err != nil {
		log.Error("dispatch phase failed", zap.Error(err))
	}
	planned, err := w.Planner.PlanAll(ctx)
	if err != nil {
		log.Error("planning phase failed", zap.Error(err))
	}
	if w.AutoReader != nil {
		if _, err := w.AutoReader.Run(ctx); err != nil {
			log.Error("auto read phase failed", zap.Error(err))
		}
	}

	elapsed := time.Since(start)
	w.deps.Metrics.ObserveTick(elapsed)
	log.Debug("tick finished",
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("deferred", res.Deferred),
		zap.Int("planned", planned),
		zap.Duration("elapsed", elapsed))
	return true
}
