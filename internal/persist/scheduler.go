package persist

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// saveFunc performs one flush for a strategy.
type saveFunc func(ctx context.Context, force bool, log *slog.Logger) error

// scheduler is the debounce and flush-guard skeleton every strategy embeds.
type scheduler struct {
	opts   Options
	logger *slog.Logger
	save   saveFunc

	mu         sync.Mutex
	timer      *time.Timer
	armed      uint64 // identifies the live timer; stale fires are ignored
	pending    bool
	saving     bool
	gen        uint64 // identifies the flush holding the guard
	guardTimer *time.Timer
	closed     bool
	background sync.WaitGroup
}

func newScheduler(strategy string, target Target, opts Options, save saveFunc) *scheduler {
	return &scheduler{
		opts: opts,
		logger: opts.Logger.With(
			"component", "persist",
			"strategy", strategy,
			"collection", target.Name(),
		),
		save: save,
	}
}

// RequestSave replaces any pending flush with one due after the debounce
// window.
func (s *scheduler) RequestSave() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.armed++
	token := s.armed
	s.pending = true
	s.timer = time.AfterFunc(s.opts.Debounce, func() { s.fire(token) })
}

func (s *scheduler) fire(token uint64) {
	s.mu.Lock()
	if s.closed || token != s.armed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.pending = false
	s.background.Add(1)
	s.mu.Unlock()
	defer s.background.Done()

	err := s.flush(context.Background(), false)
	if err != nil && !errors.Is(err, ErrFlushInProgress) {
		s.logger.Error("scheduled flush failed", "error", err)
	}
}

// Pending reports whether a debounce timer is armed.
func (s *scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Saving reports whether the in-progress guard is held.
func (s *scheduler) Saving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

// Flush cancels any pending scheduled flush and writes now.
func (s *scheduler) Flush(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.cancelPendingLocked()
	s.mu.Unlock()

	return s.flush(ctx, force)
}

// Close stops the debounce timer, waits for scheduled flushes already
// running, and flushes once more if a save was pending.
func (s *scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	wasPending := s.pending
	s.cancelPendingLocked()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if wasPending {
		return s.flush(ctx, false)
	}
	return nil
}

func (s *scheduler) cancelPendingLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed++
	s.pending = false
}

func (s *scheduler) flush(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		s.logger.Info("flush already in progress, dropping request")
		return ErrFlushInProgress
	}
	s.saving = true
	s.gen++
	gen := s.gen
	if s.opts.GuardTimeout > 0 {
		s.guardTimer = time.AfterFunc(s.opts.GuardTimeout, func() { s.release(gen, true) })
	}
	s.mu.Unlock()
	defer s.release(gen, false)

	log := s.logger.With("flush_id", s.opts.IDs.Generate())
	start := time.Now()
	log.Debug("flush started", "force", force)

	err := s.save(ctx, force, log)

	var skipped *skipError
	switch {
	case errors.As(err, &skipped):
		log.Info("flush skipped", append([]any{"reason", skipped.reason}, skipped.attrs...)...)
		return nil
	case err != nil:
		log.Error("flush failed", "error", err, "duration", time.Since(start))
		return err
	}
	log.Info("flush completed", "duration", time.Since(start))
	return nil
}

// release drops the in-progress guard held by flush gen. A timeout from an
// older flush never clears the guard of a newer one.
func (s *scheduler) release(gen uint64, timedOut bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || !s.saving {
		return
	}
	if timedOut {
		s.logger.Warn("flush guard released by timeout", "guard_timeout", s.opts.GuardTimeout)
	} else if s.guardTimer != nil {
		s.guardTimer.Stop()
	}
	s.saving = false
	s.guardTimer = nil
}
