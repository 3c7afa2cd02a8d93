package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/pulse/internal/pkg/logger"
)

// Start refreshes immediately and then on every interval until Stop is
// called or ctx ends. It returns without waiting for the first refresh.
func (s *Scheduler) Start(ctx context.Context) error {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.reset = make(chan struct{}, 1)
	go s.loop(ctx, s.done, s.reset)

	s.log(fmt.Sprintf("scheduler started (every %s)", s.interval), logger.INFO, category)
	return nil
}

// Stop cancels the timer and any refresh it started, and waits for the
// loop to exit. It is a no-op when not running.
func (s *Scheduler) Stop() {
	s.timerMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done, s.reset = nil, nil, nil
	s.timerMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log("scheduler stopped", logger.INFO, category)
}

// Running reports whether the timer is active.
func (s *Scheduler) Running() bool {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.cancel != nil
}

// Interval returns the current refresh interval.
func (s *Scheduler) Interval() time.Duration {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.interval
}

// SetInterval changes the refresh interval and restarts the timer.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return errors.New("interval must be positive")
	}
	s.timerMu.Lock()
	s.interval = d
	s.timerMu.Unlock()
	s.Restart()
	return nil
}

// Restart starts the current interval over, so the next tick is one full
// interval away.
func (s *Scheduler) Restart() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.reset == nil {
		return
	}
	select {
	case s.reset <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan<- struct{}, reset <-chan struct{}) {
	defer close(done)

	s.tick(ctx)

	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-reset:
			ticker.Reset(s.Interval())
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.RefreshAll(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrRefreshInProgress), errors.Is(err, ErrNoProjects):
		s.log(fmt.Sprintf("scheduled refresh skipped: %v", err), logger.DEBUG, category)
	default:
		s.log(fmt.Sprintf("scheduled refresh failed: %v", err), logger.ERROR, category)
	}
}
