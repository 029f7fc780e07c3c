package scheduler

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs named one-shot jobs after a fixed delay. At most one live
// timer exists per key: scheduling under an existing key replaces the pending
// job instead of stacking a second one.
type Scheduler struct {
	log *zap.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// New creates an empty scheduler.
func New(log *zap.Logger) *Scheduler {
	return &Scheduler{
		log:    log,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule registers fn to run once after delay under the given key,
// cancelling any pending job with the same key first.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if prev, ok := s.timers[key]; ok {
		prev.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		// A replacement may have been scheduled while this job was firing;
		// only remove the registration if it is still ours.
		if s.timers[key] == t {
			delete(s.timers, key)
		}
		s.mu.Unlock()
		fn()
	})
	s.timers[key] = t

	s.log.Debug("job scheduled", zap.String("key", key), zap.Duration("delay", delay))
}

// Cancel stops the pending job with the given key. Reports whether a job was
// actually cancelled. A job already mid-fire cannot be interrupted.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, key)
	s.log.Debug("job cancelled", zap.String("key", key))
	return true
}

// CancelMatching cancels every pending job whose key starts with prefix and
// returns how many were cancelled.
func (s *Scheduler) CancelMatching(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, t := range s.timers {
		if strings.HasPrefix(key, prefix) {
			t.Stop()
			delete(s.timers, key)
			n++
		}
	}
	return n
}

// Pending returns the number of live jobs.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels all pending jobs and rejects further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
	s.stopped = true
	s.log.Info("scheduler stopped")
}
