package testutil

import (
	"context"
	"sync"
	"time"
)

// SleepRecorder stands in for a context-aware sleep. It returns immediately
// and remembers every requested duration.
type SleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

// Sleep records d and returns ctx.Err().
func (s *SleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Calls returns a copy of the recorded durations.
func (s *SleepRecorder) Calls() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.calls))
	copy(out, s.calls)
	return out
}
