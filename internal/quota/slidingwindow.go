package quota

import (
	"sync"
	"time"
)

// SlidingWindow counts admissions within the last window per key; check and
// consume first drop stale timestamps, then compare the remaining count to
// limit. A single mutex serializes the whole limiter.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	admits []time.Time
}

func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{limit: limit, window: window}
}

func (w *SlidingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.admits) && !w.admits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.admits = w.admits[i:]
	}
}

// Check reports admissibility without recording a new admission.
func (w *SlidingWindow) Check() Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resultLocked(time.Now())
}

// Consume records the admission if it would be allowed; it returns the same
// Result Check would have, and only mutates state when Allowed is true.
func (w *SlidingWindow) Consume() Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	res := w.resultLocked(now)
	if res.Allowed {
		w.admits = append(w.admits, now)
	}
	return res
}

func (w *SlidingWindow) resultLocked(now time.Time) Result {
	w.pruneLocked(now)
	count := len(w.admits)

	var resetAt time.Time
	if count > 0 {
		resetAt = w.admits[0].Add(w.window)
	} else {
		resetAt = now.Add(w.window)
	}

	if count < w.limit {
		return Result{Allowed: true, Remaining: float64(w.limit - count - 1), Limit: float64(w.limit), ResetAt: resetAt}
	}

	retryAfter := resetAt.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Result{Allowed: false, Remaining: 0, Limit: float64(w.limit), ResetAt: resetAt, RetryAfter: retryAfter}
}

// Reset clears all recorded admissions for this window.
func (w *SlidingWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.admits = nil
}
