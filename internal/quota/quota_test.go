package quota

import (
	"testing"
	"time"
)

func TestSlidingWindowNeverExceedsLimitWithinWindow(t *testing.T) {
	w := NewSlidingWindow(5, 50*time.Millisecond)
	admitted := 0
	for i := 0; i < 10; i++ {
		if w.Consume().Allowed {
			admitted++
		}
	}
	if admitted != 5 {
		t.Fatalf("expected exactly 5 admissions, got %d", admitted)
	}
}

func TestSlidingWindowResumesAfterWindowPasses(t *testing.T) {
	w := NewSlidingWindow(2, 30*time.Millisecond)
	if !w.Consume().Allowed || !w.Consume().Allowed {
		t.Fatal("expected first two admissions to succeed")
	}
	if w.Consume().Allowed {
		t.Fatal("expected third admission to be denied")
	}
	time.Sleep(40 * time.Millisecond)
	if !w.Consume().Allowed {
		t.Fatal("expected admission to resume after window passes")
	}
}

func TestSlidingWindowDeniedRetryAfterPositive(t *testing.T) {
	w := NewSlidingWindow(1, time.Minute)
	w.Consume()
	r := w.Consume()
	if r.Allowed || r.RetryAfter <= 0 {
		t.Fatalf("expected denial with positive retry_after, got %+v", r)
	}
}

func TestResetThenCheckReportsFullRemaining(t *testing.T) {
	w := NewSlidingWindow(3, time.Minute)
	w.Consume()
	w.Consume()
	w.Reset()
	r := w.Check()
	if !r.Allowed || r.Remaining != 2 {
		t.Fatalf("expected full remaining after reset, got %+v", r)
	}
}

func TestTokenBucketRefillAndConsume(t *testing.T) {
	b := NewTokenBucket(100, 10)
	for i := 0; i < 10; i++ {
		if !b.Consume(1).Allowed {
			t.Fatalf("expected token %d to be allowed", i)
		}
	}
	if b.Consume(1).Allowed {
		t.Fatal("expected bucket to be empty")
	}
	time.Sleep(20 * time.Millisecond)
	if !b.Consume(1).Allowed {
		t.Fatal("expected refill to allow another token")
	}
}

func TestManagerTwoPhaseDoesNotPartiallyConsume(t *testing.T) {
	m := NewManager(WindowConfig{PerMinute: 1, PerHour: 100, PerDay: 100, WarningFraction: 0.1})
	out := m.Consume("tenant-a")
	if !out.Allowed {
		t.Fatal("expected first admission to succeed")
	}
	out = m.Consume("tenant-a")
	if out.Allowed {
		t.Fatal("expected second admission to be denied by the minute window")
	}
	// hour/day windows must not have been consumed by the denied attempt.
	hourCheck := m.Check("tenant-a")
	if hourCheck.Hour.Remaining != 98 {
		t.Fatalf("expected hour window untouched by denied consume, got %+v", hourCheck.Hour)
	}
}

func TestManagerZeroLimitDisablesWindow(t *testing.T) {
	m := NewManager(WindowConfig{PerMinute: 0, PerHour: 0, PerDay: 0})
	out := m.Check("k")
	if out.Status != StatusDisabled || !out.Allowed {
		t.Fatalf("expected disabled status with all-zero config, got %+v", out)
	}
}
