package traffic

import (
	"sync"
	"testing"
	"time"
)

func trackerAt(clock *time.Time) *Tracker {
	tr := NewTracker()
	tr.now = func() time.Time { return *clock }
	return tr
}

func TestRequestCount_Empty(t *testing.T) {
	Reset()
	if n := RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

func TestErrorRate_SuccessAndError(t *testing.T) {
	Reset()
	defer Reset()
	RecordSuccess()
	RecordSuccess()
	RecordError()

	errors, total := ErrorRate(time.Minute)
	if errors != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", errors, total)
	}
	if n := RequestCount(time.Minute); n != 3 {
		t.Errorf("RequestCount() = %d, want 3", n)
	}
}

func TestTracker_WindowExcludesOlder(t *testing.T) {
	clock := time.Date(2017, 8, 23, 12, 0, 0, 0, time.UTC)
	tr := trackerAt(&clock)

	tr.RecordError()
	clock = clock.Add(90 * time.Second)
	tr.RecordSuccess()

	if errors, total := tr.ErrorRate(time.Minute); errors != 0 || total != 1 {
		t.Errorf("ErrorRate(1m) = (%d, %d), want (0, 1)", errors, total)
	}
	if errors, total := tr.ErrorRate(2 * time.Minute); errors != 1 || total != 2 {
		t.Errorf("ErrorRate(2m) = (%d, %d), want (1, 2)", errors, total)
	}
}

func TestTracker_BucketReusedAfterHorizon(t *testing.T) {
	clock := time.Date(2017, 8, 23, 12, 0, 0, 0, time.UTC)
	tr := trackerAt(&clock)

	tr.RecordError()
	tr.RecordError()
	clock = clock.Add(horizon * time.Second)
	tr.RecordSuccess()

	if errors, total := tr.ErrorRate(time.Hour); errors != 0 || total != 1 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 1) after the bucket was reused", errors, total)
	}
}

func TestTracker_Reset(t *testing.T) {
	clock := time.Now()
	tr := trackerAt(&clock)
	tr.RecordError()
	tr.Reset()
	if _, total := tr.ErrorRate(time.Minute); total != 0 {
		t.Errorf("total after Reset = %d, want 0", total)
	}
}

func TestTracker_ConcurrentRecord(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); tr.RecordSuccess() }()
		go func() { defer wg.Done(); tr.RecordError() }()
	}
	wg.Wait()
	errors, total := tr.ErrorRate(time.Minute)
	if errors != 50 || total != 100 {
		t.Errorf("ErrorRate() = (%d, %d), want (50, 100)", errors, total)
	}
}
