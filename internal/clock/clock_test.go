package clock

import (
	"testing"
	"time"
)

func TestFakeEveryFiresOncePerPeriod(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := 0
	tm := f.Every(10*time.Second, func() { fired++ })

	f.Advance(30 * time.Second)
	if fired != 3 {
		t.Fatalf("expected 3 fires, got %d", fired)
	}

	tm.Stop()
	f.Advance(30 * time.Second)
	if fired != 3 {
		t.Fatalf("expected no fires after stop, got %d", fired)
	}
}

func TestFakeAfterFuncRunsOnce(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var at time.Time
	f.AfterFunc(3*time.Second, func() { at = f.Now() })

	f.Advance(2 * time.Second)
	if !at.IsZero() {
		t.Fatal("fired too early")
	}
	f.Advance(5 * time.Second)
	if !at.Equal(time.Unix(3, 0)) {
		t.Fatalf("expected fire at t=3s, got %v", at)
	}
	if f.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", f.Pending())
	}
}

func TestFakeCallbackMaySchedule(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	count := 0
	var rearm func()
	rearm = func() {
		count++
		if count < 3 {
			f.AfterFunc(time.Second, rearm)
		}
	}
	f.AfterFunc(time.Second, rearm)
	f.Advance(10 * time.Second)
	if count != 3 {
		t.Fatalf("expected 3 chained fires, got %d", count)
	}
}

func TestFakeStopPreventsFire(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	tm := f.AfterFunc(time.Second, func() { t.Fatal("stopped timer fired") })
	if !tm.Stop() {
		t.Fatal("expected Stop to report true")
	}
	if tm.Stop() {
		t.Fatal("second Stop must report false")
	}
	f.Advance(2 * time.Second)
}
