package scheduler

import (
	"testing"
	"time"
)

func TestFIFOTieBreak(t *testing.T) {
	s := New()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		s.Schedule(0, func() { order = append(order, i) })
	}
	s.RunUntil(time.Second)
	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestTimeOrdering(t *testing.T) {
	s := New()
	var order []int
	s.Schedule(3*time.Second, func() { order = append(order, 3) })
	s.Schedule(1*time.Second, func() { order = append(order, 1) })
	s.Schedule(2*time.Second, func() { order = append(order, 2) })
	s.RunUntil(10 * time.Second)
	want := []int{1, 2, 3}
	for i, v := range want {
		if order[i] != v {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestCancelPreventsFire(t *testing.T) {
	s := New()
	fired := false
	h := s.Schedule(time.Second, func() { fired = true })
	s.Cancel(h)
	s.RunUntil(10 * time.Second)
	if fired {
		t.Fatal("cancelled callback fired")
	}
}

func TestCancelUnknownHandleIsNoop(t *testing.T) {
	s := New()
	s.Cancel(Handle{index: 999, gen: 0}) // must not panic
}

func TestCancelAlreadyFiredIsNoop(t *testing.T) {
	s := New()
	h := s.Schedule(0, func() {})
	s.RunUntil(time.Second)
	s.Cancel(h) // must not panic or affect anything
}

func TestDeadlineStopsBeforeQueueEmpty(t *testing.T) {
	s := New()
	ran := false
	s.Schedule(5*time.Second, func() { ran = true })
	s.RunUntil(1 * time.Second)
	if ran {
		t.Fatal("event beyond deadline should not have fired")
	}
	if s.Now() != 1*time.Second {
		t.Fatalf("Now() = %v, want 1s", s.Now())
	}
	if s.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", s.Pending())
	}
}

func TestStopEndsEarly(t *testing.T) {
	s := New()
	count := 0
	s.Schedule(0, func() { count++; s.Stop() })
	s.Schedule(0, func() { count++ })
	s.RunUntil(time.Second)
	if count != 1 {
		t.Fatalf("count = %d, want 1 (Stop should cut the run short)", count)
	}
}

func TestRescheduleFromWithinCallback(t *testing.T) {
	s := New()
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		if ticks < 3 {
			s.Schedule(time.Second, tick)
		}
	}
	s.Schedule(time.Second, tick)
	s.RunUntil(10 * time.Second)
	if ticks != 3 {
		t.Fatalf("ticks = %d, want 3", ticks)
	}
}
