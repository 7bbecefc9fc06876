package schedule

import (
	"testing"
	"time"
)

var t0 = time.Unix(1700000000, 0)

func keys[T any](es []*Entry[T]) []uint64 {
	out := make([]uint64, len(es))
	for i, e := range es {
		out[i] = e.Key
	}
	return out
}

func equalKeys(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPopDueOrdersByDueThenKey(t *testing.T) {
	s := New[string](time.Second)
	s.Insert(3, "c", t0)
	s.Insert(1, "a", t0.Add(2*time.Millisecond))
	s.Insert(2, "b", t0)
	s.Insert(4, "d", t0.Add(time.Hour))

	got := keys(s.PopDue(t0.Add(2 * time.Millisecond)))
	if !equalKeys(got, []uint64{2, 3, 1}) {
		t.Fatalf("unexpected pop order %v", got)
	}
	if s.Len() != 4 {
		t.Fatalf("in-flight entries still count, expected 4 got %d", s.Len())
	}
	if more := s.PopDue(t0.Add(time.Minute)); len(more) != 0 {
		t.Fatalf("expected nothing else due, got %v", keys(more))
	}
}

func TestNextWakeup(t *testing.T) {
	s := New[int](50 * time.Millisecond)
	if got := s.NextWakeup(t0); got != 50*time.Millisecond {
		t.Fatalf("empty scheduler should return floor, got %s", got)
	}

	s.Insert(1, 0, t0.Add(10*time.Millisecond))
	if got := s.NextWakeup(t0); got != 10*time.Millisecond {
		t.Fatalf("expected 10ms, got %s", got)
	}
	if got := s.NextWakeup(t0.Add(time.Second)); got != 0 {
		t.Fatalf("overdue entry should give 0, got %s", got)
	}

	s.Update(1, t0.Add(time.Hour))
	if got := s.NextWakeup(t0); got != 50*time.Millisecond {
		t.Fatalf("hourly entry should be capped at the floor, got %s", got)
	}
}

func TestRescheduleUsesCompletionTime(t *testing.T) {
	s := New[int](time.Second)
	s.Insert(1, 0, t0)

	e := s.PopDue(t0)[0]
	if !e.InFlight() {
		t.Fatalf("popped entry should be in flight")
	}
	done := t0.Add(30 * time.Millisecond)
	if !s.Reschedule(e, done, 5*time.Millisecond) {
		t.Fatalf("reschedule failed")
	}
	if !e.Due.Equal(done.Add(5 * time.Millisecond)) {
		t.Fatalf("expected due %v, got %v", done.Add(5*time.Millisecond), e.Due)
	}
	if e.InFlight() {
		t.Fatalf("rescheduled entry should not be in flight")
	}
}

func TestRemoveInFlightIsDeferred(t *testing.T) {
	s := New[int](time.Second)
	s.Insert(1, 0, t0)
	s.Insert(2, 0, t0.Add(time.Hour))

	e := s.PopDue(t0)[0]

	found, deferred := s.Remove(1)
	if !found || !deferred {
		t.Fatalf("expected deferred removal, got found=%v deferred=%v", found, deferred)
	}
	if s.Len() != 1 {
		t.Fatalf("removed entry should not count, got %d", s.Len())
	}
	if _, ok := s.Get(1); ok {
		t.Fatalf("removed entry should not be visible")
	}
	if s.Reschedule(e, t0, time.Millisecond) {
		t.Fatalf("reschedule of removed entry should report false")
	}
	if due := s.PopDue(t0.Add(time.Minute)); len(due) != 0 {
		t.Fatalf("removed entry came back: %v", keys(due))
	}

	found, deferred = s.Remove(2)
	if !found || deferred {
		t.Fatalf("expected immediate removal, got found=%v deferred=%v", found, deferred)
	}
	if found, _ := s.Remove(2); found {
		t.Fatalf("second removal should not find the entry")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty scheduler, got %d", s.Len())
	}
}

func TestRequeueKeepsDueTime(t *testing.T) {
	s := New[int](time.Second)
	s.Insert(1, 0, t0)
	s.Insert(2, 0, t0)

	burst := s.PopDue(t0)
	s.Reschedule(burst[0], t0.Add(time.Millisecond), time.Second)
	s.Requeue(burst[1])

	next := s.PopDue(t0)
	if !equalKeys(keys(next), []uint64{2}) {
		t.Fatalf("requeued entry should be due immediately, got %v", keys(next))
	}
}

func TestUpdateSkipsInFlight(t *testing.T) {
	s := New[int](time.Second)
	s.Insert(1, 0, t0)
	s.PopDue(t0)
	if s.Update(1, t0.Add(time.Minute)) {
		t.Fatalf("update of in-flight entry should be refused")
	}
	if s.Update(42, t0) {
		t.Fatalf("update of unknown key should be refused")
	}
}

func TestDrain(t *testing.T) {
	s := New[int](time.Second)
	s.Insert(1, 0, t0)
	s.Insert(2, 0, t0.Add(time.Hour))
	s.PopDue(t0)

	if got := len(s.Drain()); got != 2 {
		t.Fatalf("expected 2 drained entries, got %d", got)
	}
	if s.Len() != 0 || s.NextWakeup(t0) != time.Second {
		t.Fatalf("scheduler not empty after drain")
	}
}
