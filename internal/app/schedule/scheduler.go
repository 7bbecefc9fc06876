// Package schedule orders sensors by their next due time.
package schedule

import (
	"container/heap"
	"time"
)

// Entry is one scheduled item. Entries returned by PopDue are in flight
// until they are passed to Reschedule or Requeue.
type Entry[T any] struct {
	Key   uint64
	Due   time.Time
	Value T

	index    int
	inFlight bool
	removed  bool
}

// InFlight reports whether the entry is currently being processed.
func (e *Entry[T]) InFlight() bool { return e.inFlight }

// Scheduler is a min-heap of entries ordered by due time, then key.
// It is not safe for concurrent use.
type Scheduler[T any] struct {
	h     entryHeap[T]
	byKey map[uint64]*Entry[T]
	floor time.Duration
}

func New[T any](floor time.Duration) *Scheduler[T] {
	return &Scheduler[T]{
		byKey: make(map[uint64]*Entry[T]),
		floor: floor,
	}
}

// SetFloor changes the maximum duration NextWakeup returns.
func (s *Scheduler[T]) SetFloor(floor time.Duration) { s.floor = floor }

func (s *Scheduler[T]) Floor() time.Duration { return s.floor }

// Len counts queued and in-flight entries that have not been removed.
func (s *Scheduler[T]) Len() int {
	n := 0
	for _, e := range s.byKey {
		if !e.removed {
			n++
		}
	}
	return n
}

func (s *Scheduler[T]) Insert(key uint64, value T, due time.Time) *Entry[T] {
	e := &Entry[T]{Key: key, Due: due, Value: value}
	s.byKey[key] = e
	heap.Push(&s.h, e)
	return e
}

// Get returns the entry for key, queued or in flight.
func (s *Scheduler[T]) Get(key uint64) (*Entry[T], bool) {
	e, ok := s.byKey[key]
	if !ok || e.removed {
		return nil, false
	}
	return e, true
}

// Remove drops the entry for key. If the entry is in flight the removal is
// deferred until Reschedule and Remove returns deferred=true.
func (s *Scheduler[T]) Remove(key uint64) (found, deferred bool) {
	e, ok := s.byKey[key]
	if !ok || e.removed {
		return false, false
	}
	if e.inFlight {
		e.removed = true
		return true, true
	}
	heap.Remove(&s.h, e.index)
	delete(s.byKey, key)
	return true, false
}

// Update moves a queued entry to a new due time. In-flight entries keep
// their slot and pick up the new interval on Reschedule.
func (s *Scheduler[T]) Update(key uint64, due time.Time) bool {
	e, ok := s.byKey[key]
	if !ok || e.removed || e.inFlight {
		return false
	}
	e.Due = due
	heap.Fix(&s.h, e.index)
	return true
}

// NextWakeup returns how long the caller may sleep: the time until the
// earliest deadline, capped at the floor, never negative.
func (s *Scheduler[T]) NextWakeup(now time.Time) time.Duration {
	if len(s.h) == 0 {
		return s.floor
	}
	d := s.h[0].Due.Sub(now)
	if d < 0 {
		return 0
	}
	if s.floor > 0 && d > s.floor {
		return s.floor
	}
	return d
}

// PopDue removes every entry with Due <= now in (due, key) order and marks
// them in flight.
func (s *Scheduler[T]) PopDue(now time.Time) []*Entry[T] {
	var due []*Entry[T]
	for len(s.h) > 0 && !s.h[0].Due.After(now) {
		e := heap.Pop(&s.h).(*Entry[T])
		e.inFlight = true
		due = append(due, e)
	}
	return due
}

// Reschedule puts an in-flight entry back with Due = now + interval. It
// returns false and forgets the entry if removal was requested meanwhile.
func (s *Scheduler[T]) Reschedule(e *Entry[T], now time.Time, interval time.Duration) bool {
	e.Due = now.Add(interval)
	return s.putBack(e)
}

// Requeue puts an unprocessed in-flight entry back with its old due time.
func (s *Scheduler[T]) Requeue(e *Entry[T]) bool {
	return s.putBack(e)
}

func (s *Scheduler[T]) putBack(e *Entry[T]) bool {
	e.inFlight = false
	if e.removed {
		delete(s.byKey, e.Key)
		return false
	}
	heap.Push(&s.h, e)
	return true
}

// Drain removes every entry, queued or in flight, and returns them.
func (s *Scheduler[T]) Drain() []*Entry[T] {
	out := make([]*Entry[T], 0, len(s.byKey))
	for _, e := range s.byKey {
		if !e.removed {
			out = append(out, e)
		}
	}
	s.h = s.h[:0]
	clear(s.byKey)
	return out
}

type entryHeap[T any] []*Entry[T]

func (h entryHeap[T]) Len() int { return len(h) }

func (h entryHeap[T]) Less(i, j int) bool {
	if h[i].Due.Equal(h[j].Due) {
		return h[i].Key < h[j].Key
	}
	return h[i].Due.Before(h[j].Due)
}

func (h entryHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap[T]) Push(x any) {
	e := x.(*Entry[T])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
