// Package event implements the simulator's global time-ordered event
// queue (spec §4.1): a set of (wake_time, component) pairs that drives
// the simulated clock. Targets scheduled for the same wake_time form an
// unordered set — the original's std::map<time, std::set<Component*>>
// collapses duplicate (time, component) pairs, and this package preserves
// that, instead of a plain multimap of possibly-repeated pairs.
//
// The priority structure is a container/heap min-heap over distinct wake
// times, in the shape of this retrieval pack's own timer-heap idiom (see
// DESIGN.md) adapted from wall-clock deadlines to simulated tick counts.
package event

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/ohnolabs/mcsim/pkg/message"
)

// timeHeap is a min-heap of distinct pending wake times.
type timeHeap []uint64

func (h timeHeap) Len() int            { return len(h) }
func (h timeHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h timeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timeHeap) Push(x any)         { *h = append(*h, x.(uint64)) }
func (h *timeHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// Queue is the global event queue. It owns no Messages, only wake-up
// notifications — per §3's lifecycle rules, messages are owned by
// components and travel through per-component mailboxes, not through here.
type Queue struct {
	times   timeHeap
	buckets map[uint64]map[message.ComponentID]struct{}
	clock   uint64
}

// New returns an empty event queue with the clock at 0.
func New() *Queue {
	return &Queue{
		buckets: make(map[uint64]map[message.ComponentID]struct{}),
	}
}

// Enqueue schedules target to be woken at wakeTime. wakeTime must be >= the
// queue's current clock; violating that would break the monotonic-clock
// invariant (§8 invariant 5), which can only happen from a caller bug (a
// correct component only ever sends with delay >= 1 process_interval), so
// this panics rather than silently clamping.
func (q *Queue) Enqueue(wakeTime uint64, target message.ComponentID) {
	if wakeTime < q.clock {
		panic(fmt.Errorf("event: enqueue at time %d precedes current clock %d for target %d", wakeTime, q.clock, target))
	}
	bucket, ok := q.buckets[wakeTime]
	if !ok {
		bucket = make(map[message.ComponentID]struct{}, 1)
		q.buckets[wakeTime] = bucket
		heap.Push(&q.times, wakeTime)
	}
	bucket[target] = struct{}{}
}

// Empty reports whether no wake-ups are pending.
func (q *Queue) Empty() bool { return len(q.times) == 0 }

// Clock returns the time of the most recently processed bucket (0 before
// the first RunOne call).
func (q *Queue) Clock() uint64 { return q.clock }

// RunOne pops the earliest pending wake time, advances the clock to it, and
// returns the (deterministically sorted, for reproducibility) set of
// targets woken at that time. ok is false if the queue was empty.
//
// The contract only promises an unspecified dispatch order among targets
// sharing a wake time; sorting by ComponentID is one valid realization of
// that contract and keeps tests deterministic.
func (q *Queue) RunOne() (wakeTime uint64, targets []message.ComponentID, ok bool) {
	if q.Empty() {
		return 0, nil, false
	}
	wakeTime = heap.Pop(&q.times).(uint64)
	bucket := q.buckets[wakeTime]
	delete(q.buckets, wakeTime)

	targets = make([]message.ComponentID, 0, len(bucket))
	for id := range bucket {
		targets = append(targets, id)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	q.clock = wakeTime
	return wakeTime, targets, true
}

// Snapshot renders a short human-readable description of pending wake-ups,
// used in fatal-assertion log lines (§7: "prints ... the event queue").
func (q *Queue) Snapshot() string {
	times := make([]uint64, len(q.times))
	copy(times, q.times)
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	s := fmt.Sprintf("event_queue(clock=%d, pending_times=%d)", q.clock, len(times))
	for i, t := range times {
		if i >= 8 {
			s += ", ..."
			break
		}
		s += fmt.Sprintf(" [%d: %d targets]", t, len(q.buckets[t]))
	}
	return s
}
