// Implements the AdmissionQueue, which holds admitted packets that have not
// yet been serviced. Entries are appended on admission and leave either by
// service (PopFront) or by preemption (EvictLowest).

package sim

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCapacity is returned when a queue or registry is sized negative.
var ErrInvalidCapacity = errors.New("invalid capacity")

// QueueEntry is one admitted unit of work. Count is 1 for ordinary packets and
// the number of merged packets for an aggregated massive-device entry.
type QueueEntry struct {
	Packet Packet
	Count  int
}

// AdmissionQueue is a bounded FIFO of admitted packets.
// Invariant: Len() <= Cap() after every operation.
//
// A per-priority occupancy index lets EvictLowest find the lowest resident
// priority without scanning the whole queue first.
//
// Thread-safety: NOT thread-safe. Owned by a single Engine.
type AdmissionQueue struct {
	entries  []QueueEntry
	capacity int
	byPrio   [MaxPriority + 1]int
}

// NewAdmissionQueue creates an empty queue. Panics on negative capacity;
// callers validate capacity at configuration time.
func NewAdmissionQueue(capacity int) *AdmissionQueue {
	if capacity < 0 {
		panic(fmt.Sprintf("NewAdmissionQueue: capacity must be >= 0, got %d", capacity))
	}
	return &AdmissionQueue{capacity: capacity}
}

// Len returns the number of resident entries.
func (q *AdmissionQueue) Len() int {
	return len(q.entries)
}

// Cap returns the configured capacity.
func (q *AdmissionQueue) Cap() int {
	return q.capacity
}

// Full reports whether another entry would exceed capacity.
func (q *AdmissionQueue) Full() bool {
	return len(q.entries) >= q.capacity
}

// Utilization returns Len()/Cap(). A zero-capacity queue reports 1.
func (q *AdmissionQueue) Utilization() float64 {
	if q.capacity == 0 {
		return 1
	}
	return float64(len(q.entries)) / float64(q.capacity)
}

// Push appends e if there is room. Returns false, leaving the queue
// unchanged, when the queue is full.
func (q *AdmissionQueue) Push(e QueueEntry) bool {
	if q.Full() {
		return false
	}
	q.entries = append(q.entries, e)
	q.byPrio[clampPriority(e.Packet.Priority)]++
	return true
}

// PopFront removes and returns the oldest entry.
func (q *AdmissionQueue) PopFront() (QueueEntry, bool) {
	if len(q.entries) == 0 {
		return QueueEntry{}, false
	}
	e := q.entries[0]
	q.entries[0] = QueueEntry{}
	q.entries = q.entries[1:]
	q.byPrio[clampPriority(e.Packet.Priority)]--
	return e, true
}

// EvictLowest removes the oldest entry among those with the lowest resident
// priority, provided that priority is strictly below the given bound.
// Returns false and leaves the queue unchanged when no such entry exists.
func (q *AdmissionQueue) EvictLowest(below int) (QueueEntry, bool) {
	lowest := -1
	for p := MinPriority; p <= MaxPriority && p < below; p++ {
		if q.byPrio[p] > 0 {
			lowest = p
			break
		}
	}
	if lowest < 0 {
		return QueueEntry{}, false
	}
	for i, e := range q.entries {
		if clampPriority(e.Packet.Priority) == lowest {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.byPrio[lowest]--
			return e, true
		}
	}
	panic(fmt.Sprintf("EvictLowest: priority index reports %d entries at priority %d but none found",
		q.byPrio[lowest], lowest))
}

// Items returns the queue contents oldest first.
// The returned slice is the queue's internal storage; callers MUST NOT modify it.
func (q *AdmissionQueue) Items() []QueueEntry {
	return q.entries
}

// Reset empties the queue, keeping its capacity.
func (q *AdmissionQueue) Reset() {
	q.entries = nil
	q.byPrio = [MaxPriority + 1]int{}
}

func (q *AdmissionQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, e := range q.entries {
		sb.WriteString(fmt.Sprintf("%s/p%d", e.Packet.ID, e.Packet.Priority))
		if i < len(q.entries)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}

func clampPriority(p int) int {
	return max(MinPriority, min(p, MaxPriority))
}
