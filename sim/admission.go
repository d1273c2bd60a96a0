package sim

import "fmt"

// Outcome is the result of one admission attempt. Rejections are expected,
// counted outcomes and never surface as errors.
type Outcome int

const (
	// Admitted means the packet took a free queue slot.
	Admitted Outcome = iota
	// AdmittedByPreemption means a lower-priority resident was evicted to make room.
	AdmittedByPreemption
	// RejectedQueueFull means the queue was full and the overflow policy declined.
	RejectedQueueFull
	// RejectedDeviceLimit means the device registry is full and the device is unseen.
	RejectedDeviceLimit
)

func (o Outcome) String() string {
	switch o {
	case Admitted:
		return "admitted"
	case AdmittedByPreemption:
		return "preempted"
	case RejectedQueueFull:
		return "queue-full"
	case RejectedDeviceLimit:
		return "device-limit"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// IsAdmitted reports whether the packet entered the queue.
func (o Outcome) IsAdmitted() bool {
	return o == Admitted || o == AdmittedByPreemption
}

// OverflowPolicy decides what happens when a packet arrives at a full queue.
// Implementations either reject, or evict one resident entry and admit.
type OverflowPolicy interface {
	// Overflow is only called when q.Full(). On admission the incoming entry
	// has been pushed and evicted holds the displaced resident, if any.
	Overflow(q *AdmissionQueue, incoming QueueEntry) (admitted bool, evicted *QueueEntry, reason string)
}

// DropPolicy rejects every packet that arrives at a full queue.
type DropPolicy struct{}

func (DropPolicy) Overflow(_ *AdmissionQueue, _ QueueEntry) (bool, *QueueEntry, string) {
	return false, nil, "queue full"
}

// PreemptPolicy lets packets at or above Threshold displace the lowest-priority
// resident, provided that resident's priority is strictly lower than theirs.
type PreemptPolicy struct {
	Threshold int
}

func (p PreemptPolicy) Overflow(q *AdmissionQueue, incoming QueueEntry) (bool, *QueueEntry, string) {
	if incoming.Packet.Priority < p.Threshold {
		return false, nil, "queue full"
	}
	victim, ok := q.EvictLowest(incoming.Packet.Priority)
	if !ok {
		return false, nil, "queue full, no lower-priority packet to preempt"
	}
	if !q.Push(incoming) {
		panic("PreemptPolicy: push failed after eviction")
	}
	return true, &victim, fmt.Sprintf("preempted priority %d", victim.Packet.Priority)
}

// DefaultPreemptThreshold is the minimum priority allowed to preempt.
const DefaultPreemptThreshold = 8

// ValidOverflowPolicies is the set of recognized overflow policy names.
// Shared by Config.Validate() and NewOverflowPolicy().
var ValidOverflowPolicies = map[string]bool{"": true, "drop": true, "preempt": true}

// IsValidOverflowPolicy returns true if name is a recognized overflow policy.
func IsValidOverflowPolicy(name string) bool {
	return ValidOverflowPolicies[name]
}

// NewOverflowPolicy creates an overflow policy by name.
// An empty string defaults to drop. A threshold <= 0 uses DefaultPreemptThreshold.
// Panics on unrecognized names.
func NewOverflowPolicy(name string, threshold int) OverflowPolicy {
	if !IsValidOverflowPolicy(name) {
		panic(fmt.Sprintf("unknown overflow policy %q", name))
	}
	switch name {
	case "", "drop":
		return DropPolicy{}
	case "preempt":
		if threshold <= 0 {
			threshold = DefaultPreemptThreshold
		}
		return PreemptPolicy{Threshold: threshold}
	default:
		panic(fmt.Sprintf("unhandled overflow policy %q", name))
	}
}

// admit runs one packet through the queue and its overflow policy.
func admit(q *AdmissionQueue, policy OverflowPolicy, e QueueEntry) (Outcome, *QueueEntry, string) {
	if q.Push(e) {
		return Admitted, nil, ""
	}
	ok, evicted, reason := policy.Overflow(q, e)
	if !ok {
		return RejectedQueueFull, nil, reason
	}
	return AdmittedByPreemption, evicted, reason
}
