package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/slicesim/slicesim/sim"
	"github.com/slicesim/slicesim/sim/workload"
)

var (
	// ErrRunNotFound is returned for an id no run was created with.
	ErrRunNotFound = errors.New("simulation run not found")
	// ErrInvalidTransition is returned when a start or stop request does not
	// fit the run's current status.
	ErrInvalidTransition = errors.New("invalid run state transition")
	// ErrInvalidRequest wraps every run request validation failure.
	ErrInvalidRequest = errors.New("invalid run request")
)

// RunStatus is the lifecycle state of a SimulationRun.
type RunStatus string

const (
	StatusInitialized RunStatus = "INITIALIZED"
	StatusRunning     RunStatus = "RUNNING"
	StatusStopped     RunStatus = "STOPPED"
	StatusCompleted   RunStatus = "COMPLETED"
	StatusError       RunStatus = "ERROR"
)

var validTransitions = map[RunStatus][]RunStatus{
	StatusInitialized: {StatusRunning},
	StatusRunning:     {StatusStopped, StatusCompleted, StatusError},
}

// Terminal reports whether no further transitions are possible.
func (s RunStatus) Terminal() bool {
	return s == StatusStopped || s == StatusCompleted || s == StatusError
}

// CanTransition reports whether s may move to next.
func (s RunStatus) CanTransition(next RunStatus) bool {
	for _, to := range validTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// IsValidRunStatus reports whether s names a run status.
func IsValidRunStatus(s RunStatus) bool {
	switch s {
	case StatusInitialized, StatusRunning, StatusStopped, StatusCompleted, StatusError:
		return true
	}
	return false
}

// RunRequest is the caller-supplied configuration of a run.
type RunRequest struct {
	TrafficVolume int    `json:"traffic_volume"`
	Duration      int    `json:"duration"` // time units
	Pattern       string `json:"pattern"`
}

// Validate checks r against the configured bounds. An empty pattern is
// accepted and means constant.
func (r RunRequest) Validate(cfg *sim.Config) error {
	t := cfg.Traffic
	if r.TrafficVolume < t.MinVolume || r.TrafficVolume > t.MaxVolume {
		return fmt.Errorf("%w: traffic_volume %d outside [%d, %d]", ErrInvalidRequest, r.TrafficVolume, t.MinVolume, t.MaxVolume)
	}
	if r.Duration < t.MinDuration || r.Duration > t.MaxDuration {
		return fmt.Errorf("%w: duration %d outside [%d, %d]", ErrInvalidRequest, r.Duration, t.MinDuration, t.MaxDuration)
	}
	if r.Pattern != "" && !cfg.IsValidPattern(r.Pattern) {
		return fmt.Errorf("%w: pattern %q not one of %v", ErrInvalidRequest, r.Pattern, t.Patterns)
	}
	return nil
}

// RunTotals are the running counters of a run. Every field is
// non-decreasing over the run's lifetime.
type RunTotals struct {
	Ticks                int64 `json:"ticks"`
	TrafficGenerated     int64 `json:"traffic_generated"`
	PacketsProcessed     int64 `json:"packets_processed"`
	PacketsDropped       int64 `json:"packets_dropped"`
	PacketsPreempted     int64 `json:"packets_preempted"`
	PacketsAggregated    int64 `json:"packets_aggregated"`
	PacketsRetransmitted int64 `json:"packets_retransmitted"`
	QoSViolations        int64 `json:"qos_violations"`
	SliceFailures        int64 `json:"slice_failures"`
}

func (t *RunTotals) merge(res *sim.BatchResult) {
	t.PacketsProcessed += int64(res.PacketsProcessed)
	t.PacketsDropped += int64(res.PacketsDropped)
	t.PacketsPreempted += int64(res.PacketsPreempted)
	t.PacketsAggregated += int64(res.PacketsAggregated)
	t.PacketsRetransmitted += int64(res.PacketsRetransmitted)
	t.QoSViolations += int64(res.QoSViolations)
}

// RunView is an immutable copy of a run's externally visible state.
type RunView struct {
	ID        string                             `json:"id"`
	Request   RunRequest                         `json:"request"`
	Status    RunStatus                          `json:"status"`
	CreatedAt time.Time                          `json:"created_at"`
	StartedAt *time.Time                         `json:"started_at,omitempty"`
	EndedAt   *time.Time                         `json:"ended_at,omitempty"`
	Totals    RunTotals                          `json:"totals"`
	Latest    map[sim.SliceType]*sim.BatchResult `json:"latest,omitempty"`
	Error     string                             `json:"error,omitempty"`
}

// RunFilter selects and pages through runs. A zero Status matches every run;
// Limit <= 0 means no limit.
type RunFilter struct {
	Status RunStatus
	Limit  int
	Offset int
}

// run is the orchestrator-owned mutable state of a SimulationRun.
// Every field below mu is guarded by it.
type run struct {
	id          string
	req         RunRequest
	synth       *workload.Synthesizer
	dispatchers map[sim.SliceType]Dispatcher
	done        chan struct{}

	mu        sync.Mutex
	status    RunStatus
	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
	totals    RunTotals
	latest    map[sim.SliceType]*sim.BatchResult
	errMsg    string
	snapshots *sim.Ring[Snapshot]
	cancel    func()
}

// transition moves the run to next, stamping start and end times.
// Callers hold r.mu.
func (r *run) transition(next RunStatus, now time.Time) error {
	if !r.status.CanTransition(next) {
		return fmt.Errorf("%w: run %s is %s, cannot become %s", ErrInvalidTransition, r.id, r.status, next)
	}
	r.status = next
	switch {
	case next == StatusRunning:
		r.startedAt = now
	case next.Terminal():
		r.endedAt = now
	}
	return nil
}

// view copies the run's state. Callers hold r.mu.
func (r *run) view() RunView {
	v := RunView{
		ID:        r.id,
		Request:   r.req,
		Status:    r.status,
		CreatedAt: r.createdAt,
		Totals:    r.totals,
		Error:     r.errMsg,
	}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		v.StartedAt = &t
	}
	if !r.endedAt.IsZero() {
		t := r.endedAt
		v.EndedAt = &t
	}
	if len(r.latest) > 0 {
		v.Latest = make(map[sim.SliceType]*sim.BatchResult, len(r.latest))
		for k, res := range r.latest {
			v.Latest[k] = res
		}
	}
	return v
}
