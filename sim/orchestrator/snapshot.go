package orchestrator

import (
	"time"

	"github.com/slicesim/slicesim/sim"
)

// Snapshot is the state of a run after one tick, as handed to publishers.
type Snapshot struct {
	RunID     string                             `json:"run_id"`
	Tick      int64                              `json:"tick"`
	Timestamp time.Time                          `json:"timestamp"`
	Status    RunStatus                          `json:"status"`
	Elapsed   float64                            `json:"elapsed"` // time units since start
	Generated int                                `json:"generated"`
	Totals    RunTotals                          `json:"totals"`
	Slices    map[sim.SliceType]*sim.BatchResult `json:"slices"`
	Failures  map[sim.SliceType]string           `json:"failures,omitempty"`
}

// Results returns the per-slice results in merge order, skipping slices
// without one.
func (s Snapshot) Results() []*sim.BatchResult {
	out := make([]*sim.BatchResult, 0, len(s.Slices))
	for _, slice := range sim.SliceOrder {
		if res, ok := s.Slices[slice]; ok {
			out = append(out, res)
		}
	}
	return out
}
