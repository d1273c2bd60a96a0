package trace

// TraceSummary aggregates statistics from a DecisionTrace.
type TraceSummary struct {
	TotalDecisions   int            `json:"total_decisions"`
	AdmittedCount    int            `json:"admitted"`
	RejectedCount    int            `json:"rejected"`
	PreemptedCount   int            `json:"preempted"`
	Retransmitted    int            `json:"retransmitted"`
	Undeliverable    int            `json:"undeliverable"`
	OutcomeBreakdown map[string]int `json:"outcomes"` // outcome → count
	Overflow         int            `json:"overflow"`
}

// Summarize computes aggregate statistics from a DecisionTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(dt *DecisionTrace) *TraceSummary {
	summary := &TraceSummary{
		OutcomeBreakdown: make(map[string]int),
	}
	if dt == nil {
		return summary
	}

	summary.TotalDecisions = len(dt.Admissions)
	for _, a := range dt.Admissions {
		summary.OutcomeBreakdown[a.Outcome]++
		if a.Admitted {
			summary.AdmittedCount++
		} else {
			summary.RejectedCount++
		}
		if a.EvictedID != "" {
			summary.PreemptedCount++
		}
	}
	for _, r := range dt.Retransmissions {
		if r.Requeued {
			summary.Retransmitted++
		} else {
			summary.Undeliverable++
		}
	}
	summary.Overflow = dt.Overflow

	return summary
}
