package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every admission and retransmission decision.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// DefaultMaxRecords bounds each record list when TraceConfig.MaxRecords is 0.
const DefaultMaxRecords = 100000

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level      TraceLevel
	MaxRecords int // per record kind; further records are counted in Overflow
}

// DecisionTrace collects decision records for one engine.
// Thread-safety: NOT thread-safe; the owning engine serializes access.
type DecisionTrace struct {
	Config          TraceConfig
	Admissions      []AdmissionRecord
	Retransmissions []RetransmissionRecord
	Overflow        int
}

// NewDecisionTrace creates a DecisionTrace ready for recording.
func NewDecisionTrace(config TraceConfig) *DecisionTrace {
	if config.MaxRecords <= 0 {
		config.MaxRecords = DefaultMaxRecords
	}
	return &DecisionTrace{
		Config:          config,
		Admissions:      make([]AdmissionRecord, 0),
		Retransmissions: make([]RetransmissionRecord, 0),
	}
}

// Enabled reports whether records are being kept.
func (dt *DecisionTrace) Enabled() bool {
	return dt != nil && dt.Config.Level == TraceLevelDecisions
}

// RecordAdmission appends an admission decision record.
func (dt *DecisionTrace) RecordAdmission(record AdmissionRecord) {
	if !dt.Enabled() {
		return
	}
	if len(dt.Admissions) >= dt.Config.MaxRecords {
		dt.Overflow++
		return
	}
	dt.Admissions = append(dt.Admissions, record)
}

// RecordRetransmission appends a retransmission record.
func (dt *DecisionTrace) RecordRetransmission(record RetransmissionRecord) {
	if !dt.Enabled() {
		return
	}
	if len(dt.Retransmissions) >= dt.Config.MaxRecords {
		dt.Overflow++
		return
	}
	dt.Retransmissions = append(dt.Retransmissions, record)
}

// Reset discards every record, keeping the configuration.
func (dt *DecisionTrace) Reset() {
	dt.Admissions = dt.Admissions[:0]
	dt.Retransmissions = dt.Retransmissions[:0]
	dt.Overflow = 0
}
