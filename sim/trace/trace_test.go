package trace

import (
	"testing"
)

func TestDecisionTrace_RecordAdmission_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for decisions
	dt := NewDecisionTrace(TraceConfig{Level: TraceLevelDecisions})

	// WHEN an admission record is recorded
	dt.RecordAdmission(AdmissionRecord{
		PacketID: "pkt_000000001",
		Slice:    "low-latency",
		Priority: 9,
		Outcome:  "admitted",
		Admitted: true,
	})

	// THEN the trace contains one admission record with correct data
	if len(dt.Admissions) != 1 {
		t.Fatalf("expected 1 admission, got %d", len(dt.Admissions))
	}
	if dt.Admissions[0].PacketID != "pkt_000000001" {
		t.Errorf("expected packet ID pkt_000000001, got %s", dt.Admissions[0].PacketID)
	}
	if !dt.Admissions[0].Admitted {
		t.Error("expected admitted=true")
	}
}

func TestDecisionTrace_LevelNone_RecordsNothing(t *testing.T) {
	// GIVEN a trace with tracing disabled
	dt := NewDecisionTrace(TraceConfig{Level: TraceLevelNone})

	// WHEN records are offered
	dt.RecordAdmission(AdmissionRecord{PacketID: "p1", Admitted: true})
	dt.RecordRetransmission(RetransmissionRecord{PacketID: "p1", Requeued: true})

	// THEN nothing is stored
	if len(dt.Admissions) != 0 || len(dt.Retransmissions) != 0 {
		t.Errorf("expected no records, got %d admissions and %d retransmissions",
			len(dt.Admissions), len(dt.Retransmissions))
	}
}

func TestDecisionTrace_NilTrace_IsDisabled(t *testing.T) {
	var dt *DecisionTrace
	if dt.Enabled() {
		t.Error("nil trace must report disabled")
	}
	// Recording into a nil trace must not panic.
	dt.RecordAdmission(AdmissionRecord{PacketID: "p1"})
}

func TestDecisionTrace_MaxRecords_CountsOverflow(t *testing.T) {
	// GIVEN a trace capped at two records per kind
	dt := NewDecisionTrace(TraceConfig{Level: TraceLevelDecisions, MaxRecords: 2})

	// WHEN three admissions are recorded
	for _, id := range []string{"a", "b", "c"} {
		dt.RecordAdmission(AdmissionRecord{PacketID: id, Admitted: true})
	}

	// THEN the first two are kept and the third is counted as overflow
	if len(dt.Admissions) != 2 {
		t.Fatalf("expected 2 admissions, got %d", len(dt.Admissions))
	}
	if dt.Admissions[0].PacketID != "a" || dt.Admissions[1].PacketID != "b" {
		t.Error("admission order not preserved")
	}
	if dt.Overflow != 1 {
		t.Errorf("expected overflow 1, got %d", dt.Overflow)
	}
}

func TestDecisionTrace_Reset_ClearsRecords(t *testing.T) {
	dt := NewDecisionTrace(TraceConfig{Level: TraceLevelDecisions, MaxRecords: 1})
	dt.RecordAdmission(AdmissionRecord{PacketID: "a"})
	dt.RecordAdmission(AdmissionRecord{PacketID: "b"})
	dt.RecordRetransmission(RetransmissionRecord{PacketID: "a"})

	dt.Reset()

	if len(dt.Admissions) != 0 || len(dt.Retransmissions) != 0 || dt.Overflow != 0 {
		t.Errorf("expected empty trace after reset, got %+v", dt)
	}
}

func TestIsValidTraceLevel_ValidLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"none", true},
		{"decisions", true},
		{"", true}, // empty defaults to none
		{"detailed", false},
		{"foobar", false},
		{"NONE", false}, // case-sensitive
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := IsValidTraceLevel(tt.level); got != tt.valid {
				t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tt.level, got, tt.valid)
			}
		})
	}
}
