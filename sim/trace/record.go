// Package trace provides decision-trace recording for slice admission analysis.
// This package has no dependencies on sim/ or its sub-packages; it stores pure data types.
package trace

// AdmissionRecord captures a single admission decision made by a slice engine.
type AdmissionRecord struct {
	PacketID  string `json:"packet_id"`
	Slice     string `json:"slice"`
	Priority  int    `json:"priority"`
	Batch     int64  `json:"batch"`
	Outcome   string `json:"outcome"` // admitted, preempted, queue-full, device-limit
	Admitted  bool   `json:"admitted"`
	Reason    string `json:"reason,omitempty"`
	EvictedID string `json:"evicted_id,omitempty"` // set when admission displaced a resident
}

// RetransmissionRecord captures a retransmission attempt for a packet that
// missed its QoS targets.
type RetransmissionRecord struct {
	PacketID string `json:"packet_id"`
	Slice    string `json:"slice"`
	Batch    int64  `json:"batch"`
	Requeued bool   `json:"requeued"`
	Reason   string `json:"reason,omitempty"`
}
