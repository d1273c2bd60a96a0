package sim

import "time"

// MaxDetailedResults caps the per-packet detail carried by a BatchResult.
const MaxDetailedResults = 100

// PacketResult is the measured outcome of one serviced queue entry.
type PacketResult struct {
	PacketID    string  `json:"packet_id"`
	Priority    int     `json:"priority"`
	Count       int     `json:"count"` // >1 for aggregated entries
	Utilization float64 `json:"utilization"`
	Compliant   bool    `json:"compliant"`
	PacketMetrics
}

// BatchMetrics reduces the per-packet samples of one batch.
type BatchMetrics struct {
	Latency     Distribution `json:"latency"`
	Throughput  Distribution `json:"throughput"`
	DropRate    float64      `json:"drop_rate"`             // mean, percent
	Jitter      float64      `json:"jitter"`                // last sample
	Reliability float64      `json:"reliability,omitempty"` // mean, low-latency only
}

// BatchResult is the immutable outcome of one ProcessBatch call.
// Counts are per batch; cumulative figures live in EngineStatistics.
type BatchResult struct {
	Slice     SliceType `json:"slice"`
	Batch     int64     `json:"batch"`
	Timestamp time.Time `json:"timestamp"`

	PacketsReceived      int `json:"packets_received"`
	PacketsProcessed     int `json:"packets_processed"`
	PacketsDropped       int `json:"packets_dropped"`
	PacketsPreempted     int `json:"packets_preempted"` // subset of dropped
	PacketsAggregated    int `json:"packets_aggregated"`
	PacketsRetransmitted int `json:"packets_retransmitted"`
	PacketsUndeliverable int `json:"packets_undeliverable"`
	DeviceRejections     int `json:"device_rejections"` // subset of dropped
	QoSViolations        int `json:"qos_violations"`

	QueueLength   int     `json:"queue_length"`
	QueueCapacity int     `json:"queue_capacity"`
	Utilization   float64 `json:"utilization"`

	SuccessRate       float64 `json:"success_rate"`        // percent, [0, 100]
	QoSComplianceRate float64 `json:"qos_compliance_rate"` // percent, [0, 100]

	Metrics BatchMetrics   `json:"metrics"`
	Details []PacketResult `json:"details,omitempty"`
}

// EmptyResult is the contribution of a slice whose dispatch failed.
func EmptyResult(slice SliceType, now time.Time) *BatchResult {
	return &BatchResult{Slice: slice, Timestamp: now}
}
