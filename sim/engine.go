package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/slicesim/slicesim/sim/trace"
)

// recentWindow is how many BatchResults Statistics reports.
const recentWindow = 10

// reliabilityWindow is how many BatchResults feed the mean reliability index.
const reliabilityWindow = 5

// EngineStatistics is a cumulative, point-in-time view of an Engine.
type EngineStatistics struct {
	Slice   SliceType `json:"slice"`
	Batches int64     `json:"batches"`

	TotalReceived         int64 `json:"total_received"`
	TotalProcessed        int64 `json:"total_processed"`
	TotalDropped          int64 `json:"total_dropped"`
	TotalPreempted        int64 `json:"total_preempted"`
	TotalAggregated       int64 `json:"total_aggregated"`
	TotalRetransmitted    int64 `json:"total_retransmitted"`
	TotalUndeliverable    int64 `json:"total_undeliverable"`
	TotalDeviceRejections int64 `json:"total_device_rejections"`
	QoSViolations         int64 `json:"qos_violations"`

	QueueLength   int     `json:"queue_length"`
	QueueCapacity int     `json:"queue_capacity"`
	Utilization   float64 `json:"utilization"`

	SuccessRate       float64 `json:"success_rate"`
	QoSComplianceRate float64 `json:"qos_compliance_rate"`
	Reliability       float64 `json:"reliability,omitempty"`

	Thresholds Thresholds          `json:"thresholds"`
	Devices    *DeviceSummary      `json:"devices,omitempty"`
	Trace      *trace.TraceSummary `json:"trace,omitempty"`
	Recent     []BatchResult       `json:"recent"`
}

// Engine is one slice's QoS engine: a bounded admission queue, an overflow
// policy, synthetic metric sampling and optional device registry and
// redundancy cache.
//
// Thread-safety: ProcessBatch, Statistics and Reset serialize on an internal
// mutex, so at most one call mutates engine state at a time.
type Engine struct {
	mu sync.Mutex

	cfg        SliceConfig
	model      MetricModel
	thresholds Thresholds
	policy     OverflowPolicy
	rng        *rand.Rand
	now        func() time.Time

	queue      *AdmissionQueue
	devices    *DeviceRegistry  // nil unless DeviceLimit > 0
	redundancy *RedundancyCache // nil unless RedundancyCache > 0
	trace      *trace.DecisionTrace
	history    *Ring[BatchResult]

	totals          EngineStatistics
	lastLatency     float64
	lastUtilization float64
}

// NewEngine builds an engine for one slice. The only failures are
// configuration errors: an invalid profile or a negative capacity.
func NewEngine(cfg SliceConfig, rng *rand.Rand) (*Engine, error) {
	if rng == nil {
		return nil, errors.New("NewEngine: rng must not be nil")
	}
	if err := cfg.SliceProfile.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	historySize := cfg.HistorySize
	if historySize == 0 {
		historySize = DefaultHistorySize
	}
	model := NewMetricModel(cfg.Slice)
	e := &Engine{
		cfg:        cfg,
		model:      model,
		thresholds: model.Thresholds(),
		policy:     NewOverflowPolicy(cfg.Overflow, cfg.PreemptThreshold),
		rng:        rng,
		now:        time.Now,
		queue:      NewAdmissionQueue(cfg.QueueCapacity),
		history:    NewRing[BatchResult](historySize),
	}
	if cfg.DeviceLimit > 0 {
		devices, err := NewDeviceRegistry(cfg.DeviceLimit)
		if err != nil {
			return nil, err
		}
		e.devices = devices
	}
	if cfg.RedundancyCache > 0 {
		e.redundancy = NewRedundancyCache(cfg.RedundancyCache)
	}
	if cfg.Trace {
		e.trace = trace.NewDecisionTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
	}
	return e, nil
}

// Slice returns the slice this engine serves.
func (e *Engine) Slice() SliceType {
	return e.cfg.Slice
}

// Thresholds returns the slice's fixed QoS targets.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// ProcessBatch admits packets, samples metrics for every admitted entry and
// returns the reduced result. Overflow is a counted outcome, never an error.
func (e *Engine) ProcessBatch(packets []Packet) *BatchResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totals.Batches++
	now := e.now()
	res := &BatchResult{
		Slice:           e.cfg.Slice,
		Batch:           e.totals.Batches,
		Timestamp:       now,
		PacketsReceived: len(packets),
		QueueCapacity:   e.queue.Cap(),
	}

	e.service()

	entries := e.aggregate(packets, res)
	var latencies, throughputs, dropRates, reliabilities []float64
	for _, entry := range entries {
		if !e.admitEntry(entry, res, now) {
			continue
		}

		u := e.queue.Utilization()
		m := e.model.Sample(e.rng, u, entry.Packet.Size, e.lastLatency)
		compliant := e.thresholds.Compliant(m)

		res.PacketsProcessed++
		if !compliant {
			res.QoSViolations++
		}
		if len(res.Details) < MaxDetailedResults {
			res.Details = append(res.Details, PacketResult{
				PacketID:      entry.Packet.ID,
				Priority:      entry.Packet.Priority,
				Count:         entry.Count,
				Utilization:   u,
				Compliant:     compliant,
				PacketMetrics: m,
			})
		}
		latencies = append(latencies, m.Latency)
		throughputs = append(throughputs, m.Throughput)
		dropRates = append(dropRates, m.DropRate)
		if m.Reliability > 0 {
			reliabilities = append(reliabilities, m.Reliability)
		}
		e.lastLatency = m.Latency
		e.lastUtilization = u
		res.Metrics.Jitter = m.Jitter

		if e.redundancy != nil && !compliant {
			e.retransmit(entry.Packet, res)
		}
	}

	res.QueueLength = e.queue.Len()
	res.Utilization = e.queue.Utilization()
	res.Metrics.Latency = NewDistribution(latencies)
	res.Metrics.Throughput = NewDistribution(throughputs)
	res.Metrics.DropRate = meanOf(dropRates)
	res.Metrics.Reliability = meanOf(reliabilities)
	res.SuccessRate = rate(int64(res.PacketsProcessed), int64(res.PacketsDropped))
	res.QoSComplianceRate = rate(int64(res.PacketsProcessed), int64(res.QoSViolations))

	e.accumulate(res)
	e.history.Append(*res)

	logrus.Debugf("[%s] batch %d: received=%d processed=%d dropped=%d violations=%d queue=%d/%d",
		e.cfg.Slice, res.Batch, res.PacketsReceived, res.PacketsProcessed, res.PacketsDropped,
		res.QoSViolations, res.QueueLength, res.QueueCapacity)
	return res
}

// service drains up to ServiceRate entries from the queue head.
func (e *Engine) service() {
	for i := 0; i < e.cfg.ServiceRate; i++ {
		if _, ok := e.queue.PopFront(); !ok {
			return
		}
	}
}

// aggregate merges packets sharing a device id into one entry per device,
// keeping the first packet's identity and summing sizes. Packets without a
// device id, or all packets when aggregation is off, pass through unchanged.
func (e *Engine) aggregate(packets []Packet, res *BatchResult) []QueueEntry {
	entries := make([]QueueEntry, 0, len(packets))
	if !e.cfg.Aggregate {
		for _, p := range packets {
			entries = append(entries, QueueEntry{Packet: p, Count: 1})
		}
		return entries
	}
	index := make(map[string]int)
	for _, p := range packets {
		if p.DeviceID == "" {
			entries = append(entries, QueueEntry{Packet: p, Count: 1})
			continue
		}
		if i, ok := index[p.DeviceID]; ok {
			entries[i].Packet.Size += p.Size
			entries[i].Count++
			res.PacketsAggregated++
			continue
		}
		index[p.DeviceID] = len(entries)
		entries = append(entries, QueueEntry{Packet: p, Count: 1})
	}
	return entries
}

// admitEntry registers the entry's device, if tracked, and runs admission.
// Returns true when the entry entered the queue.
func (e *Engine) admitEntry(entry QueueEntry, res *BatchResult, now time.Time) bool {
	if e.devices != nil && entry.Packet.DeviceID != "" {
		if _, ok := e.devices.Resolve(entry.Packet, entry.Count, now); !ok {
			res.PacketsDropped++
			res.DeviceRejections++
			e.recordAdmission(entry, RejectedDeviceLimit, nil, "device registry full")
			logrus.Debugf("[%s] device registry full (%d), rejecting %s from %s",
				e.cfg.Slice, e.devices.Len(), entry.Packet.ID, entry.Packet.DeviceID)
			return false
		}
	}

	outcome, evicted, reason := admit(e.queue, e.policy, entry)
	e.recordAdmission(entry, outcome, evicted, reason)
	if !outcome.IsAdmitted() {
		res.PacketsDropped++
		logrus.Debugf("[%s] %s: dropping %s (priority %d)", e.cfg.Slice, reason, entry.Packet.ID, entry.Packet.Priority)
		return false
	}
	if evicted != nil {
		res.PacketsDropped++
		res.PacketsPreempted++
		logrus.Debugf("[%s] %s evicted by %s", e.cfg.Slice, evicted.Packet.ID, entry.Packet.ID)
	}
	if e.redundancy != nil {
		e.redundancy.Put(entry.Packet)
	}
	return true
}

// retransmit re-enqueues the cached copy of a packet that missed its targets.
// A failed attempt is counted as undeliverable; the batch carries on.
func (e *Engine) retransmit(p Packet, res *BatchResult) {
	cached, ok := e.redundancy.Take(p.ID)
	reason := ""
	switch {
	case !ok:
		reason = "no redundant copy"
	case !e.queue.Push(QueueEntry{Packet: cached, Count: 1}):
		reason = "queue full"
	}
	if reason != "" {
		res.PacketsUndeliverable++
		logrus.Warnf("[%s] retransmission of %s undeliverable: %s", e.cfg.Slice, p.ID, reason)
	} else {
		res.PacketsRetransmitted++
	}
	if e.trace.Enabled() {
		e.trace.RecordRetransmission(trace.RetransmissionRecord{
			PacketID: p.ID,
			Slice:    string(e.cfg.Slice),
			Batch:    e.totals.Batches,
			Requeued: reason == "",
			Reason:   reason,
		})
	}
}

func (e *Engine) recordAdmission(entry QueueEntry, outcome Outcome, evicted *QueueEntry, reason string) {
	if !e.trace.Enabled() {
		return
	}
	rec := trace.AdmissionRecord{
		PacketID: entry.Packet.ID,
		Slice:    string(e.cfg.Slice),
		Priority: entry.Packet.Priority,
		Batch:    e.totals.Batches,
		Outcome:  outcome.String(),
		Admitted: outcome.IsAdmitted(),
		Reason:   reason,
	}
	if evicted != nil {
		rec.EvictedID = evicted.Packet.ID
	}
	e.trace.RecordAdmission(rec)
}

func (e *Engine) accumulate(res *BatchResult) {
	t := &e.totals
	t.TotalReceived += int64(res.PacketsReceived)
	t.TotalProcessed += int64(res.PacketsProcessed)
	t.TotalDropped += int64(res.PacketsDropped)
	t.TotalPreempted += int64(res.PacketsPreempted)
	t.TotalAggregated += int64(res.PacketsAggregated)
	t.TotalRetransmitted += int64(res.PacketsRetransmitted)
	t.TotalUndeliverable += int64(res.PacketsUndeliverable)
	t.TotalDeviceRejections += int64(res.DeviceRejections)
	t.QoSViolations += int64(res.QoSViolations)
}

// Statistics returns cumulative counters, current queue state and the most
// recent BatchResults.
func (e *Engine) Statistics() EngineStatistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.totals
	s.Slice = e.cfg.Slice
	s.QueueLength = e.queue.Len()
	s.QueueCapacity = e.queue.Cap()
	s.Utilization = e.lastUtilization
	s.SuccessRate = rate(s.TotalProcessed, s.TotalDropped)
	s.QoSComplianceRate = rate(s.TotalProcessed, s.QoSViolations)
	s.Thresholds = e.thresholds
	s.Recent = e.history.Last(recentWindow)
	if e.thresholds.MinReliability > 0 {
		s.Reliability = e.meanReliability()
	}
	if e.devices != nil {
		summary := e.devices.Summary()
		s.Devices = &summary
	}
	if e.trace.Enabled() {
		s.Trace = trace.Summarize(e.trace)
	}
	return s
}

// meanReliability averages the reliability index over the newest batches
// that serviced at least one packet. Returns 0 when there are none.
func (e *Engine) meanReliability() float64 {
	var values []float64
	for _, r := range e.history.Last(reliabilityWindow) {
		if r.PacketsProcessed > 0 {
			values = append(values, r.Metrics.Reliability)
		}
	}
	return meanOf(values)
}

// ExpireDevices marks devices not seen since cutoff inactive.
// Returns 0 when the engine has no device registry.
func (e *Engine) ExpireDevices(cutoff time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.devices == nil {
		return 0
	}
	return e.devices.MarkInactive(cutoff)
}

// Reset clears the queue, counters, history, devices and caches.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue.Reset()
	e.history.Reset()
	e.totals = EngineStatistics{}
	e.lastLatency = 0
	e.lastUtilization = 0
	if e.devices != nil {
		e.devices, _ = NewDeviceRegistry(e.cfg.DeviceLimit)
	}
	if e.redundancy != nil {
		e.redundancy.Reset()
	}
	if e.trace != nil {
		e.trace.Reset()
	}
	logrus.Infof("[%s] engine reset", e.cfg.Slice)
}

func (e *Engine) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fmt.Sprintf("Engine(%s, queue=%d/%d)", e.cfg.Slice, e.queue.Len(), e.queue.Cap())
}
