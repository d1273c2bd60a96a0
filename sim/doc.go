// Package sim provides the slice engines and the data model of the network
// slice simulator.
//
// # Reading Guide
//
// Start with these files to understand one slice's processing path:
//   - packet.go: SliceType, Packet and the fixed SliceOrder used when merging
//   - admission.go: AdmissionQueue with drop and preempt overflow policies
//   - engine.go: ProcessBatch, which admits, services and measures one batch
//
// # Architecture
//
// The sim package holds the per-slice core; the run loop and its plumbing
// live in sub-packages:
//   - sim/workload/: traffic patterns and the packet Synthesizer
//   - sim/orchestrator/: run state machine, tick loop, snapshot publishing
//   - sim/rpc/: gRPC transport so an Engine can run out of process
//   - sim/trace/: admission and retransmission decision traces
//
// # Key Types
//
//   - SliceProfile, SliceConfig, Config: immutable configuration, validated at load
//   - MetricModel: per-slice latency/throughput/jitter sampling and Thresholds
//   - DeviceRegistry: massive-device registration and aggregation
//   - RedundancyCache: low-latency retransmission of QoS-violating packets
//   - BatchResult, EngineStatistics: per-batch and cumulative engine output
//   - PartitionedRNG: one deterministic stream per engine and the synthesizer
//
// An Engine serializes its own calls. Its queue, registry and cache are owned
// by it and never shared.
package sim
