package sim

import (
	"fmt"
	"time"
)

// SliceType names one of the three traffic classes a Packet belongs to.
type SliceType string

const (
	// SliceHighThroughput carries bulk traffic with moderate latency tolerance.
	SliceHighThroughput SliceType = "high-throughput"
	// SliceLowLatency carries ultra-reliable traffic with strict latency targets.
	SliceLowLatency SliceType = "low-latency"
	// SliceMassiveDevice carries small, frequent packets from large device populations.
	SliceMassiveDevice SliceType = "massive-device"
)

// SliceOrder is the fixed order in which per-slice results are merged.
// Totals computed in this order are deterministic for a given seed.
var SliceOrder = []SliceType{SliceHighThroughput, SliceLowLatency, SliceMassiveDevice}

// IsValidSliceType reports whether s names a known slice.
func IsValidSliceType(s SliceType) bool {
	switch s {
	case SliceHighThroughput, SliceLowLatency, SliceMassiveDevice:
		return true
	}
	return false
}

// Priority bounds. Higher values are more important.
const (
	MinPriority = 0
	MaxPriority = 10
)

// DeviceClass is the hardware class of a massive-device endpoint.
type DeviceClass string

const (
	DeviceSensor   DeviceClass = "sensor"
	DeviceActuator DeviceClass = "actuator"
	DeviceGateway  DeviceClass = "gateway"
)

// DeviceClasses lists device classes in assignment order.
var DeviceClasses = []DeviceClass{DeviceSensor, DeviceActuator, DeviceGateway}

// Packet is a single synthetic unit of traffic. It is created by the
// synthesizer, consumed exactly once by a slice engine and never mutated.
type Packet struct {
	ID            string      `json:"id"`
	Slice         SliceType   `json:"slice"`
	Size          int         `json:"size"` // bytes
	Priority      int         `json:"priority"`
	SrcAddr       string      `json:"src_addr"`
	DstAddr       string      `json:"dst_addr"`
	Bandwidth     float64     `json:"bandwidth"`      // required Mbps
	LatencyReq    float64     `json:"latency_req"`    // ms
	LossTolerance float64     `json:"loss_tolerance"` // percent
	DeviceID      string      `json:"device_id,omitempty"`
	DeviceClass   DeviceClass `json:"device_class,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

func (p Packet) String() string {
	return fmt.Sprintf("Packet: (ID: %s, Slice: %s, Size: %d, Priority: %d)", p.ID, p.Slice, p.Size, p.Priority)
}
