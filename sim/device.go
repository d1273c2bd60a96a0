package sim

import (
	"fmt"
	"sort"
	"time"
)

// DeviceRecord tracks one massive-device endpoint. Records are never deleted;
// staleness only clears Active.
type DeviceRecord struct {
	ID           string      `json:"id"`
	Class        DeviceClass `json:"class"`
	RegisteredAt time.Time   `json:"registered_at"`
	LastSeen     time.Time   `json:"last_seen"`
	PacketsSent  int64       `json:"packets_sent"`
	Active       bool        `json:"active"`
}

// DeviceSummary is a point-in-time view of the registry.
type DeviceSummary struct {
	Registered int                 `json:"registered"`
	Active     int                 `json:"active"`
	Limit      int                 `json:"limit"`
	ByClass    map[DeviceClass]int `json:"by_class"`
}

// DeviceRegistry is a capped set of DeviceRecords keyed by device id.
//
// Thread-safety: NOT thread-safe. Owned by a single Engine.
type DeviceRegistry struct {
	limit   int
	devices map[string]*DeviceRecord
}

// NewDeviceRegistry creates a registry admitting at most limit devices.
func NewDeviceRegistry(limit int) (*DeviceRegistry, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: device limit %d", ErrInvalidCapacity, limit)
	}
	return &DeviceRegistry{limit: limit, devices: make(map[string]*DeviceRecord)}, nil
}

// Resolve finds or creates the record for p's device and credits it with
// count packets. Returns false, without creating anything, when the registry
// is at its limit and the device is unseen.
func (r *DeviceRegistry) Resolve(p Packet, count int, now time.Time) (*DeviceRecord, bool) {
	rec, ok := r.devices[p.DeviceID]
	if !ok {
		if len(r.devices) >= r.limit {
			return nil, false
		}
		class := p.DeviceClass
		if class == "" {
			class = DeviceSensor
		}
		rec = &DeviceRecord{ID: p.DeviceID, Class: class, RegisteredAt: now}
		r.devices[p.DeviceID] = rec
	}
	rec.LastSeen = now
	rec.PacketsSent += int64(count)
	rec.Active = true
	return rec, true
}

// Get returns a copy of the record for id.
func (r *DeviceRegistry) Get(id string) (DeviceRecord, bool) {
	rec, ok := r.devices[id]
	if !ok {
		return DeviceRecord{}, false
	}
	return *rec, true
}

// Len returns the number of registered devices.
func (r *DeviceRegistry) Len() int {
	return len(r.devices)
}

// MarkInactive clears Active on every device not seen since cutoff and
// returns how many changed.
func (r *DeviceRegistry) MarkInactive(cutoff time.Time) int {
	n := 0
	for _, rec := range r.devices {
		if rec.Active && rec.LastSeen.Before(cutoff) {
			rec.Active = false
			n++
		}
	}
	return n
}

// Summary reports registry occupancy and the per-class breakdown.
func (r *DeviceRegistry) Summary() DeviceSummary {
	s := DeviceSummary{Registered: len(r.devices), Limit: r.limit, ByClass: make(map[DeviceClass]int)}
	for _, rec := range r.devices {
		s.ByClass[rec.Class]++
		if rec.Active {
			s.Active++
		}
	}
	return s
}

// IDs returns registered device ids in sorted order.
func (r *DeviceRegistry) IDs() []string {
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
