package sim

import (
	"errors"
	"testing"
	"time"
)

func TestDeviceRegistry_Resolve_CreatesThenUpdates(t *testing.T) {
	// GIVEN an empty registry
	reg, err := NewDeviceRegistry(2)
	if err != nil {
		t.Fatal(err)
	}
	t0 := time.Unix(100, 0)
	t1 := t0.Add(time.Second)
	p := Packet{ID: "p1", DeviceID: "device_00001", DeviceClass: DeviceGateway}

	// WHEN the same device is resolved twice
	reg.Resolve(p, 1, t0)
	rec, ok := reg.Resolve(p, 3, t1)

	// THEN one record exists with accumulated packets and refreshed last-seen
	if !ok {
		t.Fatal("expected resolve to succeed")
	}
	if reg.Len() != 1 {
		t.Errorf("Len: got %d, want 1", reg.Len())
	}
	if rec.PacketsSent != 4 {
		t.Errorf("PacketsSent: got %d, want 4", rec.PacketsSent)
	}
	if !rec.RegisteredAt.Equal(t0) || !rec.LastSeen.Equal(t1) {
		t.Errorf("timestamps: registered %v last seen %v", rec.RegisteredAt, rec.LastSeen)
	}
	if rec.Class != DeviceGateway {
		t.Errorf("Class: got %s, want gateway", rec.Class)
	}
}

func TestDeviceRegistry_AtLimit_RejectsUnseenOnly(t *testing.T) {
	// GIVEN a registry at its limit of one device
	reg, _ := NewDeviceRegistry(1)
	now := time.Now()
	reg.Resolve(Packet{DeviceID: "a"}, 1, now)

	// WHEN an unseen and a known device are resolved
	_, okNew := reg.Resolve(Packet{DeviceID: "b"}, 1, now)
	_, okKnown := reg.Resolve(Packet{DeviceID: "a"}, 1, now)

	// THEN only the unseen device is rejected and nothing is created
	if okNew {
		t.Error("unseen device admitted past the limit")
	}
	if !okKnown {
		t.Error("known device rejected")
	}
	if _, ok := reg.Get("b"); ok {
		t.Error("rejected device was registered")
	}
}

func TestDeviceRegistry_MarkInactive_NeverDeletes(t *testing.T) {
	reg, _ := NewDeviceRegistry(10)
	old := time.Unix(0, 0)
	recent := time.Unix(1000, 0)
	reg.Resolve(Packet{DeviceID: "stale", DeviceClass: DeviceSensor}, 1, old)
	reg.Resolve(Packet{DeviceID: "fresh", DeviceClass: DeviceActuator}, 1, recent)

	n := reg.MarkInactive(time.Unix(500, 0))

	if n != 1 {
		t.Errorf("MarkInactive: got %d, want 1", n)
	}
	s := reg.Summary()
	if s.Registered != 2 || s.Active != 1 {
		t.Errorf("summary: registered %d active %d, want 2 and 1", s.Registered, s.Active)
	}
	if s.ByClass[DeviceSensor] != 1 || s.ByClass[DeviceActuator] != 1 {
		t.Errorf("by class: %v", s.ByClass)
	}
	if ids := reg.IDs(); len(ids) != 2 || ids[0] != "fresh" {
		t.Errorf("IDs: got %v", ids)
	}
}

func TestNewDeviceRegistry_NegativeLimit(t *testing.T) {
	if _, err := NewDeviceRegistry(-1); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("expected ErrInvalidCapacity, got %v", err)
	}
}
