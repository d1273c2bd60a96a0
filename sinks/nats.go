// Package sinks connects the orchestrator to external systems: snapshot
// subscribers for NATS and ClickHouse, and a Redis-backed RunStore.
package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/slicesim/slicesim/sim/orchestrator"
)

// NATSConfig configures the NATS snapshot publisher.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DefaultSubjectPrefix is used when NATSConfig.SubjectPrefix is empty.
const DefaultSubjectPrefix = "slicesim.snapshots"

// NATSPublisher publishes every snapshot as JSON on
// "<prefix>.<run id>". It is an orchestrator.Subscriber.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher connects to cfg.URL.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("slicesim"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.URL, err)
	}
	logrus.Infof("connected to NATS at %s", cfg.URL)
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

func (p *NATSPublisher) Name() string { return "nats" }

// Deliver publishes snap. The context is unused; nats buffers publishes
// and flushes asynchronously.
func (p *NATSPublisher) Deliver(_ context.Context, snap orchestrator.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return p.nc.Publish(subjectFor(p.prefix, snap.RunID), data)
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("draining NATS connection: %w", err)
	}
	logrus.Infof("NATS connection drained")
	return nil
}

func subjectFor(prefix, runID string) string {
	return prefix + "." + runID
}
