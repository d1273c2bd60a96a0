package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/slicesim/slicesim/sim"
	"github.com/slicesim/slicesim/sim/orchestrator"
)

// ClickHouseConfig configures the slice metrics writer.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// DefaultMetricsTable is used when ClickHouseConfig.Table is empty.
const DefaultMetricsTable = "slice_metrics"

const createTableStatement = `
CREATE TABLE IF NOT EXISTS %s (
    Timestamp         DateTime64(3),
    RunID             String,
    Tick              Int64,
    Slice             LowCardinality(String),
    Failed            UInt8,
    Received          UInt32,
    Processed         UInt32,
    Dropped           UInt32,
    Preempted         UInt32,
    Aggregated        UInt32,
    Retransmitted     UInt32,
    Violations        UInt32,
    QueueLength       UInt32,
    Utilization       Float64,
    SuccessRate       Float64,
    ComplianceRate    Float64,
    LatencyMean       Float64,
    LatencyMax        Float64,
    ThroughputMean    Float64,
    DropRate          Float64,
    Jitter            Float64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (RunID, Slice, Tick);
`

// sliceRow is one row of the metrics table: one slice in one tick.
type sliceRow struct {
	Timestamp      time.Time
	RunID          string
	Tick           int64
	Slice          string
	Failed         uint8
	Received       uint32
	Processed      uint32
	Dropped        uint32
	Preempted      uint32
	Aggregated     uint32
	Retransmitted  uint32
	Violations     uint32
	QueueLength    uint32
	Utilization    float64
	SuccessRate    float64
	ComplianceRate float64
	LatencyMean    float64
	LatencyMax     float64
	ThroughputMean float64
	DropRate       float64
	Jitter         float64
}

func (r sliceRow) values() []any {
	return []any{
		r.Timestamp, r.RunID, r.Tick, r.Slice, r.Failed,
		r.Received, r.Processed, r.Dropped, r.Preempted, r.Aggregated, r.Retransmitted, r.Violations,
		r.QueueLength, r.Utilization, r.SuccessRate, r.ComplianceRate,
		r.LatencyMean, r.LatencyMax, r.ThroughputMean, r.DropRate, r.Jitter,
	}
}

// sliceRows flattens a snapshot into rows in merge order.
func sliceRows(snap orchestrator.Snapshot) []sliceRow {
	rows := make([]sliceRow, 0, len(snap.Slices))
	for _, slice := range sim.SliceOrder {
		res, ok := snap.Slices[slice]
		if !ok {
			continue
		}
		row := sliceRow{
			Timestamp:      snap.Timestamp,
			RunID:          snap.RunID,
			Tick:           snap.Tick,
			Slice:          string(slice),
			Received:       uint32(res.PacketsReceived),
			Processed:      uint32(res.PacketsProcessed),
			Dropped:        uint32(res.PacketsDropped),
			Preempted:      uint32(res.PacketsPreempted),
			Aggregated:     uint32(res.PacketsAggregated),
			Retransmitted:  uint32(res.PacketsRetransmitted),
			Violations:     uint32(res.QoSViolations),
			QueueLength:    uint32(res.QueueLength),
			Utilization:    res.Utilization,
			SuccessRate:    res.SuccessRate,
			ComplianceRate: res.QoSComplianceRate,
			LatencyMean:    res.Metrics.Latency.Mean,
			LatencyMax:     res.Metrics.Latency.Max,
			ThroughputMean: res.Metrics.Throughput.Mean,
			DropRate:       res.Metrics.DropRate,
			Jitter:         res.Metrics.Jitter,
		}
		if _, failed := snap.Failures[slice]; failed {
			row.Failed = 1
		}
		rows = append(rows, row)
	}
	return rows
}

// ClickHouseWriter appends per-slice metrics of every snapshot to a
// MergeTree table. It is an orchestrator.Subscriber.
type ClickHouseWriter struct {
	conn  driver.Conn
	table string
}

// NewClickHouseWriter connects and ensures the metrics table exists.
func NewClickHouseWriter(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseWriter, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = DefaultMetricsTable
	}
	if err := conn.Exec(ctx, fmt.Sprintf(createTableStatement, table)); err != nil {
		return nil, fmt.Errorf("creating table %s: %w", table, err)
	}
	logrus.Infof("connected to ClickHouse at %s:%d, writing to %s", cfg.Host, cfg.Port, table)
	return &ClickHouseWriter{conn: conn, table: table}, nil
}

func (w *ClickHouseWriter) Name() string { return "clickhouse" }

// Deliver inserts one row per slice in a single batch.
func (w *ClickHouseWriter) Deliver(ctx context.Context, snap orchestrator.Snapshot) error {
	rows := sliceRows(snap)
	if len(rows) == 0 {
		return nil
	}
	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO "+w.table)
	if err != nil {
		return fmt.Errorf("preparing batch: %w", err)
	}
	for _, row := range rows {
		if err := batch.Append(row.values()...); err != nil {
			return fmt.Errorf("appending %s row: %w", row.Slice, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending batch: %w", err)
	}
	return nil
}

func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}
