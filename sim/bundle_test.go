package sim

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_OverridesDefaults(t *testing.T) {
	// GIVEN a YAML document overriding the seed and loop timings
	yamlData := `
seed: 7
loop:
  tick_interval: 50ms
  slice_timeout: 200ms
  snapshot_history: 10
traffic:
  min_volume: 100
  max_volume: 5000
  min_duration: 10
  max_duration: 60
  patterns: [constant, burst]
`
	// WHEN parsed
	cfg, err := ParseConfig([]byte(yamlData))

	// THEN overrides apply and untouched sections keep defaults
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 50*time.Millisecond, cfg.Loop.TickInterval)
	assert.Equal(t, 200*time.Millisecond, cfg.Loop.SliceTimeout)
	assert.Equal(t, []string{"constant", "burst"}, cfg.Traffic.Patterns)
	assert.Len(t, cfg.Slices, 3)
}

func TestParseConfig_EmptyDocument_YieldsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Seed, cfg.Seed)
}

func TestParseConfig_UnknownField_Rejected(t *testing.T) {
	_, err := ParseConfig([]byte("seeed: 3\n"))
	assert.Error(t, err, "typo'd key must fail strict parsing")
}

func TestParseConfig_BadShares_RejectedAtLoad(t *testing.T) {
	// GIVEN a slice table whose shares sum to 0.5
	yamlData := `
slices:
  - slice: high-throughput
    size: {min: 500, max: 2000}
    priority: {min: 3, max: 6}
    bandwidth: {min: 100, max: 1000}
    latency: {min: 50, max: 200}
    loss_tolerance: {min: 0.1, max: 1.0}
    share: 0.2
    queue_capacity: 100
  - slice: low-latency
    size: {min: 50, max: 300}
    priority: {min: 7, max: 9}
    bandwidth: {min: 10, max: 100}
    latency: {min: 1, max: 10}
    loss_tolerance: {min: 0.001, max: 0.01}
    share: 0.15
    queue_capacity: 100
    overflow: preempt
  - slice: massive-device
    size: {min: 100, max: 500}
    priority: {min: 1, max: 3}
    bandwidth: {min: 1, max: 50}
    latency: {min: 100, max: 1000}
    loss_tolerance: {min: 1.0, max: 5.0}
    share: 0.15
    queue_capacity: 100
`
	// WHEN parsed
	_, err := ParseConfig([]byte(yamlData))

	// THEN the configuration is rejected
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slicesim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: 99\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.Seed)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
