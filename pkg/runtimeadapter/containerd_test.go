package runtimeadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRuntimeConfig(t *testing.T) {
	cfg, err := DecodeRuntimeConfig([]byte(`{"image":"alpine:3.19","env":["FOO=bar"],"resources":{"cpu_cores":0.5,"memory_bytes":134217728}}`))
	require.NoError(t, err)
	assert.Equal(t, "alpine:3.19", cfg.Image)
	assert.Equal(t, []string{"FOO=bar"}, cfg.Env)
	require.NotNil(t, cfg.Resources)
	assert.Equal(t, 0.5, cfg.Resources.CPUCores)
	assert.Equal(t, int64(134217728), cfg.Resources.MemoryBytes)
}

func TestDecodeRuntimeConfigRequiresImage(t *testing.T) {
	_, err := DecodeRuntimeConfig([]byte(`{"env":["FOO=bar"]}`))
	assert.Error(t, err)
}

func TestDecodeRuntimeConfigInvalidJSON(t *testing.T) {
	_, err := DecodeRuntimeConfig([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeRuntimeConfigWithMounts(t *testing.T) {
	cfg, err := DecodeRuntimeConfig([]byte(`{"image":"alpine:3.19","mounts":[
		{"source":"/data/sensor-calibration","destination":"/etc/calibration","read_only":true},
		{"source":"/var/run/edge-telemetry","destination":"/run/telemetry"}
	]}`))
	require.NoError(t, err)
	require.Len(t, cfg.Mounts, 2)
	assert.Equal(t, "/data/sensor-calibration", cfg.Mounts[0].Source)
	assert.Equal(t, "/etc/calibration", cfg.Mounts[0].Destination)
	assert.True(t, cfg.Mounts[0].ReadOnly)
	assert.False(t, cfg.Mounts[1].ReadOnly)
}
