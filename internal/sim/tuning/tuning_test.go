package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mobsim/internal/sim/agent"
)

func TestShippedFileMatchesDefaults(t *testing.T) {
	got, err := Load("../../../configs/tuning.yaml")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got)
	assert.Equal(t, agent.DefaultParams(), got.AgentParams())
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(p, []byte("despawn:\n  far_radius: 96\n"), 0o644))
	got, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 96.0, got.Despawn.FarRadius)
	assert.Equal(t, 32.0, got.Despawn.NearRadius)
	assert.Equal(t, 20, got.TickRateHz)
	assert.Equal(t, 96.0, got.AgentParams().DespawnFarRadius)
}

func TestValidate(t *testing.T) {
	bad := Defaults()
	bad.TickRateHz = 0
	bad.Despawn.NearRadius = 500
	bad.Despawn.HookSampleMask = 30
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tick_rate_hz")
	assert.Contains(t, err.Error(), "near_radius")
	assert.Contains(t, err.Error(), "hook_sample_mask")

	p := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(p, []byte("difficulty: 9\n"), 0o644))
	_, err = Load(p)
	assert.ErrorContains(t, err, "difficulty")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
