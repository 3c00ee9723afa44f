package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "decay", cfg.Model)
	assert.Equal(t, "rk45", cfg.Method)
	assert.Greater(t, cfg.Samples, 1)
	assert.Greater(t, cfg.RTol, 0.0)
	assert.Greater(t, cfg.ATol, 0.0)
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")

	want := DefaultConfig()
	want.Model = "pendulum"
	want.Method = "rk23"
	want.BackwardMethod = "rk45"
	want.T1 = 4.0
	want.InitState = []float64{0.3, 0.0}
	want.Params = map[string]float64{"g": 9.81, "l": 2.0, "damping": 0.05}

	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sparse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: lorenz\n"), 0644))

	// A sparse file keeps defaults for everything it does not mention.
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lorenz", got.Model)
	assert.Equal(t, DefaultMethod, got.Method)
	assert.Equal(t, DefaultSamples, got.Samples)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestBackwardOrForward(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, cfg.Method, cfg.BackwardOrForward())

	cfg.BackwardMethod = "rk4"
	assert.Equal(t, "rk4", cfg.BackwardOrForward())
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("pendulum", "small")
	require.NotNil(t, cfg)
	assert.Equal(t, []float64{0.2, 0.0}, cfg.InitState)

	assert.Nil(t, GetPreset("pendulum", "nonexistent"))
	assert.Nil(t, GetPreset("nonexistent", "small"))
}

func TestListPresets(t *testing.T) {
	assert.NotEmpty(t, ListPresets("decay"))
	assert.Nil(t, ListPresets("nonexistent"))
}
