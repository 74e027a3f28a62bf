package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Simulation.AllowAsyncTick)
	assert.Equal(t, float32(1), cfg.Simulation.QualitySpawnRateScale)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
log:
  level: debug
  encoding: console
simulation:
  max_particles_per_emitter: 500
  quality_spawn_rate_scale: 0.5
  lod_bias: 1
  allow_async_tick: false
  seed: 42
run:
  definition: fx/sparks.yaml
  frame_time: 20ms
  frames: 300
tap:
  enabled: true
  every: 2
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 20*time.Millisecond, cfg.Run.FrameTime)
	assert.InDelta(t, 0.02, cfg.Run.FrameDelta(), 1e-6)
	require.NotNil(t, cfg.Simulation.Seed)
	assert.Equal(t, uint64(42), *cfg.Simulation.Seed)
	// untouched keys keep their defaults
	assert.Equal(t, "/frames", cfg.Tap.Path)
	assert.True(t, cfg.Simulation.GameWorld)

	sys := cfg.Simulation.SystemConfig()
	assert.False(t, sys.AllowAsyncTick)
	assert.Equal(t, 1, sys.LODBias)
	assert.Equal(t, 500, sys.Emitter.Spawn.MaxParticlesPerEmitter)
	assert.Equal(t, float32(0.5), sys.Emitter.Spawn.QualityScale)
	assert.True(t, sys.Emitter.GameWorld)
}

func TestParseEmptyKeepsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("simulation:\n  max_particles: 5\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative cap", func(c *Config) { c.Simulation.MaxParticlesPerEmitter = -1 }},
		{"negative quality", func(c *Config) { c.Simulation.QualitySpawnRateScale = -1 }},
		{"negative workers", func(c *Config) { c.Simulation.Workers = -2 }},
		{"zero frame time", func(c *Config) { c.Run.FrameTime = 0 }},
		{"tap without addr", func(c *Config) { c.Tap.Enabled, c.Tap.Addr = true, "" }},
		{"tap every zero", func(c *Config) { c.Tap.Enabled, c.Tap.Every = true, 0 }},
		{"watch without definition", func(c *Config) { c.Watch.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cascade.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  frames: 10\n"), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Run.Frames)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTapServerConfig(t *testing.T) {
	cfg := Default()
	cfg.Tap.Token = "secret"
	cfg.Tap.Every = 3
	srv := cfg.Tap.ServerConfig()
	assert.Equal(t, "127.0.0.1:8089", srv.ListenAddr)
	assert.Equal(t, "/frames", srv.Path)
	assert.Equal(t, 3, srv.Every)
	assert.Equal(t, "secret", srv.Token)
	assert.Equal(t, 64, srv.MaxClients)
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "examples", "cascade.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 16*time.Millisecond, cfg.Run.FrameTime)
	assert.Equal(t, "examples/definitions/fountain.yaml", cfg.Run.Definition)
	assert.Equal(t, 4, cfg.Simulation.Workers)
}
