package injector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/cascade/internal/config"
	"github.com/zeusync/cascade/internal/core/particle/definition"
	"github.com/zeusync/cascade/internal/core/particle/distribution"
	"github.com/zeusync/cascade/internal/core/particle/module"
	"github.com/zeusync/cascade/internal/core/particle/snapshot"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Log.OutputPaths = []string{filepath.Join(t.TempDir(), "cascade.log")}
	cfg.Simulation.AllowAsyncTick = false
	return cfg
}

func TestInitializeAppDefaults(t *testing.T) {
	app, cleanup, err := InitializeApp(testConfig(t))
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, app.Logger)
	assert.NotNil(t, app.Bus)
	assert.Contains(t, app.Registry.Types(), "lifetime")
	assert.Nil(t, app.Tap)
	assert.Nil(t, app.Recorder)
	assert.Empty(t, app.Factory.sinks)
}

func TestFactoryRecordsFrames(t *testing.T) {
	cfg := testConfig(t)
	cfg.Replay.Path = filepath.Join(t.TempDir(), "run.replay")
	seed := uint64(9)
	cfg.Simulation.Seed = &seed
	cfg.Tap.Enabled = true

	app, cleanup, err := InitializeApp(cfg)
	require.NoError(t, err)
	require.NotNil(t, app.Tap)
	require.NotNil(t, app.Recorder)
	assert.Len(t, app.Factory.sinks, 2)

	req := definition.Required{}
	def := &definition.System{Name: "fx", Emitters: []*definition.Emitter{{
		Name: "sparks",
		LODs: []definition.LODLevel{{
			Required: &req,
			Spawn:    definition.Spawn{Rate: distribution.FloatSpec{Float: distribution.Constant(10)}},
		}},
	}}}
	require.NoError(t, def.Prepare(definition.PrepareOptions{Strict: true}))

	c := app.Factory.New(def)
	c.Activate(false)
	for i := 0; i < 4; i++ {
		require.NoError(t, c.Tick(0.5))
	}
	require.NoError(t, c.Close())
	assert.Equal(t, uint64(4), app.Recorder.Frames())
	assert.Equal(t, uint64(4), app.Tap.GetStats().Received)
	cleanup()

	f, err := os.Open(cfg.Replay.Path)
	require.NoError(t, err)
	defer f.Close()
	frames, err := snapshot.NewPlayer(f).All()
	require.NoError(t, err)
	require.Len(t, frames, 4)
	assert.Equal(t, 20, frames[3].ActiveParticles())
}

func TestFactoryLoadHonoursStrictness(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: fx
emitters:
  - name: sparks
    lods:
      - spawn: {rate: 5}
`), 0o600))

	cfg := testConfig(t)
	cfg.Run.Strict = true
	app, cleanup, err := InitializeApp(cfg)
	require.NoError(t, err)
	defer cleanup()

	_, err = app.Factory.Load(path, app.Registry)
	assert.Error(t, err, "a level without required settings is rejected")

	app.Factory.strict = false
	def, err := app.Factory.Load(path, app.Registry)
	require.NoError(t, err)
	assert.False(t, def.Emitters[0].Valid())
}

func TestFactoryRunsShippedDefinition(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.Strict = true
	app, cleanup, err := InitializeApp(cfg)
	require.NoError(t, err)
	defer cleanup()

	def, err := app.Factory.Load(filepath.Join("..", "..", "examples", "definitions", "fountain.yaml"), module.DefaultRegistry())
	require.NoError(t, err)

	c := app.Factory.New(def)
	c.Activate(false)
	for i := 0; i < 30; i++ {
		require.NoError(t, c.Tick(1.0/60))
		require.NoError(t, c.Finalize())
	}
	assert.Greater(t, c.NumActiveParticles(), 100)
	require.NoError(t, c.Close())
}
