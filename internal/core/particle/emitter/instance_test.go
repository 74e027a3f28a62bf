package emitter

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zeusync/cascade/internal/core/observability/log"
	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/burst"
	"github.com/zeusync/cascade/internal/core/particle/definition"
	"github.com/zeusync/cascade/internal/core/particle/distribution"
	"github.com/zeusync/cascade/internal/core/particle/event"
	"github.com/zeusync/cascade/internal/core/particle/module"
)

type level struct {
	req     definition.Required
	rate    float32
	bursts  []burst.Entry
	modules []module.Module
}

func build(t *testing.T, maxActive int, levels ...level) *definition.Emitter {
	t.Helper()
	def := &definition.Emitter{Name: "sparks", MaxActive: maxActive}
	for _, l := range levels {
		req := l.req
		def.LODs = append(def.LODs, definition.LODLevel{
			Required: &req,
			Spawn: definition.Spawn{
				Rate:   distribution.FloatSpec{Float: distribution.Constant(l.rate)},
				Bursts: l.bursts,
			},
			Modules: l.modules,
		})
	}
	require.NoError(t, def.Prepare(definition.PrepareOptions{Strict: true}))
	return def
}

func seeded() Option {
	return WithRand(rand.New(rand.NewPCG(7, 11)))
}

func assertIndexInvariant(t *testing.T, e *Instance) {
	t.Helper()
	require.LessOrEqual(t, e.NumActiveParticles(), e.Capacity())
	seen := make(map[int32]bool)
	for _, slot := range e.buf.Indices() {
		require.GreaterOrEqual(t, slot, int32(0))
		require.Less(t, int(slot), e.Capacity())
		require.False(t, seen[slot], "slot %d listed twice", slot)
		seen[slot] = true
	}
}

func TestContinuousEmitterGrowsWithRate(t *testing.T) {
	def := build(t, 100, level{rate: 10})
	e := New(def, seeded())

	for i := 0; i < 5; i++ {
		e.Tick(1.0, false)
		assertIndexInvariant(t, e)
	}
	assert.Equal(t, 50, e.NumActiveParticles())
	assert.Equal(t, uint64(50), e.Stats().Spawned)
	assert.Equal(t, StateTicking, e.State())
	assert.False(t, e.HasCompleted())
}

func TestBurstOnlyEmitterFiresOncePerLoop(t *testing.T) {
	for _, dt := range []float32{0.25, 1.0} {
		def := build(t, 0, level{
			req:    definition.Required{Duration: 1, Loops: 3},
			bursts: []burst.Entry{{Time: 0, Count: 20}},
		})
		e := New(def, seeded())

		steps := int(3 / dt)
		for i := 0; i < steps; i++ {
			e.Tick(dt, false)
		}
		stats := e.Stats()
		assert.Equal(t, uint64(60), stats.Spawned, "dt=%v", dt)
		assert.Equal(t, uint64(3), stats.Bursts, "dt=%v", dt)
		assert.Equal(t, 3, e.LoopCount())

		// further ticks past the last loop spawn nothing
		e.Tick(dt, false)
		assert.Equal(t, uint64(60), e.Stats().Spawned)
	}
}

func TestBurstsStopAfterFinalLoop(t *testing.T) {
	for _, dt := range []float32{0.016, 0.25, 0.3, 0.7, 1.0} {
		def := build(t, 0, level{
			req:     definition.Required{Duration: 1, Loops: 3},
			bursts:  []burst.Entry{{Time: 0, Count: 20}},
			modules: []module.Module{module.NewLifetime(distribution.Constant(0.5))},
		})
		e := New(def, seeded())

		steps := int(8 / dt)
		for i := 0; i < steps; i++ {
			e.Tick(dt, false)
		}
		stats := e.Stats()
		assert.Equal(t, uint64(60), stats.Spawned, "dt=%v", dt)
		assert.Equal(t, uint64(3), stats.Bursts, "dt=%v", dt)
		assert.True(t, e.HasCompleted(), "dt=%v", dt)
	}
}

func TestBurstNeverRepeatsWithinLoop(t *testing.T) {
	def := build(t, 0, level{
		req:    definition.Required{Duration: 2, Loops: 2},
		bursts: []burst.Entry{{Time: 0.5, Count: 4}},
	})
	e := New(def, seeded())
	for i := 0; i < 400; i++ {
		e.Tick(0.01, false)
	}
	assert.Equal(t, uint64(2), e.Stats().Bursts)
	assert.Equal(t, uint64(8), e.Stats().Spawned)
}

func TestCapacityClampStopsAtCap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := log.Wrap(zap.New(core), log.LevelDebug)

	def := build(t, 5, level{rate: 1000})
	e := New(def, seeded(), WithLogger(logger))
	e.Tick(1.0, false)

	assert.Equal(t, 5, e.NumActiveParticles())
	assert.Equal(t, 5, e.Capacity())
	assert.Equal(t, uint64(1), e.Stats().Clamped)
	assert.Equal(t, 1, logs.FilterMessage("particle cap reached, spawns clamped").Len())
}

func TestResizeCeilingSkipsSpawn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxParticleResize = 8
	def := build(t, 0, level{rate: 20})
	e := New(def, seeded(), WithConfig(cfg))

	e.Tick(0.25, false)
	assert.Equal(t, 5, e.NumActiveParticles())
	e.Tick(0.25, false)
	// 10 would not fit under the ceiling of 8
	assert.Equal(t, 5, e.NumActiveParticles())
	assert.Equal(t, uint64(1), e.Stats().ResizeFailures)
	assert.LessOrEqual(t, e.Capacity(), 8)
}

func TestSpawnRateContinuity(t *testing.T) {
	def := build(t, 0, level{rate: 30})
	e := New(def, seeded())

	steps := []float32{0.016, 0.033, 0.008}
	var total float64
	for i := 0; i < 300; i++ {
		dt := steps[i%len(steps)]
		e.Tick(dt, false)
		total += float64(dt)
	}
	want := math.Floor(30 * total)
	assert.InDelta(t, want, float64(e.Stats().Spawned), 1)
}

func TestIndexInvariantWithDeaths(t *testing.T) {
	def := build(t, 0, level{
		rate:    60,
		modules: []module.Module{module.NewLifetime(distribution.Uniform{Min: 0.05, Max: 0.4})},
	})
	e := New(def, seeded())
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		e.Tick(0.005+r.Float32()*0.05, false)
		assertIndexInvariant(t, e)
	}
	assert.Positive(t, e.Stats().Killed)
}

func TestKillParticleIsIdempotent(t *testing.T) {
	def := build(t, 0, level{})
	e := New(def, seeded())
	e.ForceSpawn(0.1, 5, 0, mgl32.Vec3{}, mgl32.Vec3{})
	require.Equal(t, 5, e.NumActiveParticles())

	kept := e.buf.Index(0)
	e.KillParticle(4)
	e.KillParticle(4)
	assert.Equal(t, 4, e.NumActiveParticles())
	assert.Equal(t, uint64(1), e.Stats().Killed)
	assert.Equal(t, kept, e.buf.Index(0))
	assertIndexInvariant(t, e)
}

func TestLODSwitchMarksPastBursts(t *testing.T) {
	def := build(t, 0,
		level{},
		level{bursts: []burst.Entry{{Time: 0.2, Count: 7}}},
	)
	e := New(def, seeded())
	e.Tick(1.0, false)
	require.InDelta(t, 1.0, e.EmitterTime(), 1e-6)

	e.SetLOD(1)
	assert.Equal(t, 1, e.LOD())
	e.Tick(0.1, false)
	assert.Zero(t, e.NumActiveParticles())

	e.SetLOD(9)
	assert.Equal(t, 0, e.LOD())
}

func TestSwitchToDisabledLODKillsParticles(t *testing.T) {
	disabled := level{}
	def := build(t, 0, level{rate: 10}, disabled)
	def.LODs[1].Disabled = true
	e := New(def, seeded())

	e.Tick(1, false)
	require.Equal(t, 10, e.NumActiveParticles())
	e.SetLOD(1)
	assert.Zero(t, e.NumActiveParticles())

	e.Tick(1, false)
	assert.Zero(t, e.NumActiveParticles())
	_, ok := e.Snapshot()
	assert.False(t, ok)
}

func TestDelayHoldsSpawning(t *testing.T) {
	def := build(t, 0, level{rate: 10, req: definition.Required{Duration: 1, Delay: 0.5}})
	e := New(def, seeded())

	e.Tick(0.25, false)
	assert.Zero(t, e.NumActiveParticles())
	e.Tick(0.5, false)
	assert.Positive(t, e.NumActiveParticles())
}

func TestSuppressedTickSpawnsNothing(t *testing.T) {
	def := build(t, 0, level{rate: 10})
	e := New(def, seeded())
	e.Tick(1, true)
	assert.Zero(t, e.NumActiveParticles())
	e.Tick(1, false)
	assert.Positive(t, e.NumActiveParticles())
}

func TestDeactivate(t *testing.T) {
	life := module.NewLifetime(distribution.Constant(0.5))
	def := build(t, 0, level{rate: 10, modules: []module.Module{life}})
	e := New(def, seeded())
	e.Tick(0.5, false)
	require.Positive(t, e.NumActiveParticles())

	e.Deactivate()
	assert.Equal(t, StateDeactivated, e.State())
	spawned := e.Stats().Spawned
	for i := 0; i < 4; i++ {
		e.Tick(0.5, false)
	}
	assert.Equal(t, spawned, e.Stats().Spawned)
	assert.Zero(t, e.NumActiveParticles())
	assert.True(t, e.Finished())

	e.Resume()
	e.Tick(0.5, false)
	assert.Positive(t, e.NumActiveParticles())
}

func TestKillOnDeactivate(t *testing.T) {
	def := build(t, 0, level{rate: 10, req: definition.Required{KillOnDeactivate: true}})
	e := New(def, seeded())
	e.Tick(1, false)
	require.Positive(t, e.NumActiveParticles())
	e.Deactivate()
	assert.Zero(t, e.NumActiveParticles())
}

func TestCompletesAfterLastLoop(t *testing.T) {
	life := module.NewLifetime(distribution.Constant(0.2))
	def := build(t, 0, level{rate: 10, req: definition.Required{Duration: 0.5, Loops: 1}, modules: []module.Module{life}})
	e := New(def, seeded())

	for i := 0; i < 15; i++ {
		e.Tick(0.1, false)
	}
	assert.True(t, e.HasCompleted())
	assert.Equal(t, StateCompleted, e.State())
}

func TestKillOnCompleted(t *testing.T) {
	def := build(t, 0, level{rate: 10, req: definition.Required{Duration: 0.5, Loops: 1, KillOnCompleted: true}})
	e := New(def, seeded())
	for i := 0; i < 7; i++ {
		e.Tick(0.1, false)
	}
	assert.Zero(t, e.NumActiveParticles())
	assert.True(t, e.HasCompleted())
}

func TestInfiniteLoopsNeverComplete(t *testing.T) {
	def := build(t, 0, level{req: definition.Required{Duration: 0.1}})
	e := New(def, seeded())
	for i := 0; i < 10; i++ {
		e.Tick(0.1, false)
	}
	assert.False(t, e.HasCompleted())
}

func TestRewindKeepsParticles(t *testing.T) {
	def := build(t, 0, level{rate: 10, req: definition.Required{Duration: 1}})
	e := New(def, seeded())
	e.Tick(0.6, false)
	e.Tick(0.6, false)
	require.Equal(t, 1, e.LoopCount())
	active := e.NumActiveParticles()

	e.Rewind()
	assert.Zero(t, e.EmitterTime())
	assert.Zero(t, e.LoopCount())
	assert.Zero(t, e.SecondsSinceCreation())
	assert.Equal(t, StateInitialized, e.State())
	assert.Equal(t, active, e.NumActiveParticles())
}

func TestEventsReportedThroughGenerator(t *testing.T) {
	gen := &module.EventSource{Events: []module.GeneratedEvent{
		{Kind: "spawn", Name: "born"},
		{Kind: "burst", Name: "pop"},
		{Kind: "death", Name: "gone"},
	}}
	life := module.NewLifetime(distribution.Constant(0.1))
	def := build(t, 0, level{
		bursts:  []burst.Entry{{Time: 0, Count: 3}},
		modules: []module.Module{life, gen},
	})
	e := New(def, seeded(), WithSystem("fx", nil))

	e.Tick(0.05, false)
	kinds := map[event.Kind]int{}
	for _, ev := range e.DrainEvents() {
		kinds[ev.Kind]++
		assert.Equal(t, "fx", ev.System)
		assert.Equal(t, "sparks", ev.Emitter)
		if ev.Kind == event.Burst {
			assert.Equal(t, 3, ev.Count)
		}
	}
	assert.Equal(t, 3, kinds[event.Spawn])
	assert.Equal(t, 1, kinds[event.Burst])

	e.Tick(0.2, false)
	e.Tick(0.01, false)
	deaths := 0
	for _, ev := range e.DrainEvents() {
		if ev.Kind == event.Death {
			deaths++
		}
	}
	assert.Equal(t, 3, deaths)

	// forced spawns stay silent
	e.ForceSpawn(0.1, 2, 0, mgl32.Vec3{}, mgl32.Vec3{})
	assert.Empty(t, e.DrainEvents())
}

func TestProcessEventsSpawnsAtEventLocation(t *testing.T) {
	receiver := &module.SpawnOnEvent{EventKind: "death", Count: distribution.FloatSpec{Float: distribution.Constant(2)}}
	def := build(t, 0, level{modules: []module.Module{receiver}})
	e := New(def, seeded())

	e.ProcessEvents([]event.Event{
		{Kind: event.Spawn, Location: mgl32.Vec3{9, 9, 9}},
		{Kind: event.Death, Location: mgl32.Vec3{1, 2, 3}},
	})
	require.Equal(t, 2, e.NumActiveParticles())
	for i := 0; i < 2; i++ {
		assert.Equal(t, mgl32.Vec3{1, 2, 3}, e.buf.Particle(i).Location)
	}
}

func TestSnapshotCopiesState(t *testing.T) {
	def := build(t, 0, level{
		rate: 10,
		req: definition.Required{
			Material:      "default",
			NamedMaterial: "Body",
			MaxDrawCount:  0,
			SubImagesH:    4,
			SubImagesV:    2,
		},
		modules: []module.Module{&module.AxisLock{Axis: module.AxisLockZ}, &module.PivotOffset{Offset: mgl32.Vec2{0.5, 0}}},
	})
	slots := func(slot string) (string, bool) { return "slot_default", slot == "Body" }
	e := New(def, seeded(), WithSystem("fx", slots))

	_, ok := e.Snapshot()
	assert.False(t, ok, "nothing to draw before the first tick")

	e.Tick(0.5, false)
	snap, ok := e.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 5, snap.ActiveParticleCount)
	assert.Len(t, snap.Headers, 5)
	assert.Len(t, snap.Indices, 5)
	assert.Equal(t, -1, snap.MaxDrawCount)
	assert.InDelta(t, 2.0, snap.InvDeltaSeconds, 1e-6)
	assert.Equal(t, 4, snap.SubImagesH)
	assert.True(t, snap.LockAxis)
	assert.Equal(t, uint8(module.AxisLockZ), snap.LockAxisFlag)
	assert.Equal(t, mgl32.Vec2{0, -0.5}, snap.PivotOffset)
	assert.Equal(t, "slot_default", snap.Material)

	e.Parameters().SetMaterial("Body", "override")
	snap, _ = e.Snapshot()
	assert.Equal(t, "override", snap.Material)

	snap.Particle(0).Location = mgl32.Vec3{100, 100, 100}
	assert.NotEqual(t, mgl32.Vec3{100, 100, 100}, e.buf.Particle(0).Location)
}

func TestApplyWorldOffsetMovesWorldSpaceParticles(t *testing.T) {
	def := build(t, 0, level{})
	e := New(def, seeded())
	e.ForceSpawn(0, 1, 0, mgl32.Vec3{}, mgl32.Vec3{})

	e.ApplyWorldOffset(mgl32.Vec3{10, 0, 0})
	e.Tick(0, true)
	assert.Equal(t, mgl32.Vec3{10, 0, 0}, e.buf.Particle(0).Location)
	assert.True(t, e.Bounds().Contains(mgl32.Vec3{10, 0, 0}))

	// the offset is applied once
	e.Tick(0, true)
	assert.Equal(t, mgl32.Vec3{10, 0, 0}, e.buf.Particle(0).Location)
}

func TestSpawnChanceRejectsWithoutEvents(t *testing.T) {
	gen := &module.EventSource{Events: []module.GeneratedEvent{{Kind: "spawn"}}}
	def := build(t, 0, level{rate: 100, modules: []module.Module{&module.SpawnChance{Probability: 0}, gen}})
	e := New(def, seeded())
	e.Tick(1, false)
	assert.Zero(t, e.NumActiveParticles())
	assert.Equal(t, uint64(100), e.Stats().Rejected)
	assert.Empty(t, e.DrainEvents())
}

func TestInvalidDefinitionRendersNothing(t *testing.T) {
	def := &definition.Emitter{Name: "broken"}
	require.NoError(t, def.Prepare(definition.PrepareOptions{}))
	e := New(def)
	e.Tick(1, false)
	assert.Zero(t, e.NumActiveParticles())
	assert.True(t, e.HasCompleted())
	_, ok := e.Snapshot()
	assert.False(t, ok)
}

func TestPayloadsStayInsideRecords(t *testing.T) {
	orbit := module.NewOrbit(module.ChainAdd, distribution.ConstantVector{1, 0, 0}, nil, nil)
	def := build(t, 0, level{rate: 10, modules: []module.Module{orbit}})
	e := New(def, seeded())
	e.Tick(1, false)

	l := e.Layout()
	require.Len(t, l.Orbits, 1)
	for i := 0; i < e.NumActiveParticles(); i++ {
		off := module.OrbitOffset(e.buf.Payload(i).Region(l.Orbits[0], module.OrbitPayloadSize))
		assert.Equal(t, mgl32.Vec3{1, 0, 0}, off)
	}
	assert.Equal(t, particle.HeaderSize+l.PayloadStride, e.buf.Stride())
}
