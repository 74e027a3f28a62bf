package module

import (
	"math/rand/v2"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/distribution"
	"github.com/zeusync/cascade/internal/core/particle/event"
)

type fakeEmitter struct {
	local      bool
	toSim      mgl32.Mat4
	toWorld    mgl32.Mat4
	params     *particle.Parameters
	events     event.Collector
	collisions int
	h, v       int
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{toSim: mgl32.Ident4(), toWorld: mgl32.Ident4(), params: particle.NewParameters(), h: 2, v: 2}
}

func (f *fakeEmitter) Name() string                     { return "fake" }
func (f *fakeEmitter) UseLocalSpace() bool              { return f.local }
func (f *fakeEmitter) EmitterToSimulation() mgl32.Mat4  { return f.toSim }
func (f *fakeEmitter) SimulationToWorld() mgl32.Mat4    { return f.toWorld }
func (f *fakeEmitter) SubImages() (int, int)            { return f.h, f.v }
func (f *fakeEmitter) Parameters() *particle.Parameters { return f.params }
func (f *fakeEmitter) Report(e event.Event)             { f.events.Report(e) }
func (f *fakeEmitter) NotifyCollision(*particle.Base, mgl32.Vec3, float32) {
	f.collisions++
}

func newContext(em *fakeEmitter) *Context {
	return &Context{DeltaTime: 0.1, Emitter: em, Rand: rand.New(rand.NewPCG(1, 1))}
}

type particleSet struct {
	headers  []particle.Base
	payloads []particle.Payload
}

func (s *particleSet) Active() int                    { return len(s.headers) }
func (s *particleSet) Particle(i int) *particle.Base  { return &s.headers[i] }
func (s *particleSet) Payload(i int) particle.Payload { return s.payloads[i] }

func TestLifetimeKeepsKillSentinel(t *testing.T) {
	ctx := newContext(newFakeEmitter())
	ctx.SpawnTime = 0.5

	var p particle.Base
	NewLifetime(distribution.Constant(2)).Spawn(ctx, &p, nil)
	assert.InDelta(t, 0.5, p.OneOverMaxLifetime, 1e-6)
	assert.InDelta(t, 0.25, p.RelativeTime, 1e-6)

	var rejected particle.Base
	(&SpawnChance{Probability: 0}).Spawn(ctx, &rejected, nil)
	NewLifetime(distribution.Constant(2)).Spawn(ctx, &rejected, nil)
	assert.True(t, rejected.Dead())
}

func TestVelocityUsesEmitterTransform(t *testing.T) {
	em := newFakeEmitter()
	em.toSim = mgl32.HomogRotate3DZ(mgl32.DegToRad(90)).Mul4(mgl32.Translate3D(5, 0, 0))
	ctx := newContext(em)

	var p particle.Base
	NewVelocity(distribution.ConstantVector{1, 0, 0}).Spawn(ctx, &p, nil)
	assert.InDelta(t, 0, p.Velocity.X(), 1e-5)
	assert.InDelta(t, 1, p.Velocity.Y(), 1e-5)
	assert.Equal(t, p.Velocity, p.BaseVelocity)
}

func TestAccelerationIntegratesBaseVelocity(t *testing.T) {
	ctx := newContext(newFakeEmitter())
	region := make(particle.Payload, 12)
	var p particle.Base
	m := NewAcceleration(distribution.ConstantVector{0, 0, -10})
	m.Spawn(ctx, &p, region)
	m.Update(ctx, &p, region)
	assert.InDelta(t, -1, p.BaseVelocity.Z(), 1e-5)
	assert.InDelta(t, -1, p.Velocity.Z(), 1e-5)
}

func TestColorOverLife(t *testing.T) {
	ctx := newContext(newFakeEmitter())
	m := &ColorOverLife{Alpha: &distribution.FloatSpec{Float: distribution.NewCurve(
		distribution.Point{T: 0, Value: 1}, distribution.Point{T: 1, Value: 0})}}
	p := particle.Base{Color: mgl32.Vec4{1, 1, 1, 1}, RelativeTime: 0.25}
	m.Update(ctx, &p, nil)
	assert.InDelta(t, 0.75, p.Color.W(), 1e-6)
}

func TestOrbitSpawnAndRotate(t *testing.T) {
	ctx := newContext(newFakeEmitter())
	region := make(particle.Payload, OrbitPayloadSize)
	o := NewOrbit(ChainAdd, distribution.ConstantVector{2, 0, 0}, nil, distribution.ConstantVector{0, 0, 1})
	var p particle.Base
	o.Spawn(ctx, &p, region)

	st := ReadOrbit(region)
	assert.Equal(t, mgl32.Vec3{2, 0, 0}, st.BaseOffset)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, st.RotationRate)

	SetOrbitOffset(region, mgl32.Vec3{3, 0, 0})
	ResetOrbit(region, true)
	st = ReadOrbit(region)
	assert.Equal(t, mgl32.Vec3{3, 0, 0}, st.PreviousOffset)
	assert.Equal(t, mgl32.Vec3{2, 0, 0}, st.Offset)

	rotated := RotateOffset(mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 0.25})
	assert.InDelta(t, 0, rotated.X(), 1e-5)
	assert.InDelta(t, 1, rotated.Y(), 1e-5)
}

func TestPlaneCollisionBouncesThenKills(t *testing.T) {
	em := newFakeEmitter()
	ctx := newContext(em)
	m := &PlaneCollision{Damping: mgl32.Vec3{1, 1, 0.5}, MaxCollisions: 2}
	region := make(particle.Payload, 4)
	p := particle.Base{Location: mgl32.Vec3{0, 0, -1}, Velocity: mgl32.Vec3{0, 0, -4}, BaseVelocity: mgl32.Vec3{0, 0, -4}}

	m.FinalUpdate(ctx, &p, region)
	assert.Equal(t, float32(0), p.Location.Z())
	assert.InDelta(t, 2, p.Velocity.Z(), 1e-6)
	assert.True(t, p.Flags.Has(particle.FlagCollisionOccurred))
	assert.False(t, p.Dead())

	p.Location[2] = -0.1
	p.Velocity[2] = -1
	m.FinalUpdate(ctx, &p, region)
	assert.True(t, p.Dead())
	assert.Equal(t, 2, CollisionsUsed(region))
	assert.Equal(t, 2, em.collisions)
}

func TestEventSourceEvery(t *testing.T) {
	em := newFakeEmitter()
	ctx := newContext(em)
	m := &EventSource{Events: []GeneratedEvent{{Kind: "spawn", Name: "sp", Every: 2}, {Kind: "burst", Name: "b"}}}

	for i := uint32(0); i < 4; i++ {
		p := particle.Base{Flags: particle.Flags(0).WithCounter(i)}
		m.HandleSpawn(ctx, &p)
	}
	m.HandleBurst(ctx, 12)
	m.HandleDeath(ctx, &particle.Base{})

	events := em.events.Drain()
	require.Len(t, events, 3)
	assert.Equal(t, "sp", events[0].Name)
	assert.Equal(t, event.Burst, events[2].Kind)
	assert.Equal(t, 12, events[2].Count)
}

type spawnRecorder struct {
	count    int
	location mgl32.Vec3
	velocity mgl32.Vec3
}

func (s *spawnRecorder) ForceSpawn(_ float32, count, _ int, location, velocity mgl32.Vec3) {
	s.count += count
	s.location = location
	s.velocity = velocity
}

func TestSpawnOnEvent(t *testing.T) {
	ctx := newContext(newFakeEmitter())
	m := &SpawnOnEvent{EventKind: "death", Count: distribution.FloatSpec{Float: distribution.Constant(3)}, InheritVelocity: 0.5}
	e := event.Event{Kind: event.Death, Location: mgl32.Vec3{1, 2, 3}, Velocity: mgl32.Vec3{2, 0, 0}}

	require.True(t, m.Accepts(e))
	assert.False(t, m.Accepts(event.Event{Kind: event.Spawn}))

	var rec spawnRecorder
	m.Receive(ctx, e, &rec)
	assert.Equal(t, 3, rec.count)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, rec.location)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, rec.velocity)
}

func TestSpawnOnEventDecodesKind(t *testing.T) {
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(`{kind: collision, name: splash, count: 2}`), &node))

	m, err := DefaultRegistry().Build("spawn_on_event", node.Content[0])
	require.NoError(t, err)
	recv, ok := m.(*SpawnOnEvent)
	require.True(t, ok)
	assert.Equal(t, "collision", recv.EventKind)
	assert.Equal(t, KindEventReceiver, recv.Kind())
	assert.True(t, recv.Accepts(event.Event{Kind: event.Collision, Name: "splash"}))
	assert.False(t, recv.Accepts(event.Event{Kind: event.Death, Name: "splash"}))
}

func TestRotateOffsetTakesTurns(t *testing.T) {
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, RotateOffset(mgl32.Vec3{1, 0, 0}, mgl32.Vec3{}))
	got := RotateOffset(mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 0.25})
	assert.InDelta(t, 0, got.X(), 1e-5)
	assert.InDelta(t, 1, got.Y(), 1e-5)
}

func TestBeamPostUpdate(t *testing.T) {
	ctx := newContext(newFakeEmitter())
	ctx.Instance = make(particle.Payload, 24)
	beam := &BeamData{
		Source: distribution.VectorSpec{Vector: distribution.ConstantVector{0, 0, 0}},
		Target: distribution.VectorSpec{Vector: distribution.ConstantVector{4, 0, 0}},
	}
	set := &particleSet{headers: make([]particle.Base, 2), payloads: make([]particle.Payload, 2)}
	beam.PostUpdate(ctx, set)

	assert.InDelta(t, 1, set.headers[0].Location.X(), 1e-6)
	assert.InDelta(t, 3, set.headers[1].Location.X(), 1e-6)
	_, dst := BeamEndpoints(ctx.Instance)
	assert.Equal(t, mgl32.Vec3{4, 0, 0}, dst)
}

func TestSubImageLinear(t *testing.T) {
	ctx := newContext(newFakeEmitter())
	region := make(particle.Payload, 8)
	p := particle.Base{RelativeTime: 0.5}
	(&SubImage{}).Update(ctx, &p, region)
	assert.Equal(t, float32(2), SubImageIndex(region))
}

func TestMeshRotationAdvance(t *testing.T) {
	ctx := newContext(newFakeEmitter())
	region := make(particle.Payload, MeshRotationPayloadSize)
	m := &MeshRotation{
		Start:        distribution.VectorSpec{Vector: distribution.ConstantVector{0.25, 0, 0}},
		RotationRate: &distribution.VectorSpec{Vector: distribution.ConstantVector{0, 1, 0}},
	}
	m.Spawn(ctx, &particle.Base{}, region)
	AdvanceMeshRotation(region, 0.5)
	assert.Equal(t, mgl32.Vec3{0.25, 0.5, 0}, MeshRotationValue(region))
}

func TestRegistryDecodesParams(t *testing.T) {
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(`{chain: link, offset: [1, 0, 0], rotation_rate: {min: [0,0,0], max: [0,0,1]}}`), &node))

	reg := DefaultRegistry()
	m, err := reg.Build("orbit", node.Content[0])
	require.NoError(t, err)
	orbit, ok := m.(*Orbit)
	require.True(t, ok)
	assert.Equal(t, ChainLink, orbit.Chain)
	assert.Equal(t, KindOrbit, orbit.Kind())
	assert.Equal(t, OrbitPayloadSize, orbit.RequiredBytes())
	assert.True(t, orbit.Enabled())

	_, err = reg.Build("teleport", nil)
	assert.ErrorIs(t, err, particle.ErrUnknownModule)

	var bad yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(`{chain: spiral}`), &bad))
	_, err = reg.Build("orbit", bad.Content[0])
	assert.Error(t, err)

	assert.Contains(t, reg.Types(), "plane_collision")
}
