package pipeline

import (
	"math/rand/v2"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/buffer"
	"github.com/zeusync/cascade/internal/core/particle/distribution"
	"github.com/zeusync/cascade/internal/core/particle/layout"
	"github.com/zeusync/cascade/internal/core/particle/module"
)

// recorder logs which stages touched it, in order.
type recorder struct {
	module.Common
	name  string
	calls *[]string
}

func (r *recorder) Type() string       { return "recorder" }
func (r *recorder) RequiredBytes() int { return 4 }

func (r *recorder) Spawn(_ *module.Context, _ *particle.Base, region particle.Payload) {
	*r.calls = append(*r.calls, "spawn:"+r.name)
	region.SetFloat32(0, 1)
}

func (r *recorder) Update(_ *module.Context, _ *particle.Base, region particle.Payload) {
	*r.calls = append(*r.calls, "update:"+r.name)
	region.SetFloat32(0, region.Float32(0)+1)
}

func (r *recorder) FinalUpdate(*module.Context, *particle.Base, particle.Payload) {
	*r.calls = append(*r.calls, "final:"+r.name)
}

func build(t *testing.T, levels []Level) (*Pipeline, *buffer.Buffer) {
	t.Helper()
	stacks := make([][]module.Module, len(levels))
	for i, l := range levels {
		stacks[i] = l.Modules
	}
	l, err := layout.Build(stacks, levels[0].TypeData, 0)
	require.NoError(t, err)
	b := buffer.New(l.PayloadStride, 0, nil)
	require.True(t, b.Resize(8, buffer.RecordPeak))
	return New(l, levels), b
}

func ctx() *module.Context {
	return &module.Context{DeltaTime: 0.5, Rand: rand.New(rand.NewPCG(1, 2))}
}

func acquire(t *testing.T, p *Pipeline, b *buffer.Buffer, lod int) int {
	t.Helper()
	i, ok := b.Acquire()
	require.True(t, ok)
	p.Spawn(lod, ctx(), nil, b.Particle(i), b.Payload(i))
	return i
}

func TestStagesRunInStackOrder(t *testing.T) {
	var calls []string
	a := &recorder{name: "a", calls: &calls}
	c := &recorder{name: "c", calls: &calls}
	p, b := build(t, []Level{{Modules: []module.Module{a, c}}})

	acquire(t, p, b, 0)
	acquire(t, p, b, 0)
	p.Update(0, ctx(), nil, b)
	p.FinalUpdate(0, ctx(), nil, b)

	assert.Equal(t, []string{
		"spawn:a", "spawn:c", "spawn:a", "spawn:c",
		"update:a", "update:a", "update:c", "update:c",
		"final:a", "final:a", "final:c", "final:c",
	}, calls)
	assert.True(t, p.HasFinalUpdate(0))

	// regions are disjoint: each module wrote its own float
	l := p.Layout()
	assert.Equal(t, float32(2), l.Region(b.Payload(0), 0).Float32(0))
	assert.Equal(t, float32(2), l.Region(b.Payload(0), 1).Float32(0))
}

func TestDisabledModulesSkipped(t *testing.T) {
	var calls []string
	on := &recorder{name: "on", calls: &calls}
	off := &recorder{name: "off", calls: &calls}
	off.Disabled = true
	lowOn := &recorder{name: "low", calls: &calls}
	lowOff := &recorder{name: "lowoff", calls: &calls}
	lowOff.Disabled = true

	p, b := build(t, []Level{
		{Modules: []module.Module{on, off}},
		{Modules: []module.Module{lowOff, lowOn}},
	})
	acquire(t, p, b, 1)
	p.Update(1, ctx(), nil, b)
	assert.Equal(t, []string{"spawn:low", "update:low"}, calls)
}

func orbit(chain module.ChainMode, offset mgl32.Vec3) *module.Orbit {
	return module.NewOrbit(chain, distribution.ConstantVector(offset), nil, nil)
}

func lastOffset(p *Pipeline, b *buffer.Buffer) mgl32.Vec3 {
	orbits := p.Layout().Orbits
	return module.OrbitOffset(b.Payload(0).Region(orbits[len(orbits)-1], module.OrbitPayloadSize))
}

func TestOrbitChainAddAndLink(t *testing.T) {
	p, b := build(t, []Level{{Modules: []module.Module{
		orbit(module.ChainAdd, mgl32.Vec3{1, 0, 0}),
		orbit(module.ChainAdd, mgl32.Vec3{0, 2, 0}),
		orbit(module.ChainLink, mgl32.Vec3{0, 0, 3}),
	}}})
	acquire(t, p, b, 0)

	p.ResolveOrbits(0, 0.1, b)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, lastOffset(p, b))

	// reset restores the base offset and remembers the resolved one
	p.ResetOrbits(b)
	orbits := p.Layout().Orbits
	st := module.ReadOrbit(b.Payload(0).Region(orbits[2], module.OrbitPayloadSize))
	assert.Equal(t, mgl32.Vec3{0, 0, 3}, st.Offset)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, st.PreviousOffset)
}

func TestOrbitChainScale(t *testing.T) {
	p, b := build(t, []Level{{Modules: []module.Module{
		orbit(module.ChainAdd, mgl32.Vec3{1, 1, 1}),
		orbit(module.ChainScale, mgl32.Vec3{2, 3, 4}),
	}}})
	acquire(t, p, b, 0)
	p.ResolveOrbits(0, 0, b)
	assert.Equal(t, mgl32.Vec3{2, 3, 4}, lastOffset(p, b))
}

func TestOrbitRotationAdvances(t *testing.T) {
	rot := module.NewOrbit(module.ChainAdd, distribution.ConstantVector{1, 0, 0},
		distribution.ConstantVector{0, 0, 0.25}, distribution.ConstantVector{0, 0, 1})
	p, b := build(t, []Level{{Modules: []module.Module{rot}}})
	acquire(t, p, b, 0)

	p.ResolveOrbits(0, 0, b)
	got := lastOffset(p, b)
	assert.InDelta(t, 0, got.X(), 1e-5)
	assert.InDelta(t, 1, got.Y(), 1e-5)

	p.ResolveOrbits(0, 0.25, b)
	st := module.ReadOrbit(b.Payload(0).Region(p.Layout().Orbits[0], module.OrbitPayloadSize))
	assert.InDelta(t, 0.5, st.Rotation.Z(), 1e-5)
}

func TestPostUpdateUsesTypeData(t *testing.T) {
	beam := &module.BeamData{
		Source: distribution.VectorSpec{Vector: distribution.ConstantVector{0, 0, 0}},
		Target: distribution.VectorSpec{Vector: distribution.ConstantVector{0, 0, 10}},
	}
	p, b := build(t, []Level{{Modules: []module.Module{}, TypeData: beam}})
	instance := make(particle.Payload, p.Layout().InstanceSize)
	p.InitInstance(ctx(), instance)

	acquire(t, p, b, 0)
	p.PostUpdate(0, ctx(), instance, b)
	assert.InDelta(t, 5, b.Particle(0).Location.Z(), 1e-6)
	assert.Equal(t, beam, p.TypeData(0))
}

func TestGeneratorAndReceivers(t *testing.T) {
	gen := &module.EventSource{}
	recv := &module.SpawnOnEvent{}
	p, _ := build(t, []Level{{Modules: []module.Module{gen, recv}}})
	assert.Equal(t, gen, p.Generator(0))
	assert.Len(t, p.Receivers(0), 1)

	gen.Disabled = true
	assert.Nil(t, p.Generator(0))
}
