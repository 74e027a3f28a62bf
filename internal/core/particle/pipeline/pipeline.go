// Package pipeline runs the module stack of the current LOD level over a
// particle buffer: spawn initialisation, the update pass, the type-data post
// update, the final update pass and orbit chain resolution.
package pipeline

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/layout"
	"github.com/zeusync/cascade/internal/core/particle/module"
)

// Level is the module stack of one LOD level.
type Level struct {
	Modules  []module.Module
	TypeData module.Module
}

type slot[T any] struct {
	index int
	m     T
}

type orbitSlot struct {
	index int
	chain module.ChainMode
}

type stage struct {
	modules   []module.Module
	spawners  []slot[module.Spawner]
	updaters  []slot[module.Updater]
	finals    []slot[module.FinalUpdater]
	orbits    []orbitSlot
	generator module.EventGenerator
	receivers []slot[module.EventReceiver]
	typeData  module.Module
	post      module.PostUpdater
}

type Pipeline struct {
	layout *layout.Layout
	stages []stage
}

// New sorts each level's modules into their capability lists. The layout must
// have been built from the same levels.
func New(l *layout.Layout, levels []Level) *Pipeline {
	p := &Pipeline{layout: l, stages: make([]stage, len(levels))}
	for lod, level := range levels {
		st := stage{modules: level.Modules, typeData: level.TypeData}
		for i, m := range level.Modules {
			if s, ok := m.(module.Spawner); ok {
				st.spawners = append(st.spawners, slot[module.Spawner]{i, s})
			}
			if u, ok := m.(module.Updater); ok {
				st.updaters = append(st.updaters, slot[module.Updater]{i, u})
			}
			if f, ok := m.(module.FinalUpdater); ok {
				st.finals = append(st.finals, slot[module.FinalUpdater]{i, f})
			}
			if o, ok := m.(*module.Orbit); ok {
				st.orbits = append(st.orbits, orbitSlot{index: i, chain: o.Chain})
			}
			if g, ok := m.(module.EventGenerator); ok && st.generator == nil {
				st.generator = g
			}
			if r, ok := m.(module.EventReceiver); ok {
				st.receivers = append(st.receivers, slot[module.EventReceiver]{i, r})
			}
		}
		if pu, ok := level.TypeData.(module.PostUpdater); ok {
			st.post = pu
		}
		p.stages[lod] = st
	}
	return p
}

func (p *Pipeline) Layout() *layout.Layout { return p.layout }
func (p *Pipeline) Levels() int            { return len(p.stages) }

// Modules returns the module stack of lod.
func (p *Pipeline) Modules(lod int) []module.Module { return p.stages[lod].modules }

// TypeData returns the type-data module of lod, which may be nil.
func (p *Pipeline) TypeData(lod int) module.Module { return p.stages[lod].typeData }

// Generator returns the first enabled event generator of lod.
func (p *Pipeline) Generator(lod int) module.EventGenerator {
	g := p.stages[lod].generator
	if g == nil || !g.Enabled() {
		return nil
	}
	return g
}

// Receivers returns the enabled event receivers of lod.
func (p *Pipeline) Receivers(lod int) []module.EventReceiver {
	var out []module.EventReceiver
	for _, r := range p.stages[lod].receivers {
		if r.m.Enabled() {
			out = append(out, r.m)
		}
	}
	return out
}

// HasFinalUpdate reports whether lod has any final update module.
func (p *Pipeline) HasFinalUpdate(lod int) bool { return len(p.stages[lod].finals) > 0 }

// InitInstance lets the modules of the highest LOD prepare their per-instance blocks.
func (p *Pipeline) InitInstance(ctx *module.Context, instance particle.Payload) {
	if len(p.stages) == 0 {
		return
	}
	st := p.stages[0]
	if ii, ok := st.typeData.(module.InstanceInitializer); ok {
		ctx.Instance = p.layout.TypeDataInstanceRegion(instance)
		ii.InitInstance(ctx, ctx.Instance)
	}
	for i, m := range st.modules {
		if ii, ok := m.(module.InstanceInitializer); ok {
			ctx.Instance = p.layout.InstanceRegion(instance, i)
			ii.InitInstance(ctx, ctx.Instance)
		}
	}
	ctx.Instance = nil
}

// Spawn runs every enabled spawn module of lod on one particle.
func (p *Pipeline) Spawn(lod int, ctx *module.Context, instance particle.Payload, part *particle.Base, payload particle.Payload) {
	for _, s := range p.stages[lod].spawners {
		if !s.m.Enabled() {
			continue
		}
		ctx.Instance = p.layout.InstanceRegion(instance, s.index)
		s.m.Spawn(ctx, part, p.layout.Region(payload, s.index))
	}
	ctx.Instance = nil
}

// Update runs every enabled update module of lod over every live particle,
// module by module in stack order.
func (p *Pipeline) Update(lod int, ctx *module.Context, instance particle.Payload, particles module.Particles) {
	n := particles.Active()
	for _, u := range p.stages[lod].updaters {
		if !u.m.Enabled() {
			continue
		}
		ctx.Instance = p.layout.InstanceRegion(instance, u.index)
		for i := 0; i < n; i++ {
			u.m.Update(ctx, particles.Particle(i), p.layout.Region(particles.Payload(i), u.index))
		}
	}
	ctx.Instance = nil
}

// FinalUpdate runs every enabled final update module of lod.
func (p *Pipeline) FinalUpdate(lod int, ctx *module.Context, instance particle.Payload, particles module.Particles) {
	n := particles.Active()
	for _, f := range p.stages[lod].finals {
		if !f.m.Enabled() {
			continue
		}
		ctx.Instance = p.layout.InstanceRegion(instance, f.index)
		for i := 0; i < n; i++ {
			f.m.FinalUpdate(ctx, particles.Particle(i), p.layout.Region(particles.Payload(i), f.index))
		}
	}
	ctx.Instance = nil
}

// PostUpdate hands the whole particle set to the type-data module of lod.
func (p *Pipeline) PostUpdate(lod int, ctx *module.Context, instance particle.Payload, particles module.Particles) {
	post := p.stages[lod].post
	if post == nil || !post.Enabled() {
		return
	}
	ctx.Instance = p.layout.TypeDataInstanceRegion(instance)
	post.PostUpdate(ctx, particles)
	ctx.Instance = nil
}

// ResetOrbits restores every orbit payload from its base values. The last orbit
// keeps the resolved offset of the previous tick as its previous offset.
func (p *Pipeline) ResetOrbits(particles module.Particles) {
	orbits := p.layout.Orbits
	if len(orbits) == 0 {
		return
	}
	n := particles.Active()
	for i := 0; i < n; i++ {
		payload := particles.Payload(i)
		for k, off := range orbits {
			module.ResetOrbit(payload.Region(off, module.OrbitPayloadSize), k == len(orbits)-1)
		}
	}
}

// ResolveOrbits combines the orbit chain of lod into one offset per particle and
// stores it in the last orbit payload. It also advances every orbit rotation.
func (p *Pipeline) ResolveOrbits(lod int, dt float32, particles module.Particles) {
	orbits := p.stages[lod].orbits
	if len(orbits) == 0 {
		return
	}
	last := p.layout.Particle[orbits[len(orbits)-1].index]

	n := particles.Active()
	for i := 0; i < n; i++ {
		payload := particles.Payload(i)
		var total, accOffset, accRotation, accRate mgl32.Vec3

		for k, o := range orbits {
			region := p.layout.Region(payload, o.index)
			st := module.ReadOrbit(region)

			switch o.chain {
			case module.ChainScale:
				accOffset = mul(accOffset, st.Offset)
				accRotation = mul(accRotation, st.Rotation)
				accRate = mul(accRate, st.RotationRate)
			case module.ChainLink:
				if k > 0 {
					total = total.Add(resolve(accOffset, accRotation, accRate, dt))
				}
				accOffset, accRotation, accRate = st.Offset, st.Rotation, st.RotationRate
			default:
				accOffset = accOffset.Add(st.Offset)
				accRotation = accRotation.Add(st.Rotation)
				accRate = accRate.Add(st.RotationRate)
			}
			module.AdvanceOrbitRotation(region, dt)
		}
		if accOffset != (mgl32.Vec3{}) {
			total = total.Add(resolve(accOffset, accRotation, accRate, dt))
		}
		module.SetOrbitOffset(payload.Region(last.Offset, last.Size), total)
	}
}

func resolve(offset, rotation, rate mgl32.Vec3, dt float32) mgl32.Vec3 {
	if rotation.ApproxEqual(mgl32.Vec3{}) {
		return offset
	}
	return module.RotateOffset(offset, rotation.Add(rate.Mul(dt)))
}

func mul(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}
