package bounds

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/module"
)

// Padding is the fraction of the extent added around a computed box.
const Padding = 0.1

// Input describes one bounds pass over an emitter.
type Input struct {
	DeltaTime float32
	Particles module.Particles

	// ComponentToWorld places the owning component in the world. Particle
	// positions are only transformed by it when LocalSpace is set.
	ComponentToWorld mgl32.Mat4
	LocalSpace       bool

	// PositionOffset is the one-shot shift applied this tick.
	PositionOffset mgl32.Vec3

	// Fixed is the designer supplied box, relative to the component.
	Fixed *AABB
	// SkipBox integrates particles without touching the box, e.g. during warm-up.
	SkipBox bool
	// SkipJustSpawned leaves particles spawned this tick in place; they were
	// already moved part of the way by the spawn pass.
	SkipJustSpawned bool

	// Orbit is the record offset of the last orbit payload, 0 when absent.
	Orbit int
	// MeshExtent switches the per-particle extent to mesh bounds.
	MeshExtent *mgl32.Vec3
	Pivot      mgl32.Vec2
}

// Tracker integrates particle motion and maintains the emitter box.
type Tracker struct {
	box     AABB
	minimal AABB
}

// Box is the last padded box, in world space.
func (t *Tracker) Box() AABB { return t.box }

// Minimal is the last box before padding.
func (t *Tracker) Minimal() AABB { return t.minimal }

// Reset empties the box.
func (t *Tracker) Reset() {
	t.box, t.minimal = Empty(), Empty()
}

// Shift moves the stored box, used when the world origin is rebased.
func (t *Tracker) Shift(offset mgl32.Vec3) {
	t.box = t.box.Translate(offset)
	t.minimal = t.minimal.Translate(offset)
}

// Update moves every live particle by its velocity and rotation rate, applies
// the one-shot position offset and recomputes the box.
func (t *Tracker) Update(in Input) AABB {
	return t.pass(in, true)
}

// ForceUpdate recomputes the box from the current positions without moving anything.
func (t *Tracker) ForceUpdate(in Input) AABB {
	in.SkipBox = false
	in.PositionOffset = mgl32.Vec3{}
	return t.pass(in, false)
}

func (t *Tracker) pass(in Input, integrate bool) AABB {
	if in.Fixed != nil {
		if integrate {
			t.integrate(in)
		}
		if !in.SkipBox {
			t.box = in.Fixed.Transform(in.ComponentToWorld)
			t.minimal = t.box
		}
		return t.box
	}

	scale := ScaleOf(in.ComponentToWorld)
	toWorld := mgl32.Ident4()
	if in.LocalSpace {
		toWorld = in.ComponentToWorld
	}
	pivot := max(abs(in.Pivot[0]), abs(in.Pivot[1]))

	box := Empty()
	n := in.Particles.Active()
	for i := 0; i < n; i++ {
		p := in.Particles.Particle(i)
		if integrate {
			step(p, in)
		}
		if in.SkipBox {
			continue
		}

		var extent float32
		if in.MeshExtent != nil {
			extent = absMax(mul(mul(*in.MeshExtent, p.Size), scale))
		} else {
			if in.Orbit > 0 {
				off := module.OrbitOffset(in.Particles.Payload(i).Region(in.Orbit, module.OrbitPayloadSize))
				extent = absMax(mul(off, scale))
			}
			size := absMax(mul(p.Size, scale))
			extent += size + size*pivot
		}

		pos := p.Location
		if in.LocalSpace {
			pos = mgl32.TransformCoordinate(pos, toWorld)
		}
		box = box.AddCube(pos, extent)
	}

	if !in.SkipBox {
		t.minimal = box
		t.box = box.Pad(Padding)
	}
	return t.box
}

// integrate moves particles when the box itself is fixed.
func (t *Tracker) integrate(in Input) {
	n := in.Particles.Active()
	for i := 0; i < n; i++ {
		step(in.Particles.Particle(i), in)
	}
}

func step(p *particle.Base, in Input) {
	p.OldLocation = p.Location
	justSpawned := p.Flags.Has(particle.FlagJustSpawned)
	p.Flags &^= particle.FlagJustSpawned

	location, rotation := p.Location, p.Rotation
	if !p.Flags.Has(particle.FlagFreeze) && !(justSpawned && in.SkipJustSpawned) {
		if !p.Flags.Has(particle.FlagFreezeTranslation) {
			location = location.Add(p.Velocity.Mul(in.DeltaTime))
		}
		if !p.Flags.Has(particle.FlagFreezeRotation) {
			rotation += p.RotationRate * in.DeltaTime
		}
	}

	p.Location = location.Add(in.PositionOffset)
	p.OldLocation = p.OldLocation.Add(in.PositionOffset)
	p.Rotation = float32(math.Mod(float64(rotation), 2*math.Pi))
}

func mul(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}
