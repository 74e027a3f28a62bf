package module

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/distribution"
)

// Lifetime sets how long a particle lives. A lifetime of 0 means forever.
type Lifetime struct {
	Common   `yaml:",inline"`
	Lifetime distribution.FloatSpec `yaml:"lifetime"`
}

func NewLifetime(d distribution.Float) *Lifetime {
	return &Lifetime{Lifetime: distribution.FloatSpec{Float: d}}
}

func (*Lifetime) Type() string { return "lifetime" }

func (m *Lifetime) Spawn(ctx *Context, p *particle.Base, _ particle.Payload) {
	life := distribution.Eval(m.Lifetime.Float, ctx.EmitterTime, ctx, 0)
	if life > 0 {
		p.OneOverMaxLifetime = 1 / life
	} else {
		p.OneOverMaxLifetime = 0
	}
	if p.Dead() {
		return
	}
	// account for the part of the tick the particle already lived
	p.RelativeTime = p.OneOverMaxLifetime * ctx.SpawnTime
}

// Location offsets the spawn point in emitter space.
type Location struct {
	Common `yaml:",inline"`
	Offset distribution.VectorSpec `yaml:"offset"`
}

func NewLocation(d distribution.Vector) *Location {
	return &Location{Offset: distribution.VectorSpec{Vector: d}}
}

func (*Location) Type() string { return "location" }

func (m *Location) Spawn(ctx *Context, p *particle.Base, _ particle.Payload) {
	offset := distribution.EvalVector(m.Offset.Vector, ctx.EmitterTime, ctx, mgl32.Vec3{})
	p.Location = p.Location.Add(ctx.TransformVector(offset))
}

// Velocity gives the particle its starting velocity, optionally pushed away from
// the emitter origin.
type Velocity struct {
	Common `yaml:",inline"`
	Start  distribution.VectorSpec `yaml:"start"`
	Radial *distribution.FloatSpec `yaml:"radial"`
	Origin mgl32.Vec3              `yaml:"-"`
}

func NewVelocity(d distribution.Vector) *Velocity {
	return &Velocity{Start: distribution.VectorSpec{Vector: d}}
}

func (*Velocity) Type() string { return "velocity" }

func (m *Velocity) Spawn(ctx *Context, p *particle.Base, _ particle.Payload) {
	v := ctx.TransformVector(distribution.EvalVector(m.Start.Vector, ctx.EmitterTime, ctx, mgl32.Vec3{}))
	if radial := m.Radial.Get(); radial != nil {
		origin := ctx.TransformPosition(m.Origin)
		dir := p.Location.Sub(origin)
		if dir.LenSqr() > 1e-8 {
			v = v.Add(dir.Normalize().Mul(radial.Value(ctx.EmitterTime, ctx)))
		}
	}
	p.BaseVelocity = p.BaseVelocity.Add(v)
	p.Velocity = p.Velocity.Add(v)
}

// Size sets the starting size.
type Size struct {
	Common  `yaml:",inline"`
	Start   distribution.VectorSpec `yaml:"start"`
	Uniform bool                    `yaml:"uniform"`
}

func NewSize(d distribution.Vector) *Size {
	return &Size{Start: distribution.VectorSpec{Vector: d}}
}

func (*Size) Type() string { return "size" }

func (m *Size) Spawn(ctx *Context, p *particle.Base, _ particle.Payload) {
	s := distribution.EvalVector(m.Start.Vector, ctx.EmitterTime, ctx, mgl32.Vec3{1, 1, 1})
	if m.Uniform {
		s = mgl32.Vec3{s.X(), s.X(), s.X()}
	}
	p.BaseSize = p.BaseSize.Add(s)
	p.Size = p.BaseSize
}

// Color sets the starting color and alpha.
type Color struct {
	Common `yaml:",inline"`
	Start  distribution.VectorSpec `yaml:"start"`
	Alpha  *distribution.FloatSpec `yaml:"alpha"`
}

func NewColor(c distribution.Vector, alpha distribution.Float) *Color {
	m := &Color{Start: distribution.VectorSpec{Vector: c}}
	if alpha != nil {
		m.Alpha = &distribution.FloatSpec{Float: alpha}
	}
	return m
}

func (*Color) Type() string { return "color" }

func (m *Color) Spawn(ctx *Context, p *particle.Base, _ particle.Payload) {
	rgb := distribution.EvalVector(m.Start.Vector, ctx.EmitterTime, ctx, mgl32.Vec3{1, 1, 1})
	a := distribution.Eval(m.Alpha.Get(), ctx.EmitterTime, ctx, 1)
	p.BaseColor = rgb.Vec4(a)
	p.Color = p.BaseColor
}

// Rotation sets the starting sprite rotation in turns.
type Rotation struct {
	Common `yaml:",inline"`
	Start  distribution.FloatSpec `yaml:"start"`
}

func (*Rotation) Type() string { return "rotation" }

func (m *Rotation) Spawn(ctx *Context, p *particle.Base, _ particle.Payload) {
	p.Rotation += 2 * math.Pi * distribution.Eval(m.Start.Float, ctx.EmitterTime, ctx, 0)
}

// RotationRate sets the starting spin in turns per second.
type RotationRate struct {
	Common `yaml:",inline"`
	Start  distribution.FloatSpec `yaml:"start"`
}

func (*RotationRate) Type() string { return "rotation_rate" }

func (m *RotationRate) Spawn(ctx *Context, p *particle.Base, _ particle.Payload) {
	rate := 2 * math.Pi * distribution.Eval(m.Start.Float, ctx.EmitterTime, ctx, 0)
	p.BaseRotationRate += rate
	p.RotationRate = p.BaseRotationRate
}

// SpawnChance discards a fraction of spawned particles. Rejected particles are
// marked dead and never produce spawn events.
type SpawnChance struct {
	Common      `yaml:",inline"`
	Probability float32 `yaml:"probability"`
}

func (*SpawnChance) Type() string { return "spawn_chance" }

func (m *SpawnChance) Spawn(ctx *Context, p *particle.Base, _ particle.Payload) {
	if ctx.Float32() >= m.Probability {
		p.Kill()
	}
}
