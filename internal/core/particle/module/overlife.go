package module

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/distribution"
)

// ColorOverLife drives color and alpha from the particle's relative time.
type ColorOverLife struct {
	Common `yaml:",inline"`
	Color  *distribution.VectorSpec `yaml:"color"`
	Alpha  *distribution.FloatSpec  `yaml:"alpha"`
}

func (*ColorOverLife) Type() string { return "color_over_life" }

func (m *ColorOverLife) Spawn(ctx *Context, p *particle.Base, region particle.Payload) {
	m.Update(ctx, p, region)
	p.BaseColor = p.Color
}

func (m *ColorOverLife) Update(ctx *Context, p *particle.Base, _ particle.Payload) {
	if c := m.Color.Get(); c != nil {
		rgb := c.Value(p.RelativeTime, ctx)
		p.Color = rgb.Vec4(p.Color.W())
	}
	if a := m.Alpha.Get(); a != nil {
		p.Color[3] = a.Value(p.RelativeTime, ctx)
	}
}

// SizeOverLife scales the size by a curve of relative time.
type SizeOverLife struct {
	Common `yaml:",inline"`
	Scale  distribution.VectorSpec `yaml:"scale"`
}

func (*SizeOverLife) Type() string { return "size_over_life" }

func (m *SizeOverLife) Update(ctx *Context, p *particle.Base, _ particle.Payload) {
	s := distribution.EvalVector(m.Scale.Vector, p.RelativeTime, ctx, mgl32.Vec3{1, 1, 1})
	p.Size = mgl32.Vec3{p.Size[0] * s[0], p.Size[1] * s[1], p.Size[2] * s[2]}
}

// Acceleration applies a per-particle constant acceleration chosen at spawn.
type Acceleration struct {
	Common       `yaml:",inline"`
	Acceleration distribution.VectorSpec `yaml:"acceleration"`
}

func NewAcceleration(d distribution.Vector) *Acceleration {
	return &Acceleration{Acceleration: distribution.VectorSpec{Vector: d}}
}

func (*Acceleration) Type() string       { return "acceleration" }
func (*Acceleration) RequiredBytes() int { return 12 }

func (m *Acceleration) Spawn(ctx *Context, p *particle.Base, region particle.Payload) {
	a := ctx.TransformVector(distribution.EvalVector(m.Acceleration.Vector, ctx.EmitterTime, ctx, mgl32.Vec3{}))
	region.SetVec3(0, a)
	dv := a.Mul(ctx.SpawnTime)
	p.BaseVelocity = p.BaseVelocity.Add(dv)
	p.Velocity = p.Velocity.Add(dv)
}

func (m *Acceleration) Update(ctx *Context, p *particle.Base, region particle.Payload) {
	dv := region.Vec3(0).Mul(ctx.DeltaTime)
	p.BaseVelocity = p.BaseVelocity.Add(dv)
	p.Velocity = p.Velocity.Add(dv)
}

// Drag damps velocity proportionally to the coefficient.
type Drag struct {
	Common      `yaml:",inline"`
	Coefficient distribution.FloatSpec `yaml:"coefficient"`
}

func (*Drag) Type() string { return "drag" }

func (m *Drag) Update(ctx *Context, p *particle.Base, _ particle.Payload) {
	k := distribution.Eval(m.Coefficient.Float, p.RelativeTime, ctx, 0)
	f := 1 - k*ctx.DeltaTime
	if f < 0 {
		f = 0
	}
	p.BaseVelocity = p.BaseVelocity.Mul(f)
	p.Velocity = p.Velocity.Mul(f)
}

// KillHeight kills particles that cross a horizontal plane.
type KillHeight struct {
	Common `yaml:",inline"`
	Height float32 `yaml:"height"`
	Floor  bool    `yaml:"floor"`
}

func (*KillHeight) Type() string { return "kill_height" }

func (m *KillHeight) Update(_ *Context, p *particle.Base, _ particle.Payload) {
	z := p.Location.Z()
	if (m.Floor && z < m.Height) || (!m.Floor && z > m.Height) {
		p.Kill()
	}
}
