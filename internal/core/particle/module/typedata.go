package module

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/distribution"
)

// MeshData switches an emitter to mesh particles. Extent is the half size of the
// mesh bounds, scaled by particle size for culling.
type MeshData struct {
	Common `yaml:",inline"`
	Extent mgl32.Vec3 `yaml:"extent"`
	// AlignToVelocity orients meshes along their direction of travel.
	AlignToVelocity bool `yaml:"align_to_velocity"`
}

var _ MeshExtenter = (*MeshData)(nil)

func (*MeshData) Type() string { return "mesh" }
func (*MeshData) Kind() Kind   { return KindTypeData }

func (m *MeshData) MeshExtent() mgl32.Vec3 {
	if m.Extent == (mgl32.Vec3{}) {
		return mgl32.Vec3{1, 1, 1}
	}
	return m.Extent
}

// BeamData lays live particles out along the segment between a source and a
// target point after every update.
type BeamData struct {
	Common `yaml:",inline"`
	Source distribution.VectorSpec `yaml:"source"`
	Target distribution.VectorSpec `yaml:"target"`
}

var _ PostUpdater = (*BeamData)(nil)

func (*BeamData) Type() string                  { return "beam" }
func (*BeamData) Kind() Kind                    { return KindTypeData }
func (*BeamData) RequiredBytesPerInstance() int { return 24 }

func (m *BeamData) endpoints(ctx *Context) (mgl32.Vec3, mgl32.Vec3) {
	src := ctx.TransformPosition(distribution.EvalVector(m.Source.Vector, ctx.EmitterTime, ctx, mgl32.Vec3{}))
	dst := ctx.TransformPosition(distribution.EvalVector(m.Target.Vector, ctx.EmitterTime, ctx, mgl32.Vec3{}))
	return src, dst
}

func (m *BeamData) InitInstance(ctx *Context, instance particle.Payload) {
	src, dst := m.endpoints(ctx)
	instance.SetVec3(0, src)
	instance.SetVec3(12, dst)
}

func (m *BeamData) PostUpdate(ctx *Context, particles Particles) {
	src, dst := m.endpoints(ctx)
	ctx.Instance.SetVec3(0, src)
	ctx.Instance.SetVec3(12, dst)

	n := particles.Active()
	for i := 0; i < n; i++ {
		t := (float32(i) + 0.5) / float32(n)
		p := particles.Particle(i)
		p.OldLocation = p.Location
		p.Location = src.Add(dst.Sub(src).Mul(t))
	}
}

// BeamEndpoints reads the cached source and target of a beam instance.
func BeamEndpoints(instance particle.Payload) (mgl32.Vec3, mgl32.Vec3) {
	return instance.Vec3(0), instance.Vec3(12)
}
