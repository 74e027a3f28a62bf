package module

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/distribution"
)

// DynamicParameter exposes four free-form floats to materials.
type DynamicParameter struct {
	Common `yaml:",inline"`
	Values [4]distribution.FloatSpec `yaml:"values"`
	// UpdateEveryTick re-evaluates the values against relative time.
	UpdateEveryTick bool `yaml:"update_every_tick"`
}

func (*DynamicParameter) Type() string       { return "dynamic_parameter" }
func (*DynamicParameter) Kind() Kind         { return KindDynamicParameter }
func (*DynamicParameter) RequiredBytes() int { return 16 }

func (m *DynamicParameter) eval(ctx *Context, t float32) mgl32.Vec4 {
	var v mgl32.Vec4
	for i := range m.Values {
		v[i] = distribution.Eval(m.Values[i].Float, t, ctx, 0)
	}
	return v
}

func (m *DynamicParameter) Spawn(ctx *Context, p *particle.Base, region particle.Payload) {
	region.SetVec4(0, m.eval(ctx, p.RelativeTime))
}

func (m *DynamicParameter) Update(ctx *Context, p *particle.Base, region particle.Payload) {
	if m.UpdateEveryTick {
		region.SetVec4(0, m.eval(ctx, p.RelativeTime))
	}
}

// LightPayloadSize is the per-particle footprint of the light module.
const LightPayloadSize = 24

// Light marks a fraction of particles as light sources.
type Light struct {
	Common        `yaml:",inline"`
	SpawnFraction float32                  `yaml:"spawn_fraction"`
	RadiusScale   distribution.FloatSpec   `yaml:"radius_scale"`
	ColorScale    *distribution.VectorSpec `yaml:"color_scale"`
}

func (*Light) Type() string       { return "light" }
func (*Light) Kind() Kind         { return KindLight }
func (*Light) RequiredBytes() int { return LightPayloadSize }

// LightState is the decoded light payload.
type LightState struct {
	RadiusScale float32
	ColorScale  mgl32.Vec3
	ID          uint32
	Valid       bool
}

func ReadLight(region particle.Payload) LightState {
	return LightState{
		RadiusScale: region.Float32(0),
		ColorScale:  region.Vec3(4),
		ID:          region.Uint32(16),
		Valid:       region.Bool(20),
	}
}

func (m *Light) Spawn(ctx *Context, _ *particle.Base, region particle.Payload) {
	region.SetFloat32(0, distribution.Eval(m.RadiusScale.Float, ctx.EmitterTime, ctx, 1))
	region.SetVec3(4, distribution.EvalVector(m.ColorScale.Get(), ctx.EmitterTime, ctx, mgl32.Vec3{1, 1, 1}))
	region.SetUint32(16, ctx.Rand.Uint32())
	region.SetBool(20, ctx.Float32() < m.SpawnFraction)
}

// CameraOffset pushes sprites toward or away from the camera when rendered.
type CameraOffset struct {
	Common   `yaml:",inline"`
	Offset   distribution.FloatSpec  `yaml:"offset"`
	OverLife *distribution.FloatSpec `yaml:"over_life"`
}

func (*CameraOffset) Type() string       { return "camera_offset" }
func (*CameraOffset) Kind() Kind         { return KindCameraOffset }
func (*CameraOffset) RequiredBytes() int { return 8 }

func (m *CameraOffset) Spawn(ctx *Context, _ *particle.Base, region particle.Payload) {
	v := distribution.Eval(m.Offset.Float, ctx.EmitterTime, ctx, 0)
	region.SetFloat32(0, v)
	region.SetFloat32(4, v)
}

func (m *CameraOffset) Update(ctx *Context, p *particle.Base, region particle.Payload) {
	if scale := m.OverLife.Get(); scale != nil {
		region.SetFloat32(4, region.Float32(0)*scale.Value(p.RelativeTime, ctx))
	}
}

// ResetCameraOffset restores the per-frame offset from its base.
func ResetCameraOffset(region particle.Payload) {
	region.SetFloat32(4, region.Float32(0))
}

// CameraOffsetValue is the offset handed to renderers.
func CameraOffsetValue(region particle.Payload) float32 {
	return region.Float32(4)
}

// MeshRotationPayloadSize is the per-particle footprint of the mesh rotation module.
const MeshRotationPayloadSize = 60

const (
	meshInitialOrientation = 0
	meshRotation           = 12
	meshCurrentContinuous  = 24
	meshRotationRate       = 36
	meshRotationRateBase   = 48
)

// MeshRotation gives mesh particles a full 3D orientation and spin, in turns.
type MeshRotation struct {
	Common       `yaml:",inline"`
	Start        distribution.VectorSpec  `yaml:"start"`
	RotationRate *distribution.VectorSpec `yaml:"rotation_rate"`
}

func (*MeshRotation) Type() string       { return "mesh_rotation" }
func (*MeshRotation) Kind() Kind         { return KindMeshRotation }
func (*MeshRotation) RequiredBytes() int { return MeshRotationPayloadSize }

func (m *MeshRotation) Spawn(ctx *Context, _ *particle.Base, region particle.Payload) {
	start := distribution.EvalVector(m.Start.Vector, ctx.EmitterTime, ctx, mgl32.Vec3{})
	rate := distribution.EvalVector(m.RotationRate.Get(), ctx.EmitterTime, ctx, mgl32.Vec3{})
	region.SetVec3(meshInitialOrientation, start)
	region.SetVec3(meshRotation, start)
	region.SetVec3(meshCurrentContinuous, mgl32.Vec3{})
	region.SetVec3(meshRotationRate, rate)
	region.SetVec3(meshRotationRateBase, rate)
}

// AdvanceMeshRotation resets the spin from its base and integrates it over dt.
func AdvanceMeshRotation(region particle.Payload, dt float32) {
	rate := region.Vec3(meshRotationRateBase)
	region.SetVec3(meshRotationRate, rate)
	cur := region.Vec3(meshCurrentContinuous).Add(rate.Mul(dt))
	region.SetVec3(meshCurrentContinuous, cur)
	region.SetVec3(meshRotation, region.Vec3(meshInitialOrientation).Add(cur))
}

// MeshRotationValue is the current orientation in turns.
func MeshRotationValue(region particle.Payload) mgl32.Vec3 {
	return region.Vec3(meshRotation)
}

// SubImageMethod selects how a sub-image index is chosen.
type SubImageMethod uint8

const (
	SubImageLinear SubImageMethod = iota
	SubImageRandom
)

func (m *SubImageMethod) UnmarshalText(text []byte) error {
	switch string(text) {
	case "linear", "":
		*m = SubImageLinear
	case "random":
		*m = SubImageRandom
	default:
		return fmt.Errorf("unknown sub-image method %q", text)
	}
	return nil
}

// SubImage animates a flipbook laid out as a grid of sub-images.
type SubImage struct {
	Common `yaml:",inline"`
	Method SubImageMethod `yaml:"method"`
	// Index overrides the linear index as a curve of relative time.
	Index *distribution.FloatSpec `yaml:"index"`
	// Changes is how many random picks happen over a lifetime.
	Changes int `yaml:"changes"`
}

func (*SubImage) Type() string       { return "sub_image" }
func (*SubImage) Kind() Kind         { return KindSubImage }
func (*SubImage) RequiredBytes() int { return 8 }

func (m *SubImage) total(ctx *Context) float32 {
	if ctx.Emitter == nil {
		return 1
	}
	h, v := ctx.Emitter.SubImages()
	return float32(max(h*v, 1))
}

func (m *SubImage) Spawn(ctx *Context, p *particle.Base, region particle.Payload) {
	region.SetFloat32(4, 0)
	if m.Method == SubImageRandom {
		region.SetFloat32(0, float32(int(ctx.Float32()*m.total(ctx))))
		return
	}
	m.Update(ctx, p, region)
}

func (m *SubImage) Update(ctx *Context, p *particle.Base, region particle.Payload) {
	total := m.total(ctx)
	switch m.Method {
	case SubImageRandom:
		if m.Changes <= 0 {
			return
		}
		step := 1 / float32(m.Changes)
		if p.RelativeTime-region.Float32(4) >= step {
			region.SetFloat32(0, float32(int(ctx.Float32()*total)))
			region.SetFloat32(4, p.RelativeTime)
		}
	default:
		idx := p.RelativeTime * total
		if curve := m.Index.Get(); curve != nil {
			idx = curve.Value(p.RelativeTime, ctx)
		}
		region.SetFloat32(0, mgl32.Clamp(idx, 0, total-1))
	}
}

// SubImageIndex is the current flipbook frame.
func SubImageIndex(region particle.Payload) float32 {
	return region.Float32(0)
}
