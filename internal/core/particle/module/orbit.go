package module

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/distribution"
)

// ChainMode decides how an orbit module combines with the ones before it.
type ChainMode uint8

const (
	// ChainAdd adds offset, rotation and rotation rate to the accumulator.
	ChainAdd ChainMode = iota
	// ChainScale multiplies the accumulator component-wise.
	ChainScale
	// ChainLink flushes the accumulator into the total and starts a new chain.
	ChainLink
)

func (m *ChainMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "add", "":
		*m = ChainAdd
	case "scale":
		*m = ChainScale
	case "link":
		*m = ChainLink
	default:
		return fmt.Errorf("unknown orbit chain mode %q", text)
	}
	return nil
}

// OrbitPayloadSize is the per-particle footprint of every orbit module.
const OrbitPayloadSize = 72

const (
	orbitBaseOffset       = 0
	orbitOffset           = 12
	orbitRotation         = 24
	orbitBaseRotationRate = 36
	orbitRotationRate     = 48
	orbitPreviousOffset   = 60
)

// OrbitState is the decoded orbit payload. Rotations are in turns.
type OrbitState struct {
	BaseOffset       mgl32.Vec3
	Offset           mgl32.Vec3
	Rotation         mgl32.Vec3
	BaseRotationRate mgl32.Vec3
	RotationRate     mgl32.Vec3
	PreviousOffset   mgl32.Vec3
}

func ReadOrbit(region particle.Payload) OrbitState {
	return OrbitState{
		BaseOffset:       region.Vec3(orbitBaseOffset),
		Offset:           region.Vec3(orbitOffset),
		Rotation:         region.Vec3(orbitRotation),
		BaseRotationRate: region.Vec3(orbitBaseRotationRate),
		RotationRate:     region.Vec3(orbitRotationRate),
		PreviousOffset:   region.Vec3(orbitPreviousOffset),
	}
}

func (s OrbitState) Write(region particle.Payload) {
	region.SetVec3(orbitBaseOffset, s.BaseOffset)
	region.SetVec3(orbitOffset, s.Offset)
	region.SetVec3(orbitRotation, s.Rotation)
	region.SetVec3(orbitBaseRotationRate, s.BaseRotationRate)
	region.SetVec3(orbitRotationRate, s.RotationRate)
	region.SetVec3(orbitPreviousOffset, s.PreviousOffset)
}

// ResetOrbit restores the per-frame orbit values from their bases. With
// keepPrevious the current offset is remembered for motion blur and bounds.
func ResetOrbit(region particle.Payload, keepPrevious bool) {
	if keepPrevious {
		region.SetVec3(orbitPreviousOffset, region.Vec3(orbitOffset))
	}
	region.SetVec3(orbitOffset, region.Vec3(orbitBaseOffset))
	region.SetVec3(orbitRotationRate, region.Vec3(orbitBaseRotationRate))
}

// OrbitOffset reads the resolved offset of a particle.
func OrbitOffset(region particle.Payload) mgl32.Vec3 {
	return region.Vec3(orbitOffset)
}

// SetOrbitOffset stores the resolved offset.
func SetOrbitOffset(region particle.Payload, offset mgl32.Vec3) {
	region.SetVec3(orbitOffset, offset)
}

// AdvanceOrbitRotation integrates the orbit rotation over dt.
func AdvanceOrbitRotation(region particle.Payload, dt float32) {
	rate := region.Vec3(orbitRotationRate)
	region.SetVec3(orbitRotation, region.Vec3(orbitRotation).Add(rate.Mul(dt)))
}

// Orbit moves particles on a rotating offset around their location.
type Orbit struct {
	Common       `yaml:",inline"`
	Chain        ChainMode                `yaml:"chain"`
	Offset       distribution.VectorSpec  `yaml:"offset"`
	Rotation     *distribution.VectorSpec `yaml:"rotation"`
	RotationRate *distribution.VectorSpec `yaml:"rotation_rate"`
}

func NewOrbit(chain ChainMode, offset, rotation, rate distribution.Vector) *Orbit {
	o := &Orbit{Chain: chain, Offset: distribution.VectorSpec{Vector: offset}}
	if rotation != nil {
		o.Rotation = &distribution.VectorSpec{Vector: rotation}
	}
	if rate != nil {
		o.RotationRate = &distribution.VectorSpec{Vector: rate}
	}
	return o
}

func (*Orbit) Type() string       { return "orbit" }
func (*Orbit) Kind() Kind         { return KindOrbit }
func (*Orbit) RequiredBytes() int { return OrbitPayloadSize }

func (o *Orbit) Spawn(ctx *Context, p *particle.Base, region particle.Payload) {
	offset := distribution.EvalVector(o.Offset.Vector, ctx.EmitterTime, ctx, mgl32.Vec3{})
	rate := distribution.EvalVector(o.RotationRate.Get(), ctx.EmitterTime, ctx, mgl32.Vec3{})
	OrbitState{
		BaseOffset:       offset,
		Offset:           offset,
		Rotation:         distribution.EvalVector(o.Rotation.Get(), ctx.EmitterTime, ctx, mgl32.Vec3{}),
		BaseRotationRate: rate,
		RotationRate:     rate,
		PreviousOffset:   offset,
	}.Write(region)
}

// RotateOffset rotates offset by euler angles given in turns.
func RotateOffset(offset, turns mgl32.Vec3) mgl32.Vec3 {
	if turns.ApproxEqual(mgl32.Vec3{}) {
		return offset
	}
	r := turns.Mul(2 * math.Pi)
	q := mgl32.AnglesToQuat(r.Z(), r.Y(), r.X(), mgl32.ZYX)
	return q.Rotate(offset)
}
