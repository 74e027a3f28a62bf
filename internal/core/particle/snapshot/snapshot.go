// Package snapshot holds the render-ready copies produced once per tick and the
// codec used to record and replay them.
package snapshot

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/bounds"
	"github.com/zeusync/cascade/pkg/encoding"
	"github.com/zeusync/cascade/pkg/generic"
)

// Emitter is the exported state of one emitter instance. It shares no memory
// with the simulation. The field order is part of the recording format.
type Emitter struct {
	Name                string
	ActiveParticleCount int
	ParticleStride      int
	Scale               mgl32.Vec3

	// Headers, Payload and Indices cover every slot of the buffer, live or not.
	Headers       []particle.Base
	Payload       []byte
	PayloadStride int
	Indices       []int32

	InvDeltaSeconds float32
	// MaxDrawCount is -1 when unlimited.
	MaxDrawCount    int
	ScreenAlignment uint8
	LocalSpace      bool

	// Record offsets of well-known payloads. 0 means absent.
	DynamicParameterOffset int
	LightOffset            int
	CameraOffset           int
	SubImageOffset         int
	OrbitOffset            int

	SubImagesH int
	SubImagesV int

	LockAxis     bool
	LockAxisFlag uint8
	PivotOffset  mgl32.Vec2
	Material     string
	Mesh         bool
}

// Particle returns the header of the live particle at ordinal i.
func (e *Emitter) Particle(i int) *particle.Base {
	return &e.Headers[e.Indices[i]]
}

// ParticlePayload returns the payload bytes of the live particle at ordinal i.
func (e *Emitter) ParticlePayload(i int) particle.Payload {
	if e.PayloadStride == 0 {
		return nil
	}
	start := int(e.Indices[i]) * e.PayloadStride
	return e.Payload[start : start+e.PayloadStride]
}

// Frame bundles every emitter of a system for one tick.
type Frame struct {
	System   string
	Sequence uint64
	// Time is the simulated time since activation.
	Time     float32
	Bounds   bounds.AABB
	Emitters []Emitter
}

// ActiveParticles sums live particles over every emitter.
func (f *Frame) ActiveParticles() int {
	n := 0
	for i := range f.Emitters {
		n += f.Emitters[i].ActiveParticleCount
	}
	return n
}

var _ encoding.Serializable[Frame] = (*Frame)(nil)

var buffers = generic.NewResetPool(
	func() *bytes.Buffer { return new(bytes.Buffer) },
	func(b *bytes.Buffer) { b.Reset() },
)

func (f *Frame) Serialize() ([]byte, error) {
	buf := buffers.Get()
	defer buffers.Put(buf)
	if err := gob.NewEncoder(buf).Encode(f); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

func (f *Frame) Deserialize(data []byte) error {
	*f = Frame{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(f); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}
