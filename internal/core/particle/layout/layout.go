// Package layout computes where every module's bytes live inside a particle
// record and inside the per-instance block. The layout is computed once from the
// highest-detail LOD and shared by every LOD, so module stacks must line up.
package layout

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/module"
)

// Alignment of the full particle record.
const Alignment = 16

// Region is a byte range. Particle regions use record offsets (header
// included); instance regions are offsets into the instance block.
type Region struct {
	Offset int
	Size   int
}

func (r Region) Empty() bool { return r.Size == 0 }

// Layout is the byte map of one emitter's particle records and instance block.
type Layout struct {
	// Particle and Instance are indexed by module stack position.
	Particle []Region
	Instance []Region

	TypeData         Region
	TypeDataInstance Region
	// Emitter is reserved for the emitter itself, after every module region.
	Emitter Region

	// Record offsets of the payloads the core reads directly. 0 means absent.
	DynamicParameter int
	Light            int
	CameraOffset     int
	MeshRotation     int
	SubImage         int
	// Orbits lists orbit record offsets in stack order.
	Orbits []int

	ParticleSize  int
	Stride        int
	PayloadStride int
	InstanceSize  int

	signature uint64
}

func align(n, to int) int {
	return (n + to - 1) / to * to
}

// Build validates the LOD stacks and lays out LOD 0. stacks[i] is the module
// stack of LOD i; typeData may be nil.
func Build(stacks [][]module.Module, typeData module.Module, emitterBytes int) (*Layout, error) {
	if len(stacks) == 0 {
		return nil, particle.ErrNoLODLevels
	}
	if err := Validate(stacks); err != nil {
		return nil, err
	}

	top := stacks[0]
	l := &Layout{
		Particle: make([]Region, len(top)),
		Instance: make([]Region, len(top)),
	}
	hash := xxhash.New()
	var scratch [8]byte
	write := func(name string, a, b int) {
		_, _ = hash.WriteString(name)
		binary.LittleEndian.PutUint32(scratch[:4], uint32(a))
		binary.LittleEndian.PutUint32(scratch[4:], uint32(b))
		_, _ = hash.Write(scratch[:])
	}

	size := particle.HeaderSize
	instance := 0

	if typeData != nil {
		pb, ib := typeData.RequiredBytes(), typeData.RequiredBytesPerInstance()
		if pb < 0 || ib < 0 {
			return nil, fmt.Errorf("%w: type data %q", particle.ErrModuleBytes, typeData.Type())
		}
		if pb > 0 {
			l.TypeData = Region{Offset: size, Size: pb}
			size += pb
		}
		if ib > 0 {
			l.TypeDataInstance = Region{Offset: instance, Size: ib}
			instance += ib
		}
		write(typeData.Type(), pb, ib)
	}

	for i, m := range top {
		pb, ib := m.RequiredBytes(), m.RequiredBytesPerInstance()
		if pb < 0 || ib < 0 {
			return nil, fmt.Errorf("%w: module %d (%s)", particle.ErrModuleBytes, i, m.Type())
		}
		write(m.Type(), pb, ib)

		if pb > 0 {
			l.Particle[i] = Region{Offset: size, Size: pb}
			switch m.Kind() {
			case module.KindDynamicParameter:
				l.DynamicParameter = size
			case module.KindLight:
				l.Light = size
			case module.KindCameraOffset:
				l.CameraOffset = size
			case module.KindMeshRotation:
				l.MeshRotation = size
			case module.KindSubImage:
				l.SubImage = size
			case module.KindOrbit:
				l.Orbits = append(l.Orbits, size)
			}
			size += pb
		}
		if ib > 0 {
			l.Instance[i] = Region{Offset: instance, Size: ib}
			instance += ib
		}
	}

	if emitterBytes > 0 {
		l.Emitter = Region{Offset: size, Size: emitterBytes}
		size += emitterBytes
	}
	write("emitter", emitterBytes, 0)

	l.ParticleSize = size
	l.Stride = align(size, Alignment)
	l.PayloadStride = l.Stride - particle.HeaderSize
	l.InstanceSize = instance
	l.signature = hash.Sum64()
	return l, nil
}

// Validate checks that every LOD stack matches LOD 0 slot for slot.
func Validate(stacks [][]module.Module) error {
	if len(stacks) == 0 {
		return particle.ErrNoLODLevels
	}
	top := stacks[0]
	for lod := 1; lod < len(stacks); lod++ {
		if err := ValidateLevel(top, stacks[lod]); err != nil {
			return fmt.Errorf("LOD %d: %w", lod, err)
		}
	}
	return nil
}

// ValidateLevel checks one stack against the reference stack.
func ValidateLevel(reference, stack []module.Module) error {
	if len(stack) != len(reference) {
		return fmt.Errorf("%w: %d modules, want %d", particle.ErrModuleStackMismatch, len(stack), len(reference))
	}
	for i := range stack {
		if stack[i] == nil || reference[i] == nil {
			return fmt.Errorf("%w: nil module at %d", particle.ErrModuleStackMismatch, i)
		}
		if stack[i].Type() != reference[i].Type() {
			return fmt.Errorf("%w: slot %d is %q, want %q",
				particle.ErrModuleStackMismatch, i, stack[i].Type(), reference[i].Type())
		}
		if stack[i].RequiredBytes() != reference[i].RequiredBytes() ||
			stack[i].RequiredBytesPerInstance() != reference[i].RequiredBytesPerInstance() {
			return fmt.Errorf("%w: slot %d (%s) changes payload size",
				particle.ErrModuleStackMismatch, i, stack[i].Type())
		}
	}
	return nil
}

// Signature identifies the module types and sizes the layout was built from.
// Two layouts with equal signatures place every payload identically.
func (l *Layout) Signature() uint64 { return l.signature }

// Region returns the payload of module i inside a full record payload.
func (l *Layout) Region(payload particle.Payload, i int) particle.Payload {
	r := l.Particle[i]
	return payload.Region(r.Offset, r.Size)
}

// InstanceRegion returns the per-instance bytes of module i.
func (l *Layout) InstanceRegion(instance particle.Payload, i int) particle.Payload {
	r := l.Instance[i]
	if r.Size == 0 {
		return nil
	}
	return instance[r.Offset : r.Offset+r.Size : r.Offset+r.Size]
}

// TypeDataInstanceRegion returns the per-instance bytes of the type-data module.
func (l *Layout) TypeDataInstanceRegion(instance particle.Payload) particle.Payload {
	r := l.TypeDataInstance
	if r.Size == 0 {
		return nil
	}
	return instance[r.Offset : r.Offset+r.Size : r.Offset+r.Size]
}

// At slices a well-known record offset out of a full record payload.
func At(payload particle.Payload, recordOffset, size int) particle.Payload {
	return payload.Region(recordOffset, size)
}
