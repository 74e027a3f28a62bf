package particle

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Payload is a typed view over module-owned bytes. Offsets are local to the view.
type Payload []byte

var le = binary.LittleEndian

func (p Payload) Float32(off int) float32 {
	return math.Float32frombits(le.Uint32(p[off:]))
}

func (p Payload) SetFloat32(off int, v float32) {
	le.PutUint32(p[off:], math.Float32bits(v))
}

func (p Payload) Uint32(off int) uint32 {
	return le.Uint32(p[off:])
}

func (p Payload) SetUint32(off int, v uint32) {
	le.PutUint32(p[off:], v)
}

func (p Payload) Int32(off int) int32 {
	return int32(le.Uint32(p[off:]))
}

func (p Payload) SetInt32(off int, v int32) {
	le.PutUint32(p[off:], uint32(v))
}

func (p Payload) Bool(off int) bool {
	return p[off] != 0
}

func (p Payload) SetBool(off int, v bool) {
	if v {
		p[off] = 1
	} else {
		p[off] = 0
	}
}

func (p Payload) Vec2(off int) mgl32.Vec2 {
	return mgl32.Vec2{p.Float32(off), p.Float32(off + 4)}
}

func (p Payload) SetVec2(off int, v mgl32.Vec2) {
	p.SetFloat32(off, v[0])
	p.SetFloat32(off+4, v[1])
}

func (p Payload) Vec3(off int) mgl32.Vec3 {
	return mgl32.Vec3{p.Float32(off), p.Float32(off + 4), p.Float32(off + 8)}
}

func (p Payload) SetVec3(off int, v mgl32.Vec3) {
	p.SetFloat32(off, v[0])
	p.SetFloat32(off+4, v[1])
	p.SetFloat32(off+8, v[2])
}

func (p Payload) Vec4(off int) mgl32.Vec4 {
	return mgl32.Vec4{p.Float32(off), p.Float32(off + 4), p.Float32(off + 8), p.Float32(off + 12)}
}

func (p Payload) SetVec4(off int, v mgl32.Vec4) {
	for i := 0; i < 4; i++ {
		p.SetFloat32(off+4*i, v[i])
	}
}

// Region returns the sub-view for a record offset of the given size. Record
// offsets include the header, see HeaderSize.
func (p Payload) Region(recordOffset, size int) Payload {
	if recordOffset < HeaderSize || size == 0 {
		return nil
	}
	start := recordOffset - HeaderSize
	return p[start : start+size : start+size]
}

// Zero clears every byte of the view.
func (p Payload) Zero() {
	clear(p)
}
