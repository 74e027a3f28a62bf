package emitter

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle/bounds"
	"github.com/zeusync/cascade/internal/core/particle/module"
	"github.com/zeusync/cascade/internal/core/particle/snapshot"
)

// defaultPivot centers sprites on the particle location.
var defaultPivot = mgl32.Vec2{-0.5, -0.5}

// Snapshot copies everything a renderer needs from this tick. ok is false when
// there is nothing to draw.
func (e *Instance) Snapshot() (out snapshot.Emitter, ok bool) {
	if e.buf == nil || e.buf.Active() <= 0 || e.level().Disabled {
		return out, false
	}
	req := e.req
	l := e.def.Layout()
	data := e.buf.Snapshot()

	out = snapshot.Emitter{
		Name:                e.def.Name,
		ActiveParticleCount: data.Active,
		ParticleStride:      e.buf.Stride(),
		Scale:               bounds.ScaleOf(e.componentToWorld),

		Headers:       data.Headers,
		Payload:       data.Payload,
		PayloadStride: data.PayloadStride,
		Indices:       data.Indices,

		MaxDrawCount:    -1,
		ScreenAlignment: uint8(req.Alignment),
		LocalSpace:      req.LocalSpace,

		DynamicParameterOffset: l.DynamicParameter,
		LightOffset:            l.Light,
		CameraOffset:           l.CameraOffset,
		SubImageOffset:         l.SubImage,

		PivotOffset: defaultPivot.Add(e.pivot()),
		Material:    e.Material(),
	}
	if e.lastDeltaTime > 0 {
		out.InvDeltaSeconds = 1 / e.lastDeltaTime
	}
	if req.MaxDrawCount > 0 {
		out.MaxDrawCount = req.MaxDrawCount
	}
	out.SubImagesH, out.SubImagesV = req.SubImages()
	if n := len(l.Orbits); n > 0 {
		out.OrbitOffset = l.Orbits[n-1]
	}

	pl := e.pipeline()
	if _, mesh := pl.TypeData(e.lod).(module.MeshExtenter); mesh {
		out.Mesh = true
	}
	for _, m := range pl.Modules(e.lod) {
		if lock, isLock := m.(*module.AxisLock); isLock && lock.Enabled() {
			out.LockAxis = true
			out.LockAxisFlag = uint8(lock.Axis)
		}
	}
	return out, true
}
