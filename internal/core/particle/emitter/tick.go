package emitter

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/bounds"
	"github.com/zeusync/cascade/internal/core/particle/layout"
	"github.com/zeusync/cascade/internal/core/particle/module"
)

// Tick advances the instance by dt. suppress blocks new spawns for this tick
// without halting the emitter.
func (e *Instance) Tick(dt float32, suppress bool) {
	if e.buf == nil {
		return
	}
	if e.state == StateInitialized {
		e.state = StateTicking
	}
	e.ctx.DeltaTime = dt

	if e.level().Disabled {
		delay := e.setupTime(dt)
		e.carriedBurst.Count, e.carriedBurst.Entries = 0, 0
		e.finishTick(dt, delay)
		return
	}

	pl := e.pipeline()
	delay := e.setupTime(dt)
	e.ctx.EmitterTime = e.emitterTime

	e.killParticles()
	e.resetParticles(dt)
	pl.Update(e.lod, &e.ctx, e.instance, e.buf)
	e.spawn(dt, suppress)
	pl.PostUpdate(e.lod, &e.ctx, e.instance, e.buf)

	if e.buf.Active() > 0 {
		pl.ResolveOrbits(e.lod, dt, e.buf)
		e.tracker.Update(e.boundsInput(dt))
		e.rotateMeshes(dt)
	}

	pl.FinalUpdate(e.lod, &e.ctx, e.instance, e.buf)
	e.finishTick(dt, delay)
}

func (e *Instance) finishTick(dt, delay float32) {
	e.emitterTime += delay
	e.ctx.EmitterTime = e.emitterTime
	e.lastDeltaTime = dt
	e.positionOffset = mgl32.Vec3{}
	e.firstTick = false

	req := e.req
	if req.KillOnCompleted && e.loopsDone() && e.buf.Active() > 0 {
		e.KillParticlesForced(true)
	}
	if e.HasCompleted() {
		e.state = StateCompleted
	}
}

// setupTime advances emitter time, handles loop wraparound and returns the
// delay that is hidden from emitter time for the rest of the tick.
func (e *Instance) setupTime(dt float32) float32 {
	if e.justRegistered {
		e.location = e.componentToWorld.Col(3).Vec3()
		e.oldLocation = e.location
		e.justRegistered = false
	} else {
		e.oldLocation = e.location
		e.location = e.componentToWorld.Col(3).Vec3()
	}
	e.updateTransforms()

	req := e.req
	e.secondsSinceCreation += dt

	looped := false
	if req.LegacyEmitterTime {
		e.emitterTime = e.secondsSinceCreation
		if e.duration > 0 {
			e.emitterTime = float32(math.Mod(float64(e.secondsSinceCreation), float64(e.duration)))
			looped = e.secondsSinceCreation-e.duration*float32(e.loopCount) >= e.duration
		}
	} else {
		e.emitterTime += dt
		if e.duration > 0 && e.emitterTime >= e.duration {
			e.emitterTime -= e.duration
			looped = true
		}
	}

	if looped {
		// bursts the tick jumped over at the end of the loop still belong to
		// it, unless that loop ran past the configured loop count
		if req.Loops == 0 || e.loopCount < req.Loops {
			drained := e.bursts.Drain(e.lod, e.duration, &e.ctx)
			e.carriedBurst.Count += drained.Count
			e.carriedBurst.Entries += drained.Entries
		}

		e.loopCount++
		e.bursts.ResetForNewLoop()
		if req.DurationRecalcEachLoop || (req.DelayFirstLoopOnly && e.loopCount == 1) {
			e.setupDuration()
		}
	}

	delay := e.delay
	if req.DelayFirstLoopOnly && e.loopCount > 0 {
		delay = 0
	}
	e.emitterTime -= delay
	return delay
}

// killParticles retires every particle past the end of its life.
func (e *Instance) killParticles() {
	gen := e.generator()
	for i := e.buf.Active() - 1; i >= 0; i-- {
		p := e.buf.Particle(i)
		if !p.Dead() {
			continue
		}
		if gen != nil {
			gen.HandleDeath(&e.ctx, p)
		}
		e.buf.Kill(i)
		e.stats.Killed++
	}
}

// resetParticles restores the per-frame fields before modules recompute them.
func (e *Instance) resetParticles(dt float32) {
	l := e.def.Layout()
	n := e.buf.Active()
	for i := 0; i < n; i++ {
		e.buf.Particle(i).Reset(dt)
		if l.CameraOffset > 0 {
			module.ResetCameraOffset(layout.At(e.buf.Payload(i), l.CameraOffset, 8))
		}
	}
	e.pipeline().ResetOrbits(e.buf)
}

func (e *Instance) boundsInput(dt float32) bounds.Input {
	in := bounds.Input{
		DeltaTime:        dt,
		Particles:        e.buf,
		ComponentToWorld: e.componentToWorld,
		LocalSpace:       e.req.LocalSpace,
		PositionOffset:   e.positionOffset,
		Fixed:            e.fixed,
		SkipBox:          e.skipBounds,
		SkipJustSpawned:  !e.def.LegacySpawning,
		Pivot:            e.pivot(),
	}
	if orbits := e.def.Layout().Orbits; len(orbits) > 0 {
		in.Orbit = orbits[len(orbits)-1]
	}
	if m, ok := e.pipeline().TypeData(e.lod).(module.MeshExtenter); ok {
		extent := m.MeshExtent()
		in.MeshExtent = &extent
	}
	return in
}

// ForceUpdateBoundingBox recomputes the box from current positions without
// moving any particle.
func (e *Instance) ForceUpdateBoundingBox() bounds.AABB {
	if e.buf == nil {
		return e.tracker.Box()
	}
	return e.tracker.ForceUpdate(e.boundsInput(0))
}

// rotateMeshes spins mesh particles that carry a mesh rotation payload.
func (e *Instance) rotateMeshes(dt float32) {
	off := e.def.Layout().MeshRotation
	if off == 0 {
		return
	}
	n := e.buf.Active()
	for i := 0; i < n; i++ {
		p := e.buf.Particle(i)
		if p.Flags.Has(particle.FlagFreeze) || p.Flags.Has(particle.FlagFreezeRotation) {
			continue
		}
		module.AdvanceMeshRotation(layout.At(e.buf.Payload(i), off, module.MeshRotationPayloadSize), dt)
	}
}

func (e *Instance) pivot() mgl32.Vec2 {
	var pivot mgl32.Vec2
	for _, m := range e.pipeline().Modules(e.lod) {
		if po, ok := m.(*module.PivotOffset); ok && po.Enabled() {
			pivot = pivot.Add(po.Offset)
		}
	}
	return pivot
}
