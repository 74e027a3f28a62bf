package emitter

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/observability/log"
	"github.com/zeusync/cascade/internal/core/particle/event"
	"github.com/zeusync/cascade/internal/core/particle/lod"
)

// Rewind restarts time, loops and the burst schedule. Live particles are kept.
func (e *Instance) Rewind() {
	if e.buf == nil {
		return
	}
	e.resetTime()
	e.bursts.ResetForNewLoop()
	e.halted = false
	e.setupDuration()
	e.tracker.Reset()
	e.state = StateInitialized
}

// ResetBursts clears the fired flags of every burst so the current loop fires them again.
func (e *Instance) ResetBursts() {
	if e.bursts != nil {
		e.bursts.ResetForNewLoop()
	}
}

// Resume lifts a deactivation without touching time.
func (e *Instance) Resume() {
	e.halted = false
	if e.state == StateDeactivated {
		e.state = StateTicking
	}
}

// Deactivate stops new spawns. Live particles tick out their lifetime unless
// the LOD level asks to kill them on deactivation.
func (e *Instance) Deactivate() {
	e.halted = true
	e.state = StateDeactivated
	if e.req != nil && e.req.KillOnDeactivate {
		e.KillParticlesForced(true)
	}
}

// Halted reports whether spawning was stopped by Deactivate.
func (e *Instance) Halted() bool { return e.halted }

// KillParticle retires the live particle at ordinal i, keeping spawn order.
func (e *Instance) KillParticle(i int) {
	if e.buf == nil || i < 0 || i >= e.buf.Active() {
		return
	}
	if gen := e.generator(); gen != nil {
		gen.HandleDeath(&e.ctx, e.buf.Particle(i))
	}
	e.buf.KillOrdered(i)
	e.stats.Killed++
}

// KillParticlesForced retires every live particle and restarts the spawn sequence.
func (e *Instance) KillParticlesForced(fireEvents bool) {
	if e.buf == nil {
		return
	}
	if gen := e.generator(); fireEvents && gen != nil {
		for i := 0; i < e.buf.Active(); i++ {
			gen.HandleDeath(&e.ctx, e.buf.Particle(i))
		}
	}
	e.stats.Killed += uint64(e.buf.Active())
	e.buf.Clear()
	e.counter = 0
}

func (e *Instance) loopsDone() bool {
	return e.req.Loops > 0 && e.secondsSinceCreation >= e.duration*float32(e.req.Loops)
}

// HasCompleted reports whether every loop has run and no particle is left.
// Emitters that loop forever never complete.
func (e *Instance) HasCompleted() bool {
	if e.buf == nil {
		return true
	}
	if !e.loopsDone() {
		return false
	}
	return e.buf.Active() == 0
}

// Finished reports whether the instance has nothing left to show, either by
// completing or by being deactivated and running dry.
func (e *Instance) Finished() bool {
	return e.HasCompleted() || (e.halted && e.NumActiveParticles() == 0)
}

// ApplyWorldOffset shifts the instance after the world origin moved. Particles
// in world space follow during the next bounds pass.
func (e *Instance) ApplyWorldOffset(offset mgl32.Vec3) {
	e.location = e.location.Add(offset)
	e.oldLocation = e.oldLocation.Add(offset)
	e.tracker.Shift(offset)
	if e.req != nil && !e.req.LocalSpace {
		e.positionOffset = offset
	}
}

// SetLOD switches to level index. Bursts of the new level that lie in the past
// of the current loop are marked fired without spawning. A stale index falls
// back to level 0.
func (e *Instance) SetLOD(index int) {
	if e.buf == nil {
		return
	}
	index = lod.Resolve(index, len(e.def.LODs))
	if index == e.lod {
		return
	}
	prev := e.lod
	e.lod = index
	level := e.level()
	e.req = level.Required
	e.updateTransforms()
	e.bursts.Resync(index, e.emitterTime, e.delay)
	if level.Disabled && e.cfg.GameWorld {
		e.KillParticlesForced(false)
	}
	e.logger.Debug("LOD changed", log.Int("from", prev), log.Int("to", index))
}

// ProcessEvents hands events reported anywhere in the system to the event
// receivers of the current LOD level.
func (e *Instance) ProcessEvents(events []event.Event) {
	if e.buf == nil || len(events) == 0 || e.level().Disabled {
		return
	}
	receivers := e.pipeline().Receivers(e.lod)
	if len(receivers) == 0 {
		return
	}
	e.ctx.EmitterTime = e.emitterTime
	for _, ev := range events {
		for _, r := range receivers {
			if r.Accepts(ev) {
				r.Receive(&e.ctx, ev, e)
			}
		}
	}
}
