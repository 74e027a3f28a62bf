package emitter

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/observability/log"
	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/buffer"
	"github.com/zeusync/cascade/internal/core/particle/spawn"
)

// spawn creates the rate and burst particles of one tick and returns how many
// survived their spawn modules.
func (e *Instance) spawn(dt float32, suppress bool) int {
	carried := e.carriedBurst
	e.carriedBurst.Count, e.carriedBurst.Entries = 0, 0
	if e.halted || suppress {
		return 0
	}

	req := e.req
	open := e.emitterTime >= 0 && (req.Loops == 0 ||
		e.loopCount < req.Loops ||
		e.secondsSinceCreation < e.duration*float32(req.Loops) ||
		e.firstTick)
	if !open && carried.Count == 0 {
		return 0
	}

	var rate float32
	burstCount, burstEntries := carried.Count, carried.Entries
	if open {
		rate = e.level().Spawn.RateAt(e.emitterTime, &e.ctx)
		res := e.bursts.Count(e.lod, e.emitterTime, dt, &e.ctx)
		burstCount += res.Count
		burstEntries += res.Entries
	}

	plan := e.cfg.Spawn.Plan(spawn.Request{
		DeltaTime: dt,
		Leftover:  e.leftover,
		Rate:      rate,
		Burst:     burstCount,
		Active:    e.buf.Active(),
		Capacity:  e.buf.Capacity(),
		MaxActive: e.def.MaxActive,
	})
	if plan.Clamped {
		e.stats.Clamped++
		e.logger.Warn("particle cap reached, spawns clamped",
			log.Int("requested", plan.Requested),
			log.Int("cap", plan.Cap),
			log.Int("active", e.buf.Active()))
	}
	if plan.Resize && !e.grow(e.buf.Active()+plan.Total(), plan.ResizeTo, plan.ResizeMode) {
		// leftover is kept so the rate catches up once there is room
		return 0
	}
	e.leftover = plan.Leftover
	if plan.Total() == 0 {
		return 0
	}

	origin := e.emitterToSimulation.Col(3).Vec3()
	n := e.spawnParticles(plan.Number, plan.StartTime, plan.Increment, origin, mgl32.Vec3{}, false, true)
	if plan.Burst > 0 {
		e.stats.Bursts += uint64(max(burstEntries, 1))
		e.stats.BurstParticles += uint64(plan.Burst)
		n += e.spawnParticles(plan.Burst, plan.StartTime, 0, origin, mgl32.Vec3{}, true, true)
	}
	return n
}

// grow resizes the buffer so it holds at least need particles, aiming for
// target. The ceiling trims the target; it only refuses when need passes it.
func (e *Instance) grow(need, target int, mode buffer.ResizeMode) bool {
	ceiling := e.buf.Ceiling()
	if ceiling > 0 && target > ceiling && need <= ceiling {
		target = ceiling
	}
	if warn := e.cfg.MaxParticleResizeWarn; warn > 0 && target > warn && e.buf.Capacity() <= warn {
		e.logger.Warn("particle buffer grew past the warning threshold",
			log.Int("requested", target),
			log.Int("threshold", warn))
	}
	if e.buf.Resize(target, mode) {
		e.stats.Resizes++
		return true
	}
	e.stats.ResizeFailures++
	e.logger.Warn("particle buffer resize refused, skipping spawn",
		log.Int("requested", target),
		log.Int("ceiling", ceiling),
		log.Int("active", e.buf.Active()),
		log.Error(particle.ErrResizeCeiling))
	return false
}

// spawnParticles initializes count particles. Each is born increment seconds
// before the previous one, the first startTime seconds before the end of the tick.
func (e *Instance) spawnParticles(count int, startTime, increment float32, location, velocity mgl32.Vec3, isBurst, events bool) int {
	if count <= 0 {
		return 0
	}
	gen := e.generator()
	if !events {
		gen = nil
	}
	if gen != nil && isBurst {
		gen.HandleBurst(&e.ctx, count)
	}

	pl := e.pipeline()
	interp := float32(1)
	var interpStep float32
	if increment > 0 {
		interpStep = 1 / float32(count)
	}

	spawned := 0
	for i := 0; i < count; i++ {
		ord, ok := e.buf.Acquire()
		if !ok {
			break
		}
		interp -= interpStep
		spawnTime := startTime - float32(i)*increment

		p, payload := e.buf.Particle(ord), e.buf.Payload(ord)
		e.preSpawn(p, payload, location, velocity)
		e.ctx.SpawnTime = spawnTime
		pl.Spawn(e.lod, &e.ctx, e.instance, p, payload)
		e.postSpawn(p, interp, spawnTime)

		// spawn modules reject a particle by pushing it past the end of its life
		if p.Dead() {
			e.buf.Release()
			e.stats.Rejected++
			continue
		}
		if gen != nil {
			gen.HandleSpawn(&e.ctx, p)
		}
		spawned++
	}
	e.ctx.SpawnTime = 0
	e.stats.Spawned += uint64(spawned)
	return spawned
}

func (e *Instance) preSpawn(p *particle.Base, payload particle.Payload, location, velocity mgl32.Vec3) {
	*p = particle.Base{}
	payload.Zero()
	// the bounds pass adds this tick's offset back
	p.Location = location.Sub(e.positionOffset)
	p.BaseVelocity = velocity
	p.Velocity = velocity
}

func (e *Instance) postSpawn(p *particle.Base, interp, spawnTime float32) {
	// spread spawns along the path the emitter moved this tick
	if !e.req.LocalSpace {
		moved := e.oldLocation.Sub(e.location)
		if moved.LenSqr() > 1 {
			p.Location = p.Location.Add(moved.Mul(interp))
		}
	}
	p.OldLocation = p.Location
	p.Location = p.Location.Add(p.Velocity.Mul(spawnTime))
	p.Flags |= particle.Flags(e.counter)&particle.CounterMask | particle.FlagJustSpawned
	e.counter++
}

// ForceSpawn spawns particles outside the schedule at a location in
// simulation space. Spawn and burst events are not reported for them.
func (e *Instance) ForceSpawn(dt float32, count, burstCount int, location, velocity mgl32.Vec3) {
	if e.buf == nil || e.level().Disabled {
		return
	}
	count, burstCount = max(count, 0), max(burstCount, 0)
	limit := e.cfg.Spawn.EffectiveCap(e.def.MaxActive)
	if limit > 0 {
		room := max(limit-e.buf.Active(), 0)
		burstCount = min(burstCount, room)
		count = min(count, room-burstCount)
	}
	total := count + burstCount
	if total == 0 {
		return
	}
	need := e.buf.Active() + total
	if need >= e.buf.Capacity() {
		target := spawn.GrowthTarget(need)
		if limit > 0 {
			target = min(target, max(limit, need))
		}
		peakDelta := e.cfg.Spawn.PeakUpdateDelta
		if peakDelta <= 0 {
			peakDelta = spawn.PeakUpdateDelta
		}
		mode := buffer.RecordPeak
		if dt >= peakDelta {
			mode = buffer.BestEffort
		}
		if !e.grow(need, target, mode) {
			return
		}
	}

	var increment float32
	if count > 0 {
		increment = dt / float32(count)
	}
	e.spawnParticles(count, dt, increment, location, velocity, false, false)
	e.spawnParticles(burstCount, dt, 0, location, velocity, true, false)
}
