package system

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/events/bus"
	"github.com/zeusync/cascade/internal/core/observability/log"
	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/bounds"
	"github.com/zeusync/cascade/internal/core/particle/emitter"
	"github.com/zeusync/cascade/internal/core/particle/event"
	"github.com/zeusync/cascade/internal/core/particle/lod"
	"github.com/zeusync/cascade/internal/core/particle/snapshot"
	"github.com/zeusync/cascade/pkg/concurrent"
)

// minSecondsBeforeInactive keeps the inactivity check above frame jitter.
const minSecondsBeforeInactive = 0.1

// Tick advances the system by dt. With async ticking enabled the per-particle
// work starts on another goroutine and Finalize must be called before the
// results are read; otherwise Tick finalizes inline.
func (c *Component) Tick(dt float32) error {
	c.ForceAsyncWorkCompletion(EnsureAndStall)
	if c.closed {
		return particle.ErrClosed
	}
	c.tick(dt, c.cfg.AllowAsyncTick && !c.warmingUp)
	return nil
}

func (c *Component) tick(dt float32, async bool) {
	if !c.active || len(c.instances) == 0 {
		return
	}

	if !c.warmingUp {
		c.sinceRendered += dt
		if c.inactiveTooLong() {
			if !c.forcedInactive {
				c.logger.Debug("system not rendered, skipping ticks", log.Float32("seconds", c.sinceRendered))
			}
			c.forcedInactive = true
			for _, inst := range c.instances {
				inst.DrainEvents()
			}
			return
		}

		c.accumLODCheck += dt
		if c.accumLODCheck > c.def.CheckInterval() {
			c.accumLODCheck = 0
			if c.def.LODMethod == lod.Automatic {
				c.SetLODLevel(c.DetermineLODLevel())
			}
		}
	}

	c.forcedInactive = false
	c.accumTickTime += dt
	if c.def.OrientZToCamera {
		c.orientZToCamera()
	}
	if c.def.FixedTimeStep > 0 {
		dt = c.def.FixedTimeStep
	}

	c.deltaTime = dt
	c.needsFinalize = true
	if !async {
		c.task = concurrent.Completed(c.compute(c.ctx))
		if err := c.Finalize(); err != nil {
			c.logger.Error("particle tick failed", log.Error(err))
		}
		return
	}
	c.task = concurrent.Go(c.ctx, c.compute)
}

func (c *Component) inactiveTooLong() bool {
	limit := c.def.SecondsBeforeInactive
	if limit <= 0 || !c.cfg.Emitter.GameWorld {
		return false
	}
	limit = max(limit, minSecondsBeforeInactive)
	return c.accumTickTime > limit && c.sinceRendered > limit
}

// compute ticks every instance. Instances never read each other, so they run in parallel.
func (c *Component) compute(ctx context.Context) error {
	dt, suppress := c.deltaTime, c.suppress
	return concurrent.ForEach(ctx, c.instances, c.cfg.Workers, func(_ context.Context, inst *emitter.Instance) error {
		inst.Tick(dt, suppress)
		return nil
	})
}

// Finalize joins the compute task and publishes its results: events are routed
// to receiver modules and the bus, completion is detected, bounds are merged
// and the frame is built and handed to the sinks. It must run on the owner
// goroutine and is a no-op when there is nothing to finalize. A panic raised by
// a module during compute is raised again from Finalize.
func (c *Component) Finalize() error {
	if !c.needsFinalize {
		return nil
	}
	c.needsFinalize = false
	var err error
	if task := c.task; task != nil {
		// a module panic is raised here, on the owner goroutine
		c.task = nil
		if err = task.Wait(); err != nil {
			err = fmt.Errorf("compute %s: %w", c.name, err)
		}
	}
	dt := c.deltaTime

	c.routeEvents()

	completed := c.hasCompleted()
	if completed && !c.wasCompleted {
		c.logger.Info("system finished", log.Float32("time", c.simTime+dt))
		for _, fn := range c.onFinished {
			fn(c)
		}
		c.ResetParticles(false)
	}
	c.wasCompleted = completed

	c.updateBounds(dt, completed)

	loc := c.location()
	if dt > 0 {
		c.velocity = loc.Sub(c.oldPosition).Mul(1 / dt)
	}
	c.oldPosition = loc
	c.simTime += dt

	if !c.warmingUp {
		c.publishFrame()
	}
	return err
}

func (c *Component) routeEvents() {
	var events []event.Event
	for _, inst := range c.instances {
		events = append(events, inst.DrainEvents()...)
	}
	if len(events) == 0 {
		return
	}
	for _, inst := range c.instances {
		inst.ProcessEvents(events)
	}
	if c.bus == nil {
		return
	}
	out := make([]bus.Event, len(events))
	for i := range events {
		out[i] = events[i]
	}
	if err := c.bus.PublishBatch(c.name, out...); err != nil {
		c.logger.Warn("event handlers failed", log.Int("events", len(events)), log.Error(err))
	}
}

// updateBounds grows the system box whenever an instance box escapes it and
// recomputes it from scratch every refresh interval so it can shrink again.
func (c *Component) updateBounds(dt float32, completed bool) {
	if !c.warmingUp && !completed && c.def.FixedBounds == nil && !c.boundsDirty {
		c.sinceBoundsRefresh += dt
		if c.sinceBoundsRefresh > c.cfg.BoundsRefreshInterval {
			c.boundsDirty = true
		} else if merged := c.mergedBounds(); merged.Valid && !c.bounds.ContainsBox(merged) {
			c.boundsDirty = true
		}
	}
	if c.boundsDirty {
		c.bounds = c.mergedBounds()
		c.sinceBoundsRefresh = 0
		c.boundsDirty = false
	}
}

func (c *Component) mergedBounds() bounds.AABB {
	if fixed := c.def.FixedBounds; fixed != nil {
		return fixed.Transform(c.componentToWorld)
	}
	box := bounds.Empty()
	for _, inst := range c.instances {
		if level := inst.Definition().LOD(inst.LOD()); level == nil || level.Disabled {
			continue
		}
		box = box.Union(inst.Bounds())
	}
	return box
}

type exported struct {
	data snapshot.Emitter
	ok   bool
}

func (c *Component) publishFrame() {
	c.sequence++
	frame := &snapshot.Frame{
		System:   c.name,
		Sequence: c.sequence,
		Time:     c.simTime,
		Bounds:   c.bounds,
	}
	exports := concurrent.ParallelMap(c.instances, c.cfg.Workers, func(inst *emitter.Instance) exported {
		data, ok := inst.Snapshot()
		return exported{data, ok}
	})
	for _, e := range exports {
		if e.ok {
			frame.Emitters = append(frame.Emitters, e.data)
		}
	}
	c.frame = frame
	for _, s := range c.sinks {
		if err := s.Record(frame); err != nil {
			c.logger.Warn("frame sink failed", log.Uint64("sequence", frame.Sequence), log.Error(err))
		}
	}
}

// ForceAsyncWorkCompletion blocks until an in-flight compute task is done and
// finalizes it. A wait that actually blocks is a stall and is logged.
func (c *Component) ForceAsyncWorkCompletion(behavior StallBehavior) {
	if c.task == nil {
		return
	}
	if !c.task.IsComplete() {
		start := time.Now()
		<-c.task.Done()
		stall := time.Since(start)
		if behavior != Silent {
			c.logger.Warn("stalled waiting for particle compute task",
				log.Duration("stall", stall),
				log.Stringer("behavior", behavior))
			if behavior == EnsureAndStall && c.cfg.AssertOnStall {
				panic(fmt.Sprintf("system %s: stalled %s waiting for particle compute task", c.name, stall))
			}
		}
	}
	if err := c.Finalize(); err != nil {
		c.logger.Error("particle tick failed", log.Error(err))
	}
}

// Snapshot returns the frame built by the last finalize, or nil before the
// first one. It fails while a tick is waiting to be finalized.
func (c *Component) Snapshot() (*snapshot.Frame, error) {
	if c.closed {
		return nil, particle.ErrClosed
	}
	if c.needsFinalize {
		return nil, particle.ErrNotFinalized
	}
	return c.frame, nil
}

// Bounds is the merged box of every instance.
func (c *Component) Bounds() bounds.AABB {
	c.ForceAsyncWorkCompletion(Stall)
	return c.bounds
}

// ForceUpdateBounds recomputes every instance box from current positions and
// pads the merged result.
func (c *Component) ForceUpdateBounds() bounds.AABB {
	c.ForceAsyncWorkCompletion(Stall)
	box := bounds.Empty()
	for _, inst := range c.instances {
		box = box.Union(inst.ForceUpdateBoundingBox())
	}
	c.bounds = box.Pad(bounds.Padding)
	c.sinceBoundsRefresh = 0
	c.boundsDirty = false
	return c.bounds
}

func (c *Component) location() mgl32.Vec3 { return c.componentToWorld.Col(3).Vec3() }

// SetTransform places the system in the world.
func (c *Component) SetTransform(m mgl32.Mat4) {
	c.ForceAsyncWorkCompletion(Stall)
	c.componentToWorld = m
	for _, inst := range c.instances {
		inst.SetTransform(m)
	}
	c.boundsDirty = true
}

// Transform is the component to world transform.
func (c *Component) Transform() mgl32.Mat4 { return c.componentToWorld }

// ApplyWorldOffset shifts the system and its particles after the world origin moved.
func (c *Component) ApplyWorldOffset(offset mgl32.Vec3) {
	c.ForceAsyncWorkCompletion(Stall)
	c.componentToWorld = mgl32.Translate3D(offset[0], offset[1], offset[2]).Mul4(c.componentToWorld)
	c.oldPosition = c.oldPosition.Add(offset)
	c.bounds = c.bounds.Translate(offset)
	for _, inst := range c.instances {
		inst.SetTransform(c.componentToWorld)
		inst.ApplyWorldOffset(offset)
	}
}

// orientZToCamera turns the local Z axis toward the first viewer.
func (c *Component) orientZToCamera() {
	if len(c.viewers) == 0 {
		return
	}
	dir := c.viewers[0].Sub(c.location())
	if dir.LenSqr() == 0 {
		return
	}
	m := c.componentToWorld.Mat3()
	rot := mgl32.Mat3FromCols(m.Col(0).Normalize(), m.Col(1).Normalize(), m.Col(2).Normalize())
	local := rot.Transpose().Mul3x1(dir.Normalize())

	q := mgl32.QuatBetweenVectors(mgl32.Vec3{0, 0, 1}, local)
	if q.ApproxEqual(mgl32.QuatIdent()) {
		return
	}
	c.componentToWorld = c.componentToWorld.Mul4(q.Mat4())
	for _, inst := range c.instances {
		inst.SetTransform(c.componentToWorld)
	}
	c.boundsDirty = true
}
