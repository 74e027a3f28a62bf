// Package system owns the emitter instances of one particle system. It fans out
// ticks, transforms and commands to them, merges their bounds and splits each
// tick into a compute step that may run on another goroutine and a finalize
// step that runs on the owner goroutine.
package system

import (
	"context"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/zeusync/cascade/internal/core/events/bus"
	"github.com/zeusync/cascade/internal/core/observability/log"
	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/bounds"
	"github.com/zeusync/cascade/internal/core/particle/definition"
	"github.com/zeusync/cascade/internal/core/particle/emitter"
	"github.com/zeusync/cascade/internal/core/particle/lod"
	"github.com/zeusync/cascade/internal/core/particle/snapshot"
	"github.com/zeusync/cascade/pkg/concurrent"
)

// Component is a running particle system. Apart from the parameter setters it
// must be used from a single owner goroutine; the compute task is the only other
// goroutine that touches the instances, and every method that reads or changes
// them first waits for it.
type Component struct {
	id     uuid.UUID
	name   string
	def    *definition.System
	cfg    Config
	logger log.Log
	bus    bus.EventBus
	params *particle.Parameters
	sinks  []Sink
	ctx    context.Context
	seed   *uint64

	instances []*emitter.Instance
	task      *concurrent.Task
	// set by Tick, cleared by Finalize
	needsFinalize bool
	deltaTime     float32
	suppress      bool

	componentToWorld mgl32.Mat4
	viewers          []mgl32.Vec3
	lodLevel         int

	active           bool
	wasDeactivated   bool
	wasCompleted     bool
	hasBeenActivated bool
	warmingUp        bool
	warmupTime       float32
	forcedInactive   bool
	closed           bool

	accumTickTime      float32
	accumLODCheck      float32
	sinceRendered      float32
	sinceBoundsRefresh float32
	simTime            float32

	bounds      bounds.AABB
	boundsDirty bool
	oldPosition mgl32.Vec3
	velocity    mgl32.Vec3

	frame    *snapshot.Frame
	sequence uint64

	onFinished []func(*Component)
}

// New creates a component for def and initializes its emitter instances. The
// definition must be prepared. The component starts inactive.
func New(def *definition.System, opts ...Option) *Component {
	o := options{config: DefaultConfig(), transform: mgl32.Ident4()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNop()
	}
	if o.params == nil {
		o.params = particle.NewParameters()
	}
	if o.ctx == nil {
		o.ctx = context.Background()
	}
	if o.name == "" {
		o.name = def.Name
	}

	c := &Component{
		id:               uuid.New(),
		name:             o.name,
		def:              def,
		cfg:              o.config,
		bus:              o.bus,
		params:           o.params,
		sinks:            o.sinks,
		ctx:              o.ctx,
		seed:             o.seed,
		componentToWorld: o.transform,
		warmupTime:       def.WarmupTime,
		boundsDirty:      true,
	}
	if c.cfg.BoundsRefreshInterval <= 0 {
		c.cfg.BoundsRefreshInterval = DefaultBoundsRefreshInterval
	}
	c.logger = o.logger.Named("system").With(log.String("system", c.name), log.Stringer("component", c.id))
	c.oldPosition = c.location()
	c.InitializeSystem()
	return c
}

// InitializeSystem drops every instance and builds fresh ones from the definition.
func (c *Component) InitializeSystem() {
	c.ForceAsyncWorkCompletion(Stall)
	if c.closed {
		return
	}
	c.instances = make([]*emitter.Instance, 0, len(c.def.Emitters))
	for i, def := range c.def.Emitters {
		c.instances = append(c.instances, emitter.New(def, c.instanceOptions(i)...))
	}
	c.accumTickTime = 0
	c.boundsDirty = true
	c.logger.Debug("system initialized", log.Int("emitters", len(c.instances)))
}

func (c *Component) instanceOptions(i int) []emitter.Option {
	opts := []emitter.Option{
		emitter.WithConfig(c.cfg.Emitter),
		emitter.WithLogger(c.logger),
		emitter.WithParameters(c.params),
		emitter.WithSystem(c.name, c.def.Material),
		emitter.WithTransform(c.componentToWorld),
		emitter.WithLOD(c.lodLevel),
		emitter.WithFixedBounds(c.def.FixedBounds),
	}
	if c.seed != nil {
		opts = append(opts, emitter.WithRand(rand.New(rand.NewPCG(*c.seed, uint64(i)))))
	}
	return opts
}

// Activate starts the system. Without reset an already active system is left alone.
func (c *Component) Activate(reset bool) {
	c.ForceAsyncWorkCompletion(Stall)
	if c.closed || !(reset || c.shouldActivate()) {
		return
	}

	c.suppress = false
	c.wasCompleted = false
	c.wasDeactivated = false
	c.active = true

	switch {
	case len(c.instances) == 0 || (c.cfg.Emitter.GameWorld && c.hasBeenActivated):
		c.InitializeSystem()
	case !c.cfg.Emitter.GameWorld:
		// previews restart in place and keep their particles
		for _, inst := range c.instances {
			inst.Rewind()
			inst.Resume()
		}
	}

	if c.def.LODMethod != lod.DirectSet {
		c.SetLODLevel(c.DetermineLODLevel())
	}
	c.hasBeenActivated = true

	if c.warmupTime > 0 {
		c.warmup()
	}
	c.accumTickTime = 0
	c.sinceRendered = 0
	c.logger.Debug("system activated", log.Bool("reset", reset))
}

func (c *Component) shouldActivate() bool {
	return !c.active || c.wasDeactivated || c.wasCompleted
}

// warmup simulates the warm-up time in coarse inline ticks before the first frame.
func (c *Component) warmup() {
	step := float32(DefaultWarmupStep)
	if rate := c.def.WarmupTickRate; rate > 0 {
		step = min(rate, c.warmupTime)
	}

	c.warmingUp = true
	for _, inst := range c.instances {
		inst.ResetBursts()
		inst.SetSkipBounds(true)
	}
	ticks := 0
	for elapsed := float32(0); elapsed < c.warmupTime; elapsed += step {
		c.tick(step, false)
		ticks++
	}
	for _, inst := range c.instances {
		inst.SetSkipBounds(false)
	}
	c.warmingUp = false
	c.warmupTime = 0
	c.boundsDirty = true
	c.logger.Debug("system warmed up", log.Int("ticks", ticks), log.Float32("step", step))
}

// Deactivate stops spawning. Particles tick out their lifetime unless their
// LOD level kills them on deactivation. An in-flight compute task is not interrupted.
func (c *Component) Deactivate() {
	c.ForceAsyncWorkCompletion(Stall)
	if c.shouldActivate() {
		return
	}
	c.suppress = true
	c.wasDeactivated = true
	for _, inst := range c.instances {
		inst.Deactivate()
	}
	c.sinceRendered = 0
	c.logger.Debug("system deactivated")
}

// Rewind restarts every instance from time zero, keeping live particles.
func (c *Component) Rewind() {
	c.ForceAsyncWorkCompletion(Stall)
	for _, inst := range c.instances {
		inst.Rewind()
	}
}

// ResetParticles marks the system inactive. With empty, or outside a game world,
// the instances are dropped; otherwise they are rewound.
func (c *Component) ResetParticles(empty bool) {
	c.ForceAsyncWorkCompletion(EnsureAndStall)
	c.active = false
	if empty || !c.cfg.Emitter.GameWorld {
		c.instances = nil
		c.frame = nil
		return
	}
	for _, inst := range c.instances {
		inst.Rewind()
	}
}

// Reload swaps in a new definition. Instances are rebuilt under exclusive
// access and an active system is reactivated.
func (c *Component) Reload(def *definition.System) error {
	c.ForceAsyncWorkCompletion(Stall)
	if c.closed {
		return particle.ErrClosed
	}
	wasActive := c.active && !c.wasDeactivated
	c.ResetParticles(true)
	c.def = def
	c.warmupTime = def.WarmupTime
	c.InitializeSystem()
	if wasActive {
		c.hasBeenActivated = false
		c.Activate(true)
	}
	c.logger.Info("system reloaded", log.Int("emitters", len(def.Emitters)), log.Bool("active", wasActive))
	return nil
}

// Close waits for in-flight work and frees every instance. Further calls are no-ops.
func (c *Component) Close() error {
	if c.closed {
		return nil
	}
	c.ForceAsyncWorkCompletion(Stall)
	c.closed = true
	c.active = false
	c.instances = nil
	c.frame = nil
	c.logger.Debug("system closed", log.Uint64("frames", c.sequence))
	return nil
}

// OnSystemFinished registers fn to run at finalize when the system completes.
func (c *Component) OnSystemFinished(fn func(*Component)) {
	c.onFinished = append(c.onFinished, fn)
}

func (c *Component) ID() uuid.UUID                  { return c.id }
func (c *Component) Name() string                   { return c.name }
func (c *Component) Definition() *definition.System { return c.def }
func (c *Component) Active() bool                   { return c.active }
func (c *Component) ForcedInactive() bool           { return c.forcedInactive }
func (c *Component) Closed() bool                   { return c.closed }

// Velocity is the component velocity measured over the last finalized tick.
func (c *Component) Velocity() mgl32.Vec3 { return c.velocity }

// MarkRendered tells the component it was drawn, resetting the inactivity timer.
func (c *Component) MarkRendered() { c.sinceRendered = 0 }

// Instances returns the emitter instances after waiting for in-flight work.
func (c *Component) Instances() []*emitter.Instance {
	c.ForceAsyncWorkCompletion(Stall)
	return c.instances
}

// NumActiveParticles sums live particles over every instance.
func (c *Component) NumActiveParticles() int {
	c.ForceAsyncWorkCompletion(Stall)
	n := 0
	for _, inst := range c.instances {
		n += inst.NumActiveParticles()
	}
	return n
}

// KillParticlesForced removes every live particle without death events.
func (c *Component) KillParticlesForced() {
	c.ForceAsyncWorkCompletion(Stall)
	for _, inst := range c.instances {
		inst.KillParticlesForced(false)
	}
}

// HasCompleted reports whether every instance is done. Looping instances only
// complete after deactivation once their particles are gone; disabled LOD
// levels never hold the system alive.
func (c *Component) HasCompleted() bool {
	c.ForceAsyncWorkCompletion(Stall)
	return c.hasCompleted()
}

func (c *Component) hasCompleted() bool {
	for _, inst := range c.instances {
		level := inst.Definition().LOD(inst.LOD())
		if level == nil || level.Disabled || level.Required == nil {
			continue
		}
		if level.Required.Loops > 0 {
			if c.wasDeactivated && c.suppress {
				if inst.NumActiveParticles() != 0 {
					return false
				}
				continue
			}
			if !inst.HasCompleted() {
				return false
			}
			continue
		}
		if !c.wasDeactivated || inst.NumActiveParticles() != 0 {
			return false
		}
	}
	return true
}
