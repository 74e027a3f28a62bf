// Package emitter runs one emitter definition: it owns the particle buffer, the
// burst schedule, the loop and delay timing and the bounds of a single running
// copy of an emitter, and drives the module pipeline through every tick.
package emitter

import (
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/zeusync/cascade/internal/core/observability/log"
	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/bounds"
	"github.com/zeusync/cascade/internal/core/particle/buffer"
	"github.com/zeusync/cascade/internal/core/particle/burst"
	"github.com/zeusync/cascade/internal/core/particle/definition"
	"github.com/zeusync/cascade/internal/core/particle/event"
	"github.com/zeusync/cascade/internal/core/particle/layout"
	"github.com/zeusync/cascade/internal/core/particle/lod"
	"github.com/zeusync/cascade/internal/core/particle/module"
	"github.com/zeusync/cascade/internal/core/particle/pipeline"
)

type State uint8

const (
	StateUninitialized State = iota
	StateInitialized
	StateTicking
	StateDeactivated
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateTicking:
		return "ticking"
	case StateDeactivated:
		return "deactivated"
	case StateCompleted:
		return "completed"
	default:
		return "uninitialized"
	}
}

// Stats counts what happened to an instance since it was created.
type Stats struct {
	Spawned uint64
	Killed  uint64
	// Rejected counts particles a spawn module refused.
	Rejected       uint64
	Bursts         uint64
	BurstParticles uint64
	// Clamped counts ticks where the particle cap cut spawns short.
	Clamped        uint64
	Resizes        uint64
	ResizeFailures uint64
}

var (
	_ module.Emitter      = (*Instance)(nil)
	_ module.ForceSpawner = (*Instance)(nil)
)

// Instance is one running copy of an emitter definition. It is not safe for
// concurrent use; the owning system serializes access.
type Instance struct {
	id        uuid.UUID
	def       *definition.Emitter
	cfg       Config
	logger    log.Log
	system    string
	materials func(slot string) (string, bool)

	params *particle.Parameters
	ctx    module.Context
	events event.Collector

	buf      *buffer.Buffer
	instance particle.Payload
	bursts   *burst.Scheduler
	tracker  bounds.Tracker
	fixed    *bounds.AABB

	state State
	lod   int
	req   *definition.Required

	componentToWorld    mgl32.Mat4
	emitterToSimulation mgl32.Mat4
	simulationToWorld   mgl32.Mat4
	// location of the emitter origin in the world, and where it was last tick
	location       mgl32.Vec3
	oldLocation    mgl32.Vec3
	justRegistered bool

	emitterTime          float32
	secondsSinceCreation float32
	loopCount            int
	duration             float32
	delay                float32
	leftover             float32
	carriedBurst         burst.Result
	counter              uint32
	lastDeltaTime        float32
	positionOffset       mgl32.Vec3
	halted               bool
	firstTick            bool
	skipBounds           bool

	stats Stats
}

// New creates and initializes an instance. A definition without valid LOD
// levels yields an instance that simulates and renders nothing.
func New(def *definition.Emitter, opts ...Option) *Instance {
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
	if o.rand == nil {
		o.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	e := &Instance{
		id:               uuid.New(),
		def:              def,
		cfg:              o.config,
		system:           o.system,
		materials:        o.materials,
		params:           o.params,
		fixed:            o.fixed,
		componentToWorld: o.transform,
		lod:              o.lod,
	}
	e.logger = o.logger.Named("emitter").With(log.String("emitter", def.Name), log.Stringer("instance", e.id))
	e.ctx = module.Context{Emitter: e, Rand: o.rand}
	e.init()
	return e
}

func (e *Instance) init() {
	e.state = StateInitialized
	e.tracker.Reset()
	if !e.def.Valid() {
		e.logger.Warn("emitter has no valid layout, instance renders nothing")
		return
	}
	l := e.def.Layout()
	e.lod = lod.Resolve(e.lod, len(e.def.LODs))
	e.req = e.def.LODs[e.lod].Required
	e.bursts = burst.New(e.def.Bursts())

	e.buf = buffer.New(l.PayloadStride, e.cfg.MaxParticleResize, e.def.Peak())
	initial := e.def.InitialCapacity()
	if limit := e.cfg.Spawn.EffectiveCap(e.def.MaxActive); limit > 0 {
		initial = min(initial, limit)
	}
	if ceiling := e.buf.Ceiling(); ceiling > 0 {
		initial = min(initial, ceiling)
	}
	e.buf.Resize(initial, buffer.BestEffort)
	e.instance = make(particle.Payload, l.InstanceSize)

	e.updateTransforms()
	e.resetTime()
	e.setupDuration()
	e.pipeline().InitInstance(&e.ctx, e.instance)
}

func (e *Instance) resetTime() {
	e.emitterTime = 0
	e.secondsSinceCreation = 0
	e.loopCount = 0
	e.leftover = 0
	e.counter = 0
	e.carriedBurst = burst.Result{}
	e.firstTick = true
	e.justRegistered = true
}

// setupDuration rolls the duration and delay of the coming loop. The stored
// duration includes the delay.
func (e *Instance) setupDuration() {
	req := e.req
	e.delay = req.RollDelay(&e.ctx)
	e.duration = req.RollDuration(&e.ctx) + e.delay
	if e.loopCount == 1 && req.DelayFirstLoopOnly && (req.Loops == 0 || req.Loops > 1) {
		e.duration -= e.delay
	}
}

func (e *Instance) updateTransforms() {
	if e.req == nil {
		e.emitterToSimulation, e.simulationToWorld = e.componentToWorld, mgl32.Ident4()
		return
	}
	emitterToComponent := e.req.EmitterToComponent()
	if e.req.LocalSpace {
		e.emitterToSimulation = emitterToComponent
		e.simulationToWorld = e.componentToWorld
		return
	}
	e.emitterToSimulation = e.componentToWorld.Mul4(emitterToComponent)
	e.simulationToWorld = mgl32.Ident4()
}

func (e *Instance) pipeline() *pipeline.Pipeline { return e.def.Pipeline() }

func (e *Instance) generator() module.EventGenerator {
	if e.buf == nil {
		return nil
	}
	return e.pipeline().Generator(e.lod)
}

func (e *Instance) level() *definition.LODLevel { return e.def.LOD(e.lod) }

// SetTransform places the owning component in the world.
func (e *Instance) SetTransform(componentToWorld mgl32.Mat4) {
	e.componentToWorld = componentToWorld
	e.updateTransforms()
}

// SetSkipBounds makes the bounds pass integrate motion without maintaining the
// box. Warm-up ticks use it.
func (e *Instance) SetSkipBounds(skip bool) { e.skipBounds = skip }

func (e *Instance) ID() uuid.UUID                   { return e.id }
func (e *Instance) Definition() *definition.Emitter { return e.def }
func (e *Instance) State() State                    { return e.state }
func (e *Instance) LOD() int                        { return e.lod }
func (e *Instance) EmitterTime() float32            { return e.emitterTime }
func (e *Instance) SecondsSinceCreation() float32   { return e.secondsSinceCreation }
func (e *Instance) LoopCount() int                  { return e.loopCount }
func (e *Instance) Duration() float32               { return e.duration }
func (e *Instance) Stats() Stats                    { return e.stats }
func (e *Instance) Bounds() bounds.AABB             { return e.tracker.Box() }

// NumActiveParticles is the live particle count.
func (e *Instance) NumActiveParticles() int {
	if e.buf == nil {
		return 0
	}
	return e.buf.Active()
}

// Capacity is the number of allocated slots.
func (e *Instance) Capacity() int {
	if e.buf == nil {
		return 0
	}
	return e.buf.Capacity()
}

// Particles exposes the live particles. Nil for an invalid definition.
func (e *Instance) Particles() module.Particles {
	if e.buf == nil {
		return nil
	}
	return e.buf
}

// InstanceData is the per-instance module block.
func (e *Instance) InstanceData() particle.Payload { return e.instance }

// Layout is the payload layout shared by every instance of the definition.
func (e *Instance) Layout() *layout.Layout { return e.def.Layout() }

func (e *Instance) Name() string { return e.def.Name }

func (e *Instance) UseLocalSpace() bool { return e.req != nil && e.req.LocalSpace }

func (e *Instance) EmitterToSimulation() mgl32.Mat4 { return e.emitterToSimulation }
func (e *Instance) SimulationToWorld() mgl32.Mat4   { return e.simulationToWorld }

func (e *Instance) SubImages() (h, v int) {
	if e.req == nil {
		return 1, 1
	}
	return e.req.SubImages()
}

func (e *Instance) Parameters() *particle.Parameters { return e.params }

// Report buffers an event until the owner drains it at finalize.
func (e *Instance) Report(ev event.Event) {
	if ev.System == "" {
		ev.System = e.system
	}
	if ev.Emitter == "" {
		ev.Emitter = e.def.Name
	}
	e.events.Report(ev)
}

// NotifyCollision forwards a collision to the event generator of the current LOD.
func (e *Instance) NotifyCollision(p *particle.Base, normal mgl32.Vec3, t float32) {
	if g := e.generator(); g != nil {
		g.HandleCollision(&e.ctx, p, normal, t)
	}
}

// DrainEvents returns the events reported since the last drain.
func (e *Instance) DrainEvents() []event.Event {
	return e.events.Drain()
}

// Material resolves the material to render with. An instance parameter naming
// the slot wins over the system default for that slot, which wins over the
// material of the LOD level.
func (e *Instance) Material() string {
	if e.req == nil {
		return ""
	}
	if slot := e.req.NamedMaterial; slot != "" {
		if p, ok := e.params.Lookup(slot); ok && p.Kind == particle.ParamMaterial && p.Material != "" {
			return p.Material
		}
		if e.materials != nil {
			if m, ok := e.materials(slot); ok && m != "" {
				return m
			}
		}
	}
	return e.req.Material
}
