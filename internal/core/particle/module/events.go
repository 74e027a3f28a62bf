package module

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/distribution"
	"github.com/zeusync/cascade/internal/core/particle/event"
)

// GeneratedEvent configures one event an EventSource reports.
type GeneratedEvent struct {
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`
	// Every reports only each n-th particle, by spawn sequence. 0 or 1 reports all.
	Every uint32 `yaml:"every"`
}

// EventSource reports spawn, death, collision and burst events.
type EventSource struct {
	Common `yaml:",inline"`
	Events []GeneratedEvent `yaml:"events"`
}

var _ EventGenerator = (*EventSource)(nil)

func (*EventSource) Type() string { return "event_generator" }
func (*EventSource) Kind() Kind   { return KindEventGenerator }

func (m *EventSource) each(kind event.Kind, p *particle.Base, fn func(GeneratedEvent)) {
	for _, e := range m.Events {
		k, ok := event.ParseKind(e.Kind)
		if !ok || (k != kind && k != event.Any) {
			continue
		}
		if p != nil && e.Every > 1 && p.Flags.Counter()%e.Every != 0 {
			continue
		}
		fn(e)
	}
}

func (m *EventSource) report(ctx *Context, g GeneratedEvent, kind event.Kind, p *particle.Base) event.Event {
	e := event.Event{
		Kind:        kind,
		Name:        g.Name,
		EmitterTime: ctx.EmitterTime,
		At:          time.Now(),
	}
	if ctx.Emitter != nil {
		e.Emitter = ctx.Emitter.Name()
	}
	if p != nil {
		toWorld := mgl32.Ident4()
		if ctx.Emitter != nil {
			toWorld = ctx.Emitter.SimulationToWorld()
		}
		e.Location = mgl32.TransformCoordinate(p.Location, toWorld)
		e.Velocity = toWorld.Mul4x1(p.Velocity.Vec4(0)).Vec3()
		if e.Velocity.LenSqr() > 0 {
			e.Direction = e.Velocity.Normalize()
		}
		e.ParticleTime = p.RelativeTime
	}
	return e
}

func (m *EventSource) HandleSpawn(ctx *Context, p *particle.Base) {
	m.each(event.Spawn, p, func(g GeneratedEvent) {
		ctx.Emitter.Report(m.report(ctx, g, event.Spawn, p))
	})
}

func (m *EventSource) HandleDeath(ctx *Context, p *particle.Base) {
	m.each(event.Death, p, func(g GeneratedEvent) {
		ctx.Emitter.Report(m.report(ctx, g, event.Death, p))
	})
}

func (m *EventSource) HandleCollision(ctx *Context, p *particle.Base, normal mgl32.Vec3, t float32) {
	m.each(event.Collision, p, func(g GeneratedEvent) {
		e := m.report(ctx, g, event.Collision, p)
		e.Normal = normal
		e.Time = t
		ctx.Emitter.Report(e)
	})
}

func (m *EventSource) HandleBurst(ctx *Context, count int) {
	m.each(event.Burst, nil, func(g GeneratedEvent) {
		e := m.report(ctx, g, event.Burst, nil)
		e.Count = count
		ctx.Emitter.Report(e)
	})
}

// SpawnOnEvent spawns particles where sibling emitters reported an event.
type SpawnOnEvent struct {
	Common    `yaml:",inline"`
	EventKind string                 `yaml:"kind"`
	Name      string                 `yaml:"name"`
	Count     distribution.FloatSpec `yaml:"count"`
	// InheritVelocity scales the event velocity into the spawned particles.
	InheritVelocity float32 `yaml:"inherit_velocity"`
}

var _ EventReceiver = (*SpawnOnEvent)(nil)

func (*SpawnOnEvent) Type() string { return "spawn_on_event" }
func (*SpawnOnEvent) Kind() Kind   { return KindEventReceiver }

func (m *SpawnOnEvent) Accepts(e event.Event) bool {
	kind, ok := event.ParseKind(m.EventKind)
	if !ok {
		kind = event.Any
	}
	return event.Filter(e, kind, m.Name)
}

func (m *SpawnOnEvent) Receive(ctx *Context, e event.Event, spawner ForceSpawner) {
	n := int(distribution.Eval(m.Count.Float, ctx.EmitterTime, ctx, 1))
	if n <= 0 {
		return
	}
	loc := e.Location
	vel := e.Velocity.Mul(m.InheritVelocity)
	if ctx.Emitter != nil && ctx.Emitter.UseLocalSpace() {
		toSim := ctx.Emitter.SimulationToWorld().Inv()
		loc = mgl32.TransformCoordinate(loc, toSim)
		vel = toSim.Mul4x1(vel.Vec4(0)).Vec3()
	}
	spawner.ForceSpawn(ctx.DeltaTime, n, 0, loc, vel)
}
