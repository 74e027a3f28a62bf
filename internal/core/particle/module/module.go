// Package module defines the behaviour units an emitter LOD level is built from.
// A module is stateless configuration shared by every instance of a definition;
// per-particle and per-instance state lives in payload bytes reserved by the layout.
// Which stages a module takes part in is decided by the capability interfaces it
// implements.
package module

import (
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/distribution"
	"github.com/zeusync/cascade/internal/core/particle/event"
)

// Kind tags modules whose payload the core reads directly.
type Kind uint8

const (
	KindGeneric Kind = iota
	KindTypeData
	KindDynamicParameter
	KindLight
	KindCameraOffset
	KindMeshRotation
	KindOrbit
	KindSubImage
	KindAxisLock
	KindPivotOffset
	KindEventGenerator
	KindEventReceiver
)

type Module interface {
	// Type is the registry name, identical across LOD levels for the same slot.
	Type() string
	Kind() Kind
	Enabled() bool
	// RequiredBytes is the per-particle payload size. Negative values are invalid.
	RequiredBytes() int
	RequiredBytesPerInstance() int
}

// Spawner initialises a freshly spawned particle.
type Spawner interface {
	Module
	Spawn(ctx *Context, p *particle.Base, region particle.Payload)
}

// Updater runs on every live particle each tick, after the reset step.
type Updater interface {
	Module
	Update(ctx *Context, p *particle.Base, region particle.Payload)
}

// FinalUpdater runs after movement and bounds, e.g. collision response.
type FinalUpdater interface {
	Module
	FinalUpdate(ctx *Context, p *particle.Base, region particle.Payload)
}

// PostUpdater is called once per tick with the whole particle set. Only the
// type-data module of a LOD level is asked.
type PostUpdater interface {
	Module
	PostUpdate(ctx *Context, particles Particles)
}

// InstanceInitializer prepares the per-instance block when an instance is created.
type InstanceInitializer interface {
	Module
	InitInstance(ctx *Context, instance particle.Payload)
}

// EventGenerator turns particle lifecycle moments into reported events.
type EventGenerator interface {
	Module
	HandleSpawn(ctx *Context, p *particle.Base)
	HandleDeath(ctx *Context, p *particle.Base)
	HandleCollision(ctx *Context, p *particle.Base, normal mgl32.Vec3, t float32)
	HandleBurst(ctx *Context, count int)
}

// EventReceiver reacts to events reported by sibling emitters.
type EventReceiver interface {
	Module
	Accepts(e event.Event) bool
	Receive(ctx *Context, e event.Event, spawner ForceSpawner)
}

// ForceSpawner spawns particles outside the regular rate and burst schedule.
type ForceSpawner interface {
	ForceSpawn(dt float32, count, burstCount int, location, velocity mgl32.Vec3)
}

// MeshExtenter is implemented by type data that renders meshes instead of sprites.
type MeshExtenter interface {
	MeshExtent() mgl32.Vec3
}

// Particles is the live particle set as seen by PostUpdate.
type Particles interface {
	Active() int
	Particle(i int) *particle.Base
	Payload(i int) particle.Payload
}

// Emitter is the owning emitter instance as seen by modules.
type Emitter interface {
	Name() string
	UseLocalSpace() bool
	// EmitterToSimulation maps emitter space into the space particles are simulated in.
	EmitterToSimulation() mgl32.Mat4
	SimulationToWorld() mgl32.Mat4
	SubImages() (h, v int)
	Parameters() *particle.Parameters
	Report(e event.Event)
	NotifyCollision(p *particle.Base, normal mgl32.Vec3, t float32)
}

// Context carries per-call inputs. The pipeline reuses one Context per pass and
// rewrites Instance for every module.
type Context struct {
	DeltaTime   float32
	EmitterTime float32
	// SpawnTime is how far into the tick the particle being spawned was born.
	SpawnTime float32
	Instance  particle.Payload
	Emitter   Emitter
	Rand      *rand.Rand
}

var _ distribution.Source = (*Context)(nil)

func (c *Context) Float32() float32 { return c.Rand.Float32() }

func (c *Context) Param(name string) (particle.Param, bool) {
	if c.Emitter == nil {
		return particle.Param{}, false
	}
	return c.Emitter.Parameters().Lookup(name)
}

// TransformVector maps a direction from emitter space into simulation space.
func (c *Context) TransformVector(v mgl32.Vec3) mgl32.Vec3 {
	if c.Emitter == nil {
		return v
	}
	return c.Emitter.EmitterToSimulation().Mul4x1(v.Vec4(0)).Vec3()
}

// TransformPosition maps a point from emitter space into simulation space.
func (c *Context) TransformPosition(v mgl32.Vec3) mgl32.Vec3 {
	if c.Emitter == nil {
		return v
	}
	return mgl32.TransformCoordinate(v, c.Emitter.EmitterToSimulation())
}

// Common carries the settings every module shares and zero-size defaults.
type Common struct {
	Disabled bool `yaml:"disabled"`
}

func (c Common) Enabled() bool               { return !c.Disabled }
func (Common) Kind() Kind                    { return KindGeneric }
func (Common) RequiredBytes() int            { return 0 }
func (Common) RequiredBytesPerInstance() int { return 0 }
