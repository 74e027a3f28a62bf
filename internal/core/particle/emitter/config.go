package emitter

import (
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/observability/log"
	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/bounds"
	"github.com/zeusync/cascade/internal/core/particle/spawn"
)

// Config holds the simulation tunables an instance reads. Values come from the
// process configuration and are never read from globals mid-tick.
type Config struct {
	Spawn spawn.Config
	// MaxParticleResize is the hard ceiling of a buffer. 0 disables it.
	MaxParticleResize int
	// MaxParticleResizeWarn logs a warning whenever a resize passes it. 0 disables it.
	MaxParticleResizeWarn int
	// GameWorld kills live particles when switching to a disabled LOD level.
	GameWorld bool
}

func DefaultConfig() Config {
	return Config{
		Spawn:                 spawn.DefaultConfig(),
		MaxParticleResize:     0,
		MaxParticleResizeWarn: 0,
		GameWorld:             true,
	}
}

// Option configures an Instance.
type Option func(*options)

type options struct {
	config    Config
	logger    log.Log
	params    *particle.Parameters
	rand      *rand.Rand
	system    string
	materials func(slot string) (string, bool)
	transform mgl32.Mat4
	lod       int
	fixed     *bounds.AABB
}

// WithConfig sets the simulation tunables.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithLogger sets the logger. The instance names a child logger after the emitter.
func WithLogger(logger log.Log) Option {
	return func(o *options) { o.logger = logger }
}

// WithParameters shares a named parameter table, usually owned by the system.
func WithParameters(params *particle.Parameters) Option {
	return func(o *options) { o.params = params }
}

// WithRand sets the random source. Tests use it for determinism.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rand = r }
}

// WithSystem names the owning system and resolves its material slots.
func WithSystem(name string, materials func(slot string) (string, bool)) Option {
	return func(o *options) {
		o.system = name
		o.materials = materials
	}
}

// WithTransform sets the initial component to world transform.
func WithTransform(m mgl32.Mat4) Option {
	return func(o *options) { o.transform = m }
}

// WithLOD sets the LOD level the instance starts at.
func WithLOD(lod int) Option {
	return func(o *options) { o.lod = lod }
}

// WithFixedBounds replaces the computed box with a designer supplied one.
func WithFixedBounds(box *bounds.AABB) Option {
	return func(o *options) { o.fixed = box }
}
