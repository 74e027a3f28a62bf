package system

import (
	"context"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/events/bus"
	"github.com/zeusync/cascade/internal/core/observability/log"
	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/emitter"
	"github.com/zeusync/cascade/internal/core/particle/snapshot"
)

// StallBehavior selects what happens when the owner has to wait for the compute task.
type StallBehavior uint8

const (
	// Silent waits without logging.
	Silent StallBehavior = iota
	// Stall waits and logs a warning with the stall time.
	Stall
	// EnsureAndStall also panics when Config.AssertOnStall is set, to surface the call site.
	EnsureAndStall
)

func (b StallBehavior) String() string {
	switch b {
	case Stall:
		return "stall"
	case EnsureAndStall:
		return "ensure_and_stall"
	default:
		return "silent"
	}
}

// Config holds the tunables of a component.
type Config struct {
	Emitter emitter.Config
	// LODBias is added to every requested LOD level before clamping.
	LODBias int
	// AllowAsyncTick runs the compute step on another goroutine. When false Tick
	// computes and finalizes inline.
	AllowAsyncTick bool
	// Workers bounds the instances ticked in parallel. 0 means one goroutine per instance.
	Workers int
	// AssertOnStall panics on EnsureAndStall waits.
	AssertOnStall bool
	// BoundsRefreshInterval forces a bounds recompute so the box can shrink, in seconds.
	BoundsRefreshInterval float32
}

// DefaultBoundsRefreshInterval is the default time between forced bounds recomputes.
const DefaultBoundsRefreshInterval = 5

// DefaultWarmupStep is the warm-up time step when a system sets no tick rate.
const DefaultWarmupStep = 0.032

func DefaultConfig() Config {
	return Config{
		Emitter:               emitter.DefaultConfig(),
		AllowAsyncTick:        true,
		BoundsRefreshInterval: DefaultBoundsRefreshInterval,
	}
}

// Sink receives every finalized frame, e.g. a snapshot.Recorder or the debug tap.
type Sink interface {
	Record(f *snapshot.Frame) error
}

// Option configures a Component.
type Option func(*options)

type options struct {
	config    Config
	logger    log.Log
	bus       bus.EventBus
	params    *particle.Parameters
	transform mgl32.Mat4
	seed      *uint64
	sinks     []Sink
	ctx       context.Context
	name      string
}

func WithConfig(cfg Config) Option {
	return func(o *options) { o.config = cfg }
}

func WithLogger(logger log.Log) Option {
	return func(o *options) { o.logger = logger }
}

// WithBus publishes particle events to b at finalize, in a topic named after the system.
func WithBus(b bus.EventBus) Option {
	return func(o *options) { o.bus = b }
}

// WithParameters starts the component with an existing parameter table.
func WithParameters(params *particle.Parameters) Option {
	return func(o *options) { o.params = params }
}

func WithTransform(m mgl32.Mat4) Option {
	return func(o *options) { o.transform = m }
}

// WithSeed makes every instance draw from a deterministic random stream.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = &seed }
}

// WithSink adds a frame sink.
func WithSink(s Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// WithContext sets the context compute tasks run under.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithName overrides the system name used for events, logs and frames.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}
