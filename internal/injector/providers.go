package injector

import (
	"fmt"
	"os"

	"github.com/google/wire"

	"github.com/zeusync/cascade/internal/config"
	"github.com/zeusync/cascade/internal/core/events/bus"
	"github.com/zeusync/cascade/internal/core/observability/log"
	"github.com/zeusync/cascade/internal/core/particle/definition"
	"github.com/zeusync/cascade/internal/core/particle/module"
	"github.com/zeusync/cascade/internal/core/particle/snapshot"
	"github.com/zeusync/cascade/internal/core/particle/system"
	"github.com/zeusync/cascade/internal/server"
)

// ProviderSet is every provider InitializeApp needs.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideBus,
	ProvideRegistry,
	ProvideTap,
	ProvideRecorder,
	ProvideFactory,
)

// App holds the wired process dependencies. Tap and Recorder are nil when disabled.
type App struct {
	Config   config.Config
	Logger   log.Log
	Bus      bus.EventBus
	Registry *module.Registry
	Tap      *server.Server
	Recorder *snapshot.Recorder
	Factory  *Factory
}

func ProvideLogger(cfg config.Config) (log.Log, error) {
	return log.NewFromConfig(cfg.Log)
}

func ProvideBus() bus.EventBus {
	return bus.New()
}

func ProvideRegistry() *module.Registry {
	return module.DefaultRegistry()
}

func ProvideTap(cfg config.Config, logger log.Log) *server.Server {
	if !cfg.Tap.Enabled {
		return nil
	}
	return server.NewServer(cfg.Tap.ServerConfig(), logger)
}

// ProvideRecorder opens the replay file. The cleanup closes it.
func ProvideRecorder(cfg config.Config, logger log.Log) (*snapshot.Recorder, func(), error) {
	if cfg.Replay.Path == "" {
		return nil, func() {}, nil
	}
	f, err := os.Create(cfg.Replay.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("create replay file: %w", err)
	}
	rec := snapshot.NewRecorder(f)
	cleanup := func() {
		if err := f.Close(); err != nil {
			logger.Warn("closing replay file failed", log.String("path", cfg.Replay.Path), log.Error(err))
			return
		}
		logger.Info("replay written", log.String("path", cfg.Replay.Path), log.Uint64("frames", rec.Frames()))
	}
	return rec, cleanup, nil
}

func ProvideFactory(cfg config.Config, logger log.Log, b bus.EventBus, tap *server.Server, rec *snapshot.Recorder) *Factory {
	f := &Factory{sim: cfg.Simulation, strict: cfg.Run.Strict, logger: logger, bus: b}
	if tap != nil {
		f.sinks = append(f.sinks, tap)
	}
	if rec != nil {
		f.sinks = append(f.sinks, rec)
	}
	return f
}

// Factory builds system components that share the process logger, bus and frame sinks.
type Factory struct {
	sim    config.Simulation
	strict bool
	logger log.Log
	bus    bus.EventBus
	sinks  []system.Sink
}

// New creates a component for a prepared definition. Extra options apply last.
func (f *Factory) New(def *definition.System, opts ...system.Option) *system.Component {
	base := []system.Option{
		system.WithConfig(f.sim.SystemConfig()),
		system.WithLogger(f.logger),
		system.WithBus(f.bus),
	}
	if f.sim.Seed != nil {
		base = append(base, system.WithSeed(*f.sim.Seed))
	}
	for _, s := range f.sinks {
		base = append(base, system.WithSink(s))
	}
	return system.New(def, append(base, opts...)...)
}

// Load reads a definition file and prepares it with the process strictness.
func (f *Factory) Load(path string, reg *module.Registry) (*definition.System, error) {
	return definition.Load(path, reg, definition.PrepareOptions{Strict: f.strict, Logger: f.logger})
}
