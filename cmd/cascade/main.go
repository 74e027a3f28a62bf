package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/zeusync/cascade/internal/config"
	"github.com/zeusync/cascade/internal/core/events/bus"
	"github.com/zeusync/cascade/internal/core/observability/log"
	"github.com/zeusync/cascade/internal/core/particle/definition"
	"github.com/zeusync/cascade/internal/core/particle/event"
	"github.com/zeusync/cascade/internal/core/particle/system"
	"github.com/zeusync/cascade/internal/injector"
)

var (
	configFlag     = flag.String("config", "", "Path to the YAML configuration")
	definitionFlag = flag.String("definition", "", "System definition to simulate, overrides run.definition")
	framesFlag     = flag.Int("frames", -1, "Number of frames to run, overrides run.frames")
	replayFlag     = flag.String("replay", "", "Record frames to this file, overrides replay.path")
	watchFlag      = flag.Bool("watch", false, "Reload the definition when its file changes")
	tapFlag        = flag.Bool("tap", false, "Serve frames to websocket viewers")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cascade:", err)
		os.Exit(2)
	}

	app, cleanup, err := injector.InitializeApp(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cascade:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, app)
	stop()
	cleanup()
	if err != nil {
		app.Logger.Error("Run failed", log.Error(err))
		_ = app.Logger.Sync()
		os.Exit(1)
	}
	_ = app.Logger.Sync()
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configFlag != "" {
		loaded, err := config.Load(*configFlag)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if *definitionFlag != "" {
		cfg.Run.Definition = *definitionFlag
	}
	if *framesFlag >= 0 {
		cfg.Run.Frames = *framesFlag
	}
	if *replayFlag != "" {
		cfg.Replay.Path = *replayFlag
	}
	if *watchFlag {
		cfg.Watch.Enabled = true
	}
	if *tapFlag {
		cfg.Tap.Enabled = true
	}
	if cfg.Run.Definition == "" {
		return cfg, errors.New("no definition given, use -definition or run.definition")
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, app *injector.App) error {
	cfg := app.Config
	logger := app.Logger.Named("cascade")

	def, err := app.Factory.Load(cfg.Run.Definition, app.Registry)
	if err != nil {
		return fmt.Errorf("load definition: %w", err)
	}

	if app.Tap != nil {
		if err := app.Tap.Start(ctx); err != nil {
			return fmt.Errorf("start tap: %w", err)
		}
		defer func() { _ = app.Tap.Close() }()
	}

	sub, err := app.Bus.Subscribe(bus.Wildcard, func(e bus.Event) error {
		if ev, ok := e.Data().(event.Event); ok && ev.Kind != event.Spawn {
			logger.Debug("Particle event",
				log.String("type", ev.Type()),
				log.String("emitter", ev.Emitter),
				log.String("name", ev.Name))
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer func() { _ = sub.Cancel() }()

	var reloads <-chan string
	if cfg.Watch.Enabled {
		watcher, err := definition.NewWatcher(filepath.Dir(cfg.Run.Definition))
		if err != nil {
			return fmt.Errorf("watch definition: %w", err)
		}
		defer func() { _ = watcher.Close() }()
		reloads = watcher.Events
	}

	comp := app.Factory.New(def, system.WithContext(ctx))
	defer func() { _ = comp.Close() }()

	finished := false
	comp.OnSystemFinished(func(c *system.Component) {
		finished = true
		logger.Info("System finished", log.String("system", c.Name()))
	})
	comp.Activate(false)

	dt := cfg.Run.FrameDelta()
	var ticker *time.Ticker
	if cfg.Run.Realtime {
		ticker = time.NewTicker(cfg.Run.FrameTime)
		defer ticker.Stop()
	}

	logger.Info("Simulation started",
		log.String("system", def.Name),
		log.Int("emitters", len(def.Emitters)),
		log.Float32("frame_time", dt),
		log.Int("frames", cfg.Run.Frames))

	frame := 0
	for cfg.Run.Frames == 0 || frame < cfg.Run.Frames {
		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return summarize(logger, comp, frame)
			}
		} else if ctx.Err() != nil {
			break
		}

		select {
		case path, ok := <-reloads:
			if ok && sameFile(path, cfg.Run.Definition) {
				reload(logger, app, comp, cfg.Run.Definition)
			}
		default:
		}

		comp.MarkRendered()
		if err := comp.Tick(dt); err != nil {
			return err
		}
		// the frame's game work would run here while the compute task is in flight
		if err := comp.Finalize(); err != nil {
			return err
		}
		frame++

		if finished && !cfg.Watch.Enabled {
			break
		}
	}
	return summarize(logger, comp, frame)
}

func reload(logger log.Log, app *injector.App, comp *system.Component, path string) {
	def, err := app.Factory.Load(path, app.Registry)
	if err != nil {
		logger.Warn("Reload failed, keeping the running definition", log.String("path", path), log.Error(err))
		return
	}
	if err := comp.Reload(def); err != nil {
		logger.Warn("Reload failed", log.String("path", path), log.Error(err))
		return
	}
	logger.Info("Definition reloaded", log.String("path", path))
}

func summarize(logger log.Log, comp *system.Component, frames int) error {
	frame, err := comp.Snapshot()
	if err != nil {
		return err
	}
	fields := []log.Field{
		log.Int("frames", frames),
		log.Int("particles", comp.NumActiveParticles()),
	}
	if frame != nil {
		fields = append(fields, log.Uint64("sequence", frame.Sequence), log.Float32("time", frame.Time))
	}
	logger.Info("Simulation stopped", fields...)
	return nil
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
