// Package config holds the process configuration of the cascade driver.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/cascade/internal/core/observability/log"
	"github.com/zeusync/cascade/internal/core/particle/emitter"
	"github.com/zeusync/cascade/internal/core/particle/spawn"
	"github.com/zeusync/cascade/internal/core/particle/system"
	"github.com/zeusync/cascade/internal/server"
)

// Config is the root of the YAML file.
type Config struct {
	Log        log.Config `yaml:"log"`
	Simulation Simulation `yaml:"simulation"`
	Run        Run        `yaml:"run"`
	Tap        Tap        `yaml:"tap"`
	Replay     Replay     `yaml:"replay"`
	Watch      Watch      `yaml:"watch"`
}

// Simulation holds the tunables handed to every system component.
type Simulation struct {
	MaxParticleResize      int     `yaml:"max_particle_resize"`
	MaxParticleResizeWarn  int     `yaml:"max_particle_resize_warn"`
	MaxParticlesPerEmitter int     `yaml:"max_particles_per_emitter"`
	QualitySpawnRateScale  float32 `yaml:"quality_spawn_rate_scale"`
	LODBias                int     `yaml:"lod_bias"`
	AllowAsyncTick         bool    `yaml:"allow_async_tick"`
	Workers                int     `yaml:"workers"`
	AssertOnStall          bool    `yaml:"assert_on_stall"`
	GameWorld              bool    `yaml:"game_world"`
	// BoundsRefreshInterval is the time between forced bounds recomputes, in seconds.
	BoundsRefreshInterval float32 `yaml:"bounds_refresh_interval"`
	// Seed makes runs reproducible when set.
	Seed *uint64 `yaml:"seed"`
}

// Run drives the frame loop.
type Run struct {
	// Definition is the system YAML to simulate.
	Definition string        `yaml:"definition"`
	FrameTime  time.Duration `yaml:"frame_time"`
	// Frames stops the loop after that many frames. 0 runs until interrupted.
	Frames int `yaml:"frames"`
	// Realtime sleeps between frames instead of running as fast as possible.
	Realtime bool `yaml:"realtime"`
	// Strict fails on definition errors instead of dropping the offending parts.
	Strict bool `yaml:"strict"`
}

// Tap is the websocket endpoint streaming frames to debug viewers.
type Tap struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
	// Every sends only each n-th frame.
	Every int `yaml:"every"`
	// QueueSize is the number of frames buffered per client before frames are dropped.
	QueueSize    int           `yaml:"queue_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// Token, when set, must be presented by viewers.
	Token      string `yaml:"token"`
	MaxClients int    `yaml:"max_clients"`
}

// Replay records frames to a file.
type Replay struct {
	Path string `yaml:"path"`
}

// Watch reloads the definition when its file changes.
type Watch struct {
	Enabled bool `yaml:"enabled"`
}

func Default() Config {
	return Config{
		Log: log.DefaultConfig(),
		Simulation: Simulation{
			QualitySpawnRateScale: 1,
			AllowAsyncTick:        true,
			GameWorld:             true,
			BoundsRefreshInterval: system.DefaultBoundsRefreshInterval,
		},
		Run: Run{
			FrameTime: time.Second / 60,
		},
		Tap: Tap{
			Addr:         "127.0.0.1:8089",
			Path:         "/frames",
			Every:        1,
			QueueSize:    8,
			WriteTimeout: 2 * time.Second,
			MaxClients:   64,
		},
	}
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Load reads and validates a config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	s := c.Simulation
	if s.MaxParticleResize < 0 || s.MaxParticleResizeWarn < 0 || s.MaxParticlesPerEmitter < 0 {
		errs = append(errs, errors.New("simulation: particle limits must not be negative"))
	}
	if s.QualitySpawnRateScale < 0 {
		errs = append(errs, errors.New("simulation: quality_spawn_rate_scale must not be negative"))
	}
	if s.Workers < 0 {
		errs = append(errs, errors.New("simulation: workers must not be negative"))
	}
	if c.Run.FrameTime <= 0 {
		errs = append(errs, errors.New("run: frame_time must be positive"))
	}
	if c.Run.Frames < 0 {
		errs = append(errs, errors.New("run: frames must not be negative"))
	}
	if c.Tap.Enabled {
		if c.Tap.Addr == "" {
			errs = append(errs, errors.New("tap: addr is required"))
		}
		if c.Tap.Every < 1 {
			errs = append(errs, errors.New("tap: every must be at least 1"))
		}
		if c.Tap.QueueSize < 1 {
			errs = append(errs, errors.New("tap: queue_size must be at least 1"))
		}
	}
	if c.Watch.Enabled && c.Run.Definition == "" {
		errs = append(errs, errors.New("watch: needs run.definition"))
	}
	return errors.Join(errs...)
}

// SystemConfig maps the simulation section onto component tunables.
func (s Simulation) SystemConfig() system.Config {
	return system.Config{
		Emitter: emitter.Config{
			Spawn: spawn.Config{
				MaxParticlesPerEmitter: s.MaxParticlesPerEmitter,
				QualityScale:           s.QualitySpawnRateScale,
				PeakUpdateDelta:        spawn.PeakUpdateDelta,
			},
			MaxParticleResize:     s.MaxParticleResize,
			MaxParticleResizeWarn: s.MaxParticleResizeWarn,
			GameWorld:             s.GameWorld,
		},
		LODBias:               s.LODBias,
		AllowAsyncTick:        s.AllowAsyncTick,
		Workers:               s.Workers,
		AssertOnStall:         s.AssertOnStall,
		BoundsRefreshInterval: s.BoundsRefreshInterval,
	}
}

// FrameDelta is the frame time in seconds.
func (r Run) FrameDelta() float32 { return float32(r.FrameTime.Seconds()) }

// ServerConfig maps the tap section onto the tap server configuration.
func (t Tap) ServerConfig() server.Config {
	cfg := server.DefaultServerConfig()
	cfg.ListenAddr = t.Addr
	cfg.Path = t.Path
	cfg.Every = t.Every
	cfg.QueueSize = t.QueueSize
	cfg.WriteTimeout = t.WriteTimeout
	cfg.Token = t.Token
	cfg.MaxClients = t.MaxClients
	return cfg
}
