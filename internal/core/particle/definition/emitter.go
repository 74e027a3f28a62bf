package definition

import (
	"errors"
	"fmt"
	"slices"

	"github.com/zeusync/cascade/internal/core/observability/log"
	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/buffer"
	"github.com/zeusync/cascade/internal/core/particle/burst"
	"github.com/zeusync/cascade/internal/core/particle/layout"
	"github.com/zeusync/cascade/internal/core/particle/module"
	"github.com/zeusync/cascade/internal/core/particle/pipeline"
)

// MaxInitialAllocation caps the pre-sized capacity of new instances.
const MaxInitialAllocation = 100

// DefaultInitialAllocation is used before any peak was recorded.
const DefaultInitialAllocation = 10

// Emitter is one emitter of a system.
type Emitter struct {
	Name string
	// MaxActive caps live particles of every instance. 0 means unlimited.
	MaxActive int
	// InitialAllocation pre-sizes new instances; 0 uses the recorded peak.
	InitialAllocation int
	// LegacySpawning integrates freshly spawned particles again in the bounds pass.
	LegacySpawning bool
	LODs           []LODLevel

	peak     buffer.Peak
	layout   *layout.Layout
	pipeline *pipeline.Pipeline
	bursts   []burst.Level
	prepared bool
}

// PrepareOptions controls how configuration errors are handled.
type PrepareOptions struct {
	// Strict returns configuration errors. Otherwise offending LOD levels and
	// modules are dropped and logged.
	Strict bool
	Logger log.Log
}

func (o PrepareOptions) logger() log.Log {
	if o.Logger == nil {
		return log.NewNop()
	}
	return o.Logger
}

// Prepare validates the LOD stacks and computes the shared layout and pipeline.
// An emitter left without valid levels prepares successfully in lenient mode
// and simulates nothing.
func (e *Emitter) Prepare(opts PrepareOptions) error {
	logger := opts.logger().With(log.String("emitter", e.Name))
	e.prepared = true
	e.layout, e.pipeline, e.bursts = nil, nil, nil

	if err := e.dropInvalidLevels(opts.Strict, logger); err != nil {
		return err
	}
	if len(e.LODs) == 0 {
		if opts.Strict {
			return fmt.Errorf("emitter %q: %w", e.Name, particle.ErrNoLODLevels)
		}
		logger.Warn("emitter has no usable LOD levels, it will render nothing")
		return nil
	}

	for {
		l, err := layout.Build(e.stacks(), e.LODs[0].TypeData, 0)
		if err == nil {
			e.layout = l
			break
		}
		if opts.Strict || !errors.Is(err, particle.ErrModuleBytes) {
			return fmt.Errorf("emitter %q: %w", e.Name, err)
		}
		if !e.dropBadModule(logger) {
			return fmt.Errorf("emitter %q: %w", e.Name, err)
		}
	}

	levels := make([]pipeline.Level, len(e.LODs))
	e.bursts = make([]burst.Level, len(e.LODs))
	for i, l := range e.LODs {
		levels[i] = pipeline.Level{Modules: l.Modules, TypeData: l.TypeData}
		e.bursts[i] = burst.Level{Entries: l.Spawn.Bursts, Scale: l.Spawn.BurstScale.Get()}
	}
	e.pipeline = pipeline.New(e.layout, levels)
	return nil
}

func (e *Emitter) stacks() [][]module.Module {
	out := make([][]module.Module, len(e.LODs))
	for i, l := range e.LODs {
		out[i] = l.Modules
	}
	return out
}

func typeName(m module.Module) string {
	if m == nil {
		return ""
	}
	return m.Type()
}

func (e *Emitter) checkLevel(i int) error {
	l := e.LODs[i]
	if l.Required == nil {
		return particle.ErrMissingRequired
	}
	if i == 0 {
		return nil
	}
	if typeName(l.TypeData) != typeName(e.LODs[0].TypeData) {
		return fmt.Errorf("%w: type data %q, want %q",
			particle.ErrModuleStackMismatch, typeName(l.TypeData), typeName(e.LODs[0].TypeData))
	}
	return layout.ValidateLevel(e.LODs[0].Modules, l.Modules)
}

func (e *Emitter) dropInvalidLevels(strict bool, logger log.Log) error {
	// A broken top level cannot anchor the layout; promote the next valid one.
	for len(e.LODs) > 0 {
		err := e.checkLevel(0)
		if err == nil {
			break
		}
		if strict {
			return fmt.Errorf("emitter %q LOD 0: %w", e.Name, err)
		}
		logger.Warn("dropping LOD level", log.Int("lod", 0), log.Error(err))
		e.LODs = e.LODs[1:]
	}
	kept := e.LODs[:0]
	for i := range e.LODs {
		if err := e.checkLevel(i); err != nil {
			if strict {
				return fmt.Errorf("emitter %q LOD %d: %w", e.Name, i, err)
			}
			logger.Warn("dropping LOD level", log.Int("lod", i), log.Error(err))
			continue
		}
		kept = append(kept, e.LODs[i])
	}
	e.LODs = kept
	return nil
}

// dropBadModule removes the first module slot reporting negative sizes from every level.
func (e *Emitter) dropBadModule(logger log.Log) bool {
	for slot, m := range e.LODs[0].Modules {
		if m.RequiredBytes() >= 0 && m.RequiredBytesPerInstance() >= 0 {
			continue
		}
		logger.Warn("disabling module with invalid payload size", log.Int("slot", slot), log.String("type", m.Type()))
		for i := range e.LODs {
			e.LODs[i].Modules = slices.Delete(slices.Clone(e.LODs[i].Modules), slot, slot+1)
		}
		return true
	}
	if td := e.LODs[0].TypeData; td != nil && (td.RequiredBytes() < 0 || td.RequiredBytesPerInstance() < 0) {
		logger.Warn("dropping type data with invalid payload size", log.String("type", td.Type()))
		for i := range e.LODs {
			e.LODs[i].TypeData = nil
		}
		return true
	}
	return false
}

// Valid reports whether the emitter has a layout to simulate with.
func (e *Emitter) Valid() bool { return e.layout != nil }

func (e *Emitter) Prepared() bool               { return e.prepared }
func (e *Emitter) Layout() *layout.Layout       { return e.layout }
func (e *Emitter) Pipeline() *pipeline.Pipeline { return e.pipeline }
func (e *Emitter) Bursts() []burst.Level        { return e.bursts }

// Peak is the high-water mark shared by every instance of this emitter.
func (e *Emitter) Peak() *buffer.Peak { return &e.peak }

// InitialCapacity is the capacity new instances allocate up front.
func (e *Emitter) InitialCapacity() int {
	switch {
	case e.InitialAllocation > 0:
		return min(e.InitialAllocation, MaxInitialAllocation)
	case e.peak.Load() > 0:
		return min(e.peak.Load(), MaxInitialAllocation)
	default:
		return DefaultInitialAllocation
	}
}

// LOD returns level i, or nil when it does not exist.
func (e *Emitter) LOD(i int) *LODLevel {
	if i < 0 || i >= len(e.LODs) {
		return nil
	}
	return &e.LODs[i]
}

// Prepare prepares every emitter. In lenient mode it never fails.
func (s *System) Prepare(opts PrepareOptions) error {
	var all error
	for _, e := range s.Emitters {
		if err := e.Prepare(opts); err != nil {
			all = errors.Join(all, err)
		}
	}
	return all
}
