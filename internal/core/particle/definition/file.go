package definition

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/cascade/internal/core/observability/log"
	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/lod"
	"github.com/zeusync/cascade/internal/core/particle/module"
)

// File is the YAML form of a system definition. Module parameters stay as raw
// nodes until Build resolves them through a registry.
type File struct {
	Name                  string         `yaml:"name"`
	LODDistances          []float32      `yaml:"lod_distances"`
	LODMethod             lod.Method     `yaml:"lod_method"`
	LODCheckInterval      float32        `yaml:"lod_check_interval"`
	WarmupTime            float32        `yaml:"warmup_time"`
	WarmupTickRate        float32        `yaml:"warmup_tick_rate"`
	FixedTimeStep         float32        `yaml:"fixed_time_step"`
	FixedBounds           *BoxSpec       `yaml:"fixed_bounds"`
	SecondsBeforeInactive float32        `yaml:"seconds_before_inactive"`
	OrientZToCamera       bool           `yaml:"orient_z_to_camera"`
	MaterialSlots         []MaterialSlot `yaml:"material_slots"`
	Emitters              []EmitterFile  `yaml:"emitters"`
}

type EmitterFile struct {
	Name              string    `yaml:"name"`
	MaxActive         int       `yaml:"max_active"`
	InitialAllocation int       `yaml:"initial_allocation"`
	LegacySpawning    bool      `yaml:"legacy_spawning"`
	LODs              []LODFile `yaml:"lods"`
}

type LODFile struct {
	Disabled bool         `yaml:"disabled"`
	Required *Required    `yaml:"required"`
	Spawn    Spawn        `yaml:"spawn"`
	TypeData *ModuleFile  `yaml:"type_data"`
	Modules  []ModuleFile `yaml:"modules"`
}

// ModuleFile is one module entry: a type name plus its parameters, inline.
type ModuleFile struct {
	Type   string
	Params yaml.Node
}

func (m *ModuleFile) UnmarshalYAML(node *yaml.Node) error {
	var head struct {
		Type string `yaml:"type"`
	}
	if err := node.Decode(&head); err != nil {
		return err
	}
	if head.Type == "" {
		return fmt.Errorf("line %d: module without type", node.Line)
	}
	m.Type = head.Type
	m.Params = *node
	return nil
}

// Parse decodes a system definition document.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", particle.ErrInvalidDefinition, err)
	}
	return &f, nil
}

// LoadFile reads and parses a definition file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if f.Name == "" {
		f.Name = path
	}
	return f, nil
}

// Build resolves every module through reg and prepares the system. In lenient
// mode a LOD level whose modules cannot be built is dropped.
func (f *File) Build(reg *module.Registry, opts PrepareOptions) (*System, error) {
	logger := opts.logger().With(log.String("system", f.Name))
	sys := &System{
		Name:                  f.Name,
		LODDistances:          f.LODDistances,
		LODMethod:             f.LODMethod,
		LODCheckInterval:      f.LODCheckInterval,
		WarmupTime:            f.WarmupTime,
		WarmupTickRate:        f.WarmupTickRate,
		FixedTimeStep:         f.FixedTimeStep,
		FixedBounds:           f.FixedBounds.AABB(),
		SecondsBeforeInactive: f.SecondsBeforeInactive,
		OrientZToCamera:       f.OrientZToCamera,
		MaterialSlots:         f.MaterialSlots,
	}

	for _, ef := range f.Emitters {
		e := &Emitter{
			Name:              ef.Name,
			MaxActive:         ef.MaxActive,
			InitialAllocation: ef.InitialAllocation,
			LegacySpawning:    ef.LegacySpawning,
		}
		for i, lf := range ef.LODs {
			level, err := lf.build(reg)
			if err != nil {
				if opts.Strict {
					return nil, fmt.Errorf("emitter %q LOD %d: %w", ef.Name, i, err)
				}
				logger.Warn("dropping LOD level", log.String("emitter", ef.Name), log.Int("lod", i), log.Error(err))
				continue
			}
			e.LODs = append(e.LODs, level)
		}
		sys.Emitters = append(sys.Emitters, e)
	}

	opts.Logger = logger
	if err := sys.Prepare(opts); err != nil {
		return nil, err
	}
	return sys, nil
}

func (lf *LODFile) build(reg *module.Registry) (LODLevel, error) {
	level := LODLevel{Disabled: lf.Disabled, Required: lf.Required, Spawn: lf.Spawn}
	if lf.TypeData != nil {
		m, err := reg.Build(lf.TypeData.Type, &lf.TypeData.Params)
		if err != nil {
			return level, err
		}
		level.TypeData = m
	}
	for _, mf := range lf.Modules {
		m, err := reg.Build(mf.Type, &mf.Params)
		if err != nil {
			return level, err
		}
		level.Modules = append(level.Modules, m)
	}
	return level, nil
}

// Load reads, builds and prepares a definition file.
func Load(path string, reg *module.Registry, opts PrepareOptions) (*System, error) {
	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return f.Build(reg, opts)
}
