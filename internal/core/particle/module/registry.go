package module

import (
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/cascade/internal/core/particle"
)

// Factory builds a module from its definition parameters. params may be nil.
type Factory func(params *yaml.Node) (Module, error)

// Registry maps module type names onto factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
}

func (r *Registry) Build(name string, params *yaml.Node) (Module, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", particle.ErrUnknownModule, name)
	}
	m, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", name, err)
	}
	return m, nil
}

// Types lists registered names in order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Decoded returns a factory that decodes params into a fresh module.
func Decoded[T Module](newFn func() T) Factory {
	return func(params *yaml.Node) (Module, error) {
		m := newFn()
		if params != nil && params.Kind != 0 {
			if err := params.Decode(m); err != nil {
				return nil, err
			}
		}
		return m, nil
	}
}

// DefaultRegistry registers every built-in module.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("lifetime", Decoded(func() *Lifetime { return &Lifetime{} }))
	r.Register("location", Decoded(func() *Location { return &Location{} }))
	r.Register("velocity", Decoded(func() *Velocity { return &Velocity{} }))
	r.Register("size", Decoded(func() *Size { return &Size{} }))
	r.Register("color", Decoded(func() *Color { return &Color{} }))
	r.Register("rotation", Decoded(func() *Rotation { return &Rotation{} }))
	r.Register("rotation_rate", Decoded(func() *RotationRate { return &RotationRate{} }))
	r.Register("spawn_chance", Decoded(func() *SpawnChance { return &SpawnChance{Probability: 1} }))
	r.Register("color_over_life", Decoded(func() *ColorOverLife { return &ColorOverLife{} }))
	r.Register("size_over_life", Decoded(func() *SizeOverLife { return &SizeOverLife{} }))
	r.Register("acceleration", Decoded(func() *Acceleration { return &Acceleration{} }))
	r.Register("drag", Decoded(func() *Drag { return &Drag{} }))
	r.Register("kill_height", Decoded(func() *KillHeight { return &KillHeight{} }))
	r.Register("orbit", Decoded(func() *Orbit { return &Orbit{} }))
	r.Register("dynamic_parameter", Decoded(func() *DynamicParameter { return &DynamicParameter{} }))
	r.Register("light", Decoded(func() *Light { return &Light{} }))
	r.Register("camera_offset", Decoded(func() *CameraOffset { return &CameraOffset{} }))
	r.Register("mesh_rotation", Decoded(func() *MeshRotation { return &MeshRotation{} }))
	r.Register("sub_image", Decoded(func() *SubImage { return &SubImage{} }))
	r.Register("plane_collision", Decoded(func() *PlaneCollision { return &PlaneCollision{} }))
	r.Register("event_generator", Decoded(func() *EventSource { return &EventSource{} }))
	r.Register("spawn_on_event", Decoded(func() *SpawnOnEvent { return &SpawnOnEvent{} }))
	r.Register("axis_lock", Decoded(func() *AxisLock { return &AxisLock{} }))
	r.Register("pivot_offset", Decoded(func() *PivotOffset { return &PivotOffset{} }))
	r.Register("mesh", Decoded(func() *MeshData { return &MeshData{} }))
	r.Register("beam", Decoded(func() *BeamData { return &BeamData{} }))
	return r
}
