// Package definition describes particle systems: emitters, their LOD levels,
// required settings and spawn schedules. A definition is immutable once
// prepared and is shared by every instance built from it.
package definition

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle/bounds"
	"github.com/zeusync/cascade/internal/core/particle/burst"
	"github.com/zeusync/cascade/internal/core/particle/distribution"
	"github.com/zeusync/cascade/internal/core/particle/lod"
	"github.com/zeusync/cascade/internal/core/particle/module"
)

// Alignment tells the renderer how sprites face the camera.
type Alignment uint8

const (
	AlignSquare Alignment = iota
	AlignRectangle
	AlignVelocity
	AlignFacingCameraPosition
	AlignTypeSpecific
)

var alignmentNames = map[string]Alignment{
	"square":                 AlignSquare,
	"rectangle":              AlignRectangle,
	"velocity":               AlignVelocity,
	"facing_camera_position": AlignFacingCameraPosition,
	"type_specific":          AlignTypeSpecific,
}

func (a *Alignment) UnmarshalText(text []byte) error {
	v, ok := alignmentNames[string(text)]
	if !ok {
		return fmt.Errorf("unknown screen alignment %q", text)
	}
	*a = v
	return nil
}

// Required holds the settings every LOD level must carry.
type Required struct {
	Material string `yaml:"material"`
	// NamedMaterial selects a system material slot that instances may override.
	NamedMaterial string    `yaml:"named_material"`
	Alignment     Alignment `yaml:"screen_alignment"`
	LocalSpace    bool      `yaml:"local_space"`

	// Origin and Rotation (degrees) place the emitter inside its component.
	Origin   mgl32.Vec3 `yaml:"origin"`
	Rotation mgl32.Vec3 `yaml:"rotation"`

	KillOnDeactivate bool `yaml:"kill_on_deactivate"`
	KillOnCompleted  bool `yaml:"kill_on_completed"`

	Duration               float32 `yaml:"duration"`
	DurationLow            float32 `yaml:"duration_low"`
	DurationUseRange       bool    `yaml:"duration_use_range"`
	DurationRecalcEachLoop bool    `yaml:"duration_recalc_each_loop"`

	Delay              float32 `yaml:"delay"`
	DelayLow           float32 `yaml:"delay_low"`
	DelayUseRange      bool    `yaml:"delay_use_range"`
	DelayFirstLoopOnly bool    `yaml:"delay_first_loop_only"`

	// Loops is the number of times the emitter runs. 0 loops forever.
	Loops int `yaml:"loops"`
	// LegacyEmitterTime derives emitter time from total time instead of accumulating it.
	LegacyEmitterTime bool `yaml:"legacy_emitter_time"`

	// MaxDrawCount limits rendered particles. 0 draws everything.
	MaxDrawCount int `yaml:"max_draw_count"`
	SubImagesH   int `yaml:"sub_images_h"`
	SubImagesV   int `yaml:"sub_images_v"`
}

// RollDelay picks the delay of the next loop.
func (r *Required) RollDelay(src distribution.Source) float32 {
	if r.DelayUseRange {
		return r.DelayLow + (r.Delay-r.DelayLow)*src.Float32()
	}
	return r.Delay
}

// RollDuration picks the duration of the next loop, delay excluded.
func (r *Required) RollDuration(src distribution.Source) float32 {
	if r.DurationUseRange {
		return r.DurationLow + (r.Duration-r.DurationLow)*src.Float32()
	}
	return r.Duration
}

// EmitterToComponent is the emitter's placement inside its component.
func (r *Required) EmitterToComponent() mgl32.Mat4 {
	rot := mgl32.AnglesToQuat(
		mgl32.DegToRad(r.Rotation.Z()),
		mgl32.DegToRad(r.Rotation.Y()),
		mgl32.DegToRad(r.Rotation.X()),
		mgl32.ZYX,
	)
	return mgl32.Translate3D(r.Origin.X(), r.Origin.Y(), r.Origin.Z()).Mul4(rot.Mat4())
}

// SubImages returns the flipbook grid, at least 1x1.
func (r *Required) SubImages() (h, v int) {
	return max(r.SubImagesH, 1), max(r.SubImagesV, 1)
}

// Spawn is the spawn schedule of a LOD level.
type Spawn struct {
	Rate       distribution.FloatSpec  `yaml:"rate"`
	RateScale  *distribution.FloatSpec `yaml:"rate_scale"`
	Bursts     []burst.Entry           `yaml:"bursts"`
	BurstScale *distribution.FloatSpec `yaml:"burst_scale"`
}

// RateAt evaluates the scaled continuous rate.
func (s *Spawn) RateAt(t float32, src distribution.Source) float32 {
	rate := distribution.Eval(s.Rate.Float, t, src, 0)
	return rate * distribution.Eval(s.RateScale.Get(), t, src, 1)
}

// LODLevel is one level of detail of an emitter. Every level of an emitter
// must list the same module types in the same order.
type LODLevel struct {
	// Disabled levels simulate nothing; switching to one kills live particles.
	Disabled bool
	Required *Required
	Spawn    Spawn
	TypeData module.Module
	Modules  []module.Module
}

// BoxSpec is a designer supplied bounding box relative to the component.
type BoxSpec struct {
	Min mgl32.Vec3 `yaml:"min"`
	Max mgl32.Vec3 `yaml:"max"`
}

func (b *BoxSpec) AABB() *bounds.AABB {
	if b == nil {
		return nil
	}
	box := bounds.AABB{Min: b.Min, Max: b.Max, Valid: true}
	return &box
}

// MaterialSlot is a named material instances can override by parameter.
type MaterialSlot struct {
	Name     string `yaml:"name"`
	Material string `yaml:"material"`
}

// System is a set of emitters simulated and rendered together.
type System struct {
	Name     string
	Emitters []*Emitter

	// LODDistances holds one ascending threshold per LOD level.
	LODDistances []float32
	LODMethod    lod.Method
	// LODCheckInterval is the time between distance based LOD checks, in seconds.
	LODCheckInterval float32

	// WarmupTime is simulated at activation before the first frame is shown.
	WarmupTime     float32
	WarmupTickRate float32

	// FixedTimeStep, when > 0, replaces the frame delta on every tick.
	FixedTimeStep float32
	// FixedBounds replaces the computed box; particles are not visited for bounds.
	FixedBounds *bounds.AABB
	// SecondsBeforeInactive stops ticking a system nobody has rendered for that long. 0 disables.
	SecondsBeforeInactive float32
	OrientZToCamera       bool
	MaterialSlots         []MaterialSlot
}

// DefaultLODCheckInterval is used when a system sets no interval.
const DefaultLODCheckInterval = 0.25

// LODLevels is the number of levels the system selects between.
func (s *System) LODLevels() int {
	if len(s.LODDistances) > 0 {
		return len(s.LODDistances)
	}
	n := 0
	for _, e := range s.Emitters {
		n = max(n, len(e.LODs))
	}
	return max(n, 1)
}

// Selector builds the LOD selector for the given bias.
func (s *System) Selector(bias int) lod.Selector {
	return lod.Selector{Distances: s.LODDistances, Bias: bias}
}

// CheckInterval returns LODCheckInterval or its default.
func (s *System) CheckInterval() float32 {
	if s.LODCheckInterval > 0 {
		return s.LODCheckInterval
	}
	return DefaultLODCheckInterval
}

// Material resolves a slot name to its default material.
func (s *System) Material(slot string) (string, bool) {
	for _, m := range s.MaterialSlots {
		if m.Name == slot {
			return m.Material, true
		}
	}
	return "", false
}
