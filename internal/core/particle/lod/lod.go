// Package lod picks the level of detail an emitter runs at.
package lod

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Method decides who chooses the LOD of a system.
type Method uint8

const (
	// Automatic re-evaluates viewer distance on the check interval.
	Automatic Method = iota
	// DirectSet leaves the LOD to explicit SetLODLevel calls.
	DirectSet
	// ActivateAutomatic evaluates distance once, when the system activates.
	ActivateAutomatic
)

func (m Method) String() string {
	switch m {
	case DirectSet:
		return "direct"
	case ActivateAutomatic:
		return "activate_automatic"
	default:
		return "automatic"
	}
}

func (m *Method) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "automatic":
		*m = Automatic
	case "direct", "direct_set":
		*m = DirectSet
	case "activate_automatic":
		*m = ActivateAutomatic
	default:
		return fmt.Errorf("unknown lod method %q", text)
	}
	return nil
}

// Selector maps viewer distance to a LOD index. Distances holds one ascending
// threshold per LOD; Distances[0] is normally 0.
type Selector struct {
	Distances []float32
	// Bias is added to every requested index before clamping.
	Bias int
}

// Select returns the most detailed LOD whose successor threshold is still
// farther than distance. The last LOD is returned past every threshold.
func (s Selector) Select(distance float32) int {
	if len(s.Distances) == 0 {
		return 0
	}
	for i := 1; i < len(s.Distances); i++ {
		if distance < s.Distances[i] {
			return i - 1
		}
	}
	return len(s.Distances) - 1
}

// SelectForViewers selects by the closest viewer. No viewers means full detail.
func (s Selector) SelectForViewers(effect mgl32.Vec3, viewers []mgl32.Vec3) int {
	if len(viewers) == 0 {
		return 0
	}
	closest := float32(math.MaxFloat32)
	for _, v := range viewers {
		closest = min(closest, v.Sub(effect).Len())
	}
	return s.Select(closest)
}

// Clamp applies the bias and keeps the result inside [0, count-1].
func (s Selector) Clamp(index, count int) int {
	if count <= 0 {
		return 0
	}
	return max(0, min(index+s.Bias, count-1))
}

// Resolve guards a stored index against a template with fewer levels.
// Out of range indices fall back to 0.
func Resolve(index, count int) int {
	if index < 0 || index >= count {
		return 0
	}
	return index
}
