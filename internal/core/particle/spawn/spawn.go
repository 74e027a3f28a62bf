// Package spawn turns a spawn rate, a burst count and the time since the last
// tick into the number of particles to create, their sub-frame timing and the
// buffer growth needed to hold them.
package spawn

import (
	"math"

	"github.com/zeusync/cascade/internal/core/particle/buffer"
)

// PeakUpdateDelta is the frame time above which growth is not recorded as peak.
const PeakUpdateDelta = 0.05

type Config struct {
	// MaxParticlesPerEmitter caps live particles of every emitter. 0 disables the cap.
	MaxParticlesPerEmitter int `yaml:"max_particles_per_emitter"`
	// QualityScale multiplies rate and burst counts.
	QualityScale float32 `yaml:"quality_scale"`
	// PeakUpdateDelta overrides the package default when > 0.
	PeakUpdateDelta float32 `yaml:"peak_update_delta"`
}

func DefaultConfig() Config {
	return Config{QualityScale: 1, PeakUpdateDelta: PeakUpdateDelta}
}

type Request struct {
	DeltaTime float32
	Leftover  float32
	Rate      float32
	Burst     int
	Active    int
	Capacity  int
	// MaxActive is the emitter's own live cap. 0 means unlimited.
	MaxActive int
}

type Plan struct {
	// Number continuous particles start at StartTime and step back by Increment.
	Number    int
	Burst     int
	StartTime float32
	Increment float32
	Leftover  float32
	// Requested is Number+Burst before the cap was applied.
	Requested int
	Clamped   bool
	Cap       int

	Resize     bool
	ResizeTo   int
	ResizeMode buffer.ResizeMode
}

func (p Plan) Total() int { return p.Number + p.Burst }

// Empty reports whether nothing needs to happen this tick.
func (p Plan) Empty() bool { return p.Total() == 0 && !p.Resize }

// GrowthTarget is the capacity requested for n particles, leaving slack that
// grows sub-linearly so steady growth does not resize every frame.
func GrowthTarget(n int) int {
	return n + int(math.Sqrt(math.Sqrt(float64(n)))+1)
}

// EffectiveCap combines the global and emitter caps. 0 means unlimited.
func (c Config) EffectiveCap(emitterCap int) int {
	switch {
	case c.MaxParticlesPerEmitter <= 0:
		return max(emitterCap, 0)
	case emitterCap <= 0:
		return c.MaxParticlesPerEmitter
	default:
		return min(c.MaxParticlesPerEmitter, emitterCap)
	}
}

// Plan computes the spawns of one tick. Bursts win over continuous spawns when
// the cap leaves room for only part of them.
func (c Config) Plan(r Request) Plan {
	quality := c.QualityScale
	if quality <= 0 {
		quality = 1
	}
	rate := max(r.Rate*quality, 0)
	burst := r.Burst
	if burst > 0 && quality != 1 {
		burst = int(math.Ceil(float64(float32(burst) * quality)))
	}

	p := Plan{Leftover: r.Leftover}
	if rate <= 0 && burst <= 0 {
		return p
	}

	leftover := r.Leftover + r.DeltaTime*rate
	number := int(math.Floor(float64(leftover)))
	var increment float32
	if rate > 0 {
		increment = 1 / rate
	}
	p.StartTime = r.DeltaTime + r.Leftover*increment - increment
	p.Increment = increment
	p.Leftover = leftover - float32(number)
	p.Requested = number + burst

	p.Cap = c.EffectiveCap(r.MaxActive)
	if p.Cap > 0 && r.Active+number+burst > p.Cap {
		room := max(p.Cap-r.Active, 0)
		burst = min(room, burst)
		room -= burst
		number = min(room, number)
		p.Clamped = true
	}
	p.Number, p.Burst = number, burst

	newCount := r.Active + number + burst
	if newCount >= r.Capacity && newCount > 0 {
		target := GrowthTarget(newCount)
		if p.Cap > 0 {
			target = min(target, max(p.Cap, newCount))
		}
		if target > r.Capacity {
			p.Resize = true
			p.ResizeTo = target
			p.ResizeMode = buffer.RecordPeak
			peakDelta := c.PeakUpdateDelta
			if peakDelta <= 0 {
				peakDelta = PeakUpdateDelta
			}
			if r.DeltaTime >= peakDelta {
				p.ResizeMode = buffer.BestEffort
			}
		}
	}
	return p
}

// SpawnTime is the age within the tick of the i-th continuous particle.
func (p Plan) SpawnTime(i int) float32 {
	return p.StartTime - float32(i)*p.Increment
}
