package server

import (
	"encoding/json"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle/snapshot"
)

// Message types sent to viewers.
const (
	MessageHello = "hello"
	MessageFrame = "frame"
)

// Control actions accepted from viewers.
const (
	ActionSubscribe = "subscribe"
	ActionPause     = "pause"
	ActionResume    = "resume"
)

// MaxSummaryParticles caps the positions listed per emitter in a summary.
const MaxSummaryParticles = 512

// Message is the JSON envelope of the text protocol.
type Message struct {
	Type   string        `json:"type"`
	Client string        `json:"client,omitempty"`
	System string        `json:"system,omitempty"`
	Frame  *FrameSummary `json:"frame,omitempty"`
}

// ControlMessage is sent by viewers to filter or pause the stream.
type ControlMessage struct {
	Action string `json:"action"`
	System string `json:"system,omitempty"`
}

// FrameSummary is the light form of a frame: counts, bounds and positions.
type FrameSummary struct {
	System    string           `json:"system"`
	Sequence  uint64           `json:"sequence"`
	Time      float32          `json:"time"`
	Particles int              `json:"particles"`
	BoundsMin mgl32.Vec3       `json:"bounds_min"`
	BoundsMax mgl32.Vec3       `json:"bounds_max"`
	Emitters  []EmitterSummary `json:"emitters"`
}

type EmitterSummary struct {
	Name       string       `json:"name"`
	Active     int          `json:"active"`
	Material   string       `json:"material,omitempty"`
	LocalSpace bool         `json:"local_space,omitempty"`
	Positions  []mgl32.Vec3 `json:"positions,omitempty"`
	Colors     []mgl32.Vec4 `json:"colors,omitempty"`
}

// Summarize builds the summary of f. Positions follow draw order and respect
// the emitter draw limit.
func Summarize(f *snapshot.Frame) *FrameSummary {
	out := &FrameSummary{
		System:    f.System,
		Sequence:  f.Sequence,
		Time:      f.Time,
		Particles: f.ActiveParticles(),
		Emitters:  make([]EmitterSummary, 0, len(f.Emitters)),
	}
	if f.Bounds.Valid {
		out.BoundsMin, out.BoundsMax = f.Bounds.Min, f.Bounds.Max
	}
	for i := range f.Emitters {
		e := &f.Emitters[i]
		n := e.ActiveParticleCount
		if e.MaxDrawCount >= 0 {
			n = min(n, e.MaxDrawCount)
		}
		n = min(n, MaxSummaryParticles)

		summary := EmitterSummary{
			Name:       e.Name,
			Active:     e.ActiveParticleCount,
			Material:   e.Material,
			LocalSpace: e.LocalSpace,
		}
		if n > 0 {
			summary.Positions = make([]mgl32.Vec3, n)
			summary.Colors = make([]mgl32.Vec4, n)
			for j := 0; j < n; j++ {
				p := e.Particle(j)
				summary.Positions[j] = p.Location
				summary.Colors[j] = p.Color
			}
		}
		out.Emitters = append(out.Emitters, summary)
	}
	return out
}

func encodeMessage(m Message) ([]byte, error) {
	return json.Marshal(m)
}
