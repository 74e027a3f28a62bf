// Package event defines the gameplay events a particle system reports when
// particles spawn, die, collide or burst.
package event

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/events/bus"
)

type Kind uint8

const (
	Spawn Kind = iota
	Death
	Collision
	Burst
	// Any matches every kind in receiver filters.
	Any Kind = 0xFF
)

func (k Kind) String() string {
	switch k {
	case Spawn:
		return "spawn"
	case Death:
		return "death"
	case Collision:
		return "collision"
	case Burst:
		return "burst"
	case Any:
		return "any"
	default:
		return "unknown"
	}
}

// ParseKind maps a definition string onto a Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{Spawn, Death, Collision, Burst, Any} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Type is the bus routing key for the kind.
func (k Kind) Type() string { return "particle." + k.String() }

var _ bus.Event = Event{}

type Event struct {
	Kind Kind
	// Name is the user-facing name from the generator module.
	Name        string
	System      string
	Emitter     string
	EmitterTime float32
	Location    mgl32.Vec3
	Velocity    mgl32.Vec3
	Direction   mgl32.Vec3

	// ParticleTime is the particle's normalized age for spawn and death events.
	ParticleTime float32
	// Normal and Time describe a collision.
	Normal mgl32.Vec3
	Time   float32
	// Count is the number of particles in a burst.
	Count int

	At time.Time
}

func (e Event) Type() string         { return e.Kind.Type() }
func (e Event) Source() string       { return e.System }
func (e Event) Timestamp() time.Time { return e.At }
func (e Event) Data() any            { return e }

// Sink receives events as they are generated.
type Sink interface {
	Report(e Event)
}

// Collector is a Sink that buffers events until drained.
type Collector struct {
	events []Event
}

func (c *Collector) Report(e Event) {
	c.events = append(c.events, e)
}

func (c *Collector) Len() int { return len(c.events) }

// Drain returns the buffered events and empties the collector.
func (c *Collector) Drain() []Event {
	out := c.events
	c.events = nil
	return out
}

// Filter reports whether e matches the kind and name a receiver listens for.
// An empty name matches every generator.
func Filter(e Event, kind Kind, name string) bool {
	if kind != Any && e.Kind != kind {
		return false
	}
	return name == "" || e.Name == name
}
