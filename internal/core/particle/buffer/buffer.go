// Package buffer stores the particles of one emitter instance: a header arena,
// a payload byte arena with a fixed stride and the index array whose first
// Active entries name the live slots.
package buffer

import (
	"sync/atomic"

	"github.com/zeusync/cascade/internal/core/particle"
)

// ResizeMode controls whether a resize feeds the shared peak count.
type ResizeMode uint8

const (
	// RecordPeak updates the definition's peak so future instances pre-size to it.
	RecordPeak ResizeMode = iota
	// BestEffort grows without recording peak. Used when the frame delta is long,
	// where a burst of growth says little about steady state.
	BestEffort
)

// Peak is a high-water mark shared by every instance of one emitter definition.
type Peak struct {
	v atomic.Int64
}

// Observe raises the mark to n if n is higher.
func (p *Peak) Observe(n int) {
	for {
		cur := p.v.Load()
		if int64(n) <= cur || p.v.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}

// Load returns the mark. A nil Peak reads as 0.
func (p *Peak) Load() int {
	if p == nil {
		return 0
	}
	return int(p.v.Load())
}

// Buffer owns the arenas of one instance. It is not safe for concurrent use.
type Buffer struct {
	headers       []particle.Base
	payload       []byte
	payloadStride int
	indices       []int32
	active        int
	ceiling       int
	peak          *Peak
}

// New creates an empty buffer. ceiling <= 0 disables the capacity limit; peak may be nil.
func New(payloadStride, ceiling int, peak *Peak) *Buffer {
	return &Buffer{payloadStride: payloadStride, ceiling: ceiling, peak: peak}
}

// Resize grows every arena to newCount slots. It never shrinks, refuses to drop
// below Active and refuses to pass the ceiling; a refused resize changes nothing.
func (b *Buffer) Resize(newCount int, mode ResizeMode) bool {
	if newCount < b.active {
		return false
	}
	if b.ceiling > 0 && newCount > b.ceiling {
		return false
	}
	if mode == RecordPeak && b.peak != nil {
		b.peak.Observe(newCount)
	}
	old := len(b.indices)
	if newCount <= old {
		return true
	}

	headers := make([]particle.Base, newCount)
	copy(headers, b.headers)
	b.headers = headers

	payload := make([]byte, newCount*b.payloadStride)
	copy(payload, b.payload)
	b.payload = payload

	indices := make([]int32, newCount)
	copy(indices, b.indices)
	for i := old; i < newCount; i++ {
		indices[i] = int32(i)
	}
	b.indices = indices
	return true
}

func (b *Buffer) Active() int        { return b.active }
func (b *Buffer) Capacity() int      { return len(b.indices) }
func (b *Buffer) Ceiling() int       { return b.ceiling }
func (b *Buffer) PayloadStride() int { return b.payloadStride }

// Stride is the full record size as exported to renderers.
func (b *Buffer) Stride() int { return particle.HeaderSize + b.payloadStride }

// Index returns the slot of the live particle at ordinal i.
func (b *Buffer) Index(i int) int { return int(b.indices[i]) }

// Particle returns the header of the live particle at ordinal i.
func (b *Buffer) Particle(i int) *particle.Base {
	return &b.headers[b.indices[i]]
}

// Payload returns the payload bytes of the live particle at ordinal i.
func (b *Buffer) Payload(i int) particle.Payload {
	return b.slotPayload(int(b.indices[i]))
}

// Direct returns header and payload of a slot regardless of liveness.
func (b *Buffer) Direct(slot int) (*particle.Base, particle.Payload) {
	return &b.headers[slot], b.slotPayload(slot)
}

func (b *Buffer) slotPayload(slot int) particle.Payload {
	if b.payloadStride == 0 {
		return nil
	}
	start := slot * b.payloadStride
	return b.payload[start : start+b.payloadStride : start+b.payloadStride]
}

// Acquire claims the slot behind the first free index. The caller must have
// ensured capacity; ok is false when the buffer is full.
func (b *Buffer) Acquire() (ordinal int, ok bool) {
	if b.active >= len(b.indices) {
		return 0, false
	}
	ordinal = b.active
	b.active++
	return ordinal, true
}

// Release drops the most recently acquired particle. Used when a spawn is rejected.
func (b *Buffer) Release() {
	if b.active > 0 {
		b.active--
	}
}

// Kill retires ordinal i by swapping its index with the last live one.
func (b *Buffer) Kill(i int) {
	if i < 0 || i >= b.active {
		return
	}
	last := b.active - 1
	b.indices[i], b.indices[last] = b.indices[last], b.indices[i]
	b.active--
}

// KillOrdered retires ordinal i and shifts the tail down, keeping spawn order.
func (b *Buffer) KillOrdered(i int) {
	if i < 0 || i >= b.active {
		return
	}
	slot := b.indices[i]
	copy(b.indices[i:b.active-1], b.indices[i+1:b.active])
	b.indices[b.active-1] = slot
	b.active--
}

// Clear retires every particle. Slots and payload memory are kept.
func (b *Buffer) Clear() {
	b.active = 0
}

// Indices returns the live part of the index array. The slice aliases the buffer.
func (b *Buffer) Indices() []int32 {
	return b.indices[:b.active]
}

// Copy describes a deep copy of the buffer contents.
type Copy struct {
	Headers       []particle.Base
	Payload       []byte
	Indices       []int32
	Active        int
	PayloadStride int
}

// Snapshot copies the live records in ordinal order. The returned indices
// are the identity over the compacted arenas.
func (b *Buffer) Snapshot() Copy {
	c := Copy{
		Headers:       make([]particle.Base, b.active),
		Payload:       make([]byte, b.active*b.payloadStride),
		Indices:       make([]int32, b.active),
		Active:        b.active,
		PayloadStride: b.payloadStride,
	}
	for i, slot := range b.indices[:b.active] {
		c.Headers[i] = b.headers[slot]
		if b.payloadStride > 0 {
			copy(c.Payload[i*b.payloadStride:], b.slotPayload(int(slot)))
		}
		c.Indices[i] = int32(i)
	}
	return c
}
