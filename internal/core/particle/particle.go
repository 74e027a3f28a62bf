// Package particle holds the record types shared by every stage of the CPU
// simulation: the fixed particle header, its state flags and the payload view
// used to reach module-owned bytes.
package particle

import (
	"github.com/go-gl/mathgl/mgl32"
)

// HeaderSize is the size in bytes of Base. Payload offsets are measured from the
// start of the record, so the first payload byte lives at HeaderSize and an
// offset of 0 means "not present".
const HeaderSize = 128

// Flags packs a sequence counter in the low bits and state bits above it.
type Flags uint32

const (
	CounterMask Flags = 0x00FFFFFF

	FlagJustSpawned       Flags = 1 << 25
	FlagFreeze            Flags = 1 << 26
	FlagIgnoreCollisions  Flags = 1 << 27
	FlagFreezeTranslation Flags = 1 << 28
	FlagFreezeRotation    Flags = 1 << 29
	FlagDelayCollisions   Flags = 1 << 30
	FlagCollisionOccurred Flags = 1 << 31

	StateMask = ^CounterMask
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// Counter is the spawn sequence number, wrapped to 24 bits.
func (f Flags) Counter() uint32 { return uint32(f & CounterMask) }

// WithCounter replaces the sequence number and keeps the state bits.
func (f Flags) WithCounter(n uint32) Flags {
	return (f & StateMask) | (Flags(n) & CounterMask)
}

// Base is the fixed header every particle carries. Field order matches the
// record layout exported in replay snapshots.
type Base struct {
	OldLocation        mgl32.Vec3
	Location           mgl32.Vec3
	BaseVelocity       mgl32.Vec3
	Rotation           float32
	Velocity           mgl32.Vec3
	BaseRotationRate   float32
	BaseSize           mgl32.Vec3
	RotationRate       float32
	Size               mgl32.Vec3
	Flags              Flags
	Color              mgl32.Vec4
	BaseColor          mgl32.Vec4
	RelativeTime       float32
	OneOverMaxLifetime float32
}

// KillTime is written into RelativeTime to retire a particle on the next kill pass.
const KillTime = 1.1

// Dead reports whether the particle has outlived its normalized lifetime.
func (p *Base) Dead() bool { return p.RelativeTime > 1.0 }

// Kill marks the particle for removal.
func (p *Base) Kill() { p.RelativeTime = KillTime }

// Reset restores the per-frame properties modules recompute every tick.
func (p *Base) Reset(dt float32) {
	p.Velocity = p.BaseVelocity
	p.Size = p.BaseSize
	p.RotationRate = p.BaseRotationRate
	p.Color = p.BaseColor
	p.RelativeTime += p.OneOverMaxLifetime * dt
}
