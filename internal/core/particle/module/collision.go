package module

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle"
)

// CollisionCompletion decides what happens once a particle used up its collisions.
type CollisionCompletion uint8

const (
	CollisionKill CollisionCompletion = iota
	CollisionFreeze
	CollisionHaltCollisions
)

func (c *CollisionCompletion) UnmarshalText(text []byte) error {
	switch string(text) {
	case "kill", "":
		*c = CollisionKill
	case "freeze":
		*c = CollisionFreeze
	case "halt":
		*c = CollisionHaltCollisions
	default:
		return fmt.Errorf("unknown collision completion %q", text)
	}
	return nil
}

// PlaneCollision bounces particles off a horizontal plane after they moved.
type PlaneCollision struct {
	Common        `yaml:",inline"`
	Height        float32             `yaml:"height"`
	Damping       mgl32.Vec3          `yaml:"damping"`
	MaxCollisions int                 `yaml:"max_collisions"`
	Completion    CollisionCompletion `yaml:"completion"`
}

func (*PlaneCollision) Type() string       { return "plane_collision" }
func (*PlaneCollision) RequiredBytes() int { return 4 }

func (m *PlaneCollision) Spawn(_ *Context, _ *particle.Base, region particle.Payload) {
	region.SetInt32(0, 0)
}

func (m *PlaneCollision) FinalUpdate(ctx *Context, p *particle.Base, region particle.Payload) {
	if p.Flags.Has(particle.FlagIgnoreCollisions) || p.Flags.Has(particle.FlagFreeze) {
		return
	}
	if p.Location.Z() >= m.Height || p.Velocity.Z() >= 0 {
		return
	}

	p.Location[2] = m.Height
	damp := m.Damping
	if damp == (mgl32.Vec3{}) {
		damp = mgl32.Vec3{1, 1, 1}
	}
	bounce := func(v mgl32.Vec3) mgl32.Vec3 {
		return mgl32.Vec3{v[0] * damp[0], v[1] * damp[1], -v[2] * damp[2]}
	}
	p.BaseVelocity = bounce(p.BaseVelocity)
	p.Velocity = bounce(p.Velocity)
	p.Flags |= particle.FlagCollisionOccurred

	used := region.Int32(0) + 1
	region.SetInt32(0, used)

	normal := mgl32.Vec3{0, 0, 1}
	if ctx.Emitter != nil {
		ctx.Emitter.NotifyCollision(p, normal, p.RelativeTime)
	}

	if m.MaxCollisions > 0 && int(used) >= m.MaxCollisions {
		switch m.Completion {
		case CollisionFreeze:
			p.Flags |= particle.FlagFreeze
		case CollisionHaltCollisions:
			p.Flags |= particle.FlagIgnoreCollisions
		default:
			p.Kill()
		}
	}
}

// CollisionsUsed reads how often a particle has collided.
func CollisionsUsed(region particle.Payload) int {
	return int(region.Int32(0))
}
