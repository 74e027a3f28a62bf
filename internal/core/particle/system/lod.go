package system

import (
	"slices"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/observability/log"
)

// SetViewers sets the viewer locations used for distance based LOD and for
// orienting the system toward the camera. The first viewer is the camera.
func (c *Component) SetViewers(viewers []mgl32.Vec3) {
	c.viewers = slices.Clone(viewers)
}

// LODLevel is the level every instance currently runs at.
func (c *Component) LODLevel() int { return c.lodLevel }

// DetermineLODLevel picks the level for the closest viewer. Systems with a
// single distance, or none, stay at level 0.
func (c *Component) DetermineLODLevel() int {
	if len(c.def.LODDistances) <= 1 {
		return 0
	}
	return c.def.Selector(c.cfg.LODBias).SelectForViewers(c.location(), c.viewers)
}

// SetLODLevel switches every instance to level plus the configured bias,
// clamped to the levels the system has. Systems without LOD distances ignore it.
func (c *Component) SetLODLevel(level int) {
	c.ForceAsyncWorkCompletion(Stall)
	if len(c.def.LODDistances) == 0 {
		return
	}
	next := c.def.Selector(c.cfg.LODBias).Clamp(level, c.def.LODLevels())
	if next == c.lodLevel {
		return
	}
	prev := c.lodLevel
	c.lodLevel = next
	for _, inst := range c.instances {
		inst.SetLOD(next)
	}
	c.boundsDirty = true
	c.logger.Debug("system LOD changed", log.Int("from", prev), log.Int("to", next))
}
