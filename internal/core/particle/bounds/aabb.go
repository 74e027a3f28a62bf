// Package bounds keeps the conservative world-space box around an emitter's
// live particles.
package bounds

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis aligned box. The zero value is empty.
type AABB struct {
	Min   mgl32.Vec3
	Max   mgl32.Vec3
	Valid bool
}

// Empty returns a box that contains nothing.
func Empty() AABB { return AABB{} }

// FromCenterExtent builds a box from its center and half size.
func FromCenterExtent(center, extent mgl32.Vec3) AABB {
	return AABB{Min: center.Sub(extent), Max: center.Add(extent), Valid: true}
}

func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Extent is the half size of the box.
func (b AABB) Extent() mgl32.Vec3 {
	if !b.Valid {
		return mgl32.Vec3{}
	}
	return b.Max.Sub(b.Min).Mul(0.5)
}

// AddPoint grows the box to contain p.
func (b AABB) AddPoint(p mgl32.Vec3) AABB {
	if !b.Valid {
		return AABB{Min: p, Max: p, Valid: true}
	}
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
	return b
}

// AddCube grows the box to contain a cube of half size r centered on p.
func (b AABB) AddCube(p mgl32.Vec3, r float32) AABB {
	return b.Union(FromCenterExtent(p, mgl32.Vec3{r, r, r}))
}

func (b AABB) Union(o AABB) AABB {
	switch {
	case !o.Valid:
		return b
	case !b.Valid:
		return o
	}
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], o.Min[i])
		b.Max[i] = max(b.Max[i], o.Max[i])
	}
	return b
}

// Expand moves every face outwards by amount.
func (b AABB) Expand(amount mgl32.Vec3) AABB {
	if !b.Valid {
		return b
	}
	b.Min = b.Min.Sub(amount)
	b.Max = b.Max.Add(amount)
	return b
}

// Pad grows the box by fraction of its extent on every side.
func (b AABB) Pad(fraction float32) AABB {
	return b.Expand(b.Extent().Mul(fraction))
}

// Translate moves the box by offset.
func (b AABB) Translate(offset mgl32.Vec3) AABB {
	if !b.Valid {
		return b
	}
	b.Min = b.Min.Add(offset)
	b.Max = b.Max.Add(offset)
	return b
}

// Transform returns the box around the eight transformed corners.
func (b AABB) Transform(m mgl32.Mat4) AABB {
	if !b.Valid {
		return b
	}
	out := Empty()
	for c := 0; c < 8; c++ {
		corner := b.Min
		if c&1 != 0 {
			corner[0] = b.Max[0]
		}
		if c&2 != 0 {
			corner[1] = b.Max[1]
		}
		if c&4 != 0 {
			corner[2] = b.Max[2]
		}
		out = out.AddPoint(mgl32.TransformCoordinate(corner, m))
	}
	return out
}

func (b AABB) Contains(p mgl32.Vec3) bool {
	if !b.Valid {
		return false
	}
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// ContainsBox reports whether o lies entirely inside b.
func (b AABB) ContainsBox(o AABB) bool {
	if !o.Valid {
		return true
	}
	return b.Contains(o.Min) && b.Contains(o.Max)
}

// ScaleOf extracts the per-axis scale of an affine transform.
func ScaleOf(m mgl32.Mat4) mgl32.Vec3 {
	return mgl32.Vec3{m.Col(0).Vec3().Len(), m.Col(1).Vec3().Len(), m.Col(2).Vec3().Len()}
}

func absMax(v mgl32.Vec3) float32 {
	return max(abs(v[0]), abs(v[1]), abs(v[2]))
}

func abs(f float32) float32 { return float32(math.Abs(float64(f))) }
