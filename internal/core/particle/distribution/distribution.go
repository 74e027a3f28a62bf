// Package distribution evaluates the scalar and vector inputs of particle modules:
// constants, uniform ranges, piecewise linear curves, named instance parameters
// and script expressions baked into curves at load time.
package distribution

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle"
)

// Source supplies randomness and parameter overrides during evaluation.
type Source interface {
	// Float32 returns a uniform value in [0,1).
	Float32() float32
	Param(name string) (particle.Param, bool)
}

type Float interface {
	Value(t float32, src Source) float32
}

type Vector interface {
	Value(t float32, src Source) mgl32.Vec3
}

type Constant float32

func (c Constant) Value(float32, Source) float32 { return float32(c) }

type Uniform struct {
	Min, Max float32
}

func (u Uniform) Value(_ float32, src Source) float32 {
	return u.Min + (u.Max-u.Min)*src.Float32()
}

type Point struct {
	T     float32
	Value float32
}

// Curve interpolates linearly between points sorted by T and clamps outside them.
type Curve struct {
	Points []Point
}

func NewCurve(points ...Point) Curve {
	sorted := append([]Point(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].T < sorted[j].T })
	return Curve{Points: sorted}
}

func (c Curve) Value(t float32, _ Source) float32 {
	n := len(c.Points)
	switch {
	case n == 0:
		return 0
	case t <= c.Points[0].T:
		return c.Points[0].Value
	case t >= c.Points[n-1].T:
		return c.Points[n-1].Value
	}
	i := sort.Search(n, func(i int) bool { return c.Points[i].T >= t })
	a, b := c.Points[i-1], c.Points[i]
	span := b.T - a.T
	if span <= 0 {
		return b.Value
	}
	return a.Value + (b.Value-a.Value)*(t-a.T)/span
}

// Parameter reads a named instance parameter and falls back to Default.
type Parameter struct {
	Name    string
	Default Float
}

func (p Parameter) Value(t float32, src Source) float32 {
	if v, ok := src.Param(p.Name); ok {
		return v.ScalarValue(src.Float32())
	}
	if p.Default == nil {
		return 0
	}
	return p.Default.Value(t, src)
}

type ConstantVector mgl32.Vec3

func (c ConstantVector) Value(float32, Source) mgl32.Vec3 { return mgl32.Vec3(c) }

// UniformVector picks each component independently.
type UniformVector struct {
	Min, Max mgl32.Vec3
}

func (u UniformVector) Value(_ float32, src Source) mgl32.Vec3 {
	var out mgl32.Vec3
	for i := 0; i < 3; i++ {
		out[i] = u.Min[i] + (u.Max[i]-u.Min[i])*src.Float32()
	}
	return out
}

// CurveVector is three curves sharing one time axis.
type CurveVector struct {
	X, Y, Z Curve
}

func (c CurveVector) Value(t float32, src Source) mgl32.Vec3 {
	return mgl32.Vec3{c.X.Value(t, src), c.Y.Value(t, src), c.Z.Value(t, src)}
}

type ParameterVector struct {
	Name    string
	Default Vector
}

func (p ParameterVector) Value(t float32, src Source) mgl32.Vec3 {
	if v, ok := src.Param(p.Name); ok {
		return v.VectorValue(src.Float32())
	}
	if p.Default == nil {
		return mgl32.Vec3{}
	}
	return p.Default.Value(t, src)
}

// Eval evaluates f, treating nil as fallback.
func Eval(f Float, t float32, src Source, fallback float32) float32 {
	if f == nil {
		return fallback
	}
	return f.Value(t, src)
}

// EvalVector evaluates v, treating nil as fallback.
func EvalVector(v Vector, t float32, src Source, fallback mgl32.Vec3) mgl32.Vec3 {
	if v == nil {
		return fallback
	}
	return v.Value(t, src)
}
