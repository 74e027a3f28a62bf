package system

import (
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/cascade/internal/core/particle"
)

// Named instance parameters. Setters are safe while a compute task runs; the
// table is locked and modules read it on the next evaluation.

func (c *Component) Parameters() *particle.Parameters { return c.params }

func (c *Component) SetFloatParameter(name string, v float32) { c.params.SetScalar(name, v) }

func (c *Component) SetFloatRandParameter(name string, high, low float32) {
	c.params.SetScalarRand(name, low, high)
}

func (c *Component) SetVectorParameter(name string, v mgl32.Vec3) { c.params.SetVector(name, v) }

func (c *Component) SetVectorRandParameter(name string, high, low mgl32.Vec3) {
	c.params.SetVectorRand(name, low, high)
}

func (c *Component) SetColorParameter(name string, v mgl32.Vec4) { c.params.SetColor(name, v) }
func (c *Component) SetActorParameter(name, actor string)        { c.params.SetActor(name, actor) }

// SetMaterialParameter overrides the material of the slot called name.
func (c *Component) SetMaterialParameter(name, material string) {
	c.params.SetMaterial(name, material)
}

func (c *Component) ClearParameter(name string) { c.params.Remove(name) }

// FloatParameter reads a scalar. Random scalars are rolled on every read.
func (c *Component) FloatParameter(name string) (float32, bool) {
	p, ok := c.params.Lookup(name)
	if !ok || (p.Kind != particle.ParamScalar && p.Kind != particle.ParamScalarRand) {
		return 0, false
	}
	return p.ScalarValue(rand.Float32()), true
}

// VectorParameter reads a vector. Colors answer with their RGB part.
func (c *Component) VectorParameter(name string) (mgl32.Vec3, bool) {
	p, ok := c.params.Lookup(name)
	if !ok {
		return mgl32.Vec3{}, false
	}
	switch p.Kind {
	case particle.ParamVector, particle.ParamVectorRand, particle.ParamColor:
		return p.VectorValue(rand.Float32()), true
	}
	return mgl32.Vec3{}, false
}

func (c *Component) ColorParameter(name string) (mgl32.Vec4, bool) {
	p, ok := c.params.Lookup(name)
	if !ok || p.Kind != particle.ParamColor {
		return mgl32.Vec4{}, false
	}
	return p.Color, true
}

func (c *Component) ActorParameter(name string) (string, bool) {
	p, ok := c.params.Lookup(name)
	if !ok || p.Kind != particle.ParamActor {
		return "", false
	}
	return p.Actor, true
}

func (c *Component) MaterialParameter(name string) (string, bool) {
	p, ok := c.params.Lookup(name)
	if !ok || p.Kind != particle.ParamMaterial {
		return "", false
	}
	return p.Material, true
}
