package particle

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

type ParamKind uint8

const (
	ParamScalar ParamKind = iota
	ParamScalarRand
	ParamVector
	ParamVectorRand
	ParamColor
	ParamActor
	ParamMaterial
)

// Param is one named instance parameter override. Rand kinds pick uniformly
// between the low and high value on every evaluation.
type Param struct {
	Name      string
	Kind      ParamKind
	Scalar    float32
	ScalarLow float32
	Vector    mgl32.Vec3
	VectorLow mgl32.Vec3
	Color     mgl32.Vec4
	Actor     string
	Material  string
}

// ScalarValue resolves the scalar for a random fraction r in [0,1).
func (p Param) ScalarValue(r float32) float32 {
	if p.Kind == ParamScalarRand {
		return p.ScalarLow + (p.Scalar-p.ScalarLow)*r
	}
	return p.Scalar
}

// VectorValue resolves the vector for a random fraction r in [0,1).
func (p Param) VectorValue(r float32) mgl32.Vec3 {
	if p.Kind == ParamVectorRand {
		return p.VectorLow.Add(p.Vector.Sub(p.VectorLow).Mul(r))
	}
	if p.Kind == ParamColor {
		return p.Color.Vec3()
	}
	return p.Vector
}

// Parameters is the named parameter table of a particle system instance. The
// owner writes it while the compute task may be reading it, so access is locked.
type Parameters struct {
	mu     sync.RWMutex
	values map[string]Param
}

func NewParameters() *Parameters {
	return &Parameters{values: make(map[string]Param)}
}

func (p *Parameters) set(v Param) {
	p.mu.Lock()
	p.values[v.Name] = v
	p.mu.Unlock()
}

func (p *Parameters) SetScalar(name string, v float32) {
	p.set(Param{Name: name, Kind: ParamScalar, Scalar: v})
}

func (p *Parameters) SetScalarRand(name string, low, high float32) {
	p.set(Param{Name: name, Kind: ParamScalarRand, Scalar: high, ScalarLow: low})
}

func (p *Parameters) SetVector(name string, v mgl32.Vec3) {
	p.set(Param{Name: name, Kind: ParamVector, Vector: v})
}

func (p *Parameters) SetVectorRand(name string, low, high mgl32.Vec3) {
	p.set(Param{Name: name, Kind: ParamVectorRand, Vector: high, VectorLow: low})
}

func (p *Parameters) SetColor(name string, c mgl32.Vec4) {
	p.set(Param{Name: name, Kind: ParamColor, Color: c})
}

func (p *Parameters) SetActor(name, actor string) {
	p.set(Param{Name: name, Kind: ParamActor, Actor: actor})
}

func (p *Parameters) SetMaterial(name, material string) {
	p.set(Param{Name: name, Kind: ParamMaterial, Material: material})
}

func (p *Parameters) Lookup(name string) (Param, bool) {
	if p == nil {
		return Param{}, false
	}
	p.mu.RLock()
	v, ok := p.values[name]
	p.mu.RUnlock()
	return v, ok
}

func (p *Parameters) Remove(name string) {
	p.mu.Lock()
	delete(p.values, name)
	p.mu.Unlock()
}

// Snapshot copies the table.
func (p *Parameters) Snapshot() []Param {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Param, 0, len(p.values))
	for _, v := range p.values {
		out = append(out, v)
	}
	return out
}
