package distribution

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

// FloatSpec decodes any of the scalar forms accepted in definition files:
//
//	5
//	{min: 1, max: 2}
//	{curve: [[0, 1], [1, 0]]}
//	{param: Size, default: 3}
//	{expr: "t * t", samples: 32}
type FloatSpec struct {
	Float
}

type floatMapping struct {
	Min     *float32     `yaml:"min"`
	Max     *float32     `yaml:"max"`
	Curve   [][2]float32 `yaml:"curve"`
	Param   string       `yaml:"param"`
	Default *FloatSpec   `yaml:"default"`
	Expr    string       `yaml:"expr"`
	Samples int          `yaml:"samples"`
}

func (s *FloatSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var v float32
		if err := node.Decode(&v); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		s.Float = Constant(v)
		return nil
	}

	var m floatMapping
	if err := node.Decode(&m); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	switch {
	case m.Expr != "":
		curve, err := CompileExpr(m.Expr, m.Samples)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		s.Float = curve
	case len(m.Curve) > 0:
		points := make([]Point, len(m.Curve))
		for i, p := range m.Curve {
			points[i] = Point{T: p[0], Value: p[1]}
		}
		s.Float = NewCurve(points...)
	case m.Param != "":
		p := Parameter{Name: m.Param}
		if m.Default != nil {
			p.Default = m.Default.Float
		}
		s.Float = p
	case m.Min != nil && m.Max != nil:
		s.Float = Uniform{Min: *m.Min, Max: *m.Max}
	default:
		return fmt.Errorf("line %d: %w", node.Line, errUnknownForm)
	}
	return nil
}

var errUnknownForm = errors.New("distribution needs a number, min/max, curve, param or expr")

// VectorSpec decodes the vector forms:
//
//	[1, 2, 3]
//	{min: [0, 0, 0], max: [1, 1, 1]}
//	{curve: [[t, x, y, z], ...]}
//	{param: Wind, default: [0, 0, 0]}
type VectorSpec struct {
	Vector
}

type vectorMapping struct {
	Min     *[3]float32  `yaml:"min"`
	Max     *[3]float32  `yaml:"max"`
	Curve   [][4]float32 `yaml:"curve"`
	Param   string       `yaml:"param"`
	Default *VectorSpec  `yaml:"default"`
}

func (s *VectorSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var v [3]float32
		if err := node.Decode(&v); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		s.Vector = ConstantVector(v)
		return nil
	}

	var m vectorMapping
	if err := node.Decode(&m); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	switch {
	case len(m.Curve) > 0:
		var xs, ys, zs []Point
		for _, p := range m.Curve {
			xs = append(xs, Point{T: p[0], Value: p[1]})
			ys = append(ys, Point{T: p[0], Value: p[2]})
			zs = append(zs, Point{T: p[0], Value: p[3]})
		}
		s.Vector = CurveVector{X: NewCurve(xs...), Y: NewCurve(ys...), Z: NewCurve(zs...)}
	case m.Param != "":
		p := ParameterVector{Name: m.Param}
		if m.Default != nil {
			p.Default = m.Default.Vector
		}
		s.Vector = p
	case m.Min != nil && m.Max != nil:
		s.Vector = UniformVector{Min: mgl32.Vec3(*m.Min), Max: mgl32.Vec3(*m.Max)}
	default:
		return fmt.Errorf("line %d: %w", node.Line, errUnknownForm)
	}
	return nil
}

// Get returns the decoded distribution or nil when the key was absent.
func (s *FloatSpec) Get() Float {
	if s == nil {
		return nil
	}
	return s.Float
}

func (s *VectorSpec) Get() Vector {
	if s == nil {
		return nil
	}
	return s.Vector
}
