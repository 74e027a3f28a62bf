package distribution

import (
	"fmt"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
)

// DefaultSamples is the table size used when an expression does not set one.
const DefaultSamples = 64

// CompileExpr runs a tengo expression of t over [0,1] and bakes the results into
// a curve. The script sees t and the math module, and its value becomes the sample.
//
//	expr: "math.sin(t * math.pi) * 2"
func CompileExpr(expr string, samples int) (Curve, error) {
	if samples < 2 {
		samples = DefaultSamples
	}

	src := fmt.Sprintf("math := import(\"math\")\n__value := (%s)\n", expr)
	script := tengo.NewScript([]byte(src))
	script.SetImports(stdlib.GetModuleMap("math"))
	if err := script.Add("t", 0.0); err != nil {
		return Curve{}, fmt.Errorf("bind t: %w", err)
	}

	compiled, err := script.Compile()
	if err != nil {
		return Curve{}, fmt.Errorf("compile expression %q: %w", expr, err)
	}

	points := make([]Point, samples)
	for i := 0; i < samples; i++ {
		t := float64(i) / float64(samples-1)
		if err = compiled.Set("t", t); err != nil {
			return Curve{}, fmt.Errorf("set t: %w", err)
		}
		if err = compiled.Run(); err != nil {
			return Curve{}, fmt.Errorf("evaluate expression %q at t=%.3f: %w", expr, t, err)
		}
		points[i] = Point{T: float32(t), Value: float32(compiled.Get("__value").Float())}
	}
	return Curve{Points: points}, nil
}
