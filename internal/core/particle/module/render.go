package module

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// AxisLockFlags names the axis sprites are locked to.
type AxisLockFlags uint8

const (
	AxisLockNone AxisLockFlags = iota
	AxisLockX
	AxisLockY
	AxisLockZ
	AxisLockNegX
	AxisLockNegY
	AxisLockNegZ
	AxisLockRotateX
	AxisLockRotateY
	AxisLockRotateZ
)

var axisLockNames = map[string]AxisLockFlags{
	"none":     AxisLockNone,
	"x":        AxisLockX,
	"y":        AxisLockY,
	"z":        AxisLockZ,
	"-x":       AxisLockNegX,
	"-y":       AxisLockNegY,
	"-z":       AxisLockNegZ,
	"rotate_x": AxisLockRotateX,
	"rotate_y": AxisLockRotateY,
	"rotate_z": AxisLockRotateZ,
}

func (f *AxisLockFlags) UnmarshalText(text []byte) error {
	v, ok := axisLockNames[string(text)]
	if !ok {
		return fmt.Errorf("unknown lock axis %q", text)
	}
	*f = v
	return nil
}

// AxisLock is read by renderers only; it has no simulation behaviour.
type AxisLock struct {
	Common `yaml:",inline"`
	Axis   AxisLockFlags `yaml:"axis"`
}

func (*AxisLock) Type() string { return "axis_lock" }
func (*AxisLock) Kind() Kind   { return KindAxisLock }

// PivotOffset moves the sprite pivot, in units of sprite size.
type PivotOffset struct {
	Common `yaml:",inline"`
	Offset mgl32.Vec2 `yaml:"offset"`
}

func (*PivotOffset) Type() string { return "pivot_offset" }
func (*PivotOffset) Kind() Kind   { return KindPivotOffset }
