package particle

import (
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderSizeMatchesBase(t *testing.T) {
	assert.Equal(t, uintptr(HeaderSize), unsafe.Sizeof(Base{}))
}

func TestFlagsCounter(t *testing.T) {
	f := FlagFreeze | Flags(7)
	f = f.WithCounter(0x01000005)
	assert.Equal(t, uint32(5), f.Counter())
	assert.True(t, f.Has(FlagFreeze))
	assert.False(t, f.Has(FlagFreezeRotation))
}

func TestResetRestoresBaseValues(t *testing.T) {
	p := Base{
		BaseVelocity:       mgl32.Vec3{1, 2, 3},
		Velocity:           mgl32.Vec3{9, 9, 9},
		BaseSize:           mgl32.Vec3{2, 2, 2},
		BaseColor:          mgl32.Vec4{1, 0, 0, 1},
		BaseRotationRate:   0.5,
		OneOverMaxLifetime: 0.5,
	}
	p.Reset(1)
	assert.Equal(t, p.BaseVelocity, p.Velocity)
	assert.Equal(t, p.BaseSize, p.Size)
	assert.Equal(t, p.BaseColor, p.Color)
	assert.Equal(t, float32(0.5), p.RotationRate)
	assert.InDelta(t, 0.5, p.RelativeTime, 1e-6)
	assert.False(t, p.Dead())

	p.Kill()
	assert.True(t, p.Dead())
}

func TestPayloadAccessors(t *testing.T) {
	record := make(Payload, 64)
	region := record.Region(HeaderSize+16, 32)
	require.Len(t, region, 32)

	region.SetVec3(0, mgl32.Vec3{1, 2, 3})
	region.SetVec4(12, mgl32.Vec4{4, 5, 6, 7})
	region.SetBool(28, true)

	assert.Equal(t, mgl32.Vec3{1, 2, 3}, record.Vec3(16))
	assert.Equal(t, mgl32.Vec4{4, 5, 6, 7}, region.Vec4(12))
	assert.True(t, region.Bool(28))

	assert.Nil(t, record.Region(0, 8))
	region.Zero()
	assert.Equal(t, float32(0), record.Float32(16))
}

func TestParameters(t *testing.T) {
	params := NewParameters()
	params.SetScalarRand("Size", 2, 4)
	params.SetVector("Wind", mgl32.Vec3{1, 0, 0})

	size, ok := params.Lookup("Size")
	require.True(t, ok)
	assert.InDelta(t, 3, size.ScalarValue(0.5), 1e-6)

	wind, ok := params.Lookup("Wind")
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, wind.VectorValue(0.9))

	params.Remove("Wind")
	_, ok = params.Lookup("Wind")
	assert.False(t, ok)
	assert.Len(t, params.Snapshot(), 1)
}
