package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/cascade/internal/core/particle"
	"github.com/zeusync/cascade/internal/core/particle/distribution"
	"github.com/zeusync/cascade/internal/core/particle/module"
)

type sized struct {
	module.Common
	name     string
	bytes    int
	instance int
}

func (s *sized) Type() string                  { return s.name }
func (s *sized) RequiredBytes() int            { return s.bytes }
func (s *sized) RequiredBytesPerInstance() int { return s.instance }

func stack() []module.Module {
	return []module.Module{
		module.NewLifetime(distribution.Constant(1)),
		&module.DynamicParameter{},
		module.NewOrbit(module.ChainAdd, distribution.ConstantVector{1, 0, 0}, nil, nil),
		&sized{name: "scratch", bytes: 4, instance: 12},
		module.NewOrbit(module.ChainLink, distribution.ConstantVector{1, 0, 0}, nil, nil),
	}
}

func TestBuildAssignsOffsets(t *testing.T) {
	beam := &module.BeamData{}
	l, err := Build([][]module.Module{stack(), stack()}, beam, 8)
	require.NoError(t, err)

	assert.True(t, l.Particle[0].Empty())
	assert.Equal(t, Region{Offset: particle.HeaderSize, Size: 16}, l.Particle[1])
	assert.Equal(t, particle.HeaderSize, l.DynamicParameter)
	assert.Equal(t, []int{particle.HeaderSize + 16, particle.HeaderSize + 16 + 72 + 4}, l.Orbits)
	assert.Equal(t, Region{Offset: 24, Size: 12}, l.Instance[3])
	assert.Equal(t, Region{Offset: 0, Size: 24}, l.TypeDataInstance)
	assert.Equal(t, 36, l.InstanceSize)

	wantSize := particle.HeaderSize + 16 + 72 + 4 + 72 + 8
	assert.Equal(t, wantSize, l.ParticleSize)
	assert.Equal(t, Region{Offset: wantSize - 8, Size: 8}, l.Emitter)
	assert.Equal(t, 0, l.Stride%Alignment)
	assert.GreaterOrEqual(t, l.Stride, l.ParticleSize)
	assert.Equal(t, l.Stride-particle.HeaderSize, l.PayloadStride)
}

func TestRegionsDoNotOverlap(t *testing.T) {
	l, err := Build([][]module.Module{stack()}, nil, 0)
	require.NoError(t, err)
	end := particle.HeaderSize
	for _, r := range l.Particle {
		if r.Empty() {
			continue
		}
		assert.GreaterOrEqual(t, r.Offset, end)
		end = r.Offset + r.Size
	}
	payload := make(particle.Payload, l.PayloadStride)
	assert.Len(t, l.Region(payload, 2), module.OrbitPayloadSize)
	assert.Nil(t, l.Region(payload, 0))
	assert.Len(t, l.InstanceRegion(make(particle.Payload, l.InstanceSize), 3), 12)
}

func TestMismatchedStacksRejected(t *testing.T) {
	short := stack()[:4]
	_, err := Build([][]module.Module{stack(), short}, nil, 0)
	assert.ErrorIs(t, err, particle.ErrModuleStackMismatch)

	swapped := stack()
	swapped[0], swapped[1] = swapped[1], swapped[0]
	_, err = Build([][]module.Module{stack(), swapped}, nil, 0)
	assert.ErrorIs(t, err, particle.ErrModuleStackMismatch)

	grown := stack()
	grown[3] = &sized{name: "scratch", bytes: 8}
	assert.ErrorIs(t, ValidateLevel(stack(), grown), particle.ErrModuleStackMismatch)
}

func TestNegativeBytesRejected(t *testing.T) {
	bad := []module.Module{&sized{name: "broken", bytes: -1}}
	_, err := Build([][]module.Module{bad}, nil, 0)
	assert.ErrorIs(t, err, particle.ErrModuleBytes)

	_, err = Build(nil, nil, 0)
	assert.ErrorIs(t, err, particle.ErrNoLODLevels)
}

func TestSignatureTracksShape(t *testing.T) {
	a, err := Build([][]module.Module{stack()}, nil, 0)
	require.NoError(t, err)
	b, err := Build([][]module.Module{stack()}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, a.Signature(), b.Signature())

	c, err := Build([][]module.Module{stack()[:3]}, nil, 0)
	require.NoError(t, err)
	assert.NotEqual(t, a.Signature(), c.Signature())
}
