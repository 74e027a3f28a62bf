package generic

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResetPoolClearsValues(t *testing.T) {
	p := NewResetPool(func() *bytes.Buffer { return new(bytes.Buffer) }, func(b *bytes.Buffer) { b.Reset() })

	buf := p.Get()
	buf.WriteString("frame")
	p.Put(buf)

	assert.Equal(t, 0, buf.Len())
	assert.Equal(t, 0, p.Get().Len())
}
