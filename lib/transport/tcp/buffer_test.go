package tcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferCursors(t *testing.T) {
	b := newBuffer(8)
	assert.True(t, b.empty())
	assert.Equal(t, 8, b.space())

	copy(b.writable(), "abcd")
	b.advance(4)
	assert.Equal(t, 4, b.len())
	assert.Equal(t, []byte("abcd"), b.readable())

	b.consume(2)
	assert.Equal(t, []byte("cd"), b.readable())
	assert.Equal(t, 6, b.space())

	assert.True(t, b.append([]byte("efgh")))
	assert.Equal(t, []byte("cdefgh"), b.readable())

	assert.False(t, b.append([]byte("too much")))
	assert.Equal(t, []byte("cdefgh"), b.readable(), "failed append leaves contents intact")

	b.reset()
	assert.True(t, b.empty())
}

func TestBufferFull(t *testing.T) {
	b := newBuffer(4)
	assert.True(t, b.append([]byte("wxyz")))
	assert.True(t, b.full())
	assert.Equal(t, 0, b.space())
}

func TestBufferPanics(t *testing.T) {
	b := newBuffer(4)
	assert.Panics(t, func() { b.advance(5) })
	assert.Panics(t, func() { b.consume(1) })
	b.advance(2)
	assert.Panics(t, func() { b.consume(3) })
	assert.Panics(t, func() { b.advance(-1) })
}
