package readers

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingCloser struct {
	io.Reader
	closes int
}

func (c *countingCloser) Close() error {
	c.closes++
	return nil
}

func TestCancelCloserRunsOnce(t *testing.T) {
	inner := &countingCloser{Reader: bytes.NewReader([]byte("hello"))}
	cancels := 0
	r := NewCancelCloser(inner, func() {
		cancels++
	})

	b, err := io.ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
	assert.Equal(t, 1, cancels)
	assert.Equal(t, 1, inner.closes)
}
