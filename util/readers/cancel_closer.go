package readers

import (
	"io"
	"sync"
)

// CancelCloser runs a cancel function when the wrapped reader is closed. The cancel function
// runs before the underlying Close and only ever once, no matter how often Close is called.
type CancelCloser struct {
	io.ReadCloser
	cancel func()
	once   sync.Once
	err    error
}

func NewCancelCloser(r io.ReadCloser, cancel func()) *CancelCloser {
	return &CancelCloser{
		ReadCloser: r,
		cancel:     cancel,
	}
}

func (c *CancelCloser) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.err = c.ReadCloser.Close()
	})
	return c.err
}
