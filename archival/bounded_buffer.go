package archival

import (
	"io"
	"sync"
)

// BoundedBuffer is an in-memory pipe holding at most a fixed number of bytes. Writes block while
// the buffer is full and reads block while it is empty. Either side can close it with an error,
// which wakes anything blocked on the other side.
type BoundedBuffer struct {
	lock     sync.Mutex
	changed  *sync.Cond
	ring     []byte
	start    int
	size     int
	writeErr error // set once the writer is done; io.EOF for a clean close
	readErr  error // set once the reader has gone away
}

func NewBoundedBuffer(capacity int) *BoundedBuffer {
	if capacity < 1 {
		capacity = 1
	}
	b := &BoundedBuffer{
		ring: make([]byte, capacity),
	}
	b.changed = sync.NewCond(&b.lock)
	return b
}

func (b *BoundedBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	written := 0
	for written < len(p) {
		for b.size == len(b.ring) && b.readErr == nil && b.writeErr == nil {
			b.changed.Wait()
		}
		if b.readErr != nil {
			return written, b.readErr
		}
		if b.writeErr != nil {
			return written, io.ErrClosedPipe
		}

		end := (b.start + b.size) % len(b.ring)
		free := len(b.ring) - b.size
		if end+free > len(b.ring) {
			free = len(b.ring) - end
		}
		n := copy(b.ring[end:end+free], p[written:])
		b.size += n
		written += n
		b.changed.Broadcast()
	}
	return written, nil
}

func (b *BoundedBuffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	for b.size == 0 && b.writeErr == nil && b.readErr == nil {
		b.changed.Wait()
	}
	if b.readErr != nil {
		return 0, io.ErrClosedPipe
	}
	if b.size == 0 {
		return 0, b.writeErr
	}

	avail := b.size
	if b.start+avail > len(b.ring) {
		avail = len(b.ring) - b.start
	}
	n := copy(p, b.ring[b.start:b.start+avail])
	b.start = (b.start + n) % len(b.ring)
	b.size -= n
	if b.size == 0 {
		b.start = 0
	}
	b.changed.Broadcast()
	return n, nil
}

// CloseWithError ends the write side. Readers drain whatever is buffered and then receive err,
// or io.EOF when err is nil.
func (b *BoundedBuffer) CloseWithError(err error) error {
	if err == nil {
		err = io.EOF
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.writeErr == nil {
		b.writeErr = err
	}
	b.changed.Broadcast()
	return nil
}

func (b *BoundedBuffer) Close() error {
	return b.CloseWithError(nil)
}

// CloseRead ends the read side. Pending and future writes fail with err.
func (b *BoundedBuffer) CloseRead(err error) {
	if err == nil {
		err = io.ErrClosedPipe
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.readErr == nil {
		b.readErr = err
	}
	b.changed.Broadcast()
}

func (b *BoundedBuffer) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.size
}

func (b *BoundedBuffer) Cap() int {
	return len(b.ring)
}
