package archival

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedBufferBlocksWhenFull(t *testing.T) {
	b := NewBoundedBuffer(4)

	done := make(chan int)
	go func() {
		n, _ := b.Write([]byte("abcdefgh"))
		done <- n
	}()

	assert.Eventually(t, func() bool {
		return b.Len() == 4
	}, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("write should still be blocked")
	case <-time.After(50 * time.Millisecond):
	}

	out := make([]byte, 8)
	n, err := io.ReadFull(b, out)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "abcdefgh", string(out))
	assert.Equal(t, 8, <-done)
}

func TestBoundedBufferReadBlocksWhenEmpty(t *testing.T) {
	b := NewBoundedBuffer(16)

	got := make(chan string)
	go func() {
		p := make([]byte, 16)
		n, _ := b.Read(p)
		got <- string(p[:n])
	}()

	select {
	case <-got:
		t.Fatal("read should still be blocked")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := b.Write([]byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi", <-got)
}

func TestBoundedBufferDrainsBeforeEOF(t *testing.T) {
	b := NewBoundedBuffer(8)
	_, err := b.Write([]byte("12345"))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	all, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(all))

	_, err = b.Write([]byte("x"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestBoundedBufferWrapsAround(t *testing.T) {
	b := NewBoundedBuffer(5)
	p := make([]byte, 3)
	for i := 0; i < 10; i++ {
		_, err := b.Write([]byte{byte('a' + i), byte('b' + i), byte('c' + i)})
		require.NoError(t, err)
		_, err = io.ReadFull(b, p)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte('a' + i), byte('b' + i), byte('c' + i)}, p)
	}
}

func TestBoundedBufferCloseReadUnblocksWriter(t *testing.T) {
	b := NewBoundedBuffer(2)
	cause := errors.New("upload went away")

	done := make(chan error)
	go func() {
		_, err := b.Write([]byte("too much data"))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	b.CloseRead(cause)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, cause)
	case <-time.After(time.Second):
		t.Fatal("writer was not released")
	}
}

func TestBoundedBufferCloseWithError(t *testing.T) {
	b := NewBoundedBuffer(2)
	cause := errors.New("archive failed")
	require.NoError(t, b.CloseWithError(cause))

	_, err := b.Read(make([]byte, 1))
	assert.ErrorIs(t, err, cause)
}
