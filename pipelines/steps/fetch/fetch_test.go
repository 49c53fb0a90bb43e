package fetch

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t2bot/s3-folder-export/common"
	"github.com/t2bot/s3-folder-export/common/rcontext"
	"github.com/t2bot/s3-folder-export/datastores"
	"github.com/t2bot/s3-folder-export/test/test_internals"
)

func TestTimeout(t *testing.T) {
	opts := DefaultOptions()
	calc := func(size int64) time.Duration {
		return Timeout(size, opts.MinimumTimeout, opts.TimeoutStep, opts.TimeoutStepBytes)
	}

	assert.Equal(t, 60*time.Second, calc(0))
	assert.Equal(t, 60*time.Second, calc(1024))
	assert.Equal(t, 60*time.Second, calc(100*1024*1024))
	assert.Equal(t, 120*time.Second, calc(100*1024*1024+1))
	assert.Equal(t, 180*time.Second, calc(250*1024*1024))
	assert.GreaterOrEqual(t, calc(250*1024*1024), 180*time.Second)
	assert.Equal(t, 60*time.Minute, calc(6000*1024*1024))
}

func TestFetchReadsObject(t *testing.T) {
	store := test_internals.NewMemoryStore()
	store.Put("folder/a.txt", []byte("contents"))

	r, err := NewReader(store, DefaultOptions()).Fetch(rcontext.Initial(), datastores.ObjectInfo{Key: "folder/a.txt", Size: 8})
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "contents", string(b))
	assert.NoError(t, r.Close())
}

func TestFetchMissingObject(t *testing.T) {
	store := test_internals.NewMemoryStore()

	_, err := NewReader(store, DefaultOptions()).Fetch(rcontext.Initial(), datastores.ObjectInfo{Key: "gone", Size: 8})
	assert.ErrorIs(t, err, common.ErrObjectNotFound)
}

func TestFetchStalledStreamTimesOut(t *testing.T) {
	store := test_internals.NewMemoryStore()
	store.Put("folder/slow.bin", make([]byte, 32))
	store.OpenHook = func(key string, r io.ReadCloser) io.ReadCloser {
		return test_internals.NewStallingReader()
	}

	opts := Options{
		MinimumTimeout:   50 * time.Millisecond,
		TimeoutStep:      50 * time.Millisecond,
		TimeoutStepBytes: 1024,
	}
	r, err := NewReader(store, opts).Fetch(rcontext.Initial(), datastores.ObjectInfo{Key: "folder/slow.bin", Size: 32})
	require.NoError(t, err)
	defer r.Close()

	start := time.Now()
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, common.ErrStreamTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFetchCancelledIsNotATimeout(t *testing.T) {
	store := test_internals.NewMemoryStore()
	store.Put("folder/slow.bin", make([]byte, 32))
	store.OpenHook = func(key string, r io.ReadCloser) io.ReadCloser {
		return test_internals.NewStallingReader()
	}

	base := rcontext.Initial()
	cctx, cancel := context.WithCancel(base.Context)
	ctx := base.WithContext(cctx)
	r, err := NewReader(store, DefaultOptions()).Fetch(ctx, datastores.ObjectInfo{Key: "folder/slow.bin", Size: 32})
	require.NoError(t, err)
	defer r.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, common.ErrStreamTimeout)
}

func TestFetchDeadlineStartsOnFirstRead(t *testing.T) {
	store := test_internals.NewMemoryStore()
	store.Put("folder/queued.txt", []byte("waited for the archive"))

	opts := Options{
		MinimumTimeout:   50 * time.Millisecond,
		TimeoutStep:      50 * time.Millisecond,
		TimeoutStepBytes: 1024,
	}
	r, err := NewReader(store, opts).Fetch(rcontext.Initial(), datastores.ObjectInfo{Key: "folder/queued.txt", Size: 22})
	require.NoError(t, err)
	defer r.Close()

	// Sitting behind another entry longer than the timeout is fine
	time.Sleep(150 * time.Millisecond)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "waited for the archive", string(b))
}
