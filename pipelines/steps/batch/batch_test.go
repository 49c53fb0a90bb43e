package batch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t2bot/s3-folder-export/common"
	"github.com/t2bot/s3-folder-export/common/rcontext"
	"github.com/t2bot/s3-folder-export/datastores"
	"github.com/t2bot/s3-folder-export/progress"
)

type fakeFetcher struct {
	fail  map[string]error
	panic string
}

func (f *fakeFetcher) Fetch(ctx rcontext.RequestContext, obj datastores.ObjectInfo) (io.ReadCloser, error) {
	if obj.Key == f.panic {
		panic("boom")
	}
	if err, ok := f.fail[obj.Key]; ok {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(make([]byte, obj.Size))), nil
}

type recordingArchive struct {
	lock  sync.Mutex
	names []string
	dirs  []string
}

func (a *recordingArchive) Append(name string, r io.Reader, declaredSize int64, modified time.Time) error {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return err
	}
	if n != declaredSize {
		return fmt.Errorf("short read for %s", name)
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	a.names = append(a.names, name)
	return nil
}

func (a *recordingArchive) AppendDirectory(name string, modified time.Time) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.dirs = append(a.dirs, name)
	return nil
}

type countingGovernor struct {
	lock  sync.Mutex
	calls int
}

func (g *countingGovernor) CheckAndPause(ctx rcontext.RequestContext) bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.calls++
	return false
}

type recordingSink struct {
	lock   sync.Mutex
	values []int
}

func (s *recordingSink) SetProgress(percent int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.values = append(s.values, percent)
}

func objects(prefix string, sizes ...int64) []datastores.ObjectInfo {
	out := make([]datastores.ObjectInfo, 0, len(sizes))
	for i, s := range sizes {
		out = append(out, datastores.ObjectInfo{Key: fmt.Sprintf("%sfile-%02d", prefix, i), Size: s})
	}
	return out
}

func newProcessor(t *testing.T, fetcher Fetcher, archive Archive, governor Governor, concurrency int) *Processor {
	p, err := NewProcessor(fetcher, archive, governor, Options{
		ChunkSize:      5,
		Concurrency:    concurrency,
		PacingInterval: time.Millisecond,
		SourcePrefix:   "a/",
	})
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func TestSortBySizeIsStable(t *testing.T) {
	sorted := SortBySize(objects("a/", 30, 10, 20, 10, 0))
	keys := make([]string, 0)
	for _, o := range sorted {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"a/file-04", "a/file-01", "a/file-03", "a/file-02", "a/file-00"}, keys)
}

func TestEntryName(t *testing.T) {
	assert.Equal(t, "x/y.txt", EntryName("a/", "a/x/y.txt"))
	assert.Equal(t, "y.txt", EntryName("a", "a/y.txt"))
	assert.Equal(t, "", EntryName("a/", "a/"))
	assert.Equal(t, "dir/", EntryName("a/", "a/dir/"))
}

func TestProcessArchivesInSizeOrder(t *testing.T) {
	archive := &recordingArchive{}
	governor := &countingGovernor{}
	sink := &recordingSink{}
	objs := objects("a/", 50, 40, 30, 20, 10, 5, 60, 1, 2, 3, 4, 7)
	p := newProcessor(t, &fakeFetcher{}, archive, governor, 1)

	err := p.Process(rcontext.Initial(), objs, progress.NewTracker(sink, len(objs)))
	require.NoError(t, err)

	expected := make([]string, 0)
	for _, o := range SortBySize(objs) {
		expected = append(expected, EntryName("a/", o.Key))
	}
	assert.Equal(t, expected, archive.names)
	assert.Equal(t, 3, governor.calls)

	require.NotEmpty(t, sink.values)
	for i := 1; i < len(sink.values); i++ {
		assert.Greater(t, sink.values[i], sink.values[i-1])
	}
	assert.Equal(t, 100, sink.values[len(sink.values)-1])
}

func TestProcessConcurrentFetches(t *testing.T) {
	archive := &recordingArchive{}
	sink := &recordingSink{}
	objs := objects("a/", 9, 8, 7, 6, 5, 4, 3, 2, 1, 10, 11)
	p := newProcessor(t, &fakeFetcher{}, archive, &countingGovernor{}, 3)

	err := p.Process(rcontext.Initial(), objs, progress.NewTracker(sink, len(objs)))
	require.NoError(t, err)
	assert.Len(t, archive.names, len(objs))
	assert.Equal(t, 100, sink.values[len(sink.values)-1])
}

func TestProcessorWorkers(t *testing.T) {
	assert.Equal(t, 1, newProcessor(t, &fakeFetcher{}, &recordingArchive{}, &countingGovernor{}, 0).Workers())
	assert.Equal(t, 3, newProcessor(t, &fakeFetcher{}, &recordingArchive{}, &countingGovernor{}, 3).Workers())
}

func TestProcessStopsOnFirstError(t *testing.T) {
	archive := &recordingArchive{}
	governor := &countingGovernor{}
	sink := &recordingSink{}
	objs := objects("a/", 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11)
	cause := common.NewExportError(common.ErrStreamTimeout, "fetch", "a/file-01", nil)
	fetcher := &fakeFetcher{fail: map[string]error{"a/file-01": cause}}
	p := newProcessor(t, fetcher, archive, governor, 1)

	err := p.Process(rcontext.Initial(), objs, progress.NewTracker(sink, len(objs)))
	assert.ErrorIs(t, err, common.ErrStreamTimeout)
	assert.Equal(t, 1, governor.calls)
	assert.NotContains(t, archive.names, "file-05")
	for _, v := range sink.values {
		assert.Less(t, v, 100)
	}
}

func TestProcessSkipsMissingObjects(t *testing.T) {
	archive := &recordingArchive{}
	sink := &recordingSink{}
	objs := objects("a/", 1, 2, 3)
	missing := common.NewExportError(common.ErrObjectNotFound, "fetch", "a/file-01", errors.New("404"))
	fetcher := &fakeFetcher{fail: map[string]error{"a/file-01": missing}}
	p := newProcessor(t, fetcher, archive, &countingGovernor{}, 1)

	err := p.Process(rcontext.Initial(), objs, progress.NewTracker(sink, len(objs)))
	require.NoError(t, err)
	assert.Equal(t, []string{"file-00", "file-02"}, archive.names)
	assert.Equal(t, 100, sink.values[len(sink.values)-1])
}

func TestProcessDirectoriesAndPrefixMarker(t *testing.T) {
	archive := &recordingArchive{}
	objs := []datastores.ObjectInfo{
		{Key: "a/", Size: 0},
		{Key: "a/sub/", Size: 0},
		{Key: "a/sub/file.txt", Size: 4},
	}
	p := newProcessor(t, &fakeFetcher{}, archive, &countingGovernor{}, 1)

	require.NoError(t, p.Process(rcontext.Initial(), objs, nil))
	assert.Equal(t, []string{"sub/"}, archive.dirs)
	assert.Equal(t, []string{"sub/file.txt"}, archive.names)
}

func TestProcessRecoversPanics(t *testing.T) {
	archive := &recordingArchive{}
	objs := objects("a/", 1, 2)
	p := newProcessor(t, &fakeFetcher{panic: "a/file-00"}, archive, &countingGovernor{}, 1)

	err := p.Process(rcontext.Initial(), objs, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}
