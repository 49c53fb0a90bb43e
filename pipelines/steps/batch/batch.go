package batch

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/s3-folder-export/common"
	"github.com/t2bot/s3-folder-export/common/rcontext"
	"github.com/t2bot/s3-folder-export/datastores"
	"github.com/t2bot/s3-folder-export/metrics"
	"github.com/t2bot/s3-folder-export/pool"
	"github.com/t2bot/s3-folder-export/progress"
)

type Fetcher interface {
	Fetch(ctx rcontext.RequestContext, obj datastores.ObjectInfo) (io.ReadCloser, error)
}

type Archive interface {
	Append(name string, r io.Reader, declaredSize int64, modified time.Time) error
	AppendDirectory(name string, modified time.Time) error
}

type Governor interface {
	CheckAndPause(ctx rcontext.RequestContext) bool
}

type Options struct {
	ChunkSize      int
	Concurrency    int
	PacingInterval time.Duration
	SourcePrefix   string
}

// Processor drives objects into an archive in chunks, smallest objects first.
type Processor struct {
	fetcher  Fetcher
	archive  Archive
	governor Governor
	opts     Options
	queue    *pool.Queue
}

func NewProcessor(fetcher Fetcher, archive Archive, governor Governor, opts Options) (*Processor, error) {
	if opts.ChunkSize < 1 {
		opts.ChunkSize = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	queue, err := pool.NewQueue(opts.Concurrency, "export-batch")
	if err != nil {
		return nil, err
	}
	return &Processor{
		fetcher:  fetcher,
		archive:  archive,
		governor: governor,
		opts:     opts,
		queue:    queue,
	}, nil
}

// Workers is how many objects can be fetched at once.
func (p *Processor) Workers() int {
	return p.queue.Workers()
}

// Release stops the processor's workers.
func (p *Processor) Release() {
	p.queue.Release(5 * time.Second)
}

// SortBySize returns a copy of objects ordered by ascending size. Objects of equal size keep
// their listing order.
func SortBySize(objects []datastores.ObjectInfo) []datastores.ObjectInfo {
	sorted := make([]datastores.ObjectInfo, len(objects))
	copy(sorted, objects)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Size < sorted[j].Size
	})
	return sorted
}

// EntryName is the path of a key inside the archive. An empty name means the key is the prefix
// itself.
func EntryName(prefix string, key string) string {
	return strings.TrimLeft(strings.TrimPrefix(key, prefix), "/")
}

// Process archives every object. The first failure stops further work and is returned.
func (p *Processor) Process(ctx rcontext.RequestContext, objects []datastores.ObjectInfo, tracker *progress.Tracker) error {
	if tracker == nil {
		tracker = progress.NewTracker(progress.Discard, len(objects))
	}
	sorted := SortBySize(objects)
	ctx.Log.Debugf("Archiving %d objects in chunks of %d with %d worker(s)", len(sorted), p.opts.ChunkSize, p.Workers())

	ctx, cancel := ctx.WithCancel()
	defer cancel()

	var firstErr error
	errLock := &sync.Mutex{}
	fail := func(err error) {
		errLock.Lock()
		defer errLock.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	failed := func() error {
		errLock.Lock()
		defer errLock.Unlock()
		return firstErr
	}

	chunks := (len(sorted) + p.opts.ChunkSize - 1) / p.opts.ChunkSize
	for c := 0; c < chunks; c++ {
		if err := failed(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		p.governor.CheckAndPause(ctx)

		start := c * p.opts.ChunkSize
		end := start + p.opts.ChunkSize
		if end > len(sorted) {
			end = len(sorted)
		}

		wg := &sync.WaitGroup{}
		for _, obj := range sorted[start:end] {
			obj := obj
			wg.Add(1)
			err := p.queue.Schedule(func() {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						fail(fmt.Errorf("panic while archiving %s: %v", obj.Key, r))
					}
				}()
				if ctx.Err() != nil {
					return
				}
				if err := p.processOne(ctx, obj); err != nil {
					fail(err)
					return
				}
				tracker.FileDone()
			})
			if err != nil {
				wg.Done()
				fail(err)
				break
			}
		}
		wg.Wait()

		if err := failed(); err != nil {
			return err
		}
		if c < chunks-1 && p.opts.PacingInterval > 0 {
			timer := time.NewTimer(p.opts.PacingInterval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
	}

	if err := failed(); err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Processor) processOne(ctx rcontext.RequestContext, obj datastores.ObjectInfo) error {
	name := EntryName(p.opts.SourcePrefix, obj.Key)
	if name == "" {
		return nil
	}
	if strings.HasSuffix(name, "/") {
		return p.archive.AppendDirectory(name, obj.LastModified)
	}

	body, err := p.fetcher.Fetch(ctx, obj)
	if err != nil {
		if errors.Is(err, common.ErrObjectNotFound) {
			ctx.Log.WithFields(logrus.Fields{"key": obj.Key}).Warn("Object disappeared before it could be archived, skipping")
			metrics.ObjectsSkipped.With(prometheus.Labels{"reason": "missing"}).Inc()
			return nil
		}
		return err
	}
	defer body.Close()

	return p.archive.Append(name, body, obj.Size, obj.LastModified)
}
