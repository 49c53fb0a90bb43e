package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/s3-folder-export/common"
	"github.com/t2bot/s3-folder-export/common/rcontext"
	"github.com/t2bot/s3-folder-export/datastores"
	"github.com/t2bot/s3-folder-export/metrics"
	"github.com/t2bot/s3-folder-export/util/readers"
)

const largeObjectBytes = 100 * 1024 * 1024 // 100mb

type Options struct {
	MinimumTimeout   time.Duration
	TimeoutStep      time.Duration
	TimeoutStepBytes int64
}

func DefaultOptions() Options {
	return Options{
		MinimumTimeout:   60 * time.Second,
		TimeoutStep:      60 * time.Second,
		TimeoutStepBytes: 100 * 1024 * 1024,
	}
}

// Timeout is how long an object of the given size gets to finish streaming: one step per
// started stepBytes, but never less than the minimum.
func Timeout(size int64, minimum time.Duration, step time.Duration, stepBytes int64) time.Duration {
	if stepBytes <= 0 || size <= 0 {
		return minimum
	}
	steps := (size + stepBytes - 1) / stepBytes
	t := time.Duration(steps) * step
	if t < minimum {
		return minimum
	}
	return t
}

type Reader struct {
	store datastores.Getter
	opts  Options
}

func NewReader(store datastores.Getter, opts Options) *Reader {
	return &Reader{store: store, opts: opts}
}

// Fetch opens a streaming read of obj. Opening must finish within the object's timeout, and the
// same timeout applies again from the first Read, so time spent waiting for the archive doesn't
// count against the object. Once it passes, reads fail with common.ErrStreamTimeout. Closing the
// stream releases the timers.
func (r *Reader) Fetch(ctx rcontext.RequestContext, obj datastores.ObjectInfo) (io.ReadCloser, error) {
	timeout := Timeout(obj.Size, r.opts.MinimumTimeout, r.opts.TimeoutStep, r.opts.TimeoutStepBytes)
	if obj.Size > largeObjectBytes {
		ctx.Log.WithFields(logrus.Fields{
			"key":     obj.Key,
			"timeout": timeout,
		}).Infof("Processing large file (%s)", humanize.IBytes(uint64(obj.Size)))
	}

	sctx, cancel := context.WithCancel(ctx.Context)
	openTimer := time.AfterFunc(timeout, cancel)
	body, _, err := r.store.GetObject(sctx, obj.Key)
	openExpired := !openTimer.Stop()
	if err == nil && openExpired {
		_ = body.Close()
		err = sctx.Err()
	}
	if err != nil {
		cancel()
		if errors.Is(err, common.ErrObjectNotFound) {
			return nil, common.NewExportError(common.ErrObjectNotFound, "fetch", obj.Key, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if openExpired {
			metrics.StreamTimeouts.Inc()
			return nil, common.NewExportError(common.ErrStreamTimeout, "fetch", obj.Key, fmt.Errorf("not opened within %s", timeout))
		}
		return nil, common.NewExportError(common.ErrStoreUnavailable, "fetch", obj.Key, err)
	}

	stream := &timedStream{
		body:    body,
		parent:  ctx.Context,
		cancel:  cancel,
		key:     obj.Key,
		timeout: timeout,
	}
	// Unblock reads stuck in the network on cancellation or when the deadline passes
	stop := context.AfterFunc(sctx, func() {
		_ = body.Close()
	})
	return readers.NewCancelCloser(stream, func() {
		stream.stopTimer()
		stop()
		cancel()
	}), nil
}

type timedStream struct {
	body    io.ReadCloser
	parent  context.Context
	cancel  context.CancelFunc
	key     string
	timeout time.Duration

	lock    sync.Mutex
	timer   *time.Timer
	expired bool
	once    sync.Once
}

func (s *timedStream) startTimer() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.timer == nil {
		s.timer = time.AfterFunc(s.timeout, s.expire)
	}
}

func (s *timedStream) stopTimer() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *timedStream) expire() {
	s.lock.Lock()
	s.expired = true
	s.lock.Unlock()
	s.cancel()
}

func (s *timedStream) Read(p []byte) (int, error) {
	s.startTimer()
	if err := s.checkDeadline(); err != nil {
		return 0, err
	}
	n, err := s.body.Read(p)
	if err != nil && err != io.EOF {
		if dErr := s.checkDeadline(); dErr != nil {
			return n, dErr
		}
		return n, common.NewExportError(common.ErrStoreUnavailable, "fetch", s.key, err)
	}
	return n, err
}

func (s *timedStream) checkDeadline() error {
	if err := s.parent.Err(); err != nil {
		return err
	}
	s.lock.Lock()
	expired := s.expired
	s.lock.Unlock()
	if !expired {
		return nil
	}
	s.once.Do(func() {
		metrics.StreamTimeouts.Inc()
	})
	return common.NewExportError(common.ErrStreamTimeout, "fetch", s.key, fmt.Errorf("no completion within %s", s.timeout))
}

func (s *timedStream) Close() error {
	return s.body.Close()
}
