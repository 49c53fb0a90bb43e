package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/s3-folder-export/common"
	"github.com/t2bot/s3-folder-export/common/rcontext"
	"github.com/t2bot/s3-folder-export/datastores"
	"github.com/t2bot/s3-folder-export/metrics"
	"github.com/t2bot/s3-folder-export/progress"
)

const progressStep = 5

type Options struct {
	PartSize    int64
	QueueSize   int
	ContentType string
	// ExpectedBytes is only used to estimate progress. Zero disables progress reporting.
	ExpectedBytes int64
	Observer      progress.Observer
}

type Result struct {
	Key      string
	UploadId string
	Location string
	Parts    int
	Bytes    int64
}

// Multiplexer streams a reader of unknown length into a multipart upload, keeping at most
// QueueSize parts in flight. An upload either completes or is aborted, never left open.
type Multiplexer struct {
	store   datastores.MultipartUploader
	opts    Options
	buffers sync.Pool
}

func NewMultiplexer(store datastores.MultipartUploader, opts Options) *Multiplexer {
	if opts.PartSize <= 0 {
		opts.PartSize = 20 * 1024 * 1024
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.ContentType == "" {
		opts.ContentType = "application/zip"
	}
	if opts.Observer == nil {
		opts.Observer = progress.NopObserver{}
	}
	m := &Multiplexer{
		store: store,
		opts:  opts,
	}
	m.buffers.New = func() interface{} {
		b := make([]byte, opts.PartSize)
		return &b
	}
	return m
}

type session struct {
	ctx      rcontext.RequestContext
	key      string
	uploadId string

	lock     sync.Mutex
	parts    []datastores.CompletedPart
	uploaded int64
	lastStep int
	failure  error
	cancel   context.CancelFunc
}

func (s *session) fail(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.failure == nil {
		s.failure = err
		s.cancel()
	}
}

func (s *session) failed() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.failure
}

// Upload consumes src until EOF. Any failure aborts the multipart upload and is returned as
// common.ErrUploadPartFailure.
func (m *Multiplexer) Upload(ctx rcontext.RequestContext, src io.Reader, key string) (*Result, error) {
	ctx = ctx.LogWithFields(logrus.Fields{"upload_key": key})

	uploadId, err := m.store.BeginUpload(ctx, key, m.opts.ContentType)
	if err != nil {
		return nil, common.NewExportError(common.ErrUploadPartFailure, "begin", key, err)
	}
	ctx.Log.Debug("Started multipart upload ", uploadId)

	uctx, cancel := ctx.WithCancel()
	defer cancel()
	s := &session{
		ctx:      uctx,
		key:      key,
		uploadId: uploadId,
		parts:    make([]datastores.CompletedPart, 0),
		cancel:   cancel,
	}

	sem := make(chan struct{}, m.opts.QueueSize)
	wg := &sync.WaitGroup{}
	number := 0
	for s.failed() == nil {
		bufPtr := m.buffers.Get().(*[]byte)
		n, rerr := io.ReadFull(src, *bufPtr)
		if n > 0 || (number == 0 && rerr == io.EOF) {
			number++
			select {
			case sem <- struct{}{}:
			case <-uctx.Done():
				m.buffers.Put(bufPtr)
				s.fail(common.NewExportError(common.ErrUploadPartFailure, "part", key, uctx.Err()))
				continue
			}
			wg.Add(1)
			go func(number int, bufPtr *[]byte, n int) {
				defer wg.Done()
				defer func() { <-sem }()
				defer m.buffers.Put(bufPtr)
				m.uploadPart(s, number, (*bufPtr)[:n])
			}(number, bufPtr, n)
		} else {
			m.buffers.Put(bufPtr)
		}

		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			s.fail(common.NewExportError(common.ErrUploadPartFailure, "read", key, rerr))
		}
	}
	wg.Wait()

	if err = s.failed(); err == nil && ctx.Err() != nil {
		err = common.NewExportError(common.ErrUploadPartFailure, "upload", key, ctx.Err())
	}
	if err != nil {
		m.abort(ctx, s)
		return nil, err
	}

	sort.Slice(s.parts, func(i, j int) bool {
		return s.parts[i].Number < s.parts[j].Number
	})
	location, err := m.store.CompleteUpload(ctx, key, uploadId, s.parts)
	if err != nil {
		m.abort(ctx, s)
		return nil, common.NewExportError(common.ErrUploadPartFailure, "complete", key, err)
	}

	m.opts.Observer.UploadProgress(100, s.uploaded)
	ctx.Log.Infof("Upload complete: %d parts, %s", len(s.parts), humanize.IBytes(uint64(s.uploaded)))
	return &Result{
		Key:      key,
		UploadId: uploadId,
		Location: location,
		Parts:    len(s.parts),
		Bytes:    s.uploaded,
	}, nil
}

func (m *Multiplexer) uploadPart(s *session, number int, data []byte) {
	if s.failed() != nil {
		return
	}
	part, err := m.store.UploadPart(s.ctx, s.key, s.uploadId, number, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		metrics.UploadParts.With(prometheus.Labels{"result": "failed"}).Inc()
		s.fail(common.NewExportError(common.ErrUploadPartFailure, "part", s.key, err))
		return
	}
	metrics.UploadParts.With(prometheus.Labels{"result": "ok"}).Inc()

	s.lock.Lock()
	s.parts = append(s.parts, part)
	s.uploaded += int64(len(data))
	uploaded := s.uploaded
	report := -1
	if m.opts.ExpectedBytes > 0 {
		percent := int(uploaded * 100 / m.opts.ExpectedBytes)
		if percent > 99 {
			percent = 99
		}
		if step := percent / progressStep; step > s.lastStep {
			s.lastStep = step
			report = step * progressStep
		}
	}
	s.lock.Unlock()

	if report >= 0 {
		m.opts.Observer.UploadProgress(report, uploaded)
	}
}

func (m *Multiplexer) abort(ctx rcontext.RequestContext, s *session) {
	// The job context may already be cancelled, but the parts still need cleaning up
	actx := context.WithoutCancel(ctx.Context)
	if err := m.store.AbortUpload(actx, s.key, s.uploadId); err != nil {
		ctx.Log.Warn("Error aborting multipart upload: ", err)
		return
	}
	ctx.Log.Info("Aborted multipart upload ", s.uploadId)
}

// IsUploadFailure reports whether err came from the upload side of an export.
func IsUploadFailure(err error) bool {
	return errors.Is(err, common.ErrUploadPartFailure)
}
