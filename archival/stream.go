package archival

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/t2bot/s3-folder-export/common"
	"github.com/t2bot/s3-folder-export/common/rcontext"
	"github.com/t2bot/s3-folder-export/metrics"
	"github.com/t2bot/s3-folder-export/progress"
)

const copyBufferSize = 32 * 1024 // 32kb

type ArchiveOptions struct {
	CompressionLevel int
	BufferBytes      int
	MilestoneBytes   int64
	Observer         progress.Observer
}

// ArchiveStream writes a zip archive into a BoundedBuffer as entries are appended. The other
// end of the buffer is available from Reader and is expected to be drained concurrently.
type ArchiveStream struct {
	ctx    rcontext.RequestContext
	buffer *BoundedBuffer
	output *milestoneWriter
	zip    *zip.Writer

	// appendLock serializes entries; stateLock guards the fields below it
	appendLock sync.Mutex
	stateLock  sync.Mutex
	finalized  bool
	failure    error
	entries    int
}

func NewArchiveStream(ctx rcontext.RequestContext, opts ArchiveOptions) *ArchiveStream {
	if opts.Observer == nil {
		opts.Observer = progress.NopObserver{}
	}
	level := opts.CompressionLevel
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		level = flate.DefaultCompression
	}

	buffer := NewBoundedBuffer(opts.BufferBytes)
	output := &milestoneWriter{
		w:        buffer,
		every:    opts.MilestoneBytes,
		next:     opts.MilestoneBytes,
		observer: opts.Observer,
	}
	zw := zip.NewWriter(output)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	return &ArchiveStream{
		ctx:    ctx,
		buffer: buffer,
		output: output,
		zip:    zw,
	}
}

// Reader is the consumer side of the archive.
func (s *ArchiveStream) Reader() io.Reader {
	return s.buffer
}

func (s *ArchiveStream) BytesWritten() int64 {
	return s.output.Written()
}

func (s *ArchiveStream) Entries() int {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	return s.entries
}

func (s *ArchiveStream) checkState() error {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	if s.failure != nil {
		return s.failure
	}
	if s.finalized {
		return common.ErrArchiveFinalized
	}
	return nil
}

func (s *ArchiveStream) fail(err error) error {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	if s.failure == nil {
		s.failure = err
	}
	return err
}

// Append streams r into a new deflated entry. The reader is not closed.
func (s *ArchiveStream) Append(name string, r io.Reader, declaredSize int64, modified time.Time) error {
	s.appendLock.Lock()
	defer s.appendLock.Unlock()

	if err := s.checkState(); err != nil {
		return err
	}
	if modified.IsZero() {
		modified = time.Now()
	}

	w, err := s.zip.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return s.fail(common.NewExportError(common.ErrArchiveWriter, "append", name, err))
	}

	src := &trackingReader{r: r}
	n, err := io.CopyBuffer(w, src, make([]byte, copyBufferSize))
	if err != nil {
		if src.err != nil && errors.Is(err, src.err) {
			// The entry is half written, so the archive can't be used after this
			return s.fail(err)
		}
		return s.fail(common.NewExportError(common.ErrArchiveWriter, "append", name, err))
	}
	if declaredSize >= 0 && n != declaredSize {
		s.ctx.Log.Warnf("Entry %s was %d bytes but %d were expected", name, n, declaredSize)
	}

	s.stateLock.Lock()
	s.entries++
	s.stateLock.Unlock()
	metrics.ObjectsArchived.Inc()
	return nil
}

// AppendDirectory adds an empty directory entry.
func (s *ArchiveStream) AppendDirectory(name string, modified time.Time) error {
	s.appendLock.Lock()
	defer s.appendLock.Unlock()

	if err := s.checkState(); err != nil {
		return err
	}
	if !strings.HasSuffix(name, "/") {
		name = name + "/"
	}
	if modified.IsZero() {
		modified = time.Now()
	}
	if _, err := s.zip.CreateHeader(&zip.FileHeader{Name: name, Modified: modified}); err != nil {
		return s.fail(common.NewExportError(common.ErrArchiveWriter, "append", name, err))
	}
	return nil
}

// Finalize writes the central directory and ends the stream. It may only be called once.
func (s *ArchiveStream) Finalize() error {
	s.appendLock.Lock()
	defer s.appendLock.Unlock()

	if err := s.checkState(); err != nil {
		return err
	}
	s.stateLock.Lock()
	s.finalized = true
	s.stateLock.Unlock()

	if err := s.zip.Close(); err != nil {
		err = common.NewExportError(common.ErrArchiveWriter, "finalize", "", err)
		_ = s.buffer.CloseWithError(err)
		return s.fail(err)
	}
	_ = s.buffer.CloseWithError(nil)
	s.ctx.Log.Infof("Archive finalized: %d entries, %s", s.Entries(), humanize.IBytes(uint64(s.BytesWritten())))
	return nil
}

// Abort tears the stream down from either side. Blocked writers and readers return err.
// It doesn't wait for an in-progress Append.
func (s *ArchiveStream) Abort(err error) {
	if err == nil {
		err = io.ErrClosedPipe
	}
	s.fail(err)
	s.buffer.CloseRead(err)
	_ = s.buffer.CloseWithError(err)
}

type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

type milestoneWriter struct {
	w        io.Writer
	every    int64
	next     int64
	observer progress.Observer

	lock    sync.Mutex
	written int64
}

func (m *milestoneWriter) Write(p []byte) (int, error) {
	n, err := m.w.Write(p)
	metrics.ArchiveBytes.Add(float64(n))

	m.lock.Lock()
	m.written += int64(n)
	reached := int64(-1)
	if m.every > 0 && m.written >= m.next {
		reached = m.written
		for m.next <= m.written {
			m.next += m.every
		}
	}
	m.lock.Unlock()

	if reached >= 0 {
		m.observer.ArchiveMilestone(reached)
	}
	return n, err
}

func (m *milestoneWriter) Written() int64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.written
}
