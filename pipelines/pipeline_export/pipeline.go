package pipeline_export

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/t2bot/s3-folder-export/archival"
	"github.com/t2bot/s3-folder-export/common"
	"github.com/t2bot/s3-folder-export/common/config"
	"github.com/t2bot/s3-folder-export/common/rcontext"
	"github.com/t2bot/s3-folder-export/datastores"
	"github.com/t2bot/s3-folder-export/inventory"
	"github.com/t2bot/s3-folder-export/limits"
	"github.com/t2bot/s3-folder-export/pipelines/steps/batch"
	"github.com/t2bot/s3-folder-export/pipelines/steps/fetch"
	"github.com/t2bot/s3-folder-export/pipelines/steps/upload"
	"github.com/t2bot/s3-folder-export/progress"
	"github.com/t2bot/s3-folder-export/types"
)

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_\-/.]`)

var ErrPresignDisabled = errors.New("presigned links are not enabled")

// DestinationKey is where the archive for prefix is written under destinationPath.
func DestinationKey(destinationPath string, prefix string) string {
	name := strings.Trim(prefix, "/")
	if name == "" {
		name = "export"
	}
	dest := strings.Trim(destinationPath, "/")
	key := name + ".zip"
	if dest != "" {
		key = dest + "/" + key
	}
	return unsafeKeyChars.ReplaceAllString(key, "-")
}

type Exporter struct {
	store    datastores.ObjectStore
	conf     config.ExportConfig
	presign  *datastores.PresignCache
	governor batch.Governor
	observer progress.Observer
	urls     datastores.URLCache
}

type Option func(e *Exporter)

// WithGovernor replaces the heap-based memory governor.
func WithGovernor(g batch.Governor) Option {
	return func(e *Exporter) {
		e.governor = g
	}
}

func WithObserver(o progress.Observer) Option {
	return func(e *Exporter) {
		e.observer = o
	}
}

// WithURLCache shares presigned links through cache. A nil cache keeps links in process only.
func WithURLCache(cache datastores.URLCache) Option {
	return func(e *Exporter) {
		e.urls = cache
	}
}

func New(store datastores.ObjectStore, conf config.ExportConfig, opts ...Option) *Exporter {
	e := &Exporter{
		store: store,
		conf:  conf,
	}
	for _, o := range opts {
		o(e)
	}
	if conf.Presign.Enabled {
		e.presign = datastores.NewPresignCache(store, store.Bucket(), e.urls,
			time.Duration(conf.Presign.ExpirySeconds)*time.Second,
			time.Duration(conf.Presign.CacheExpirySeconds)*time.Second)
	}
	return e
}

// Link returns a presigned download URL for the archive an earlier export of sourcePrefix wrote
// below destinationPath. Links are reused from the cache until they near expiry.
func (e *Exporter) Link(ctx rcontext.RequestContext, sourcePrefix string, destinationPath string) (string, error) {
	if e.presign == nil {
		return "", ErrPresignDisabled
	}
	if destinationPath == "" {
		destinationPath = e.conf.DestinationPath
	}
	key := DestinationKey(destinationPath, sourcePrefix)
	url, err := e.presign.Get(ctx, key)
	if err != nil {
		return "", common.NewExportError(common.ErrStoreUnavailable, "presign", key, err)
	}
	return url, nil
}

type uploadOutcome struct {
	res *upload.Result
	err error
}

// Execute exports everything under sourcePrefix into a single zip written below destinationPath.
// An empty destinationPath uses the configured default.
func (e *Exporter) Execute(ctx rcontext.RequestContext, sourcePrefix string, destinationPath string, sink progress.Sink) (*types.ExportResult, error) {
	if destinationPath == "" {
		destinationPath = e.conf.DestinationPath
	}
	key := DestinationKey(destinationPath, sourcePrefix)
	ctx = ctx.LogWithFields(logrus.Fields{
		"prefix":      sourcePrefix,
		"destination": key,
	})
	observer := e.observer
	if observer == nil {
		observer = &progress.LogObserver{Log: ctx.Log}
	}

	// Step 1: Find everything we're exporting
	inv, err := inventory.NewScanner(e.store).Scan(ctx, sourcePrefix)
	if err != nil {
		return nil, err
	}
	ctx.Log.Infof("Exporting %d files (%s)", inv.Count, inv.HumanSize())

	// Step 2: Wire the archive into the upload and start consuming it straight away
	stream := archival.NewArchiveStream(ctx, archival.ArchiveOptions{
		CompressionLevel: e.conf.Archive.CompressionLevel,
		BufferBytes:      e.conf.Archive.BufferBytes,
		MilestoneBytes:   e.conf.Archive.MilestoneBytes,
		Observer:         observer,
	})
	mux := upload.NewMultiplexer(e.store, upload.Options{
		PartSize:      e.conf.Upload.PartSizeBytes,
		QueueSize:     e.conf.Upload.QueueSize,
		ContentType:   e.conf.ContentType,
		ExpectedBytes: inv.TotalBytes,
		Observer:      observer,
	})
	uploadCh := make(chan uploadOutcome, 1)
	go func() {
		res, err := mux.Upload(ctx, stream.Reader(), key)
		if err != nil {
			// Release anything blocked writing into the archive
			stream.Abort(err)
		}
		uploadCh <- uploadOutcome{res: res, err: err}
	}()

	// Step 3: Set up the batch processor
	governor := e.governor
	if governor == nil {
		memGovernor := limits.NewMemoryGovernor(ctx, e.conf.Memory.CeilingBytes, time.Duration(e.conf.Memory.CooldownSeconds)*time.Second)
		stopMonitoring := memGovernor.StartMonitoring(time.Duration(e.conf.Memory.MonitorSeconds) * time.Second)
		defer stopMonitoring()
		governor = memGovernor
	}
	fetcher := fetch.NewReader(e.store, fetch.Options{
		MinimumTimeout:   time.Duration(e.conf.Timeouts.MinimumSeconds) * time.Second,
		TimeoutStep:      time.Duration(e.conf.Timeouts.StepSeconds) * time.Second,
		TimeoutStepBytes: e.conf.Timeouts.StepBytes,
	})
	processor, err := batch.NewProcessor(fetcher, stream, governor, batch.Options{
		ChunkSize:      e.conf.Batch.ChunkSize,
		Concurrency:    e.conf.Batch.Concurrency,
		PacingInterval: time.Duration(e.conf.Batch.PacingMillis) * time.Millisecond,
		SourcePrefix:   sourcePrefix,
	})
	if err != nil {
		stream.Abort(err)
		<-uploadCh
		return nil, err
	}
	defer processor.Release()

	// Step 4: Fill the archive, then close it off
	tracker := progress.NewTracker(sink, inv.Count)
	archiveErr := processor.Process(ctx, inv.Objects, tracker)
	if archiveErr == nil {
		archiveErr = stream.Finalize()
	}
	if archiveErr != nil {
		stream.Abort(archiveErr)
		outcome := <-uploadCh
		// When the upload failed first the archive only failed because its reader went away
		if outcome.err != nil && errors.Is(archiveErr, common.ErrUploadPartFailure) {
			return nil, outcome.err
		}
		return nil, archiveErr
	}

	// Step 5: Wait for the upload to commit
	outcome := <-uploadCh
	if outcome.err != nil {
		return nil, outcome.err
	}

	// Step 6: Issue a download link if wanted
	result := &types.ExportResult{
		Status:       string(types.ExportStateCompleted),
		Bucket:       e.store.Bucket(),
		Key:          key,
		Location:     outcome.res.Location,
		DownloadUrl:  outcome.res.Location,
		TotalSize:    inv.HumanSize(),
		TotalBytes:   inv.TotalBytes,
		NoOfFiles:    inv.Count,
		ArchiveBytes: stream.BytesWritten(),
	}
	if e.presign != nil {
		// A link cached for an earlier archive at this key would outlive less of its ttl
		e.presign.Invalidate(ctx, key)
		url, err := e.presign.Get(ctx, key)
		if err != nil {
			return nil, common.NewExportError(common.ErrStoreUnavailable, "presign", key, err)
		}
		result.PresignedUrl = url
		result.DownloadUrl = url
	}

	tracker.Set(100)
	return result, nil
}
