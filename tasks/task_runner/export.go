package task_runner

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/s3-folder-export/common/config"
	"github.com/t2bot/s3-folder-export/common/rcontext"
	"github.com/t2bot/s3-folder-export/datastores"
	"github.com/t2bot/s3-folder-export/inventory"
	"github.com/t2bot/s3-folder-export/metrics"
	"github.com/t2bot/s3-folder-export/pipelines/pipeline_export"
	"github.com/t2bot/s3-folder-export/progress"
	"github.com/t2bot/s3-folder-export/redislib"
	"github.com/t2bot/s3-folder-export/types"
	"github.com/t2bot/s3-folder-export/util"
	"github.com/t2bot/s3-folder-export/util/ids"
)

// ExportRunner is what a scheduler calls into. It doesn't retry; that's up to the caller.
type ExportRunner struct {
	scanner  *inventory.Scanner
	exporter *pipeline_export.Exporter
	locker   Locker
	conf     config.ExportConfig
}

// Locker hands out the distributed mutex for a job. *redislib.Connection implements it.
type Locker interface {
	NewExportMutex(jobId string, expiration time.Duration) redislib.Mutex
}

// NewExportRunner builds a runner over store. A nil redis connection runs exports unlocked, with
// presigned links cached in process only.
func NewExportRunner(store datastores.ObjectStore, conf config.ExportConfig, redis *redislib.Connection, opts ...pipeline_export.Option) *ExportRunner {
	r := &ExportRunner{
		scanner: inventory.NewScanner(store),
		conf:    conf,
	}
	if redis != nil {
		r.locker = redis
		// Caller options still win over the connection
		opts = append([]pipeline_export.Option{pipeline_export.WithURLCache(redis)}, opts...)
	}
	r.exporter = pipeline_export.New(store, conf, opts...)
	return r
}

// NewJob sizes the prefix and classifies it against the large export threshold.
func (r *ExportRunner) NewJob(ctx rcontext.RequestContext, prefix string, destinationPath string) (*types.ExportJob, error) {
	human, count, total, err := r.scanner.AggregateSize(ctx, prefix)
	if err != nil {
		return nil, err
	}
	runId, err := ids.NewRunId()
	if err != nil {
		return nil, err
	}
	if destinationPath == "" {
		destinationPath = r.conf.DestinationPath
	}

	isLarge := util.BytesToGb(total) > r.conf.LargeThresholdGb
	return &types.ExportJob{
		JobId:           ids.JobIdForPrefix(prefix, isLarge),
		RunId:           runId,
		SourcePrefix:    prefix,
		DestinationPath: destinationPath,
		SizeBytes:       total,
		FolderSize:      human,
		FileCount:       count,
		ThresholdGb:     r.conf.LargeThresholdGb,
		IsLarge:         isLarge,
		CreatedAt:       time.Now().UTC(),
		State:           types.ExportStatePending,
	}, nil
}

// Run executes the job. Only one run per job id is allowed at a time when redis is available.
func (r *ExportRunner) Run(ctx rcontext.RequestContext, job *types.ExportJob, sink progress.Sink) (*types.ExportResult, error) {
	ctx = ctx.LogWithFields(logrus.Fields{
		"job_id": job.JobId,
		"run_id": job.RunId,
		"prefix": job.SourcePrefix,
	})

	unlock, err := lockForExport(ctx, r.locker, job.JobId)
	if err != nil {
		ctx.Log.Warn("Not starting export: ", err)
		metrics.ExportsTotal.With(prometheus.Labels{"outcome": "locked"}).Inc()
		return nil, err
	}
	defer unlock()

	job.State = types.ExportStateActive
	ctx.Log.Infof("Starting export of %s (%d files, large=%t)", job.FolderSize, job.FileCount, job.IsLarge)
	started := time.Now()

	result, err := r.exporter.Execute(ctx, job.SourcePrefix, job.DestinationPath, sink)
	elapsed := time.Since(started)
	if err != nil {
		job.State = types.ExportStateFailed
		ctx.Log.Errorf("Export failed after %s: %v", elapsed.Round(time.Millisecond), err)
		sentry.CaptureException(err)
		metrics.ExportsTotal.With(prometheus.Labels{"outcome": "failed"}).Inc()
		metrics.ExportDuration.With(prometheus.Labels{"outcome": "failed"}).Observe(elapsed.Seconds())
		return nil, err
	}

	job.State = types.ExportStateCompleted
	ctx.Log.Infof("Export completed in %s: %s", elapsed.Round(time.Millisecond), result.Location)
	metrics.ExportsTotal.With(prometheus.Labels{"outcome": "completed"}).Inc()
	metrics.ExportDuration.With(prometheus.Labels{"outcome": "completed"}).Observe(elapsed.Seconds())
	return result, nil
}

// Link returns a presigned download URL for the archive the job writes, without exporting anything.
// The link comes from the cache while a cached one is still valid.
func (r *ExportRunner) Link(ctx rcontext.RequestContext, job *types.ExportJob) (string, error) {
	ctx = ctx.LogWithFields(logrus.Fields{
		"job_id": job.JobId,
		"prefix": job.SourcePrefix,
	})
	url, err := r.exporter.Link(ctx, job.SourcePrefix, job.DestinationPath)
	if err != nil {
		ctx.Log.Warn("Unable to issue download link: ", err)
		return "", err
	}
	return url, nil
}
