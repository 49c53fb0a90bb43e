package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var S3Operations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "export_s3_operations_total",
}, []string{"operation"})
var ExportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "export_jobs_total",
}, []string{"outcome"})
var ObjectsArchived = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "export_objects_archived_total",
})
var ObjectsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "export_objects_skipped_total",
}, []string{"reason"})
var ArchiveBytes = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "export_archive_bytes_total",
})
var UploadParts = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "export_upload_parts_total",
}, []string{"result"})
var MemoryPauses = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "export_memory_pauses_total",
})
var StreamTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "export_stream_timeouts_total",
})
var HeapBytes = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "export_heap_bytes",
})
var ExportDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "export_duration_seconds",
	Buckets: prometheus.ExponentialBuckets(1, 2, 14),
}, []string{"outcome"})

func init() {
	prometheus.MustRegister(S3Operations)
	prometheus.MustRegister(ExportsTotal)
	prometheus.MustRegister(ObjectsArchived)
	prometheus.MustRegister(ObjectsSkipped)
	prometheus.MustRegister(ArchiveBytes)
	prometheus.MustRegister(UploadParts)
	prometheus.MustRegister(MemoryPauses)
	prometheus.MustRegister(StreamTimeouts)
	prometheus.MustRegister(HeapBytes)
	prometheus.MustRegister(ExportDuration)
}
