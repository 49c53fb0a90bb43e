package types

import (
	"time"
)

type ExportState string

const (
	ExportStatePending   ExportState = "pending"
	ExportStateActive    ExportState = "active"
	ExportStateCompleted ExportState = "completed"
	ExportStateFailed    ExportState = "failed"
)

// ExportJob identifies one export of a prefix. JobId is derived from the prefix so repeated
// requests for the same folder map to the same job; RunId is unique per execution.
type ExportJob struct {
	JobId           string      `json:"job_id"`
	RunId           string      `json:"run_id"`
	SourcePrefix    string      `json:"prefix"`
	DestinationPath string      `json:"destination_path"`
	SizeBytes       int64       `json:"size_bytes"`
	FolderSize      string      `json:"folder_size"`
	FileCount       int         `json:"file_count"`
	ThresholdGb     float64     `json:"threshold_gb"`
	IsLarge         bool        `json:"is_large"`
	CreatedAt       time.Time   `json:"created_at"`
	State           ExportState `json:"state"`
}

func (j *ExportJob) Terminal() bool {
	return j.State == ExportStateCompleted || j.State == ExportStateFailed
}

type ExportResult struct {
	Status       string `json:"status"`
	Bucket       string `json:"bucket"`
	Key          string `json:"key"`
	Location     string `json:"location"`
	DownloadUrl  string `json:"download_url"`
	PresignedUrl string `json:"presigned_url,omitempty"`
	TotalSize    string `json:"total_size"`
	TotalBytes   int64  `json:"total_bytes"`
	NoOfFiles    int    `json:"no_of_files"`
	ArchiveBytes int64  `json:"archive_bytes"`
}
