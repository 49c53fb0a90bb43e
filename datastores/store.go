package datastores

import (
	"context"
	"io"
	"time"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

type ListPage struct {
	Objects   []ObjectInfo
	NextToken string
}

type CompletedPart struct {
	Number int
	ETag   string
	Size   int64
}

type Lister interface {
	// ListPage returns one page of the objects under prefix. An empty NextToken means the listing
	// is complete.
	ListPage(ctx context.Context, prefix string, continuationToken string) (*ListPage, error)
}

type Getter interface {
	// GetObject opens a streaming read. Missing keys return a wrapped common.ErrObjectNotFound.
	GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error)
}

type MultipartUploader interface {
	BeginUpload(ctx context.Context, key string, contentType string) (string, error)
	UploadPart(ctx context.Context, key string, uploadId string, number int, data io.ReadSeeker, size int64) (CompletedPart, error)
	// CompleteUpload commits the parts and returns the object's location.
	CompleteUpload(ctx context.Context, key string, uploadId string, parts []CompletedPart) (string, error)
	AbortUpload(ctx context.Context, key string, uploadId string) error
}

type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ObjectStore is everything an export needs from the backing bucket.
type ObjectStore interface {
	Lister
	Getter
	MultipartUploader
	Presigner
	Bucket() string
}
