package datastores

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/t2bot/s3-folder-export/common"
	"github.com/t2bot/s3-folder-export/common/config"
	"github.com/t2bot/s3-folder-export/common/version"
	"github.com/t2bot/s3-folder-export/metrics"
)

// minioStore talks to any S3-compatible endpoint through the minio client.
type minioStore struct {
	core         *minio.Core
	bucket       string
	storageClass string
}

func newMinioStore(ds config.DatastoreConfig) (*minioStore, error) {
	storageClass := ds.StorageClass
	if storageClass == "" {
		storageClass = "STANDARD"
	}

	bucketLookup := minio.BucketLookupAuto
	if ds.PathStyle {
		bucketLookup = minio.BucketLookupPath
	}

	core, err := minio.NewCore(ds.Endpoint, &minio.Options{
		Region:       ds.Region,
		Secure:       ds.Ssl,
		Creds:        credentials.NewStaticV4(ds.AccessKeyId, ds.AccessSecret, ""),
		BucketLookup: bucketLookup,
	})
	if err != nil {
		return nil, err
	}
	core.SetAppInfo(version.AppName, version.UserAgentVersion())

	return &minioStore{
		core:         core,
		bucket:       ds.BucketName,
		storageClass: storageClass,
	}, nil
}

func countS3(operation string) {
	metrics.S3Operations.With(prometheus.Labels{"operation": operation}).Inc()
}

func (s *minioStore) Bucket() string {
	return s.bucket
}

func (s *minioStore) ListPage(ctx context.Context, prefix string, continuationToken string) (*ListPage, error) {
	countS3("ListObjectsV2")
	// The core client doesn't take a context for listing, so check it ourselves
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := s.core.ListObjectsV2(s.bucket, prefix, "", continuationToken, "", 1000)
	if err != nil {
		return nil, errors.Wrap(err, "error listing objects")
	}

	page := &ListPage{
		Objects: make([]ObjectInfo, 0, len(res.Contents)),
	}
	for _, obj := range res.Contents {
		page.Objects = append(page.Objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	if res.IsTruncated {
		page.NextToken = res.NextContinuationToken
	}
	return page, nil
}

func (s *minioStore) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	countS3("GetObject")
	body, info, _, err := s.core.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		merr := minio.ToErrorResponse(err)
		if merr.Code == "NoSuchKey" || merr.StatusCode == http.StatusNotFound {
			return nil, 0, errors.Wrap(common.ErrObjectNotFound, key)
		}
		return nil, 0, errors.Wrap(err, "error opening object")
	}
	return body, info.Size, nil
}

func (s *minioStore) BeginUpload(ctx context.Context, key string, contentType string) (string, error) {
	countS3("NewMultipartUpload")
	uploadId, err := s.core.NewMultipartUpload(ctx, s.bucket, key, minio.PutObjectOptions{
		ContentType:  contentType,
		StorageClass: s.storageClass,
	})
	if err != nil {
		return "", errors.Wrap(err, "error starting multipart upload")
	}
	return uploadId, nil
}

func (s *minioStore) UploadPart(ctx context.Context, key string, uploadId string, number int, data io.ReadSeeker, size int64) (CompletedPart, error) {
	countS3("PutObjectPart")
	part, err := s.core.PutObjectPart(ctx, s.bucket, key, uploadId, number, data, size, minio.PutObjectPartOptions{})
	if err != nil {
		return CompletedPart{}, errors.Wrapf(err, "error uploading part %d", number)
	}
	return CompletedPart{
		Number: part.PartNumber,
		ETag:   part.ETag,
		Size:   size,
	}, nil
}

func (s *minioStore) CompleteUpload(ctx context.Context, key string, uploadId string, parts []CompletedPart) (string, error) {
	countS3("CompleteMultipartUpload")
	completeParts := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		completeParts = append(completeParts, minio.CompletePart{
			PartNumber: p.Number,
			ETag:       p.ETag,
		})
	}
	info, err := s.core.CompleteMultipartUpload(ctx, s.bucket, key, uploadId, completeParts, minio.PutObjectOptions{})
	if err != nil {
		return "", errors.Wrap(err, "error completing multipart upload")
	}
	if info.Location != "" {
		return info.Location, nil
	}
	return fmt.Sprintf("%s/%s/%s", s.core.EndpointURL(), s.bucket, key), nil
}

func (s *minioStore) AbortUpload(ctx context.Context, key string, uploadId string) error {
	countS3("AbortMultipartUpload")
	return s.core.AbortMultipartUpload(ctx, s.bucket, key, uploadId)
}

func (s *minioStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	countS3("PresignedGetObject")
	u, err := s.core.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
