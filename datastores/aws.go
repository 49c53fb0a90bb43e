package datastores

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
	"github.com/t2bot/s3-folder-export/common"
	"github.com/t2bot/s3-folder-export/common/config"
	"github.com/t2bot/s3-folder-export/common/version"
)

// awsStore uses the AWS SDK. It shares the S3 operation counters with minioStore.
type awsStore struct {
	client       *awss3.Client
	presign      *awss3.PresignClient
	bucket       string
	region       string
	storageClass s3types.StorageClass
}

func newAwsStore(ctx context.Context, ds config.DatastoreConfig) (*awsStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(ds.Region),
	}
	if ds.AccessKeyId != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(ds.AccessKeyId, ds.AccessSecret, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "error loading aws config")
	}

	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if ds.Endpoint != "" {
			scheme := "https"
			if !ds.Ssl {
				scheme = "http"
			}
			o.BaseEndpoint = aws.String(fmt.Sprintf("%s://%s", scheme, ds.Endpoint))
		}
		o.UsePathStyle = ds.PathStyle
		o.AppID = version.AppName
	})

	storageClass := s3types.StorageClassStandard
	if ds.StorageClass != "" {
		storageClass = s3types.StorageClass(ds.StorageClass)
	}

	return &awsStore{
		client:       client,
		presign:      awss3.NewPresignClient(client),
		bucket:       ds.BucketName,
		region:       cfg.Region,
		storageClass: storageClass,
	}, nil
}

func (s *awsStore) Bucket() string {
	return s.bucket
}

func (s *awsStore) ListPage(ctx context.Context, prefix string, continuationToken string) (*ListPage, error) {
	countS3("ListObjectsV2")
	input := &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if continuationToken != "" {
		input.ContinuationToken = aws.String(continuationToken)
	}
	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "error listing objects")
	}

	page := &ListPage{
		Objects: make([]ObjectInfo, 0, len(out.Contents)),
	}
	for _, obj := range out.Contents {
		page.Objects = append(page.Objects, ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

func (s *awsStore) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	countS3("GetObject")
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, 0, errors.Wrap(common.ErrObjectNotFound, key)
		}
		return nil, 0, errors.Wrap(err, "error opening object")
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

func (s *awsStore) BeginUpload(ctx context.Context, key string, contentType string) (string, error) {
	countS3("NewMultipartUpload")
	out, err := s.client.CreateMultipartUpload(ctx, &awss3.CreateMultipartUploadInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		ContentType:  aws.String(contentType),
		StorageClass: s.storageClass,
	})
	if err != nil {
		return "", errors.Wrap(err, "error starting multipart upload")
	}
	return aws.ToString(out.UploadId), nil
}

func (s *awsStore) UploadPart(ctx context.Context, key string, uploadId string, number int, data io.ReadSeeker, size int64) (CompletedPart, error) {
	countS3("PutObjectPart")
	out, err := s.client.UploadPart(ctx, &awss3.UploadPartInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadId),
		PartNumber:    aws.Int32(int32(number)),
		Body:          data,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return CompletedPart{}, errors.Wrapf(err, "error uploading part %d", number)
	}
	return CompletedPart{
		Number: number,
		ETag:   aws.ToString(out.ETag),
		Size:   size,
	}, nil
}

func (s *awsStore) CompleteUpload(ctx context.Context, key string, uploadId string, parts []CompletedPart) (string, error) {
	countS3("CompleteMultipartUpload")
	completed := make([]s3types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, s3types.CompletedPart{
			PartNumber: aws.Int32(int32(p.Number)),
			ETag:       aws.String(p.ETag),
		})
	}
	out, err := s.client.CompleteMultipartUpload(ctx, &awss3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadId),
		MultipartUpload: &s3types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return "", errors.Wrap(err, "error completing multipart upload")
	}
	if loc := aws.ToString(out.Location); loc != "" {
		return loc, nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}

func (s *awsStore) AbortUpload(ctx context.Context, key string, uploadId string) error {
	countS3("AbortMultipartUpload")
	_, err := s.client.AbortMultipartUpload(ctx, &awss3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadId),
	})
	return err
}

func (s *awsStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	countS3("PresignedGetObject")
	req, err := s.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, awss3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
