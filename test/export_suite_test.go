package test

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"log"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/t2bot/s3-folder-export/common"
	"github.com/t2bot/s3-folder-export/common/config"
	"github.com/t2bot/s3-folder-export/common/rcontext"
	"github.com/t2bot/s3-folder-export/datastores"
	"github.com/t2bot/s3-folder-export/progress"
	"github.com/t2bot/s3-folder-export/redislib"
	"github.com/t2bot/s3-folder-export/tasks/task_runner"
	"github.com/t2bot/s3-folder-export/test/test_internals"
	"github.com/t2bot/s3-folder-export/types"
	"github.com/testcontainers/testcontainers-go"
)

const testBucket = "exports-test"

type ExportTestSuite struct {
	suite.Suite
	deps  *test_internals.ContainerDeps
	redis *redislib.Connection
}

func (s *ExportTestSuite) SetupSuite() {
	if testing.Short() {
		s.T().Skip("container tests are skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(s.T())

	deps, err := test_internals.MakeTestDeps(testBucket)
	if err != nil {
		log.Fatal(err)
	}
	s.deps = deps

	s.redis = redislib.Connect(config.RedisConfig{
		Enabled: true,
		Shards:  []config.RedisShardConfig{{Name: "test", Address: deps.RedisAddr}},
	})
	if err = s.redis.Ping(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func (s *ExportTestSuite) TearDownSuite() {
	s.redis.Close()
	if s.deps != nil {
		s.deps.Teardown()
	}
}

func (s *ExportTestSuite) datastore(kind string) datastores.ObjectStore {
	store, err := datastores.Open(context.Background(), config.DatastoreConfig{
		Type:         kind,
		Endpoint:     s.deps.Minio.Endpoint,
		BucketName:   testBucket,
		AccessKeyId:  s.deps.Minio.AccessKey,
		AccessSecret: s.deps.Minio.SecretKey,
		Region:       "us-east-1",
		Ssl:          false,
		PathStyle:    true,
	})
	require.NoError(s.T(), err)
	return store
}

func (s *ExportTestSuite) put(key string, content []byte) {
	_, err := s.deps.Minio.Client.PutObject(context.Background(), testBucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{})
	require.NoError(s.T(), err)
}

func (s *ExportTestSuite) readArchive(key string) map[string][]byte {
	t := s.T()
	obj, err := s.deps.Minio.Client.GetObject(context.Background(), testBucket, key, minio.GetObjectOptions{})
	require.NoError(t, err)
	defer obj.Close()
	b, err := io.ReadAll(obj)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	require.NoError(t, err)
	files := make(map[string][]byte)
	for _, f := range zr.File {
		r, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(r)
		require.NoError(t, err)
		_ = r.Close()
		files[f.Name] = content
	}
	return files
}

func exportConfig() config.ExportConfig {
	conf := config.NewDefaultExportConfig()
	conf.Upload.PartSizeBytes = 5 * 1024 * 1024 // smallest part size S3 accepts
	conf.Batch.PacingMillis = 1
	conf.Memory.CeilingBytes = 0
	conf.Presign.Enabled = true
	return conf
}

func (s *ExportTestSuite) exportWith(kind string, prefix string) {
	t := s.T()

	large := make([]byte, 6*1024*1024)
	_, err := rand.Read(large)
	require.NoError(t, err)
	s.put(prefix+"small.txt", []byte("hello world"))
	s.put(prefix+"nested/large.bin", large)

	runner := task_runner.NewExportRunner(s.datastore(kind), exportConfig(), s.redis)
	ctx := rcontext.Initial()
	job, err := runner.NewJob(ctx, prefix, "")
	require.NoError(t, err)
	assert.Equal(t, 2, job.FileCount)

	reported := make([]int, 0)
	res, err := runner.Run(ctx, job, progress.SinkFunc(func(percent int) {
		reported = append(reported, percent)
	}))
	require.NoError(t, err)
	assert.Equal(t, types.ExportStateCompleted, job.State)
	assert.Equal(t, 2, res.NoOfFiles)
	assert.NotEmpty(t, res.PresignedUrl)
	assert.Equal(t, res.PresignedUrl, res.DownloadUrl)
	require.NotEmpty(t, reported)
	assert.Equal(t, 100, reported[len(reported)-1])

	files := s.readArchive(res.Key)
	assert.Equal(t, []byte("hello world"), files["small.txt"])
	assert.Equal(t, large, files["nested/large.bin"])

	// The link is shared through redis, so a second runner hands out the same one
	url, err := task_runner.NewExportRunner(s.datastore(kind), exportConfig(), s.redis).Link(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, res.PresignedUrl, url)
}

func (s *ExportTestSuite) TestExportWithMinioClient() {
	s.exportWith("s3", "minio/folder/")
}

func (s *ExportTestSuite) TestExportWithAwsSdk() {
	s.exportWith("aws", "aws/folder/")
}

func (s *ExportTestSuite) TestMissingObjectReportsNotFound() {
	_, _, err := s.datastore("aws").GetObject(context.Background(), "does/not/exist")
	assert.ErrorIs(s.T(), err, common.ErrObjectNotFound)
	_, _, err = s.datastore("s3").GetObject(context.Background(), "does/not/exist")
	assert.ErrorIs(s.T(), err, common.ErrObjectNotFound)
}

func (s *ExportTestSuite) TestConcurrentRunIsRejected() {
	t := s.T()
	s.put("locked/a.txt", []byte("a"))

	runner := task_runner.NewExportRunner(s.datastore("s3"), exportConfig(), s.redis)
	ctx := rcontext.Initial()
	job, err := runner.NewJob(ctx, "locked/", "")
	require.NoError(t, err)

	mutex := s.redis.NewExportMutex(job.JobId, time.Minute)
	require.NotNil(t, mutex)
	require.NoError(t, mutex.LockContext(context.Background()))
	defer func() {
		_, _ = mutex.UnlockContext(context.Background())
	}()

	_, err = runner.Run(ctx, job, progress.Discard)
	assert.ErrorIs(t, err, common.ErrJobAlreadyRunning)
}

func TestExportTestSuite(t *testing.T) {
	suite.Run(t, new(ExportTestSuite))
}
