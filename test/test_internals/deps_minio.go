package test_internals

import (
	"context"
	"fmt"
	"log"

	"github.com/docker/go-connections/nat"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const minioAccessKey = "admin"
const minioSecretKey = "test1234"

type MinioDep struct {
	ctx       context.Context
	container testcontainers.Container

	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Client    *minio.Client
}

func MakeMinio(bucket string) (*MinioDep, error) {
	ctx := context.Background()

	apiPort, _ := nat.NewPort("tcp", "9000")
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "quay.io/minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioAccessKey,
				"MINIO_ROOT_PASSWORD": minioSecretKey,
			},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort(apiPort),
			Cmd:        []string{"server", "/data"},
			// we don't bind any volumes because we don't care if we lose the data
		},
		Started: true,
	})
	if err != nil {
		return nil, err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := container.MappedPort(ctx, apiPort)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s:%d", host, port.Int())

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(minioAccessKey, minioSecretKey, ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}
	if err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return nil, err
	}

	return &MinioDep{
		ctx:       ctx,
		container: container,
		Endpoint:  endpoint,
		AccessKey: minioAccessKey,
		SecretKey: minioSecretKey,
		Bucket:    bucket,
		Client:    client,
	}, nil
}

func (c *MinioDep) Teardown() {
	if err := c.container.Terminate(c.ctx); err != nil {
		log.Fatalf("Error shutting down minio: %s", err.Error())
	}
}
