package test_internals

import (
	"context"
	"fmt"
	"log"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type ContainerDeps struct {
	ctx            context.Context
	redisContainer testcontainers.Container

	Minio     *MinioDep
	RedisAddr string
}

func MakeTestDeps(bucket string) (*ContainerDeps, error) {
	ctx := context.Background()

	minioDep, err := MakeMinio(bucket)
	if err != nil {
		return nil, err
	}

	// Start a redis container for the export locks and presign cache
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/library/redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		minioDep.Teardown()
		return nil, err
	}
	redisHost, err := redisContainer.Host(ctx)
	if err != nil {
		return nil, err
	}
	redisPort, err := redisContainer.MappedPort(ctx, "6379/tcp")
	if err != nil {
		return nil, err
	}

	return &ContainerDeps{
		ctx:            ctx,
		redisContainer: redisContainer,
		Minio:          minioDep,
		RedisAddr:      fmt.Sprintf("%s:%d", redisHost, redisPort.Int()),
	}, nil
}

func (c *ContainerDeps) Teardown() {
	if err := c.redisContainer.Terminate(c.ctx); err != nil {
		log.Fatalf("Error shutting down redis container: %s", err.Error())
	}
	c.Minio.Teardown()
}
