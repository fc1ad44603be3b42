package store

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// redisContainer holds the container started by setupRedisContainer so the
// test that owns it can terminate it.
var redisContainer testcontainers.Container

// setupRedisContainer starts a disposable Redis container and returns its
// host:port address. Callers are expected to skip when this fails, so the
// suite still runs on machines without Docker.
func setupRedisContainer(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start redis container: %w", err)
	}
	redisContainer = container

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get redis container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		return "", fmt.Errorf("failed to get redis container port: %w", err)
	}

	return fmt.Sprintf("%s:%s", host, port.Port()), nil
}
