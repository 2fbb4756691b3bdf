// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DefaultNATSImage runs the event bus integration tests.
const DefaultNATSImage = "nats:2.10-alpine"

// SkipIfNoDocker skips the test when no Docker daemon is reachable.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()
	if !IsDockerAvailable() {
		t.Skip("Skipping test: Docker not available")
	}
}

// IsDockerAvailable probes the Docker daemon.
func IsDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

// ContainerLogger routes testcontainers output to testing.T.
type ContainerLogger struct {
	t *testing.T
}

// NewContainerLogger creates a logger bound to the test.
func NewContainerLogger(t *testing.T) *ContainerLogger {
	return &ContainerLogger{t: t}
}

// Printf implements testcontainers.Logging.
func (l *ContainerLogger) Printf(format string, v ...interface{}) {
	l.t.Logf(format, v...)
}

// NATSContainer is a JetStream-enabled NATS server for bus tests.
type NATSContainer struct {
	testcontainers.Container
	URL string
}

// NewNATSContainer starts a NATS server with JetStream enabled and
// waits until it accepts clients.
func NewNATSContainer(ctx context.Context) (*NATSContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        DefaultNATSImage,
		Cmd:          []string{"-js"},
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start nats container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("nats container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "4222/tcp")
	if err != nil {
		return nil, fmt.Errorf("nats container port: %w", err)
	}

	return &NATSContainer{
		Container: container,
		URL:       fmt.Sprintf("nats://%s:%s", host, port.Port()),
	}, nil
}

// CleanupContainer terminates the container, logging instead of
// failing on error.
func CleanupContainer(t *testing.T, ctx context.Context, container testcontainers.Container) {
	t.Helper()
	if container == nil {
		return
	}
	if err := container.Terminate(ctx); err != nil {
		t.Logf("Warning: failed to terminate container: %v", err)
	}
}
