package docker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/geoengine/geoengine/engine"
)

// execution is the handle for one running container.
type execution struct {
	cli *client.Client
	id  string
	tty bool
}

// Wait blocks until the container exits and returns its exit code.
func (e *execution) Wait(ctx context.Context) (int, error) {
	statusCh, errCh := e.cli.ContainerWait(ctx, e.id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, fmt.Errorf("wait for container: %w", err)
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("container error: %s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Stop sends SIGTERM and escalates to SIGKILL after the grace period.
func (e *execution) Stop(ctx context.Context, grace time.Duration) error {
	seconds := int(grace.Seconds())
	if err := e.cli.ContainerStop(ctx, e.id, container.StopOptions{Timeout: &seconds}); err != nil {
		if killErr := e.cli.ContainerKill(ctx, e.id, "KILL"); killErr != nil {
			return fmt.Errorf("stop container: %w", err)
		}
	}
	return nil
}

// Logs streams the container's combined output.
func (e *execution) Logs(ctx context.Context, follow bool) (io.ReadCloser, error) {
	reader, err := e.cli.ContainerLogs(ctx, e.id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
	})
	if err != nil {
		return nil, fmt.Errorf("container logs: %w", err)
	}
	return reader, nil
}

// RunAttached starts a plan, streams its output to the given writers, and
// returns the container's exit code. It is the synchronous CLI path.
func (c *Client) RunAttached(ctx context.Context, plan *engine.Plan, stdout, stderr io.Writer) (int, error) {
	ex, err := c.Start(ctx, plan)
	if err != nil {
		return -1, err
	}

	logs, err := ex.Logs(ctx, true)
	if err == nil {
		defer logs.Close()
		if plan.TTY {
			// TTY output is a single raw stream.
			_, _ = io.Copy(stdout, logs)
		} else {
			_, _ = stdcopy.StdCopy(stdout, stderr, logs)
		}
	}

	return ex.Wait(ctx)
}
