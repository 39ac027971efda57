// Package docker is the container runtime gateway. It wraps the Docker
// Engine API behind the small surface the rest of GeoEngine consumes:
// building images, starting plans, stopping executions, and image transfer.
package docker

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-units"

	"github.com/geoengine/geoengine/engine"
)

const (
	// LabelManagedBy tags every container GeoEngine creates.
	LabelManagedBy = "geoengine.managed-by"

	containerPrefix = "geoengine-job-"
)

// Client talks to the Docker daemon.
type Client struct {
	cli *client.Client
}

// New connects to the Docker daemon, trying the environment configuration
// first and then common socket locations (Docker Desktop, Colima).
func New(ctx context.Context) (*Client, error) {
	cli, err := connect(ctx)
	if err != nil {
		return nil, err
	}
	return &Client{cli: cli}, nil
}

func connect(ctx context.Context) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err = cli.Ping(pingCtx)
		cancel()
		if err == nil {
			return cli, nil
		}
		cli.Close()
	}

	socketPaths := []string{
		"unix://" + os.Getenv("HOME") + "/.docker/run/docker.sock",
		"unix:///var/run/docker.sock",
		"unix://" + os.Getenv("HOME") + "/.colima/docker.sock",
	}

	for _, socketPath := range socketPaths {
		cli, err := client.NewClientWithOpts(
			client.WithHost(socketPath),
			client.WithAPIVersionNegotiation(),
		)
		if err != nil {
			continue
		}

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err = cli.Ping(pingCtx)
		cancel()

		if err == nil {
			return cli, nil
		}
		cli.Close()
	}

	return nil, fmt.Errorf("could not connect to Docker daemon")
}

// Start creates and starts a container for the plan and returns a handle to
// the running execution.
func (c *Client) Start(ctx context.Context, plan *engine.Plan) (engine.Execution, error) {
	cfg := &container.Config{
		Image:      plan.Image,
		Cmd:        plan.Command,
		Env:        envSlice(plan.Env),
		WorkingDir: plan.WorkDir,
		Tty:        plan.TTY,
		Labels: map[string]string{
			LabelManagedBy: "geoengine",
		},
	}

	hostCfg := &container.HostConfig{
		AutoRemove: plan.AutoRemove,
	}
	for _, m := range plan.Mounts {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Host,
			Target:   m.Container,
			ReadOnly: m.ReadOnly,
		})
	}
	if plan.Memory != "" {
		bytes, err := units.RAMInBytes(plan.Memory)
		if err != nil {
			return nil, fmt.Errorf("invalid memory limit %q: %w", plan.Memory, err)
		}
		hostCfg.Resources.Memory = bytes
	}
	if plan.CPUs > 0 {
		hostCfg.Resources.NanoCPUs = int64(plan.CPUs * 1e9)
	}
	if plan.ShmSize != "" {
		bytes, err := units.RAMInBytes(plan.ShmSize)
		if err != nil {
			return nil, fmt.Errorf("invalid shm size %q: %w", plan.ShmSize, err)
		}
		hostCfg.ShmSize = bytes
	}
	if len(plan.GPUDevices) > 0 {
		hostCfg.Resources.DeviceRequests = []container.DeviceRequest{{
			Driver:       "nvidia",
			Count:        -1,
			Capabilities: [][]string{{"gpu"}},
		}}
	}

	name := containerPrefix + fmt.Sprintf("%d", time.Now().UnixNano())
	resp, err := c.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}

	if err := c.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = c.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("start container: %w", err)
	}

	return &execution{cli: c.cli, id: resp.ID, tty: plan.TTY}, nil
}

// Close closes the underlying client.
func (c *Client) Close() error {
	return c.cli.Close()
}

// envSlice converts an environment map to the KEY=VALUE slice form the
// engine API expects, sorted for reproducible container configs.
func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
