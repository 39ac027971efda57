package engine

import (
	"context"
	"io"
	"time"
)

// Runtime abstracts the container engine. The core depends on it only
// through this interface; the docker package provides the real one.
type Runtime interface {
	// Start launches a container for the plan and returns a handle to the
	// running execution.
	Start(ctx context.Context, plan *Plan) (Execution, error)
}

// Execution is a handle to one running container.
type Execution interface {
	// Wait blocks until the container exits and returns its exit code.
	Wait(ctx context.Context) (int, error)

	// Stop requests termination, force-killing after the grace period.
	Stop(ctx context.Context, grace time.Duration) error

	// Logs streams the container's combined output.
	Logs(ctx context.Context, follow bool) (io.ReadCloser, error)
}
