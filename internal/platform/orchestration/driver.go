package orchestration

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/sentinel"
)

// Starter is the slice of the engine the driver needs. Split out so driver
// tests can script statuses without a real engine.
type Starter interface {
	Status(ctx context.Context, id string) (RunStatus, error)
	StartNew(ctx context.Context, name, id string, input any) (string, error)
}

// Driver starts workflow instances idempotently. Callers present a
// deterministic id; at most one live execution per id ever results, no
// matter how many times the same request is driven.
type Driver struct {
	engine Starter
	logger *slog.Logger
}

type DriverOption func(*Driver)

func WithDriverLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) { d.logger = logger }
}

func NewDriver(engine Starter, opts ...DriverOption) *Driver {
	d := &Driver{engine: engine, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StartOrchestrator checks the current status of the instance id before
// starting. If an execution is already live the existing id is returned and
// no new execution starts. A missing or terminal instance gets a fresh
// start. Status and start errors are returned to the caller untouched.
func (d *Driver) StartOrchestrator(ctx context.Context, name, id string, input any) (string, error) {
	status, err := d.engine.Status(ctx, id)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// First start for this id.
	case err != nil:
		return "", err
	case status.IsLive():
		d.logger.Info("orchestrator already running, skipping start",
			"workflow", name, "instance_id", id, "status", string(status))
		return id, nil
	}

	return d.engine.StartNew(ctx, name, id, input)
}
