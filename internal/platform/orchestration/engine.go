package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/sentinel"
	"github.com/pagopa/io-functions-admin-sub002/pkg/requestcontext"
)

// Workflow is a named, durable state machine. Execute drives the instance
// through its steps via Run.Step; it must be safe to call again on a fresh
// Run for the same logical request (idempotent at the domain level).
type Workflow interface {
	Name() string
	Execute(ctx context.Context, run *Run, input []byte) error
}

// ActivityError marks a step failure with the step's name, so workflows can
// build a structured failure descriptor.
type ActivityError struct {
	Activity string
	Err      error
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s: %v", e.Activity, e.Err)
}

func (e *ActivityError) Unwrap() error { return e.Err }

// AsActivityError extracts an ActivityError from anywhere in the chain.
func AsActivityError(err error) (*ActivityError, bool) {
	var ae *ActivityError
	ok := errors.As(err, &ae)
	return ae, ok
}

// Engine hosts workflow instances. Every call out to a store from a step is
// a suspension point: the process may die there and the instance be resumed
// later, replaying the step log instead of re-executing completed steps.
type Engine struct {
	store     InstanceStore
	policy    RetryPolicy
	logger    *slog.Logger
	tracer    trace.Tracer
	inline    bool
	workflows map[string]Workflow

	wg sync.WaitGroup
}

type EngineOption func(*Engine)

func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

func WithRetryPolicy(policy RetryPolicy) EngineOption {
	return func(e *Engine) { e.policy = policy }
}

// WithInlineExecution makes StartNew run the workflow on the calling
// goroutine. Used in tests and anywhere deterministic completion matters
// more than latency.
func WithInlineExecution() EngineOption {
	return func(e *Engine) { e.inline = true }
}

func NewEngine(store InstanceStore, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		policy:    DefaultRetryPolicy(),
		logger:    slog.Default(),
		tracer:    otel.Tracer("orchestration"),
		workflows: make(map[string]Workflow),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds a workflow definition under its name.
func (e *Engine) Register(wf Workflow) {
	e.workflows[wf.Name()] = wf
}

// Status returns the run status for an instance id, or sentinel.ErrNotFound
// when no instance with that id was ever started.
func (e *Engine) Status(ctx context.Context, id string) (RunStatus, error) {
	inst, err := e.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return inst.Status, nil
}

// StartNew registers and runs a new instance with the given id. Starting an
// id that is already live fails with sentinel.ErrConflict; callers that
// want skip-if-running semantics go through the Driver.
func (e *Engine) StartNew(ctx context.Context, name, id string, input any) (string, error) {
	wf, ok := e.workflows[name]
	if !ok {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown workflow %q", name)
	}

	data, err := json.Marshal(input)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "encode workflow input")
	}

	now := requestcontext.Now(ctx)
	inst := &Instance{
		ID:        id,
		Workflow:  name,
		Input:     data,
		Status:    RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.Create(ctx, inst); err != nil {
		return "", err
	}

	if e.inline {
		e.run(ctx, wf, inst)
	} else {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			// The run outlives the triggering request.
			e.run(context.WithoutCancel(ctx), wf, inst)
		}()
	}
	return id, nil
}

// Resume re-drives every instance left Pending or Running by a previous
// process. Completed steps are replayed from the step log, so side effects
// already performed are not repeated.
func (e *Engine) Resume(ctx context.Context) (int, error) {
	resumed := 0
	for _, status := range []RunStatus{RunStatusRunning, RunStatusPending} {
		ids, err := e.store.ListByStatus(ctx, status)
		if err != nil {
			return resumed, err
		}
		for _, id := range ids {
			inst, err := e.store.Get(ctx, id)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					continue
				}
				return resumed, err
			}
			wf, ok := e.workflows[inst.Workflow]
			if !ok {
				e.logger.Warn("cannot resume instance of unknown workflow",
					"instance_id", inst.ID, "workflow", inst.Workflow)
				continue
			}
			resumed++
			if e.inline {
				e.run(ctx, wf, inst)
			} else {
				e.wg.Add(1)
				go func() {
					defer e.wg.Done()
					e.run(context.WithoutCancel(ctx), wf, inst)
				}()
			}
		}
	}
	return resumed, nil
}

// Wait blocks until all in-flight instances finish. Used on shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context, wf Workflow, inst *Instance) {
	ctx, span := e.tracer.Start(ctx, "workflow."+inst.Workflow,
		trace.WithAttributes(attribute.String("workflow.instance_id", inst.ID)))
	defer span.End()

	if err := e.store.SetStatus(ctx, inst.ID, RunStatusRunning); err != nil {
		e.logger.Error("cannot mark instance running", "instance_id", inst.ID, "error", err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	completed, err := e.store.CompletedSteps(ctx, inst.ID)
	if err != nil {
		e.logger.Error("cannot load step log", "instance_id", inst.ID, "error", err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	run := &Run{engine: e, instanceID: inst.ID, completed: completed}

	if err := wf.Execute(ctx, run, inst.Input); err != nil {
		e.logger.Error("workflow failed",
			"workflow", inst.Workflow,
			"instance_id", inst.ID,
			"error", err,
		)
		span.SetStatus(codes.Error, err.Error())
		if serr := e.store.SetStatus(ctx, inst.ID, RunStatusFailed); serr != nil {
			e.logger.Error("cannot mark instance failed", "instance_id", inst.ID, "error", serr)
		}
		return
	}

	if err := e.store.SetStatus(ctx, inst.ID, RunStatusCompleted); err != nil {
		e.logger.Error("cannot mark instance completed", "instance_id", inst.ID, "error", err)
	}
}

// Run is the durable context handed to a workflow's Execute.
type Run struct {
	engine     *Engine
	instanceID string
	completed  map[string][]byte
}

// InstanceID returns the id of the running instance.
func (r *Run) InstanceID() string { return r.instanceID }

// Step executes a named side-effecting step at most once per run. If the
// step already appears in the step log its recorded result is returned
// without re-execution (replay). Otherwise fn runs under the engine's retry
// policy; the result is persisted to the step log before Step returns, so a
// crash after this point replays instead of repeating the effect.
func (r *Run) Step(ctx context.Context, name string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if result, ok := r.completed[name]; ok {
		return result, nil
	}

	ctx, span := r.engine.tracer.Start(ctx, "activity."+name,
		trace.WithAttributes(attribute.String("workflow.instance_id", r.instanceID)))
	defer span.End()

	var result []byte
	err := r.engine.policy.Execute(ctx, name, func(ctx context.Context) error {
		var ferr error
		result, ferr = fn(ctx)
		return ferr
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &ActivityError{Activity: name, Err: err}
	}

	if err := r.engine.store.RecordStep(ctx, r.instanceID, name, result); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &ActivityError{Activity: name, Err: err}
	}
	r.completed[name] = result
	return result, nil
}
