package engine

import (
	"context"

	"github.com/google/uuid"

	"forged/pkg/types"
)

// Task is the handle of one RunInferenceAsync dispatch.
type Task struct {
	id     string
	done   chan struct{}
	cancel context.CancelFunc

	result types.InferenceResult
	err    error
}

// ID returns the task's unique id.
func (t *Task) ID() string { return t.id }

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx is done. Giving up on ctx does
// not cancel the task.
func (t *Task) Wait(ctx context.Context) (types.InferenceResult, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return types.InferenceResult{}, ctx.Err()
	}
}

// Result returns the outcome without blocking; ok is false while the task is
// still running.
func (t *Task) Result() (res types.InferenceResult, err error, ok bool) {
	select {
	case <-t.done:
		return t.result, t.err, true
	default:
		return types.InferenceResult{}, nil, false
	}
}

// Cancel asks the task to stop. A task still waiting for a worker slot ends
// with a failed result; one already executing sees its context canceled.
// Either way a task that did not succeed reports context.Canceled.
func (t *Task) Cancel() { t.cancel() }

// RunInferenceAsync dispatches RunInference onto the async worker pool and
// returns immediately. The task outlives ctx cancellation; only Cancel stops
// it. input is copied before returning.
func (e *Engine) RunInferenceAsync(ctx context.Context, req types.InferenceRequest, input []float32) *Task {
	tctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &Task{
		id:     uuid.NewString(),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	in := append([]float32(nil), input...)

	go func() {
		defer close(t.done)
		defer cancel()
		if err := e.asyncSem.Acquire(tctx, 1); err != nil {
			t.result = types.InferenceResult{ErrorMessage: "task canceled before dispatch: " + err.Error()}
			t.err = err
			return
		}
		defer e.asyncSem.Release(1)
		t.result, t.err = e.RunInference(tctx, req, in)
		t.result.OperationID = t.id
		if t.err == nil && !t.result.Success && tctx.Err() != nil {
			t.err = tctx.Err()
		}
	}()
	return t
}
