package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"forged/pkg/types"
)

// AsyncTask is the view of an engine task the HTTP layer needs.
type AsyncTask interface {
	ID() string
	Result() (types.InferenceResult, error, bool)
	Cancel()
}

const defaultTaskCapacity = 1024

// errTooManyTasks is returned when every slot holds a pending task.
var errTooManyTasks = tooManyTasksError{}

type tooManyTasksError struct{}

func (tooManyTasksError) Error() string   { return "too many pending tasks" }
func (tooManyTasksError) StatusCode() int { return http.StatusTooManyRequests }

// taskTable remembers submitted tasks so clients can poll them. When full,
// the oldest finished task is evicted; if none has finished, new tasks are
// rejected.
type taskTable struct {
	mu    sync.Mutex
	cap   int
	order []string
	tasks map[string]AsyncTask
}

func newTaskTable(capacity int) *taskTable {
	if capacity <= 0 {
		capacity = defaultTaskCapacity
	}
	return &taskTable{cap: capacity, tasks: make(map[string]AsyncTask)}
}

// add makes room for one task, evicting a finished one if needed, then calls
// start and stores the task it returns. start runs under the table lock and
// must not block; it is not called when the table is full.
func (t *taskTable) add(start func() AsyncTask) (AsyncTask, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.order) >= t.cap && !t.evictLocked() {
		return nil, errTooManyTasks
	}
	task := start()
	t.tasks[task.ID()] = task
	t.order = append(t.order, task.ID())
	return task, nil
}

func (t *taskTable) evictLocked() bool {
	for i, id := range t.order {
		if _, _, done := t.tasks[id].Result(); done {
			delete(t.tasks, id)
			t.order = append(t.order[:i], t.order[i+1:]...)
			return true
		}
	}
	return false
}

func (t *taskTable) get(id string) (AsyncTask, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	return task, ok
}

func (t *taskTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// taskResponse renders the current state of task.
func taskResponse(task AsyncTask) types.TaskResponse {
	resp := types.TaskResponse{TaskID: task.ID(), State: "pending"}
	res, err, done := task.Result()
	if !done {
		return resp
	}
	resp.State = "done"
	resp.Result = &res
	if err != nil {
		resp.Error = err.Error()
		if errors.Is(err, context.Canceled) {
			resp.State = "canceled"
		}
	}
	return resp
}
