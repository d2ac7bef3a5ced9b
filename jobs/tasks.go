package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionsWarmup precomputes effective permissions into the cache.
	TaskPermissionsWarmup = "rbac:permissions-warmup"

	// DefaultWarmupLimit bounds how many users one warmup run touches.
	DefaultWarmupLimit = 1000
)

// PermissionsWarmupPayload configures a warmup run.
type PermissionsWarmupPayload struct {
	Limit int    `json:"limit"`
	RunID string `json:"run_id"`
}

// NewPermissionsWarmupTask constructs a warmup task without an identity, for
// schedules that enqueue the same task repeatedly. The handler falls back to
// the asynq task id for logging.
func NewPermissionsWarmupTask(limit int) (*asynq.Task, error) {
	return newWarmupTask(PermissionsWarmupPayload{Limit: limit})
}

// NewPermissionsWarmupRun constructs a one-off warmup task with a fresh run id
// that doubles as the asynq task id, so the same run is never queued twice.
func NewPermissionsWarmupRun(limit int) (*asynq.Task, error) {
	runID := uuid.NewString()
	return newWarmupTask(PermissionsWarmupPayload{Limit: limit, RunID: runID}, asynq.TaskID(runID))
}

func newWarmupTask(payload PermissionsWarmupPayload, opts ...asynq.Option) (*asynq.Task, error) {
	if payload.Limit <= 0 {
		payload.Limit = DefaultWarmupLimit
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode warmup payload: %w", err)
	}
	return asynq.NewTask(TaskPermissionsWarmup, data, opts...), nil
}
