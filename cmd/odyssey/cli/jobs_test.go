package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-hr/jobs"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
}

func (r *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

func TestTriggerWarmup(t *testing.T) {
	enq := &recordingEnqueuer{}
	c := &JobsCLI{client: enq}

	info, err := c.Trigger(context.Background(), jobs.TaskPermissionsWarmup)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskPermissionsWarmup, info.Type)
	require.Len(t, enq.tasks, 1)

	var payload jobs.PermissionsWarmupPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.NotEmpty(t, payload.RunID, "manual runs are traceable by run id")
}

func TestTriggerUnknownJob(t *testing.T) {
	c := &JobsCLI{client: &recordingEnqueuer{}}
	_, err := c.Trigger(context.Background(), "finance:close")
	assert.ErrorContains(t, err, "unsupported job")
}

func TestUnconfiguredCLI(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), jobs.TaskPermissionsWarmup)
	assert.Error(t, err)
	_, err = (&JobsCLI{}).InspectQueue(context.Background())
	assert.Error(t, err)
}
