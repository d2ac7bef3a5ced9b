package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-hr/internal/jobs"
)

// Warmer precomputes effective permissions for users holding roles.
type Warmer interface {
	Warmup(ctx context.Context, limit int) (int, error)
}

// PermissionsWarmupJob fills the permission cache ahead of traffic.
type PermissionsWarmupJob struct {
	Warmer  Warmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPermissionsWarmupJob wires dependencies for the warmup handler.
func NewPermissionsWarmupJob(warmer Warmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermissionsWarmupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsWarmupJob{Warmer: warmer, Logger: logger, Metrics: metrics}
}

// Handle processes warmup tasks.
func (j *PermissionsWarmupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Warmer == nil {
		return errors.New("permissions warmup: handler not configured")
	}
	var payload PermissionsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("permissions warmup: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Limit <= 0 {
		payload.Limit = DefaultWarmupLimit
	}
	if payload.RunID == "" {
		payload.RunID, _ = asynq.GetTaskID(ctx)
	}

	tracker := j.Metrics.Track(TaskPermissionsWarmup)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.Logger.With(slog.String("run_id", payload.RunID), slog.Int("limit", payload.Limit))
	logger.Info("starting permissions warmup")

	warmed, err := j.Warmer.Warmup(ctx, payload.Limit)
	if err != nil {
		logger.Error("permissions warmup failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddWarmed(warmed)
	logger.Info("permissions warmup finished", slog.Int("users", warmed))
	return nil
}
