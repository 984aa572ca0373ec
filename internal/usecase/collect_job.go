package usecase

import (
	"context"
	"errors"
	"fmt"

	"MetalPulse/internal/domain/models"
	applogger "MetalPulse/pkg/logger"
	"MetalPulse/pkg/queue"
)

// CollectJobType is the queue message type that requests a cycle.
const CollectJobType = "collect"

// CollectJob runs an on-demand cycle for every collect message on the Redis queue.
type CollectJob struct {
	runner CycleRunner
	logger *applogger.Logger
}

func NewCollectJob(runner CycleRunner, logger *applogger.Logger) *CollectJob {
	return &CollectJob{runner: runner, logger: logger}
}

func (j *CollectJob) Name() string { return "collect-cycle" }

func (j *CollectJob) Type() string { return CollectJobType }

func (j *CollectJob) Handle(ctx context.Context, payload interface{}) error {
	m, err := queue.ParsePayload[models.TriggerMessage](payload)
	if err != nil {
		return fmt.Errorf("decode collect job: %w", err)
	}
	if m.Reason == "" {
		m.Reason = "queue"
	}

	run, err := j.runner.Trigger(ctx, "queue:"+m.Reason)
	switch {
	case errors.Is(err, models.ErrCycleBusy):
		j.logger.Info("collect job dropped, cycle busy", applogger.String("reason", m.Reason))
		return nil
	case err != nil:
		return err
	case !run.Success:
		// Retrying a failed collection is the scheduler's job, not the queue's.
		j.logger.Warn("collect job cycle aborted", applogger.String("run_id", run.ID.String()))
	}
	return nil
}

var _ queue.Job = (*CollectJob)(nil)
