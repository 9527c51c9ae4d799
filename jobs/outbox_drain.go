package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
)

// RelayPort is the slice of the outbox relay the drain job needs.
type RelayPort interface {
	DrainOnce(ctx context.Context, limit int) (int, error)
}

// BacklogPort reports how many events are still awaiting dispatch.
type BacklogPort interface {
	PendingCount(ctx context.Context) (int, error)
}

// OutboxDrainJob replays pending outbox events. The inline drain after each
// request handles the happy path; this job is the retry loop for events that
// failed or were left behind by a crash.
type OutboxDrainJob struct {
	Relay   RelayPort
	Backlog BacklogPort
	Logger  *slog.Logger
}

// NewOutboxDrainJob initialises the drain handler.
func NewOutboxDrainJob(relay RelayPort, backlog BacklogPort, logger *slog.Logger) *OutboxDrainJob {
	return &OutboxDrainJob{Relay: relay, Backlog: backlog, Logger: logger}
}

// Handle executes one drain pass.
func (j *OutboxDrainJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Relay == nil {
		return errors.New("outbox drain: handler not configured")
	}
	payload := OutboxDrainPayload{BatchSize: 50}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.BatchSize <= 0 {
		payload.BatchSize = 50
	}

	processed, err := j.Relay.DrainOnce(ctx, payload.BatchSize)
	if err != nil {
		return err
	}
	backlog := 0
	if j.Backlog != nil {
		if backlog, err = j.Backlog.PendingCount(ctx); err != nil {
			backlog = 0
			if j.Logger != nil {
				j.Logger.Warn("outbox backlog count", slog.Any("error", err))
			}
		}
	}
	if (processed > 0 || backlog > 0) && j.Logger != nil {
		j.Logger.Info("outbox drained", slog.Int("events", processed), slog.Int("backlog", backlog))
	}
	return nil
}
