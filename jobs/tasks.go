package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOutboxDrain flushes pending outbox events to their handlers.
	TaskOutboxDrain = "outbox:drain"
	// TaskIdempotencyCleanup purges stale idempotency records.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskLowStockScan logs products that fell under their branch threshold.
	TaskLowStockScan = "inventory:low_stock_scan"
)

// OutboxDrainPayload bounds one drain pass.
type OutboxDrainPayload struct {
	BatchSize int `json:"batch_size"`
}

// NewOutboxDrainTask constructs an Asynq task.
func NewOutboxDrainTask(batchSize int) (*asynq.Task, error) {
	data, err := json.Marshal(OutboxDrainPayload{BatchSize: batchSize})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutboxDrain, data), nil
}

// IdempotencyCleanupPayload sets the retention window in hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// NewLowStockScanTask constructs an Asynq task.
func NewLowStockScanTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskLowStockScan, nil), nil
}
