package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueAudit is the queue audit delivery tasks land on.
	QueueAudit = "audit"
	// TaskTypeRecord is the task type for durable audit delivery.
	TaskTypeRecord = "audit:record"
)

// NewRecordTask constructs an Asynq task carrying one audit entry.
func NewRecordTask(entry Entry) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRecord, data, asynq.Queue(QueueAudit)), nil
}

// Enqueuer hands audit entries to the task queue instead of writing them
// inline, keeping the mutation path free of the audit table.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer returns an Enqueuer backed by the given Asynq client.
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// Record implements Sink by enqueueing the entry.
func (e *Enqueuer) Record(ctx context.Context, entry Entry) error {
	task, err := NewRecordTask(entry)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task)
	return err
}

// TaskHandler drains audit delivery tasks into the persistent recorder.
type TaskHandler struct {
	recorder *Recorder
	logger   *slog.Logger
}

// NewTaskHandler constructs a TaskHandler.
func NewTaskHandler(recorder *Recorder, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{recorder: recorder, logger: logger}
}

// ProcessTask handles one TaskTypeRecord task.
func (h *TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var entry Entry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		if h.logger != nil {
			h.logger.Error("audit task payload", slog.Any("error", err))
		}
		return asynq.SkipRetry
	}
	return h.recorder.Record(ctx, entry)
}
