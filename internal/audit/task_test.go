package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/gatekit/gatekit/internal/subject"
)

func TestNewRecordTaskCarriesEntry(t *testing.T) {
	entry := Entry{
		Actor:      subject.Ref{Type: "user", ID: "admin"},
		Action:     "permission.created",
		EntityKind: "permission",
		EntityID:   "5f6e9c80-9672-4a4a-9e1a-2f3f0c1d2e3b",
		EntityName: "edit-posts",
		Meta:       map[string]any{"subject": "user:alice"},
		At:         time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC),
	}

	task, err := NewRecordTask(entry)
	require.NoError(t, err)
	require.Equal(t, TaskTypeRecord, task.Type())

	var decoded Entry
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	require.Equal(t, entry, decoded)
}

func TestProcessTaskSkipsRetryOnBadPayload(t *testing.T) {
	handler := NewTaskHandler(nil, nil)
	task := asynq.NewTask(TaskTypeRecord, []byte("{not json"))

	err := handler.ProcessTask(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
