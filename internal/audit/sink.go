// Package audit delivers mutation records to a durable log. The stores call
// the sink after every successful write; they never read it back.
package audit

import (
	"context"
	"time"

	"github.com/gatekit/gatekit/internal/subject"
)

// Entry is one recorded mutation.
type Entry struct {
	Actor      subject.Ref    `json:"actor"`
	Action     string         `json:"action"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	EntityName string         `json:"entity_name"`
	Meta       map[string]any `json:"meta,omitempty"`
	At         time.Time      `json:"at"`
}

// Sink receives audit entries.
type Sink interface {
	Record(ctx context.Context, entry Entry) error
}

// Nop discards every entry. Used when auditing is disabled.
type Nop struct{}

// Record implements Sink.
func (Nop) Record(context.Context, Entry) error { return nil }
