// Package audit delivers fire-and-forget records of workflow transitions. Emitting never blocks and
// never fails the caller; records that cannot be buffered are dropped and counted.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/evdms/dealer-backend/internal/workflow"
)

// Record describes one state transition.
type Record struct {
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   uuid.UUID      `json:"entity_id"`
	ActorID    uuid.UUID      `json:"actor_id"`
	DealerID   *uuid.UUID     `json:"dealer_id,omitempty"`
	From       string         `json:"from,omitempty"`
	To         string         `json:"to,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// New starts a record for the actor.
func New(actor workflow.Actor, action, entityType string, entityID uuid.UUID) Record {
	return Record{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actor.UserID,
		DealerID:   actor.DealerID,
		OccurredAt: time.Now().UTC(),
	}
}

// Transition sets the before and after states.
func (r Record) Transition(from, to string) Record {
	r.From, r.To = from, to
	return r
}

// With adds a metadata entry.
func (r Record) With(key string, value any) Record {
	meta := make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		meta[k] = v
	}
	meta[key] = value
	r.Metadata = meta
	return r
}

// Emitter is what workflow services call after a transition commits.
type Emitter interface {
	Emit(ctx context.Context, record Record)
}

// Sink persists or forwards records. Errors are logged by the dispatcher and otherwise ignored.
type Sink interface {
	Write(ctx context.Context, record Record) error
}

// Nop discards records.
type Nop struct{}

func (Nop) Emit(context.Context, Record) {}
