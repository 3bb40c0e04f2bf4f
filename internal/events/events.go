package events

import (
	"context"
	"time"

	"Hephaestus/internal/models"
)

// TaskEvent is the lifecycle notification the orchestrator publishes whenever
// a task changes status.
type TaskEvent struct {
	TaskID      string            `json:"task_id"`
	Status      models.TaskStatus `json:"status"`
	CurrentStep string            `json:"current_step"`
	Error       *models.ErrorInfo `json:"error,omitempty"`
	At          time.Time         `json:"at"`
}

// TaskEventPublisher delivers task lifecycle events to interested consumers
// (Kafka topic, websocket subscribers, ...). Publish must not block the
// orchestrator for long; implementations own their delivery guarantees.
type TaskEventPublisher interface {
	Publish(ctx context.Context, event TaskEvent) error
	Close() error
}

// Noop discards all events. Used when no event sink is configured.
type Noop struct{}

// Publish implements TaskEventPublisher.
func (Noop) Publish(context.Context, TaskEvent) error { return nil }

// Close implements TaskEventPublisher.
func (Noop) Close() error { return nil }
