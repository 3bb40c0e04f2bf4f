package models

import (
	"time"
)

// TaskStatus enumerates the lifecycle states of a managed task.
type TaskStatus string

const (
	TaskStatusPending         TaskStatus = "pending"
	TaskStatusInProgress      TaskStatus = "in_progress"
	TaskStatusWaitingForAgent TaskStatus = "waiting_for_agent"
	TaskStatusCompleted       TaskStatus = "completed"
	TaskStatusFailed          TaskStatus = "failed"
)

// Terminal reports whether the status is final. Terminal tasks never change
// state again; events posted to them are ignored.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// History entry kinds. The history is an append-only record of what happened
// to a task, in order.
const (
	HistoryNodeEntered   = "node_entered"
	HistoryEventReceived = "event_received"
	HistoryErrorRaised   = "error_raised"
)

// HistoryEntry records one transition or event observed by a task.
type HistoryEntry struct {
	Kind   string    `json:"kind"`
	Name   string    `json:"name"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// ManagedTaskState is the full record of one in-flight (or recently finished)
// orchestrated task. All mutation goes through the orchestrator's store, which
// serializes writers per task ID.
type ManagedTaskState struct {
	TaskID         string                 `json:"task_id"`
	CurrentStep    string                 `json:"current_step"`
	Status         TaskStatus             `json:"status"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	History        []HistoryEntry         `json:"history"`
	AgentResponses map[string]interface{} `json:"agent_responses"`
	Result         interface{}            `json:"result,omitempty"`
	Error          *ErrorInfo             `json:"error,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// NewManagedTaskState creates a pending task state for a freshly assigned ID.
func NewManagedTaskState(taskID string, payload map[string]interface{}) *ManagedTaskState {
	now := time.Now()
	return &ManagedTaskState{
		TaskID:         taskID,
		Status:         TaskStatusPending,
		Payload:        payload,
		History:        []HistoryEntry{},
		AgentResponses: make(map[string]interface{}),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AppendHistory records a transition or event. History is append-only and is
// never rewritten.
func (s *ManagedTaskState) AppendHistory(kind, name, detail string) {
	s.History = append(s.History, HistoryEntry{
		Kind:   kind,
		Name:   name,
		Detail: detail,
		At:     time.Now(),
	})
	s.UpdatedAt = time.Now()
}

// Clone returns a copy safe to hand to readers while the original keeps being
// mutated under the store's per-task lock. The history slice and the response
// map are copied; response values themselves are shared and must be treated
// as read-only by callers.
func (s *ManagedTaskState) Clone() *ManagedTaskState {
	cp := *s
	cp.History = make([]HistoryEntry, len(s.History))
	copy(cp.History, s.History)
	cp.AgentResponses = make(map[string]interface{}, len(s.AgentResponses))
	for k, v := range s.AgentResponses {
		cp.AgentResponses[k] = v
	}
	if s.Error != nil {
		errCopy := *s.Error
		cp.Error = &errCopy
	}
	return &cp
}
