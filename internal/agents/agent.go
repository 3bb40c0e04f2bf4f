package agents

import (
	"context"

	"Hephaestus/internal/models"
	"Hephaestus/internal/workflow"
)

// Metadata describes what an agent can do, for operator-facing listings and
// for routing decisions in pipeline construction.
type Metadata struct {
	Name              string // Unique agent name, used as its identifier
	Capability        string // Overall capability description
	InputDescription  string // What the agent expects in the task state
	OutputDescription string // What the agent writes back
}

// Agent is a unit of task-specific logic invoked by a workflow node. An agent
// mutates the task state in place, typically by writing its output under its
// own name in AgentResponses.
type Agent interface {
	// Metadata returns the agent's capability description.
	Metadata() Metadata
	// Execute performs the agent's work against the task state.
	Execute(ctx context.Context, state *models.ManagedTaskState) error
}

// Node adapts an agent to a workflow node function.
func Node(a Agent) workflow.NodeFunc {
	return a.Execute
}
