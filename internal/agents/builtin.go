package agents

import (
	"context"
	"fmt"

	"Hephaestus/internal/models"
)

// LevelPlanner is the in-process agent that turns a task payload into a level
// plan. The plan is a deliberately simple deterministic stub: the real level
// design heuristics live behind an LLM backend and plug in at this seam.
type LevelPlanner struct{}

// Metadata implements Agent.
func (LevelPlanner) Metadata() Metadata {
	return Metadata{
		Name:              "level_planner",
		Capability:        "Produces a level plan (dimensions, theme, room budget) from the task payload.",
		InputDescription:  "Task payload fields: theme (string), width/height (numbers, optional).",
		OutputDescription: "agent_responses[\"level_planner\"]: plan object with dimensions, theme and room count.",
	}
}

// Execute implements Agent.
func (LevelPlanner) Execute(_ context.Context, state *models.ManagedTaskState) error {
	theme, _ := state.Payload["theme"].(string)
	if theme == "" {
		theme = "dungeon"
	}
	width := numberOrDefault(state.Payload["width"], 32)
	height := numberOrDefault(state.Payload["height"], 32)
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid level dimensions %dx%d", width, height)
	}

	state.AgentResponses["level_planner"] = map[string]interface{}{
		"theme":  theme,
		"width":  width,
		"height": height,
		"rooms":  (width * height) / 64,
	}
	return nil
}

// DocWriter is the in-process agent that summarizes a finished task into a
// documentation snippet. Like LevelPlanner, the prose generation itself is a
// pluggable backend; this stub assembles the structural summary.
type DocWriter struct{}

// Metadata implements Agent.
func (DocWriter) Metadata() Metadata {
	return Metadata{
		Name:              "doc_writer",
		Capability:        "Writes a changelog entry describing what the pipeline produced.",
		InputDescription:  "agent_responses from earlier pipeline steps.",
		OutputDescription: "agent_responses[\"doc_writer\"]: summary string.",
	}
}

// Execute implements Agent.
func (DocWriter) Execute(_ context.Context, state *models.ManagedTaskState) error {
	summary := fmt.Sprintf("task %s finished step %q with %d agent responses",
		state.TaskID, state.CurrentStep, len(state.AgentResponses))
	state.AgentResponses["doc_writer"] = summary
	return nil
}

// numberOrDefault extracts an int from a decoded-JSON value.
func numberOrDefault(v interface{}, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}
