package pipeline

import (
	"context"
	"fmt"

	"Hephaestus/internal/agents"
	"Hephaestus/internal/models"
	"Hephaestus/internal/workflow"
	"Hephaestus/pkg/logger"
)

// BridgeName is the bridge instance the level pipeline dispatches to.
const BridgeName = "toolchain"

// Dispatcher is the slice of the orchestrator the pipeline nodes need:
// fire-and-forget submission of a bridge request on behalf of a task.
type Dispatcher interface {
	DispatchToBridge(ctx context.Context, taskID, bridgeName, requestType string, payload map[string]interface{}) error
}

// NewLevelGenerationGraph builds the production pipeline:
//
//	plan_level -> generate_layout -> generate_assets -> assemble_scene -> write_docs -> END
//
// plan_level and write_docs are in-process agents; the middle three steps
// dispatch to the toolchain bridge and suspend the task until the result
// event arrives. Tasks whose payload sets "skip_assets" branch straight from
// the layout to scene assembly.
func NewLevelGenerationGraph(d Dispatcher, registry *agents.LocalRegistry, log *logger.Logger) (*workflow.Graph, error) {
	planner, ok := registry.Get("level_planner")
	if !ok {
		return nil, fmt.Errorf("agent %q is not registered", "level_planner")
	}
	docWriter, ok := registry.Get("doc_writer")
	if !ok {
		return nil, fmt.Errorf("agent %q is not registered", "doc_writer")
	}

	g := workflow.NewGraph("level_generation", log)

	g.AddNode("plan_level", agents.Node(planner))

	g.AddNode("generate_layout", func(ctx context.Context, state *models.ManagedTaskState) error {
		plan, _ := state.AgentResponses["level_planner"].(map[string]interface{})
		if err := d.DispatchToBridge(ctx, state.TaskID, BridgeName, "generate_level_layout", plan); err != nil {
			return err
		}
		state.Status = models.TaskStatusWaitingForAgent
		return nil
	})

	g.AddNode("generate_assets", func(ctx context.Context, state *models.ManagedTaskState) error {
		theme := themeOf(state)
		payload := map[string]interface{}{
			"prompt": fmt.Sprintf("environment concept art, %s theme", theme),
			"theme":  theme,
		}
		if err := d.DispatchToBridge(ctx, state.TaskID, BridgeName, "generate_image", payload); err != nil {
			return err
		}
		state.Status = models.TaskStatusWaitingForAgent
		return nil
	})

	g.AddNode("assemble_scene", func(ctx context.Context, state *models.ManagedTaskState) error {
		payload := map[string]interface{}{
			"layout": state.AgentResponses["generate_level_layout"],
		}
		if image, ok := state.AgentResponses["generate_image"]; ok {
			payload["assets"] = []interface{}{image}
		}
		if err := d.DispatchToBridge(ctx, state.TaskID, BridgeName, "assemble_scene", payload); err != nil {
			return err
		}
		state.Status = models.TaskStatusWaitingForAgent
		return nil
	})

	g.AddNode("write_docs", func(ctx context.Context, state *models.ManagedTaskState) error {
		if err := docWriter.Execute(ctx, state); err != nil {
			return err
		}
		state.Result = state.AgentResponses["assemble_scene"]
		return nil
	})

	g.SetStart("plan_level")
	g.AddEdge("plan_level", "generate_layout", nil)
	g.AddEdge("generate_layout", "assemble_scene", skipAssets)
	g.AddEdge("generate_layout", "generate_assets", nil)
	g.AddEdge("generate_assets", "assemble_scene", nil)
	g.AddEdge("assemble_scene", "write_docs", nil)
	g.AddEdge("write_docs", workflow.End, nil)

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// skipAssets is the branch condition for payloads that do not want image
// generation.
func skipAssets(state *models.ManagedTaskState) bool {
	skip, _ := state.Payload["skip_assets"].(bool)
	return skip
}

// themeOf reads the planned theme, falling back to the raw payload.
func themeOf(state *models.ManagedTaskState) string {
	if plan, ok := state.AgentResponses["level_planner"].(map[string]interface{}); ok {
		if theme, ok := plan["theme"].(string); ok && theme != "" {
			return theme
		}
	}
	theme, _ := state.Payload["theme"].(string)
	return theme
}
