package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"Hephaestus/internal/orchestrator"
	"Hephaestus/pkg/logger"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New builds an MCP server exposing the orchestrator's three operations as
// tools, so LLM clients drive task orchestration over the Model Context
// Protocol the same way HTTP clients do over REST.
func New(orch *orchestrator.Orchestrator, version string, log *logger.Logger) *server.MCPServer {
	s := server.NewMCPServer("hephaestus-orchestrator", version)

	startTask := mcp.NewTool("start_task",
		mcp.WithDescription("Start a new orchestrated content-generation task. Returns the task ID immediately; the pipeline continues asynchronously."),
		mcp.WithObject("payload",
			mcp.Description("Task payload, e.g. {\"theme\": \"dungeon\", \"width\": 32, \"height\": 32}."),
		),
	)
	s.AddTool(startTask, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload, _ := request.GetArguments()["payload"].(map[string]interface{})
		if payload == nil {
			payload = map[string]interface{}{}
		}

		taskID, err := orch.StartTask(ctx, payload)
		if taskID == "" {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create task: %v", err)), nil
		}
		return stateResult(orch, taskID)
	})

	getTaskState := mcp.NewTool("get_task_state",
		mcp.WithDescription("Read the current state of a task: status, current step, agent responses, result or error."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("The task ID returned by start_task."),
		),
	)
	s.AddTool(getTaskState, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return stateResult(orch, taskID)
	})

	postEvent := mcp.NewTool("post_event",
		mcp.WithDescription("Post an asynchronous completion event to a waiting task, resuming its pipeline."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("The task the event belongs to."),
		),
		mcp.WithString("event_type",
			mcp.Required(),
			mcp.Description("Event type, e.g. \"generate_image_result\"."),
		),
		mcp.WithObject("event_data",
			mcp.Description("Structured event payload."),
		),
	)
	s.AddTool(postEvent, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		eventType, err := request.RequireString("event_type")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		eventData, _ := request.GetArguments()["event_data"].(map[string]interface{})

		status, err := orch.PostEvent(ctx, taskID, eventType, eventData)
		if err != nil && status == "" {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(`{"task_id":%q,"status":%q}`, taskID, status)), nil
	})

	log.Info("MCP server configured with orchestrator tools")
	return s
}

// stateResult serializes a task state snapshot into a tool result.
func stateResult(orch *orchestrator.Orchestrator, taskID string) (*mcp.CallToolResult, error) {
	state, err := orch.GetTaskState(taskID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
