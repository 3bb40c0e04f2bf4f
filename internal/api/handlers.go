package api

import (
	"errors"
	"net/http"

	"Hephaestus/internal/models"
	"Hephaestus/internal/orchestrator"
	"Hephaestus/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// API provides the HTTP handlers for the orchestrator service.
type API struct {
	orch        *orchestrator.Orchestrator
	connManager *ConnectionManager
	log         *logger.Logger
	upgrader    websocket.Upgrader
}

// NewAPI creates the handler set. connManager may be nil when websocket
// streaming is not wired.
func NewAPI(orch *orchestrator.Orchestrator, connManager *ConnectionManager, log *logger.Logger) *API {
	if log == nil {
		log = logger.New("API", "", "")
	}
	return &API{
		orch:        orch,
		connManager: connManager,
		log:         log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // In production, implement a proper origin check.
			},
		},
	}
}

// postEventRequest is the body of POST /tasks/:id/events.
type postEventRequest struct {
	EventType string                 `json:"event_type" binding:"required"`
	EventData map[string]interface{} `json:"event_data"`
}

// StartTaskHandler handles POST /tasks: it creates a task from the JSON body
// and runs the pipeline until it first suspends or terminates.
func (a *API) StartTaskHandler(c *gin.Context) {
	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.log.WithError(models.ErrorInfo{Kind: "bad_request", Message: err.Error()}).Warn("Invalid task payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task payload"})
		return
	}

	taskID, err := a.orch.StartTask(c.Request.Context(), payload)
	if taskID == "" {
		// The task could not even be created.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task"})
		return
	}

	state, stateErr := a.orch.GetTaskState(taskID)
	if stateErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read task state", "task_id": taskID})
		return
	}

	// A node failure is task-level, not transport-level: the task exists,
	// carries error_info, and the response says so.
	resp := gin.H{
		"task_id":      state.TaskID,
		"status":       state.Status,
		"current_step": state.CurrentStep,
	}
	if err != nil && state.Error != nil {
		resp["error"] = state.Error
	}
	c.JSON(http.StatusAccepted, resp)
}

// GetTaskHandler handles GET /tasks/:id.
func (a *API) GetTaskHandler(c *gin.Context) {
	taskID := c.Param("id")

	state, err := a.orch.GetTaskState(taskID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrUnknownTask) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve task"})
		return
	}

	c.JSON(http.StatusOK, state)
}

// PostEventHandler handles POST /tasks/:id/events: it folds an asynchronous
// completion back into the task and reports the resulting status.
func (a *API) PostEventHandler(c *gin.Context) {
	taskID := c.Param("id")

	var req postEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event body"})
		return
	}

	status, err := a.orch.PostEvent(c.Request.Context(), taskID, req.EventType, req.EventData)
	if err != nil {
		if errors.Is(err, orchestrator.ErrUnknownTask) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}
		// A node failure during resume: the task is failed but the event was
		// accepted.
		c.JSON(http.StatusOK, gin.H{"task_id": taskID, "status": status})
		return
	}

	c.JSON(http.StatusOK, gin.H{"task_id": taskID, "status": status})
}

// ListAgentsHandler handles GET /agents, returning the registered agent
// capabilities.
func (a *API) ListAgentsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": a.orch.Registry().ListMetadata()})
}

// WatchTaskHandler handles GET /ws/tasks/:id: it upgrades to a WebSocket and
// streams lifecycle events for the task until the client disconnects.
func (a *API) WatchTaskHandler(c *gin.Context) {
	taskID := c.Param("id")

	if _, err := a.orch.GetTaskState(taskID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.log.WithTask(taskID).WithError(models.ErrorInfo{Kind: "websocket_error", Message: err.Error()}).
			Error("Failed to upgrade WebSocket connection")
		return
	}

	a.connManager.Add(taskID, conn)
	a.log.WithTask(taskID).Info("WebSocket watcher attached")

	// Drain client frames so pings are answered; drop the watcher when the
	// client goes away.
	go func() {
		defer a.connManager.Remove(taskID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
