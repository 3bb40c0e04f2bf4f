package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"Hephaestus/internal/agents"
	"Hephaestus/internal/bridge"
	"Hephaestus/internal/events"
	"Hephaestus/internal/models"
	"Hephaestus/internal/workflow"
	"Hephaestus/pkg/logger"

	"github.com/google/uuid"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEventPublisher adds a sink for task lifecycle events. May be given more
// than once; events fan out to every publisher.
func WithEventPublisher(p events.TaskEventPublisher) Option {
	return func(o *Orchestrator) { o.publishers = append(o.publishers, p) }
}

// WithBridge registers a named ToolchainBridge the pipeline nodes can
// dispatch to.
func WithBridge(name string, b *bridge.ToolchainBridge) Option {
	return func(o *Orchestrator) { o.bridges[name] = b }
}

// WithAwaitTimeout bounds how long a dispatched bridge future is awaited
// before the task is failed with a timeout. Default is 2 minutes.
func WithAwaitTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.awaitTimeout = d }
}

// Orchestrator composes the workflow graph, the task state store and the
// registered agents and bridges. It is constructed once at process start and
// passed explicitly to the API layer; there is no hidden global instance.
//
// It exposes three operations to the outside: StartTask, PostEvent and
// GetTaskState. None of them blocks on external work: a task waiting on an
// agent or a bridge is parked in waiting_for_agent and resumed later through
// PostEvent, which is how one orchestrator manages arbitrarily many in-flight
// tasks without per-task goroutines.
type Orchestrator struct {
	graph        *workflow.Graph
	store        *TaskStateStore
	registry     *agents.LocalRegistry
	bridges      map[string]*bridge.ToolchainBridge
	publishers   []events.TaskEventPublisher
	awaitTimeout time.Duration
	log          *logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// ErrShuttingDown is returned by DispatchToBridge once Shutdown has begun.
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// New creates an orchestrator. The workflow graph is attached afterwards with
// UseGraph, because pipeline nodes typically need the orchestrator itself for
// bridge dispatch.
func New(store *TaskStateStore, registry *agents.LocalRegistry, log *logger.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = logger.New("Orchestrator", "", "")
	}
	o := &Orchestrator{
		store:        store,
		registry:     registry,
		bridges:      make(map[string]*bridge.ToolchainBridge),
		awaitTimeout: 2 * time.Minute,
		log:          log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// UseGraph attaches the workflow graph. Must be called once, before the first
// StartTask.
func (o *Orchestrator) UseGraph(g *workflow.Graph) {
	o.graph = g
}

// Registry returns the agent registry, for listing registered capabilities.
func (o *Orchestrator) Registry() *agents.LocalRegistry {
	return o.registry
}

// StartTask creates a new managed task for the given payload and pushes it
// through the workflow graph until it first suspends or terminates. It
// returns quickly: external work dispatched by nodes continues in the
// background. A node failure is reported to the caller alongside the task ID;
// the failed state stays readable through GetTaskState.
func (o *Orchestrator) StartTask(ctx context.Context, payload map[string]interface{}) (string, error) {
	taskID := uuid.New().String()
	state := models.NewManagedTaskState(taskID, payload)

	if err := o.store.Create(state); err != nil {
		return "", err
	}
	o.log.WithTask(taskID).Info("Task created")

	err := o.store.WithTask(taskID, func(st *models.ManagedTaskState) error {
		return o.graph.Run(ctx, st)
	})
	o.publishSnapshot(ctx, taskID)
	return taskID, err
}

// PostEvent folds an asynchronous completion (agent finished, bridge
// resolved) back into the task and resumes the workflow at the suspended
// step. Events for different task IDs may be posted concurrently; events for
// the same task are serialized by the store. Posting to a terminal task is a
// no-op that logs a warning: tasks do not resurrect.
func (o *Orchestrator) PostEvent(ctx context.Context, taskID, eventType string, eventData map[string]interface{}) (models.TaskStatus, error) {
	var status models.TaskStatus

	err := o.store.WithTask(taskID, func(st *models.ManagedTaskState) error {
		if st.Status.Terminal() {
			o.log.WithTask(taskID).WithPayload(map[string]interface{}{"event_type": eventType}).
				Warn("Ignoring event for terminal task")
			status = st.Status
			return nil
		}

		st.AgentResponses[responseKey(eventType, eventData)] = eventData
		st.AppendHistory(models.HistoryEventReceived, eventType, "")
		st.Status = models.TaskStatusInProgress

		runErr := o.graph.Resume(ctx, st)
		status = st.Status
		return runErr
	})
	if err != nil && status == "" {
		return "", err
	}

	o.publishSnapshot(ctx, taskID)
	return status, err
}

// GetTaskState returns a read-only snapshot of the task.
func (o *Orchestrator) GetTaskState(taskID string) (*models.ManagedTaskState, error) {
	state, ok := o.store.Get(taskID)
	if !ok {
		return nil, ErrUnknownTask
	}
	return state, nil
}

// DispatchToBridge submits a request to a named bridge on behalf of a task
// and, in the background, awaits the future and posts the outcome back as an
// event named "<requestType>_result". Pipeline nodes call this and then park
// the task in waiting_for_agent; the graph thread is never blocked on the
// external work. A future that times out fails the task, but the handler
// itself keeps running and will still populate the cache.
func (o *Orchestrator) DispatchToBridge(ctx context.Context, taskID, bridgeName, requestType string, payload map[string]interface{}) error {
	b, ok := o.bridges[bridgeName]
	if !ok {
		return fmt.Errorf("no bridge registered under %q", bridgeName)
	}

	// The flag and the Add share one critical section so no Add can slip in
	// after Shutdown has started waiting on the group.
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrShuttingDown
	}
	o.wg.Add(1)
	o.mu.Unlock()

	future, err := b.SubmitRequest(ctx, requestType, payload, taskID)
	if err != nil {
		o.wg.Done()
		return err
	}

	go func() {
		defer o.wg.Done()

		result, err := future.Await(o.awaitTimeout)
		eventType := requestType + "_result"
		background := context.Background()

		if err != nil {
			o.failTask(background, taskID, requestType, err)
			return
		}

		data, ok := result.(map[string]interface{})
		if !ok {
			data = map[string]interface{}{"result": result}
		}
		if _, postErr := o.PostEvent(background, taskID, eventType, data); postErr != nil {
			o.log.WithTask(taskID).WithError(models.ErrorInfo{Kind: "post_event_error", Message: postErr.Error()}).
				Error("Failed to post bridge result back to task")
		}
	}()
	return nil
}

// Shutdown rejects further dispatches, drains the bridges, waits for in-flight
// dispatch goroutines and closes the event publishers and the store.
func (o *Orchestrator) Shutdown(timeout time.Duration) {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	for _, b := range o.bridges {
		b.Shutdown(timeout)
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		o.log.Warn("Dispatch goroutines did not finish within shutdown timeout")
	}

	for _, p := range o.publishers {
		if err := p.Close(); err != nil {
			o.log.WithError(models.ErrorInfo{Kind: "publisher_close_error", Message: err.Error()}).
				Warn("Failed to close event publisher")
		}
	}
	o.store.Close()
}

// failTask marks a task failed from outside the graph runner, used when a
// dispatched bridge request fails or times out.
func (o *Orchestrator) failTask(ctx context.Context, taskID, requestType string, cause error) {
	err := o.store.WithTask(taskID, func(st *models.ManagedTaskState) error {
		if st.Status.Terminal() {
			return nil
		}
		st.Status = models.TaskStatusFailed
		st.Error = &models.ErrorInfo{Kind: errorKind(cause), Message: cause.Error()}
		st.AppendHistory(models.HistoryErrorRaised, requestType, cause.Error())
		return nil
	})
	if err != nil {
		o.log.WithTask(taskID).WithError(models.ErrorInfo{Kind: "store_error", Message: err.Error()}).
			Error("Failed to record bridge failure on task")
		return
	}
	o.log.WithTask(taskID).WithError(models.ErrorInfo{Kind: errorKind(cause), Message: cause.Error()}).
		Error("Bridge dispatch failed")
	o.publishSnapshot(ctx, taskID)
}

// publishSnapshot fans the task's current state out to all event publishers.
func (o *Orchestrator) publishSnapshot(ctx context.Context, taskID string) {
	if len(o.publishers) == 0 {
		return
	}
	state, ok := o.store.Get(taskID)
	if !ok {
		return
	}
	event := events.TaskEvent{
		TaskID:      state.TaskID,
		Status:      state.Status,
		CurrentStep: state.CurrentStep,
		Error:       state.Error,
		At:          time.Now(),
	}
	for _, p := range o.publishers {
		if err := p.Publish(ctx, event); err != nil {
			o.log.WithTask(taskID).WithError(models.ErrorInfo{Kind: "publish_error", Message: err.Error()}).
				Warn("Failed to publish task event")
		}
	}
}

// responseKey decides where in agent_responses an event payload lands: the
// event's explicit "source" field when present, otherwise the event type with
// a trailing "_result" stripped (so "bridge_result" lands under "bridge").
func responseKey(eventType string, eventData map[string]interface{}) string {
	if source, ok := eventData["source"].(string); ok && source != "" {
		return source
	}
	return strings.TrimSuffix(eventType, "_result")
}

// errorKind maps a dispatch failure to its taxonomy name.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, bridge.ErrTimeout):
		return "timeout"
	case errors.Is(err, bridge.ErrUnknownRequestType):
		return "unknown_request_type"
	default:
		return "handler_execution_error"
	}
}
