package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"Hephaestus/internal/agents"
	"Hephaestus/internal/bridge"
	"Hephaestus/internal/events"
	"Hephaestus/internal/models"
	"Hephaestus/internal/workflow"
)

// recordingPublisher captures published task events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TaskEvent
}

func (r *recordingPublisher) Publish(_ context.Context, e events.TaskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) snapshot() []events.TaskEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.TaskEvent, len(r.events))
	copy(out, r.events)
	return out
}

func newTestOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	store := NewTaskStateStore(0, nil)
	t.Cleanup(store.Close)
	return New(store, agents.NewLocalRegistry(), nil, opts...)
}

// suspendAndCompleteGraph models the minimal async round trip: the start node
// parks the task, the resume edge leads straight to the end.
func suspendAndCompleteGraph(t *testing.T) *workflow.Graph {
	t.Helper()
	g := workflow.NewGraph("suspend-complete", nil)
	g.AddNode("dispatch_to_bridge", func(_ context.Context, state *models.ManagedTaskState) error {
		state.Status = models.TaskStatusWaitingForAgent
		return nil
	})
	g.SetStart("dispatch_to_bridge")
	g.AddEdge("dispatch_to_bridge", workflow.End, nil)
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return g
}

func awaitStatus(t *testing.T, o *Orchestrator, taskID string, want models.TaskStatus) *models.ManagedTaskState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		state, err := o.GetTaskState(taskID)
		if err != nil {
			t.Fatalf("GetTaskState() error = %v", err)
		}
		if state.Status == want {
			return state
		}
		if time.Now().After(deadline) {
			t.Fatalf("task never reached %s, stuck at %s (error=%+v)", want, state.Status, state.Error)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartTaskSuspendsThenEventCompletes(t *testing.T) {
	o := newTestOrchestrator(t)
	o.UseGraph(suspendAndCompleteGraph(t))

	taskID, err := o.StartTask(context.Background(), map[string]interface{}{"theme": "cave"})
	if err != nil {
		t.Fatalf("StartTask() error = %v", err)
	}

	state, err := o.GetTaskState(taskID)
	if err != nil {
		t.Fatalf("GetTaskState() error = %v", err)
	}
	if state.Status != models.TaskStatusWaitingForAgent {
		t.Fatalf("expected waiting_for_agent after start, got %s", state.Status)
	}
	if state.CurrentStep != "dispatch_to_bridge" {
		t.Errorf("current step should be the suspending node, got %s", state.CurrentStep)
	}

	eventData := map[string]interface{}{"echo": "hello"}
	status, err := o.PostEvent(context.Background(), taskID, "bridge_result", eventData)
	if err != nil {
		t.Fatalf("PostEvent() error = %v", err)
	}
	if status != models.TaskStatusCompleted {
		t.Errorf("expected completed after the event, got %s", status)
	}

	state, _ = o.GetTaskState(taskID)
	got, ok := state.AgentResponses["bridge"].(map[string]interface{})
	if !ok || !reflect.DeepEqual(got, eventData) {
		t.Errorf(`agent_responses["bridge"] = %v, expected %v`, state.AgentResponses["bridge"], eventData)
	}
}

func TestEventRoutingUsesSourceField(t *testing.T) {
	o := newTestOrchestrator(t)
	o.UseGraph(suspendAndCompleteGraph(t))

	taskID, err := o.StartTask(context.Background(), nil)
	if err != nil {
		t.Fatalf("StartTask() error = %v", err)
	}

	data := map[string]interface{}{"source": "painter", "uri": "assets://x.png"}
	if _, err := o.PostEvent(context.Background(), taskID, "generate_image_result", data); err != nil {
		t.Fatalf("PostEvent() error = %v", err)
	}

	state, _ := o.GetTaskState(taskID)
	if _, ok := state.AgentResponses["painter"]; !ok {
		t.Errorf("explicit source field should route the response, got keys %v", state.AgentResponses)
	}
}

func TestPostEventUnknownTask(t *testing.T) {
	o := newTestOrchestrator(t)
	o.UseGraph(suspendAndCompleteGraph(t))

	if _, err := o.PostEvent(context.Background(), "no-such-task", "bridge_result", nil); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("expected ErrUnknownTask, got %v", err)
	}
	if _, err := o.GetTaskState("no-such-task"); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("expected ErrUnknownTask, got %v", err)
	}
}

func TestPostEventToTerminalTaskIsNoOp(t *testing.T) {
	o := newTestOrchestrator(t)
	o.UseGraph(suspendAndCompleteGraph(t))

	taskID, _ := o.StartTask(context.Background(), nil)
	if _, err := o.PostEvent(context.Background(), taskID, "bridge_result", map[string]interface{}{"n": 1}); err != nil {
		t.Fatalf("PostEvent() error = %v", err)
	}
	before, _ := o.GetTaskState(taskID)
	if before.Status != models.TaskStatusCompleted {
		t.Fatalf("task should be completed, got %s", before.Status)
	}

	status, err := o.PostEvent(context.Background(), taskID, "bridge_result", map[string]interface{}{"n": 2})
	if err != nil {
		t.Fatalf("PostEvent() on terminal task error = %v", err)
	}
	if status != models.TaskStatusCompleted {
		t.Errorf("terminal task should report its status unchanged, got %s", status)
	}

	after, _ := o.GetTaskState(taskID)
	if !reflect.DeepEqual(before.History, after.History) {
		t.Error("terminal tasks must not record further events")
	}
}

func TestTasksAreIsolated(t *testing.T) {
	o := newTestOrchestrator(t)
	o.UseGraph(suspendAndCompleteGraph(t))

	first, _ := o.StartTask(context.Background(), nil)
	second, _ := o.StartTask(context.Background(), nil)

	if _, err := o.PostEvent(context.Background(), first, "bridge_result", nil); err != nil {
		t.Fatalf("PostEvent() error = %v", err)
	}

	firstState, _ := o.GetTaskState(first)
	secondState, _ := o.GetTaskState(second)
	if firstState.Status != models.TaskStatusCompleted {
		t.Errorf("first task should complete, got %s", firstState.Status)
	}
	if secondState.Status != models.TaskStatusWaitingForAgent {
		t.Errorf("second task must be untouched, got %s", secondState.Status)
	}
}

func TestNodeFailureFailsTask(t *testing.T) {
	cause := errors.New("planner rejected payload")
	g := workflow.NewGraph("failing", nil)
	g.AddNode("plan", func(_ context.Context, _ *models.ManagedTaskState) error {
		return cause
	})
	g.SetStart("plan")

	o := newTestOrchestrator(t)
	o.UseGraph(g)

	taskID, err := o.StartTask(context.Background(), nil)
	if !errors.Is(err, cause) {
		t.Fatalf("StartTask() should surface the node error, got %v", err)
	}
	if taskID == "" {
		t.Fatal("task ID must be returned even on failure")
	}

	state, getErr := o.GetTaskState(taskID)
	if getErr != nil {
		t.Fatalf("failed task state must stay readable: %v", getErr)
	}
	if state.Status != models.TaskStatusFailed {
		t.Errorf("expected failed, got %s", state.Status)
	}
	if state.Error == nil {
		t.Error("failed task should carry structured error info")
	}
}

func TestDispatchToBridgeRoundTrip(t *testing.T) {
	b := bridge.NewToolchainBridge("toolchain")
	t.Cleanup(func() { b.Shutdown(time.Second) })
	b.RegisterHandler("echo", func(_ context.Context, payload map[string]interface{}) (interface{}, error) {
		return payload, nil
	})

	o := newTestOrchestrator(t, WithBridge("toolchain", b), WithAwaitTimeout(time.Second))

	g := workflow.NewGraph("bridge-round-trip", nil)
	g.AddNode("dispatch", func(ctx context.Context, state *models.ManagedTaskState) error {
		if err := o.DispatchToBridge(ctx, state.TaskID, "toolchain", "echo", map[string]interface{}{"echo": "hello"}); err != nil {
			return err
		}
		state.Status = models.TaskStatusWaitingForAgent
		return nil
	})
	g.SetStart("dispatch")
	g.AddEdge("dispatch", workflow.End, nil)
	o.UseGraph(g)

	taskID, err := o.StartTask(context.Background(), nil)
	if err != nil {
		t.Fatalf("StartTask() error = %v", err)
	}

	state := awaitStatus(t, o, taskID, models.TaskStatusCompleted)
	response, ok := state.AgentResponses["echo"].(map[string]interface{})
	if !ok || response["echo"] != "hello" {
		t.Errorf("bridge result should land under the request type, got %v", state.AgentResponses)
	}
}

func TestDispatchTimeoutFailsTask(t *testing.T) {
	b := bridge.NewToolchainBridge("toolchain")
	t.Cleanup(func() { b.Shutdown(2 * time.Second) })
	b.RegisterHandler("slow", func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	})

	o := newTestOrchestrator(t, WithBridge("toolchain", b), WithAwaitTimeout(20*time.Millisecond))

	g := workflow.NewGraph("timeout", nil)
	g.AddNode("dispatch", func(ctx context.Context, state *models.ManagedTaskState) error {
		if err := o.DispatchToBridge(ctx, state.TaskID, "toolchain", "slow", nil); err != nil {
			return err
		}
		state.Status = models.TaskStatusWaitingForAgent
		return nil
	})
	g.SetStart("dispatch")
	g.AddEdge("dispatch", workflow.End, nil)
	o.UseGraph(g)

	taskID, err := o.StartTask(context.Background(), nil)
	if err != nil {
		t.Fatalf("StartTask() error = %v", err)
	}

	state := awaitStatus(t, o, taskID, models.TaskStatusFailed)
	if state.Error == nil || state.Error.Kind != "timeout" {
		t.Errorf("expected timeout error kind, got %+v", state.Error)
	}
}

func TestDispatchAfterShutdownIsRejected(t *testing.T) {
	b := bridge.NewToolchainBridge("toolchain")
	b.RegisterHandler("echo", func(_ context.Context, payload map[string]interface{}) (interface{}, error) {
		return payload, nil
	})

	o := newTestOrchestrator(t, WithBridge("toolchain", b))
	o.UseGraph(suspendAndCompleteGraph(t))
	o.Shutdown(time.Second)

	err := o.DispatchToBridge(context.Background(), "t1", "toolchain", "echo", nil)
	if !errors.Is(err, ErrShuttingDown) {
		t.Errorf("expected ErrShuttingDown, got %v", err)
	}
}

func TestDispatchToUnknownBridge(t *testing.T) {
	o := newTestOrchestrator(t)
	if err := o.DispatchToBridge(context.Background(), "t1", "missing", "echo", nil); err == nil {
		t.Error("dispatch to an unregistered bridge should fail")
	}
}

func TestPublishersReceiveLifecycleEvents(t *testing.T) {
	rec := &recordingPublisher{}
	o := newTestOrchestrator(t, WithEventPublisher(rec))
	o.UseGraph(suspendAndCompleteGraph(t))

	taskID, _ := o.StartTask(context.Background(), nil)
	_, _ = o.PostEvent(context.Background(), taskID, "bridge_result", nil)

	got := rec.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(got))
	}
	if got[0].Status != models.TaskStatusWaitingForAgent || got[1].Status != models.TaskStatusCompleted {
		t.Errorf("unexpected event sequence: %s then %s", got[0].Status, got[1].Status)
	}
	if got[0].TaskID != taskID || got[1].TaskID != taskID {
		t.Error("events should carry the task ID")
	}
}
