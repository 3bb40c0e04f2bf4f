package workflow

import (
	"context"
	"fmt"

	"Hephaestus/internal/models"
	"Hephaestus/pkg/logger"
)

// End is the explicit terminal sentinel. An edge targeting End finishes the
// run; so does a node with no matching outgoing edge.
const End = "__end__"

// NodeFunc is one processing step. It mutates the task state in place and
// returns an error to abort the run. A node that dispatches external work
// sets the status to waiting_for_agent before returning; the run suspends
// there and resumes later through the orchestrator.
type NodeFunc func(ctx context.Context, state *models.ManagedTaskState) error

// Condition guards an edge. It must be a pure predicate over the state.
type Condition func(state *models.ManagedTaskState) bool

type edge struct {
	target    string
	condition Condition
}

// GraphNodeError wraps an error raised by a node function, keeping the node
// name for correlation.
type GraphNodeError struct {
	Node string
	Err  error
}

func (e *GraphNodeError) Error() string {
	return fmt.Sprintf("node %q failed: %v", e.Node, e.Err)
}

func (e *GraphNodeError) Unwrap() error {
	return e.Err
}

// Graph is a directed workflow of named processing nodes with conditional
// transitions. It executes synchronously on the calling goroutine; any
// asynchrony comes from nodes suspending the task and external events
// resuming it.
type Graph struct {
	name  string
	start string
	nodes map[string]NodeFunc
	edges map[string][]edge
	log   *logger.Logger
}

// NewGraph creates an empty graph.
func NewGraph(name string, log *logger.Logger) *Graph {
	if log == nil {
		log = logger.New("WorkflowGraph", "", name)
	}
	return &Graph{
		name:  name,
		nodes: make(map[string]NodeFunc),
		edges: make(map[string][]edge),
		log:   log,
	}
}

// AddNode registers a processing function under a name. Registering the same
// name twice keeps the last registration and logs a warning, since a silent
// overwrite usually means two pipeline authors collided.
func (g *Graph) AddNode(name string, fn NodeFunc) {
	if _, exists := g.nodes[name]; exists {
		g.log.WithPayload(map[string]interface{}{"node": name}).
			Warn("Overwriting previously registered node")
	}
	g.nodes[name] = fn
}

// AddEdge registers a transition. Edges are evaluated in registration order
// and the first whose condition is nil or true is taken. The target may be
// End.
func (g *Graph) AddEdge(from, to string, condition Condition) {
	g.edges[from] = append(g.edges[from], edge{target: to, condition: condition})
}

// SetStart designates the entry node.
func (g *Graph) SetStart(name string) {
	g.start = name
}

// Validate checks the structural invariants: a start node exists, every edge
// references registered nodes (or End), and at least one terminal is
// reachable syntactically (a node with no outgoing edges, or an edge to End).
func (g *Graph) Validate() error {
	if g.start == "" {
		return fmt.Errorf("graph %q has no start node", g.name)
	}
	if _, ok := g.nodes[g.start]; !ok {
		return fmt.Errorf("graph %q start node %q is not registered", g.name, g.start)
	}

	hasTerminal := false
	for name := range g.nodes {
		if len(g.edges[name]) == 0 {
			hasTerminal = true
		}
	}
	for from, edges := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("graph %q has edges from unregistered node %q", g.name, from)
		}
		for _, e := range edges {
			if e.target == End {
				hasTerminal = true
				continue
			}
			if _, ok := g.nodes[e.target]; !ok {
				return fmt.Errorf("graph %q has an edge to unregistered node %q", g.name, e.target)
			}
		}
	}
	if !hasTerminal {
		return fmt.Errorf("graph %q has no terminal node", g.name)
	}
	return nil
}

// Run executes the graph from the start node. It returns when the state
// reaches a terminal node (status becomes completed), when a node suspends
// the task (status waiting_for_agent), or when a node fails (status failed,
// error returned to the caller).
func (g *Graph) Run(ctx context.Context, state *models.ManagedTaskState) error {
	if state.Status == models.TaskStatusPending {
		state.Status = models.TaskStatusInProgress
	}
	return g.runFrom(ctx, g.start, state)
}

// Resume continues a suspended run. The node named by the state's
// current_step already executed before suspending, so execution picks up at
// its outgoing edges. Callers are responsible for serializing Resume per
// task ID.
func (g *Graph) Resume(ctx context.Context, state *models.ManagedTaskState) error {
	next, ok := g.nextNode(state.CurrentStep, state)
	if !ok || next == End {
		state.Status = models.TaskStatusCompleted
		return nil
	}
	return g.runFrom(ctx, next, state)
}

// runFrom drives the node loop starting at node.
func (g *Graph) runFrom(ctx context.Context, node string, state *models.ManagedTaskState) error {
	current := node
	for current != End {
		fn, ok := g.nodes[current]
		if !ok {
			err := &GraphNodeError{Node: current, Err: fmt.Errorf("node is not registered")}
			g.failState(state, current, err)
			return err
		}

		state.CurrentStep = current
		state.AppendHistory(models.HistoryNodeEntered, current, "")

		if err := fn(ctx, state); err != nil {
			nodeErr := &GraphNodeError{Node: current, Err: err}
			g.failState(state, current, nodeErr)
			return nodeErr
		}

		// A node that dispatched external work parks the task here. The
		// orchestrator re-enters through Resume when the event arrives.
		if state.Status == models.TaskStatusWaitingForAgent {
			return nil
		}
		if state.Status == models.TaskStatusFailed {
			return nil
		}

		next, ok := g.nextNode(current, state)
		if !ok {
			break
		}
		current = next
	}

	state.Status = models.TaskStatusCompleted
	return nil
}

// nextNode evaluates the outgoing edges of current in registration order and
// returns the first match. ok=false means current is terminal.
func (g *Graph) nextNode(current string, state *models.ManagedTaskState) (string, bool) {
	for _, e := range g.edges[current] {
		if e.condition == nil || e.condition(state) {
			return e.target, true
		}
	}
	return "", false
}

// failState marks the task failed and records the error. The run never
// swallows node failures; the caller receives the error as well.
func (g *Graph) failState(state *models.ManagedTaskState, node string, err error) {
	state.Status = models.TaskStatusFailed
	state.Error = &models.ErrorInfo{Kind: "graph_node_error", Message: err.Error()}
	state.AppendHistory(models.HistoryErrorRaised, node, err.Error())
	g.log.WithTask(state.TaskID).WithError(*state.Error).Error("Workflow node failed")
}
