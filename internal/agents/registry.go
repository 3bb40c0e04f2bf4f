package agents

import "sync"

// LocalRegistry stores agent instances in memory. Agents are registered
// explicitly at startup; there is no discovery or reflection-based loading.
type LocalRegistry struct {
	agents map[string]Agent
	mu     sync.RWMutex
}

// NewLocalRegistry creates an empty registry.
func NewLocalRegistry() *LocalRegistry {
	return &LocalRegistry{
		agents: make(map[string]Agent),
	}
}

// Register adds an agent, keyed by its metadata name.
func (r *LocalRegistry) Register(agent Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.Metadata().Name] = agent
}

// Get retrieves an agent by name.
func (r *LocalRegistry) Get(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, found := r.agents[name]
	return agent, found
}

// ListMetadata returns the metadata of every registered agent.
func (r *LocalRegistry) ListMetadata() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Metadata, 0, len(r.agents))
	for _, agent := range r.agents {
		list = append(list, agent.Metadata())
	}
	return list
}
