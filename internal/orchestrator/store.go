package orchestrator

import (
	"errors"
	"sync"
	"time"

	"Hephaestus/internal/models"
	"Hephaestus/pkg/logger"
)

// ErrUnknownTask is returned for operations on a task ID that does not exist
// (never created, or already evicted after its retention TTL).
var ErrUnknownTask = errors.New("unknown task")

// ErrTaskExists is returned when creating a task whose ID is already present.
var ErrTaskExists = errors.New("task already exists")

// taskEntry pairs a task state with its own mutex. The per-entry mutex
// serializes all mutation of one task; the store-level RWMutex only guards
// the map itself.
type taskEntry struct {
	mu         sync.Mutex
	state      *models.ManagedTaskState
	terminalAt time.Time
}

// TaskStateStore holds one ManagedTaskState per in-flight task. Reads return
// copies; all writes go through WithTask, which holds the task's lock for the
// duration of the mutation. Terminal tasks are evicted by a janitor after the
// retention TTL so callers have a window to observe the final state.
type TaskStateStore struct {
	mu        sync.RWMutex
	tasks     map[string]*taskEntry
	retention time.Duration
	log       *logger.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewTaskStateStore creates a store. A positive retention starts the eviction
// janitor; zero or negative keeps terminal tasks until explicitly deleted.
func NewTaskStateStore(retention time.Duration, log *logger.Logger) *TaskStateStore {
	if log == nil {
		log = logger.New("TaskStateStore", "", "")
	}
	s := &TaskStateStore{
		tasks:     make(map[string]*taskEntry),
		retention: retention,
		log:       log,
		stop:      make(chan struct{}),
	}
	if retention > 0 {
		go s.janitor()
	}
	return s
}

// Create inserts a new task state.
func (s *TaskStateStore) Create(state *models.ManagedTaskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[state.TaskID]; exists {
		return ErrTaskExists
	}
	s.tasks[state.TaskID] = &taskEntry{state: state}
	return nil
}

// Get returns a copy of the task state. Repeated calls without an intervening
// mutation return identical snapshots.
func (s *TaskStateStore) Get(taskID string) (*models.ManagedTaskState, bool) {
	s.mu.RLock()
	entry, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state.Clone(), true
}

// WithTask runs fn with exclusive access to the task's state. Concurrent
// calls for the same task ID are serialized; calls for different task IDs
// proceed independently. Returns ErrUnknownTask if the task does not exist.
func (s *TaskStateStore) WithTask(taskID string, fn func(state *models.ManagedTaskState) error) error {
	s.mu.RLock()
	entry, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if !ok {
		return ErrUnknownTask
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	err := fn(entry.state)
	if entry.state.Status.Terminal() && entry.terminalAt.IsZero() {
		entry.terminalAt = time.Now()
	}
	return err
}

// Delete removes a task outright.
func (s *TaskStateStore) Delete(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
}

// Len returns the number of stored tasks.
func (s *TaskStateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Close stops the janitor.
func (s *TaskStateStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// janitor periodically evicts terminal tasks older than the retention TTL.
func (s *TaskStateStore) janitor() {
	interval := s.retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.evictExpired(now)
		}
	}
}

// evictExpired removes terminal tasks whose retention window has passed.
func (s *TaskStateStore) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.tasks {
		if !entry.terminalAt.IsZero() && now.Sub(entry.terminalAt) > s.retention {
			delete(s.tasks, id)
			s.log.WithTask(id).Debug("Evicted terminal task after retention TTL")
		}
	}
}
