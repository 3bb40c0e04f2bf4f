package api

import (
	"context"
	"encoding/json"
	"sync"

	"Hephaestus/internal/events"

	"github.com/gorilla/websocket"
)

// ConnectionManager tracks one WebSocket subscriber per task ID and fans task
// lifecycle events out to them. It implements events.TaskEventPublisher, so
// the orchestrator pushes status changes without knowing about websockets.
type ConnectionManager struct {
	connections map[string]*websocket.Conn
	mu          sync.RWMutex
}

// NewConnectionManager creates an empty manager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*websocket.Conn),
	}
}

// Add registers a connection watching a task. A previous watcher of the same
// task is replaced and closed.
func (m *ConnectionManager) Add(taskID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.connections[taskID]; ok {
		old.Close()
	}
	m.connections[taskID] = conn
}

// Remove closes and forgets conn if it is still the registered watcher for
// the task. A watcher that has already been replaced must not evict its
// replacement.
func (m *ConnectionManager) Remove(taskID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.connections[taskID]; ok && current == conn {
		current.Close()
		delete(m.connections, taskID)
	}
}

// Publish implements events.TaskEventPublisher by sending the event to the
// task's watcher, if any.
func (m *ConnectionManager) Publish(_ context.Context, event events.TaskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[event.TaskID]
	if !ok {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		conn.Close()
		delete(m.connections, event.TaskID)
		return err
	}
	return nil
}

// Close implements events.TaskEventPublisher, closing every connection.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for taskID, conn := range m.connections {
		conn.Close()
		delete(m.connections, taskID)
	}
	return nil
}
