package sse

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/thywilljoshua/manuscript2book/internal/pipeline"
)

const (
	heartbeatInterval = 30 * time.Second
	queueSize         = 256
	clientBuffer      = 100
)

// client is one open event stream. events is closed when the client is
// dropped, which ends its handler.
type client struct {
	id     string
	events chan Event
}

// Manager fans run events out to every open stream.
type Manager struct {
	logger  *slog.Logger
	queue   chan Event
	stopped atomic.Bool

	mu      sync.RWMutex
	clients map[string]*client
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:  logger,
		queue:   make(chan Event, queueSize),
		clients: make(map[string]*client),
	}
}

// Start broadcasts queued events and heartbeats until ctx is done, then
// closes every stream.
func (m *Manager) Start(ctx context.Context) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event := <-m.queue:
			m.broadcast(event)
		case <-heartbeat.C:
			m.broadcast(NewHeartbeatEvent())
		case <-ctx.Done():
			m.stopped.Store(true)
			m.dropAll()
			return
		}
	}
}

// Relay emits a run event for every snapshot from source until source is
// closed or ctx is done.
func (m *Manager) Relay(ctx context.Context, source <-chan pipeline.Snapshot) {
	for {
		select {
		case snap, ok := <-source:
			if !ok {
				return
			}
			m.Emit(NewRunEvent(snap))
		case <-ctx.Done():
			return
		}
	}
}

// Emit queues event for broadcasting. It never blocks; events are dropped
// once the manager has stopped or while the queue is full.
func (m *Manager) Emit(event Event) {
	if m.stopped.Load() {
		return
	}
	select {
	case m.queue <- event:
	default:
		m.logger.Error("sse queue full, dropping event", "event_type", event.Type)
	}
}

func (m *Manager) broadcast(event Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		select {
		case c.events <- event:
		default:
			m.logger.Warn("dropped event for slow client", "client_id", c.id, "event_type", event.Type)
		}
	}
}

func (m *Manager) connect() *client {
	c := &client{id: uuid.NewString(), events: make(chan Event, clientBuffer)}
	m.mu.Lock()
	m.clients[c.id] = c
	n := len(m.clients)
	m.mu.Unlock()
	m.logger.Debug("sse client connected", "client_id", c.id, "clients", n)
	return c
}

func (m *Manager) disconnect(c *client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c.id]; !ok {
		return
	}
	delete(m.clients, c.id)
	close(c.events)
	m.logger.Debug("sse client disconnected", "client_id", c.id, "clients", len(m.clients))
}

func (m *Manager) dropAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.clients {
		close(c.events)
		delete(m.clients, id)
	}
}

func (m *Manager) connected() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}
