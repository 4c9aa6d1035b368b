// Package sse streams pipeline progress to browsers as Server-Sent Events.
package sse

import (
	"time"

	"github.com/thywilljoshua/manuscript2book/internal/pipeline"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventRunUpdated carries a snapshot after every state change of the run.
	EventRunUpdated EventType = "run.updated"
	// EventRunSettled is sent once a run has nothing left in flight.
	EventRunSettled EventType = "run.settled"
	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// RunEventData is the payload of run events.
type RunEventData struct {
	Snapshot pipeline.Snapshot `json:"snapshot"`
	Resolved int               `json:"resolved_chapters"`
	Total    int               `json:"total_chapters"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewRunEvent wraps a snapshot, choosing the settled type when appropriate.
func NewRunEvent(snap pipeline.Snapshot) Event {
	data := RunEventData{Snapshot: snap}
	if snap.Book != nil {
		data.Resolved, data.Total = snap.Book.Progress()
	}
	typ := EventRunUpdated
	if snap.Settled() {
		typ = EventRunSettled
	}
	return Event{Type: typ, Data: data, Timestamp: time.Now()}
}

// NewHeartbeatEvent creates a keepalive event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{Type: EventHeartbeat, Data: HeartbeatEventData{ServerTime: now}, Timestamp: now}
}
