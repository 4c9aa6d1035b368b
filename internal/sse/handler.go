package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const writeTimeout = 60 * time.Second

// Handler serves the event stream at GET /api/v1/events.
type Handler struct {
	manager *Manager
	current func() Event
	logger  *slog.Logger
}

// NewHandler creates a Handler. current, when set, supplies the event sent
// right after a client connects so it can render without waiting.
func NewHandler(manager *Manager, current func() Event, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, current: current, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("event stream not supported", "error", err)
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	c := h.manager.connect()
	defer h.manager.disconnect(c)
	log := h.logger.With("client_id", c.id)

	if err := writeEvent(w, rc, "connected", map[string]string{"client_id": c.id}); err != nil {
		return
	}
	if h.current != nil {
		event := h.current()
		if err := writeEvent(w, rc, string(event.Type), event); err != nil {
			return
		}
	}

	for {
		select {
		case event, ok := <-c.events:
			if !ok {
				return
			}
			if err := writeEvent(w, rc, string(event.Type), event); err != nil {
				log.Debug("event stream write failed", "error", err)
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// writeEvent writes one event in SSE wire format and flushes it.
func writeEvent(w http.ResponseWriter, rc *http.ResponseController, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	// Not every ResponseWriter supports deadlines; the stream works without one.
	_ = rc.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return err
	}
	return rc.Flush()
}
