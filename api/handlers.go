package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grego360/sense-hat-mqtt/bus"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		respondJSON(w, http.StatusOK, Status{})
		return
	}
	respondJSON(w, http.StatusOK, s.status())
}

// handleInject hands the raw body to the dispatcher loop on topic. The body
// is not validated here; the dispatcher reports decode failures the same way
// it does for bus traffic.
func (s *Server) handleInject(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxPayloadSize+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}
		if int64(len(body)) > s.cfg.MaxPayloadSize {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		if len(body) == 0 {
			writeError(w, http.StatusBadRequest, "empty payload")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.InjectTimeout)
		defer cancel()
		if err := s.injector.Inject(ctx, bus.Message{Topic: topic, Payload: body}); err != nil {
			s.logger.Warn("Inject on %s failed: %v", topic, err)
			writeError(w, http.StatusServiceUnavailable, "dispatcher busy")
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "topic": topic})
	}
}

// handleEvents replays the buffered publications, then streams new ones
// until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	ch, cancel := s.hub.Subscribe()
	defer cancel()

	var lastID int64
	for _, p := range s.hub.Snapshot() {
		if err := conn.WriteJSON(p); err != nil {
			return
		}
		lastID = p.ID
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("Events client error: %v", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case p, ok := <-ch:
			if !ok {
				return
			}
			if p.ID <= lastID {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(p); err != nil {
				return
			}
		}
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}
