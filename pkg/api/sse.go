package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/drak0niii/Launch-CTRL/pkg/logring"
	"github.com/drak0niii/Launch-CTRL/pkg/models"
)

// keepAliveInterval is how often an SSE comment is sent to hold idle
// connections open through proxies.
const keepAliveInterval = 25 * time.Second

func sseHeaders(c *gin.Context) http.Flusher {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return nil
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher
}

func writeSSE(c *gin.Context, flusher http.Flusher, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return true
	}
	if _, err := c.Writer.Write([]byte("data: ")); err != nil {
		return false
	}
	if _, err := c.Writer.Write(data); err != nil {
		return false
	}
	if _, err := c.Writer.Write([]byte("\n\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

func writeKeepAlive(c *gin.Context, flusher http.Flusher) bool {
	if _, err := c.Writer.Write([]byte(": keep-alive\n\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

// handleStreamBus streams every bus event, hydrated with the most recent
// buffered ones.
func (s *Server) handleStreamBus(c *gin.Context) {
	flusher := sseHeaders(c)
	if flusher == nil {
		return
	}

	sub := s.bus.Subscribe()
	defer sub.Close()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			if !writeSSE(c, flusher, evt) {
				return
			}
		case <-ticker.C:
			if !writeKeepAlive(c, flusher) {
				return
			}
		}
	}
}

// handleStreamSnapshot streams fleet snapshots: the current cached one
// first, then the payload of every state.update event.
func (s *Server) handleStreamSnapshot(c *gin.Context) {
	flusher := sseHeaders(c)
	if flusher == nil {
		return
	}

	if snap := s.bridge.LastSnapshot(); snap != nil {
		if !writeSSE(c, flusher, snap) {
			return
		}
	}

	sub := s.bus.Subscribe()
	defer sub.Close()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			if evt.Type != models.EventStateUpdate || evt.Payload == nil {
				continue
			}
			if !writeSSE(c, flusher, evt.Payload) {
				return
			}
		case <-ticker.C:
			if !writeKeepAlive(c, flusher) {
				return
			}
		}
	}
}

// streamRing serves a log ring over SSE: buffered lines first, then live
// appends.
func (s *Server) streamRing(ring *logring.Ring) gin.HandlerFunc {
	return func(c *gin.Context) {
		flusher := sseHeaders(c)
		if flusher == nil {
			return
		}

		// Subscribe returns the replay snapshot atomically with the
		// registration, so no line is missed or sent twice.
		replay, ch, cancel := ring.Subscribe()
		defer cancel()

		for _, line := range replay {
			if !writeSSE(c, flusher, line) {
				return
			}
		}

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-c.Request.Context().Done():
				return
			case line, ok := <-ch:
				if !ok {
					return
				}
				if !writeSSE(c, flusher, line) {
					return
				}
			case <-ticker.C:
				if !writeKeepAlive(c, flusher) {
					return
				}
			}
		}
	}
}
