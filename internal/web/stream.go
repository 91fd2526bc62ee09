package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const streamHeartbeat = 30 * time.Second

// streamEvents serves the trade-event journal over SSE: a catch-up replay
// from the journal first, then live events from the broadcaster.
func (s *Server) streamEvents(c *gin.Context) {
	if s.journal == nil || s.broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, apiError{Code: "stream_unavailable", Message: "event stream not configured"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, apiError{Code: "stream_unsupported", Message: "streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	// Subscribe before replaying so nothing published in between is lost;
	// duplicates across the boundary are acceptable for a display stream.
	live := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(live)

	records, err := s.journal.EventsAfter(0)
	if err != nil {
		s.logger.Error("event stream catch-up failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, apiError{Code: "stream_failed", Message: "failed to load events"})
		return
	}
	for _, record := range records {
		payload, err := json.Marshal(record.Event)
		if err != nil {
			continue
		}
		fmt.Fprintf(c.Writer, "event: trade\n")
		fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
	}
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			flusher.Flush()
		case e, ok := <-live:
			if !ok {
				return
			}
			payload, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "event: trade\n")
			fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
