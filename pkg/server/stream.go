package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 15 * time.Second

// handleStream serves GET /tasks/{taskID}/stream?user_id= as a persistent
// text/event-stream. Every event published for the task on the bus is
// written as a named SSE frame; the subscription is released when the
// client goes away.
func (s *Server) handleStream(c *gin.Context) {
	taskID := c.Param("taskID")
	userID := c.Query("user_id")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	events, cancel := s.events.Subscribe(taskID)
	defer cancel()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	// Opening comment confirms the stream before the first event.
	fmt.Fprintf(c.Writer, ": connected task=%s\n\n", taskID)
	flusher.Flush()

	s.logger.Info("stream opened", "task", taskID, "user", userID)
	defer s.logger.Info("stream closed", "task", taskID, "user", userID)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			flusher.Flush()
		case evt, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				s.logger.Error("encode event", "task", taskID, "err", err)
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", evt.Type, payload)
			flusher.Flush()
		}
	}
}
