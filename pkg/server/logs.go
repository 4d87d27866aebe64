package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// logsResponse is the wire shape of a log window.
type logsResponse struct {
	Logs     []string `json:"logs"`
	FileSize int64    `json:"file_size"`
	HasMore  bool     `json:"has_more"`
}

// handleLogs serves GET /tasks/{taskID}/logs?limit=&offset=&tail=.
// tail=true returns the newest window and overrides any offset. A task
// with no log yet yields an empty list, not an error, so viewers can
// render "no logs yet" without a retry path.
func (s *Server) handleLogs(c *gin.Context) {
	taskID := c.Param("taskID")

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	tail := c.Query("tail") == "true"

	var (
		lines   []string
		size    int64
		hasMore bool
	)
	if tail {
		lines, size, err = s.logs.Tail(taskID, limit)
	} else {
		lines, size, hasMore, err = s.logs.Read(taskID, offset, limit)
	}
	if err != nil {
		s.logger.Error("read task log", "task", taskID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read logs"})
		return
	}

	c.JSON(http.StatusOK, logsResponse{
		Logs:     lines,
		FileSize: size,
		HasMore:  hasMore,
	})
}
