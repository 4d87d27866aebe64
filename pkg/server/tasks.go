package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dustland/agentx/pkg/core"
	"github.com/dustland/agentx/pkg/taskstore"
)

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.tasks.ListTasks(c.Request.Context())
	if err != nil {
		s.logger.Error("list tasks", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tasks"})
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.tasks.GetTask(c.Request.Context(), c.Param("taskID"))
	if errors.Is(err, taskstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if err != nil {
		s.logger.Error("get task", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get task"})
		return
	}
	c.JSON(http.StatusOK, task)
}

// createTaskRequest is the POST /tasks payload.
type createTaskRequest struct {
	Goal    string            `json:"goal" binding:"required"`
	Agent   string            `json:"agent" binding:"required"`
	Command string            `json:"command"`
	Dir     string            `json:"dir"`
	Env     map[string]string `json:"env"`
	Restart string            `json:"restart"`
}

// handleCreateTask registers a task and, when it declares a command and a
// runner is attached, starts it immediately.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Restart {
	case "", "always", "on-failure", "never":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "restart must be always, on-failure, or never"})
		return
	}

	task := core.Task{
		ID:      uuid.NewString(),
		Goal:    req.Goal,
		Agent:   req.Agent,
		Command: req.Command,
		Dir:     req.Dir,
		Env:     req.Env,
		Status:  core.TaskPending,
	}
	if err := s.tasks.CreateTask(c.Request.Context(), task); err != nil {
		s.logger.Error("create task", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create task"})
		return
	}
	s.logger.Info("task created", "task", task.ID, "agent", task.Agent)

	if s.runner != nil && task.Command != "" {
		s.runner.Register(task, core.RestartPolicy(req.Restart))
		if err := s.runner.Start(task.ID); err != nil {
			s.logger.Error("start task", "task", task.ID, "err", err)
		}
	}

	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleListArtifacts(c *gin.Context) {
	artifacts, err := s.tasks.ListArtifacts(c.Request.Context(), c.Param("taskID"))
	if err != nil {
		s.logger.Error("list artifacts", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list artifacts"})
		return
	}
	c.JSON(http.StatusOK, artifacts)
}
