package taskstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/dustland/agentx/pkg/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "agentx.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetTask(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	taskID := uuid.NewString()
	if err := store.CreateTask(ctx, core.Task{
		ID:      taskID,
		Goal:    "summarize quarterly report",
		Agent:   "researcher",
		Command: "python run_agent.py",
		Dir:     "/work",
		Env:     map[string]string{"MODEL": "default"},
	}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	got, err := store.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Goal != "summarize quarterly report" {
		t.Errorf("goal: got %q", got.Goal)
	}
	if got.Status != core.TaskPending {
		t.Errorf("status: got %q, want pending default", got.Status)
	}
	if got.Env["MODEL"] != "default" {
		t.Errorf("env not round-tripped: %v", got.Env)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not defaulted")
	}
}

func TestGetMissingTask(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetTask(context.Background(), "no-such-task")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	taskID := uuid.NewString()
	if err := store.CreateTask(ctx, core.Task{ID: taskID, Goal: "g", Agent: "writer"}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := store.UpdateStatus(ctx, taskID, core.TaskRunning); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, err := store.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != core.TaskRunning {
		t.Errorf("status: got %q", got.Status)
	}

	if err := store.UpdateStatus(ctx, "no-such-task", core.TaskFailed); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing task, got %v", err)
	}
}

func TestListTasks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, goal := range []string{"a", "b", "c"} {
		if err := store.CreateTask(ctx, core.Task{ID: uuid.NewString(), Goal: goal, Agent: "x"}); err != nil {
			t.Fatalf("create task: %v", err)
		}
	}

	tasks, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Errorf("got %d tasks, want 3", len(tasks))
	}
}

func TestArtifacts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	taskID := uuid.NewString()
	if err := store.CreateTask(ctx, core.Task{ID: taskID, Goal: "g", Agent: "x"}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	artifactsIn := []core.Artifact{
		{ID: "art-1", TaskID: taskID, Name: "report.md", Path: "/work/report.md", Kind: "file"},
		{ID: "art-2", TaskID: taskID, Name: "data.csv", Path: "/work/data.csv", Kind: "file"},
	}
	for _, a := range artifactsIn {
		if err := store.AddArtifact(ctx, a); err != nil {
			t.Fatalf("add artifact: %v", err)
		}
	}

	artifacts, err := store.ListArtifacts(ctx, taskID)
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("got %d artifacts", len(artifacts))
	}
	if artifacts[0].Name != "report.md" {
		t.Errorf("order: got %q first", artifacts[0].Name)
	}
}
