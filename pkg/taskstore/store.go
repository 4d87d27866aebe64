// Package taskstore persists the task registry and produced artifacts in
// SQLite.
package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dustland/agentx/pkg/core"
)

// ErrNotFound is returned when a task or artifact does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	goal TEXT NOT NULL,
	agent TEXT NOT NULL,
	status TEXT NOT NULL,
	command TEXT NOT NULL DEFAULT '',
	dir TEXT NOT NULL DEFAULT '',
	env TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS artifacts (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	kind TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_artifacts_task ON artifacts(task_id, created_at);
`

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database and applies pragmas.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// CreateTask inserts a task, defaulting status and timestamps.
func (s *Store) CreateTask(ctx context.Context, task core.Task) error {
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}
	if task.Status == "" {
		task.Status = core.TaskPending
	}

	env, err := json.Marshal(task.Env)
	if err != nil {
		return fmt.Errorf("encode env: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO tasks(id, goal, agent, status, command, dir, env, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Goal, task.Agent, string(task.Status), task.Command, task.Dir,
		string(env), task.CreatedAt.Unix(), task.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask fetches a single task by ID.
func (s *Store) GetTask(ctx context.Context, taskID string) (core.Task, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, goal, agent, status, command, dir, env, created_at, updated_at
		FROM tasks WHERE id = ?`,
		taskID,
	)
	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Task{}, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return core.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns all tasks, newest first.
func (s *Store) ListTasks(ctx context.Context) ([]core.Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, goal, agent, status, command, dir, env, created_at, updated_at
		FROM tasks ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	result := make([]core.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return result, nil
}

// UpdateStatus sets a task's status and bumps updated_at.
func (s *Store) UpdateStatus(ctx context.Context, taskID string, status core.TaskStatus) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Unix(), taskID,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return nil
}

// AddArtifact records an artifact produced by a task.
func (s *Store) AddArtifact(ctx context.Context, a core.Artifact) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO artifacts(id, task_id, name, path, kind, created_at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		a.ID, a.TaskID, a.Name, a.Path, a.Kind, a.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("add artifact: %w", err)
	}
	return nil
}

// ListArtifacts returns a task's artifacts, oldest first.
func (s *Store) ListArtifacts(ctx context.Context, taskID string) ([]core.Artifact, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, task_id, name, path, kind, created_at
		FROM artifacts WHERE task_id = ? ORDER BY created_at, id`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	result := make([]core.Artifact, 0)
	for rows.Next() {
		var a core.Artifact
		var created int64
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Name, &a.Path, &a.Kind, &created); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.CreatedAt = time.Unix(created, 0).UTC()
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return result, nil
}

func scanTask(scan func(...any) error) (core.Task, error) {
	var t core.Task
	var status, env string
	var created, updated int64
	if err := scan(&t.ID, &t.Goal, &t.Agent, &status, &t.Command, &t.Dir, &env, &created, &updated); err != nil {
		return core.Task{}, err
	}
	t.Status = core.TaskStatus(status)
	if env != "" && env != "null" {
		if err := json.Unmarshal([]byte(env), &t.Env); err != nil {
			return core.Task{}, fmt.Errorf("decode env: %w", err)
		}
	}
	t.CreatedAt = time.Unix(created, 0).UTC()
	t.UpdatedAt = time.Unix(updated, 0).UTC()
	return t, nil
}
