// Package runner executes task processes and feeds their output into the
// task log store.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustland/agentx/pkg/bus"
	"github.com/dustland/agentx/pkg/core"
	"github.com/dustland/agentx/pkg/logstore"
	"github.com/dustland/agentx/pkg/taskstore"
)

// taskProc tracks a running task process.
type taskProc struct {
	task     core.Task
	restart  core.RestartPolicy
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	done     chan struct{} // closed once the current process is reaped
	status   core.TaskStatus
	pid      int
	failures int
	mu       sync.Mutex
}

// Runner supervises task processes. Output lines are written to the log
// store in the runtime's fixed log format, and lifecycle changes are
// published on the event bus and persisted to the task registry.
type Runner struct {
	procs  map[string]*taskProc
	mu     sync.RWMutex
	logs   *logstore.Store
	tasks  *taskstore.Store
	events *bus.Bus
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a runner bound to the given stores and bus.
func New(ctx context.Context, logs *logstore.Store, tasks *taskstore.Store, events *bus.Bus, logger *slog.Logger) *Runner {
	rctx, cancel := context.WithCancel(ctx)
	return &Runner{
		procs:  make(map[string]*taskProc),
		logs:   logs,
		tasks:  tasks,
		events: events,
		logger: logger,
		ctx:    rctx,
		cancel: cancel,
	}
}

// Register adds a task to be run but doesn't start it yet.
func (r *Runner) Register(task core.Task, restart core.RestartPolicy) {
	if restart == "" {
		restart = core.RestartNever
	}
	r.mu.Lock()
	r.procs[task.ID] = &taskProc{
		task:    task,
		restart: restart,
		status:  core.TaskPending,
	}
	r.mu.Unlock()
}

// Start launches a registered task's process.
func (r *Runner) Start(taskID string) error {
	r.mu.RLock()
	p, ok := r.procs[taskID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown task: %s", taskID)
	}
	return r.spawn(p)
}

// Stop terminates a running task's process without restart.
func (r *Runner) Stop(taskID string) error {
	r.mu.RLock()
	p, ok := r.procs[taskID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown task: %s", taskID)
	}
	return r.stopProc(p)
}

// StartAll starts every registered task.
func (r *Runner) StartAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.procs))
	for id := range r.procs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if err := r.Start(id); err != nil {
			r.logger.Error("start task", "task", id, "err", err)
		}
	}
}

// StopAll terminates all task processes and waits for them.
func (r *Runner) StopAll() {
	r.cancel()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.procs {
		r.stopProc(p)
	}
}

// Status returns the current status of a task's process.
func (r *Runner) Status(taskID string) (core.TaskStatus, int) {
	r.mu.RLock()
	p, ok := r.procs[taskID]
	r.mu.RUnlock()
	if !ok {
		return "", 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.pid
}

func (r *Runner) spawn(p *taskProc) error {
	p.mu.Lock()
	if p.status == core.TaskRunning {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(r.ctx)
	parts := strings.Fields(p.task.Command)
	if len(parts) == 0 {
		cancel()
		return fmt.Errorf("task %s has no command", p.task.ID)
	}

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = p.task.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	cmd.Env = os.Environ()
	for k, v := range p.task.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %q: %w", p.task.Command, err)
	}

	done := make(chan struct{})
	p.mu.Lock()
	p.cmd = cmd
	p.cancel = cancel
	p.done = done
	p.pid = cmd.Process.Pid
	p.status = core.TaskRunning
	p.mu.Unlock()

	r.logger.Info("task started", "task", p.task.ID, "pid", cmd.Process.Pid, "command", p.task.Command)
	r.setStatus(p.task, core.TaskRunning)

	agent := p.task.Agent
	go scanLines(stdoutPipe, func(line string) { r.ingest(p.task.ID, agent, "INFO", line) })
	go scanLines(stderrPipe, func(line string) { r.ingest(p.task.ID, agent, "WARNING", line) })
	go r.waitAndRestart(p, cmd, cancel, done)

	return nil
}

// ingest writes one process output line into the task's log in the fixed
// "<ts> - <logger> - <LEVEL> - <message>" layout and announces it.
func (r *Runner) ingest(taskID, agent, level, line string) {
	ts := time.Now().UTC().Format("2006-01-02 15:04:05")
	formatted := fmt.Sprintf("%s - agent.%s - %s - %s", ts, agent, level, line)
	if err := r.logs.Append(taskID, formatted); err != nil {
		r.logger.Error("append task log", "task", taskID, "err", err)
		return
	}
	if evt, err := core.NewEvent(core.EventMessage, core.MessagePayload{TaskID: taskID, Line: formatted}); err == nil {
		r.events.Publish(taskID, evt)
	}
}

func (r *Runner) waitAndRestart(p *taskProc, cmd *exec.Cmd, cancel context.CancelFunc, done chan struct{}) {
	// Sole owner of cmd.Wait; stoppers watch done instead of calling
	// Wait on the same cmd.
	err := cmd.Wait()
	cancel()

	p.mu.Lock()
	p.pid = 0
	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	if r.ctx.Err() != nil {
		p.status = core.TaskStopped
		p.mu.Unlock()
		close(done)
		return
	}

	if exitCode == 0 {
		p.status = core.TaskCompleted
	} else {
		p.status = core.TaskFailed
	}
	p.failures++
	status := p.status
	failures := p.failures
	restart := p.restart
	p.mu.Unlock()

	r.logger.Info("task exited", "task", p.task.ID, "exit_code", exitCode, "err", err)
	r.setStatus(p.task, status)
	// Stoppers blocked on done run after the exit status is recorded, so
	// an explicit stop settles as stopped.
	close(done)

	shouldRestart := false
	switch restart {
	case core.RestartAlways:
		shouldRestart = true
	case core.RestartOnFailure:
		shouldRestart = exitCode != 0
	case core.RestartNever:
		shouldRestart = false
	}

	if !shouldRestart {
		if status == core.TaskCompleted {
			if err := r.logs.Archive(p.task.ID); err != nil {
				r.logger.Error("archive task log", "task", p.task.ID, "err", err)
			}
		}
		return
	}

	delay := backoff(failures)
	r.logger.Info("restarting task", "task", p.task.ID, "delay", delay, "attempt", failures)

	select {
	case <-time.After(delay):
		if err := r.spawn(p); err != nil {
			r.logger.Error("restart failed", "task", p.task.ID, "err", err)
		}
	case <-r.ctx.Done():
	}
}

func (r *Runner) stopProc(p *taskProc) error {
	p.mu.Lock()
	if p.status != core.TaskRunning || p.cmd == nil || p.cmd.Process == nil {
		p.mu.Unlock()
		return nil
	}
	cmd := p.cmd
	cancel := p.cancel
	done := p.done
	p.restart = core.RestartNever // prevent auto-restart
	p.mu.Unlock()

	// SIGTERM the process group, escalate to SIGKILL after a grace period.
	// waitAndRestart owns the reap; done closes once it has finished.
	syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
	}

	if cancel != nil {
		cancel()
	}

	p.mu.Lock()
	p.status = core.TaskStopped
	p.pid = 0
	p.mu.Unlock()
	r.setStatus(p.task, core.TaskStopped)

	return nil
}

// setStatus persists a status change and publishes the matching events.
func (r *Runner) setStatus(task core.Task, status core.TaskStatus) {
	ctx, cancelStore := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelStore()
	if err := r.tasks.UpdateStatus(ctx, task.ID, status); err != nil {
		r.logger.Error("persist task status", "task", task.ID, "err", err)
	}

	payload := core.StatusPayload{TaskID: task.ID, Agent: task.Agent, Status: status}
	if evt, err := core.NewEvent(core.EventTaskUpdate, payload); err == nil {
		r.events.Publish(task.ID, evt)
	}
	if evt, err := core.NewEvent(core.EventAgentStatus, payload); err == nil {
		r.events.Publish(task.ID, evt)
	}
}

// backoff returns exponential restart delay: 1s, 2s, 4s, 8s, 16s, 30s max.
// The shift is capped before it happens; large failure counts would
// otherwise overflow into negative delays.
func backoff(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	if failures > 6 {
		return 30 * time.Second
	}
	d := time.Duration(1<<uint(failures-1)) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
