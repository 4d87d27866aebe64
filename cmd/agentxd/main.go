package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustland/agentx/internal/buildinfo"
	"github.com/dustland/agentx/pkg/bus"
	"github.com/dustland/agentx/pkg/config"
	"github.com/dustland/agentx/pkg/core"
	"github.com/dustland/agentx/pkg/logstore"
	"github.com/dustland/agentx/pkg/runner"
	"github.com/dustland/agentx/pkg/server"
	"github.com/dustland/agentx/pkg/taskstore"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("agentxd %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	configPath := "agentx.yaml"
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		configPath = os.Args[2]
	}

	cfg, err := config.Load(configPath)
	if err == nil {
		if errs := config.Validate(cfg); len(errs) > 0 {
			for _, e := range errs {
				logger.Warn("config validation", "err", e)
			}
			os.Exit(1)
		}
		logger.Info("config loaded", "path", configPath, "tasks", len(cfg.Tasks))
	} else {
		cfg = config.Default()
		logger.Info("no config loaded, using defaults", "path", configPath, "err", err)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("daemon error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	logs, err := logstore.New(filepath.Join(cfg.DataDir, "logs"), logger)
	if err != nil {
		return fmt.Errorf("open log store: %w", err)
	}
	defer logs.Close()

	tasks, err := taskstore.Open(filepath.Join(cfg.DataDir, "agentx.db"))
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer tasks.Close()
	if err := tasks.Migrate(ctx); err != nil {
		return err
	}

	events := bus.New(64)
	work := runner.New(ctx, logs, tasks, events, logger)

	if err := registerConfigTasks(ctx, cfg, tasks, work); err != nil {
		return err
	}
	work.StartAll()
	defer work.StopAll()

	srv := server.New(logs, tasks, events, work, logger)
	logger.Info("starting agentxd", "version", buildinfo.Version, "listen", cfg.Listen)
	return srv.Run(ctx, cfg.Listen)
}

// registerConfigTasks creates task records for config-declared tasks on
// first boot and registers them with the runner. Records keep the config
// key as a stable ID so restarts do not duplicate them.
func registerConfigTasks(ctx context.Context, cfg *config.Config, tasks *taskstore.Store, work *runner.Runner) error {
	for name, def := range cfg.Tasks {
		id := "cfg-" + name
		task, err := tasks.GetTask(ctx, id)
		if errors.Is(err, taskstore.ErrNotFound) {
			task = core.Task{
				ID:      id,
				Goal:    def.Goal,
				Agent:   def.Agent,
				Command: def.Command,
				Dir:     def.Dir,
				Env:     def.Env,
			}
			if task.Goal == "" {
				task.Goal = name
			}
			if err := tasks.CreateTask(ctx, task); err != nil {
				return fmt.Errorf("register task %q: %w", name, err)
			}
		} else if err != nil {
			return fmt.Errorf("load task %q: %w", name, err)
		}

		restart := core.RestartPolicy(def.Restart)
		if restart == "" {
			restart = core.RestartOnFailure
		}
		work.Register(task, restart)
	}
	return nil
}
