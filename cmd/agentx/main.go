package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dustland/agentx/internal/buildinfo"
	"github.com/dustland/agentx/pkg/client"
	"github.com/dustland/agentx/pkg/core"
	"github.com/dustland/agentx/pkg/logparse"
	tuimodel "github.com/dustland/agentx/pkg/tui/model"
)

var (
	serverAddr string
	userID     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentx",
	Short: "Task log viewer for the AgentX daemon",
	Long:  "AgentX is a TUI + daemon that runs agent tasks and streams their logs and events.",
	RunE:  runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:7770", "daemon address")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "user ID attached to stream subscriptions")

	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(versionCmd)
}

// --- Root: TUI ---

func runTUI(_ *cobra.Command, _ []string) error {
	c, err := client.New(serverAddr)
	if err != nil {
		return err
	}
	app := tuimodel.New(c, userID, 2*time.Second)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func dialServer() (*client.Client, error) {
	c, err := client.New(serverAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid server address %s: %w", serverAddr, err)
	}
	return c, nil
}

// --- Tasks ---

var tasksJSON bool

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := dialServer()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		tasks, err := c.ListTasks(ctx)
		if err != nil {
			return err
		}

		if tasksJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tasks)
		}

		if len(tasks) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no tasks")
			return nil
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-36s  %-10s  %-12s  %s\n", "ID", "STATUS", "AGENT", "GOAL")
		for _, task := range tasks {
			fmt.Fprintf(w, "%-36s  %-10s  %-12s  %s\n",
				task.ID, colorStatus(task.Status), task.Agent, task.Goal)
		}
		return nil
	},
}

func init() {
	tasksCmd.Flags().BoolVar(&tasksJSON, "json", false, "output as JSON")
}

// --- Logs ---

var (
	logsLimit  int
	logsOffset int
	logsFollow bool
	logsPlain  bool
)

var logsCmd = &cobra.Command{
	Use:   "logs <task-id>",
	Short: "Print a task's logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialServer()
		if err != nil {
			return err
		}
		taskID := args[0]

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		page, err := c.FetchLogs(ctx, taskID, client.FetchOptions{
			Limit:  logsLimit,
			Offset: logsOffset,
			Tail:   logsFollow || !cmd.Flags().Changed("offset"),
		})
		cancel()
		if err != nil {
			return err
		}
		for _, line := range page.Logs {
			printLine(cmd, logparse.Parse(line))
		}

		if !logsFollow {
			if page.HasMore && !logsPlain {
				fmt.Fprintln(cmd.OutOrStdout(), color.HiBlackString("... more lines available, use --offset/--limit"))
			}
			return nil
		}

		return followLogs(cmd, c, taskID)
	},
}

// followLogs subscribes to the task stream and prints message events as
// they arrive, until interrupted.
func followLogs(cmd *cobra.Command, c *client.Client, taskID string) error {
	lines := make(chan string, 256)
	sub, err := c.Subscribe(taskID, userID, func(evt core.Event) {
		if evt.Type != core.EventMessage {
			return
		}
		var payload core.MessagePayload
		if err := json.Unmarshal(evt.Data, &payload); err != nil {
			return
		}
		select {
		case lines <- payload.Line:
		default:
		}
	}, func(err error) {
		fmt.Fprintln(cmd.ErrOrStderr(), color.HiBlackString("stream: %v", err))
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case line := <-lines:
			printLine(cmd, logparse.Parse(line))
		case <-sigCh:
			return nil
		}
	}
}

func printLine(cmd *cobra.Command, r logparse.Record) {
	if logsPlain || !r.Matched {
		fmt.Fprintln(cmd.OutOrStdout(), r.Original)
		return
	}
	meta := color.HiBlackString("%s %s", r.Timestamp, r.Logger)
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", meta, colorLevel(r), r.Message)
}

func colorLevel(r logparse.Record) string {
	switch r.Severity() {
	case logparse.SeverityError:
		return color.New(color.FgRed, color.Bold).Sprint(r.Level)
	case logparse.SeverityWarn:
		return color.YellowString(r.Level)
	case logparse.SeverityDebug:
		return color.HiBlackString(r.Level)
	default:
		return color.CyanString(r.Level)
	}
}

func colorStatus(s core.TaskStatus) string {
	switch s {
	case core.TaskRunning:
		return color.GreenString(string(s))
	case core.TaskFailed:
		return color.RedString(string(s))
	case core.TaskCompleted:
		return color.CyanString(string(s))
	case core.TaskStopped:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func init() {
	logsCmd.Flags().IntVar(&logsLimit, "limit", 100, "max lines per window")
	logsCmd.Flags().IntVar(&logsOffset, "offset", 0, "line offset to read from")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "stream new lines as they arrive")
	logsCmd.Flags().BoolVar(&logsPlain, "plain", false, "print raw lines without color")
}

// --- Run ---

var (
	runAgent   string
	runCommand string
	runDir     string
	runRestart string
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Submit a new task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialServer()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		task, err := c.CreateTask(ctx, client.CreateTaskRequest{
			Goal:    strings.Join(args, " "),
			Agent:   runAgent,
			Command: runCommand,
			Dir:     runDir,
			Restart: runRestart,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), task.ID)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runAgent, "agent", "default", "agent to run the task")
	runCmd.Flags().StringVar(&runCommand, "command", "", "process to supervise for this task")
	runCmd.Flags().StringVar(&runDir, "dir", "", "working directory for the process")
	runCmd.Flags().StringVar(&runRestart, "restart", "", "restart policy: always, on-failure, never")
}

// --- Ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if the daemon is running",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := dialServer()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := c.Ping(ctx); err != nil {
			return fmt.Errorf("cannot reach daemon at %s: %w", serverAddr, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "pong ✓")
		return nil
	},
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "agentx %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}
