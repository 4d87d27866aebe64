package model

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dustland/agentx/pkg/client"
	"github.com/dustland/agentx/pkg/core"
	"github.com/dustland/agentx/pkg/logparse"
	"github.com/dustland/agentx/pkg/tail"
)

// displayCap bounds how many records are rendered at once; "load more"
// raises it explicitly.
const displayCap = 100

// Pane identifies which TUI pane is focused.
type Pane int

const (
	PaneTasks Pane = iota
	PaneLogs
)

// ViewMode identifies the current interaction mode.
type ViewMode int

const (
	ModeNormal ViewMode = iota
	ModeSearch
	ModeForm
)

// streamSignal carries either an event or an error off the subscription.
type streamSignal struct {
	evt core.Event
	err error
}

// App is the root Bubble Tea model for the log viewer.
type App struct {
	client *client.Client
	userID string

	// Task list
	tasks       []core.Task
	selectedIdx int

	// Log view state for the selected task
	taskID   string
	records  []logparse.Record
	shown    int
	loaded   bool
	fetchErr string
	ctrl     *tail.Controller

	// Stream
	sub      *client.Subscription
	signals  chan streamSignal
	streamOK bool

	// UI
	activePane Pane
	mode       ViewMode
	search     textinput.Model
	vp         viewport.Model
	showMeta   bool
	form       *TaskForm
	width      int
	height     int
	statusMsg  string
}

// New creates the viewer bound to an API client.
func New(c *client.Client, userID string, refresh time.Duration) App {
	si := textinput.New()
	si.Placeholder = "search..."
	si.CharLimit = 64

	return App{
		client: c,
		userID: userID,
		search: si,
		ctrl:   tail.New(displayCap, refresh),
		shown:  displayCap,
	}
}

// Init kicks off the first task fetch and the refresh timer.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		fetchTasksCmd(a.client),
		tickCmd(a.ctrl.Interval()),
		tea.SetWindowTitle("AgentX"),
	)
}

// --- messages ---

type tickMsg time.Time

type tasksMsg struct{ tasks []core.Task }

// logsMsg carries a fetched window keyed by task so stale responses can
// be discarded after a task switch.
type logsMsg struct {
	taskID string
	page   client.LogPage
}

type fetchErrMsg struct {
	taskID string
	err    error
}

type streamMsg struct {
	taskID string
	sig    streamSignal
}

type taskCreatedMsg struct{ task core.Task }

type errorMsg struct{ err error }

// --- commands ---

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchTasksCmd(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		tasks, err := c.ListTasks(ctx)
		if err != nil {
			return errorMsg{err}
		}
		return tasksMsg{tasks}
	}
}

// fetchLogsCmd reads one window. The timeout matches the refresh interval
// so a hung request cannot pile up behind the next scheduled tick.
func fetchLogsCmd(c *client.Client, taskID string, req tail.FetchRequest, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		page, err := c.FetchLogs(ctx, taskID, client.FetchOptions{
			Limit:  req.Limit,
			Offset: req.Offset,
			Tail:   req.Tail,
		})
		if err != nil {
			return fetchErrMsg{taskID: taskID, err: err}
		}
		return logsMsg{taskID: taskID, page: page}
	}
}

// waitSignalCmd blocks until the subscription delivers the next event or
// error and is re-armed from Update.
func waitSignalCmd(taskID string, ch chan streamSignal) tea.Cmd {
	return func() tea.Msg {
		sig, open := <-ch
		if !open {
			return nil
		}
		return streamMsg{taskID: taskID, sig: sig}
	}
}

func createTaskCmd(c *client.Client, req client.CreateTaskRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		task, err := c.CreateTask(ctx, req)
		if err != nil {
			return errorMsg{err}
		}
		return taskCreatedMsg{task}
	}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.vp = viewport.New(a.logPaneWidth(), a.logPaneHeight())
		a.refreshViewport()
		return a, nil

	case tasksMsg:
		a.tasks = msg.tasks
		if n := len(a.filteredTasks()); a.selectedIdx >= n && n > 0 {
			a.selectedIdx = n - 1
		}
		return a, nil

	case tickMsg:
		cmds := []tea.Cmd{tickCmd(a.ctrl.Interval()), fetchTasksCmd(a.client)}
		if req, ok := a.ctrl.Tick(); ok && a.taskID != "" {
			cmds = append(cmds, fetchLogsCmd(a.client, a.taskID, req, a.ctrl.Interval()))
		}
		return a, tea.Batch(cmds...)

	case logsMsg:
		// Stale-response guard: the viewer may have switched tasks while
		// this request was in flight.
		if msg.taskID != a.taskID {
			return a, nil
		}
		a.loaded = true
		a.fetchErr = ""
		a.records = logparse.ParseAll(msg.page.Logs)
		a.ctrl.ApplyResult(msg.page.FileSize, msg.page.HasMore)
		a.refreshViewport()
		if a.ctrl.ShouldScroll() {
			a.vp.GotoBottom()
		}
		return a, nil

	case fetchErrMsg:
		if msg.taskID != a.taskID {
			return a, nil
		}
		// Keep the previous window on transient failures; the next tick
		// retries.
		a.loaded = true
		a.fetchErr = msg.err.Error()
		return a, nil

	case streamMsg:
		if msg.taskID != a.taskID {
			return a, nil
		}
		cmds := []tea.Cmd{waitSignalCmd(a.taskID, a.signals)}
		if msg.sig.err != nil {
			a.streamOK = false
			return a, tea.Batch(cmds...)
		}
		a.streamOK = true
		// Push events only schedule a refresh; the fetch path stays the
		// single writer of the rendered window.
		if req, ok := a.ctrl.Tick(); ok {
			cmds = append(cmds, fetchLogsCmd(a.client, a.taskID, req, a.ctrl.Interval()))
		}
		if msg.sig.evt.Type == core.EventTaskUpdate || msg.sig.evt.Type == core.EventAgentStatus {
			cmds = append(cmds, fetchTasksCmd(a.client))
		}
		return a, tea.Batch(cmds...)

	case taskCreatedMsg:
		a.statusMsg = "task created: " + msg.task.ID
		return a, fetchTasksCmd(a.client)

	case errorMsg:
		a.statusMsg = "error: " + msg.err.Error()
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.mode == ModeSearch {
		switch msg.String() {
		case "esc":
			a.mode = ModeNormal
			a.search.SetValue("")
			a.search.Blur()
			return a, nil
		case "enter":
			a.mode = ModeNormal
			a.search.Blur()
			return a, nil
		default:
			var cmd tea.Cmd
			a.search, cmd = a.search.Update(msg)
			if a.selectedIdx >= len(a.filteredTasks()) {
				a.selectedIdx = 0
			}
			return a, cmd
		}
	}

	if a.mode == ModeForm && a.form != nil {
		return a.form.HandleKey(a, msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		a.closeStream()
		return a, tea.Quit

	case "j", "down":
		if a.activePane == PaneTasks {
			if n := len(a.filteredTasks()); a.selectedIdx < n-1 {
				a.selectedIdx++
			}
		} else {
			a.vp.LineDown(1)
		}
	case "k", "up":
		if a.activePane == PaneTasks {
			if a.selectedIdx > 0 {
				a.selectedIdx--
			}
		} else {
			a.vp.LineUp(1)
		}

	case "enter":
		if a.activePane == PaneTasks {
			return a.selectTask()
		}

	case "tab":
		a.activePane = (a.activePane + 1) % 2

	case "/":
		a.mode = ModeSearch
		a.activePane = PaneTasks
		a.search.Focus()
		return a, textinput.Blink

	case "t":
		if a.taskID != "" {
			req := a.ctrl.ToggleMode()
			return a, fetchLogsCmd(a.client, a.taskID, req, a.ctrl.Interval())
		}

	case "f":
		a.ctrl.ToggleAutoScroll()
		if a.ctrl.ShouldScroll() {
			a.vp.GotoBottom()
		}

	case "n", "right":
		if req, ok := a.ctrl.NextPage(); ok {
			return a, fetchLogsCmd(a.client, a.taskID, req, a.ctrl.Interval())
		}
	case "p", "left":
		if req, ok := a.ctrl.PrevPage(); ok {
			return a, fetchLogsCmd(a.client, a.taskID, req, a.ctrl.Interval())
		}

	case "m":
		a.shown += displayCap
		a.refreshViewport()

	case "i":
		a.showMeta = !a.showMeta
		a.refreshViewport()

	case "r":
		if a.taskID != "" {
			req := tail.FetchRequest{
				Limit:  a.ctrl.Limit(),
				Offset: a.ctrl.Offset(),
				Tail:   a.ctrl.Mode() == tail.ModeTail,
			}
			return a, fetchLogsCmd(a.client, a.taskID, req, a.ctrl.Interval())
		}

	case "c":
		a.form = NewTaskForm()
		a.mode = ModeForm
		return a, textinput.Blink
	}

	return a, nil
}

// selectTask switches the log view to the highlighted task: drop the old
// subscription, reset window state, open a new stream, fetch the tail.
func (a App) selectTask() (tea.Model, tea.Cmd) {
	tasks := a.filteredTasks()
	if len(tasks) == 0 || a.selectedIdx >= len(tasks) {
		return a, nil
	}
	task := tasks[a.selectedIdx]
	if task.ID == a.taskID {
		a.activePane = PaneLogs
		return a, nil
	}

	a.closeStream()

	a.taskID = task.ID
	a.records = nil
	a.loaded = false
	a.fetchErr = ""
	a.shown = displayCap
	a.ctrl = tail.New(displayCap, a.ctrl.Interval())
	a.activePane = PaneLogs
	a.refreshViewport()

	signals := make(chan streamSignal, 64)
	sub, err := a.client.Subscribe(task.ID, a.userID, func(evt core.Event) {
		select {
		case signals <- streamSignal{evt: evt}:
		default:
		}
	}, func(err error) {
		select {
		case signals <- streamSignal{err: err}:
		default:
		}
	})
	if err != nil {
		a.statusMsg = "stream error: " + err.Error()
	} else {
		a.sub = sub
		a.signals = signals
		a.streamOK = true
	}

	cmds := []tea.Cmd{
		fetchLogsCmd(a.client, a.taskID, tail.FetchRequest{Limit: a.ctrl.Limit(), Tail: true}, a.ctrl.Interval()),
	}
	if a.sub != nil {
		cmds = append(cmds, waitSignalCmd(a.taskID, a.signals))
	}
	return a, tea.Batch(cmds...)
}

// closeStream tears down the current subscription, if any. Safe to call
// repeatedly. Closing the signal channel after Unsubscribe returns is safe
// because no callback runs past that point; it releases the pending wait
// command.
func (a *App) closeStream() {
	if a.sub != nil {
		a.sub.Unsubscribe()
		a.sub = nil
		a.streamOK = false
		close(a.signals)
		a.signals = nil
	}
}

func (a *App) refreshViewport() {
	if a.vp.Width == 0 {
		return
	}
	a.vp.SetContent(a.renderRecords(a.vp.Width))
}

func (a App) filteredTasks() []core.Task {
	q := strings.ToLower(a.search.Value())
	if q == "" {
		return a.tasks
	}
	var filtered []core.Task
	for _, task := range a.tasks {
		if strings.Contains(strings.ToLower(task.Goal), q) ||
			strings.Contains(strings.ToLower(task.Agent), q) ||
			strings.Contains(strings.ToLower(string(task.Status)), q) {
			filtered = append(filtered, task)
		}
	}
	return filtered
}

func (a App) selectedTask() *core.Task {
	tasks := a.filteredTasks()
	if a.selectedIdx < len(tasks) {
		return &tasks[a.selectedIdx]
	}
	return nil
}
