package model

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dustland/agentx/pkg/logparse"
	"github.com/dustland/agentx/pkg/tail"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	statusRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusPending   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusCompleted = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	statusStopped   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	sevError = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	sevWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	sevInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	sevDebug = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	activePaneStyle = paneStyle.
			BorderForeground(lipgloss.Color("205"))

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	// New-task form overlay
	if a.mode == ModeForm && a.form != nil {
		formView := a.form.View(a.width - 4)
		return paneStyle.Width(a.width - 4).Height(a.height - 2).Render(formView)
	}

	statusBarH := 2
	mainH := a.height - statusBarH - 2
	listW := a.taskPaneWidth()
	logW := a.logPaneWidth()

	list := a.renderTaskList(listW, mainH)
	listPane := a.paneBox(PaneTasks, " Tasks ", list, listW, mainH)

	logs := a.renderLogPane(mainH)
	logPane := a.paneBox(PaneLogs, a.logTitle(), logs, logW, mainH)

	row := lipgloss.JoinHorizontal(lipgloss.Top, listPane, logPane)
	return lipgloss.JoinVertical(lipgloss.Left, row, a.renderStatusBar())
}

func (a App) taskPaneWidth() int { return a.width*2/5 - 2 }
func (a App) logPaneWidth() int  { return a.width - a.taskPaneWidth() - 4 }
func (a App) logPaneHeight() int { return max(a.height-6, 3) }

func (a App) paneBox(pane Pane, title, content string, w, h int) string {
	style := paneStyle
	if a.activePane == pane {
		style = activePaneStyle
	}
	return style.Width(w).Height(h).Render(
		titleStyle.Render(title) + "\n" + content,
	)
}

func (a App) renderTaskList(w, h int) string {
	tasks := a.filteredTasks()
	if len(tasks) == 0 {
		return dimStyle.Render("no tasks")
	}

	var b strings.Builder
	maxVisible := h - 2
	start := 0
	if a.selectedIdx >= maxVisible {
		start = a.selectedIdx - maxVisible + 1
	}

	for i := start; i < len(tasks) && i-start < maxVisible; i++ {
		task := tasks[i]
		indicator := statusIndicator(string(task.Status))
		goal := truncate(task.Goal, w-6)
		line := fmt.Sprintf(" %s %-*s", indicator, w-6, goal)

		if i == a.selectedIdx {
			line = selectedStyle.Width(w).Render(line)
		}
		b.WriteString(line + "\n")
	}

	if a.mode == ModeSearch {
		b.WriteString("\n" + a.search.View())
	}

	return b.String()
}

func (a App) renderLogPane(h int) string {
	if a.taskID == "" {
		return dimStyle.Render("select a task to view its logs")
	}
	// Loading is shown only before the first window arrives; refreshes
	// keep the current content on screen.
	if !a.loaded {
		return dimStyle.Render("loading logs...")
	}
	if len(a.records) == 0 {
		return dimStyle.Render("no log output")
	}
	return a.vp.View()
}

// renderRecords formats the visible slice of parsed records, newest at the
// bottom, capped at the current display limit.
func (a App) renderRecords(w int) string {
	records := a.records
	clipped := false
	if len(records) > a.shown {
		records = records[len(records)-a.shown:]
		clipped = true
	}

	var b strings.Builder
	if clipped {
		b.WriteString(dimStyle.Render(fmt.Sprintf("... %d older lines hidden (m to load more)", len(a.records)-a.shown)) + "\n")
	}
	for _, r := range records {
		b.WriteString(a.formatRecord(r, w) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatRecord renders one line: compact by default, full metadata when
// toggled on. Unmatched lines render verbatim with no severity styling.
// Truncation happens before styling so escape sequences stay intact.
func (a App) formatRecord(r logparse.Record, w int) string {
	if !r.Matched {
		return truncate(r.Original, w)
	}

	style := severityStyle(r.Severity())
	if a.showMeta {
		prefix := r.Timestamp + " " + r.Logger
		msg := truncate(r.Message, max(w-len(prefix)-len(r.Level)-2, 8))
		return dimStyle.Render(prefix) + " " + style.Render(r.Level) + " " + msg
	}
	return style.Render(severityIcon(r.Severity())) + " " + truncate(r.Message, max(w-2, 8))
}

func severityStyle(s logparse.Severity) lipgloss.Style {
	switch s {
	case logparse.SeverityError:
		return sevError
	case logparse.SeverityWarn:
		return sevWarn
	case logparse.SeverityDebug:
		return sevDebug
	case logparse.SeverityInfo:
		return sevInfo
	default:
		return dimStyle
	}
}

func severityIcon(s logparse.Severity) string {
	switch s {
	case logparse.SeverityError:
		return "✖"
	case logparse.SeverityWarn:
		return "▲"
	case logparse.SeverityDebug:
		return "·"
	default:
		return "•"
	}
}

func (a App) logTitle() string {
	title := " Logs "
	if a.taskID != "" {
		title = fmt.Sprintf(" Logs %s ", truncate(a.taskID, 12))
	}
	if a.ctrl.Mode() == tail.ModePaged {
		title += dimStyle.Render(fmt.Sprintf("[page %d]", a.ctrl.Offset()/a.ctrl.Limit()+1)) + " "
	} else if !a.ctrl.AutoScroll() {
		title += dimStyle.Render("[scroll]") + " "
	}
	if a.taskID != "" && !a.streamOK {
		title += statusStopped.Render("[reconnecting]") + " "
	}
	if a.fetchErr != "" {
		title += statusFailed.Render("[fetch failed]") + " "
	}
	return title
}

func (a App) renderStatusBar() string {
	left := a.statusMsg
	right := "j/k:nav tab:pane enter:open /:search t:mode f:follow n/p:page m:more i:meta c:new q:quit"
	if a.mode == ModeSearch {
		right = "enter:apply esc:cancel"
	}
	if a.mode == ModeForm {
		right = "tab:next field enter:submit esc:cancel"
	}

	gap := a.width - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return helpStyle.Render(left + strings.Repeat(" ", gap) + right)
}

func statusIndicator(status string) string {
	switch status {
	case "running":
		return statusRunning.Render("●")
	case "pending":
		return statusPending.Render("○")
	case "failed":
		return statusFailed.Render("✖")
	case "completed":
		return statusCompleted.Render("✔")
	case "stopped":
		return statusStopped.Render("■")
	default:
		return dimStyle.Render("?")
	}
}

func truncate(s string, maxLen int) string {
	// maxLen can go negative on very narrow terminals.
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
