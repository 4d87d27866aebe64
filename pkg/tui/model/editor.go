package model

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dustland/agentx/pkg/client"
)

// FormField is a named text input in the new-task form.
type FormField struct {
	Label string
	Input textinput.Model
}

// TaskForm is the inline form for submitting a new task.
type TaskForm struct {
	fields    []FormField
	activeIdx int
}

// NewTaskForm creates a blank task submission form.
func NewTaskForm() *TaskForm {
	fields := []FormField{
		newField("goal", ""),
		newField("agent", ""),
		newField("command", ""),
		newField("dir", ""),
		newField("restart", "never"),
	}
	fields[0].Input.Focus()
	return &TaskForm{fields: fields}
}

func newField(label, value string) FormField {
	ti := textinput.New()
	ti.Placeholder = label
	ti.SetValue(value)
	ti.CharLimit = 256
	return FormField{Label: label, Input: ti}
}

func (f *TaskForm) value(label string) string {
	for _, field := range f.fields {
		if field.Label == label {
			return field.Input.Value()
		}
	}
	return ""
}

// HandleKey processes key events in form mode.
func (f *TaskForm) HandleKey(a App, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.mode = ModeNormal
		a.form = nil
		return a, nil

	case "enter":
		goal := f.value("goal")
		agent := f.value("agent")
		if goal == "" || agent == "" {
			a.statusMsg = "goal and agent are required"
			return a, nil
		}
		req := client.CreateTaskRequest{
			Goal:    goal,
			Agent:   agent,
			Command: f.value("command"),
			Dir:     f.value("dir"),
			Restart: f.value("restart"),
		}
		a.mode = ModeNormal
		a.form = nil
		a.statusMsg = "submitting task..."
		return a, createTaskCmd(a.client, req)

	case "tab":
		f.fields[f.activeIdx].Input.Blur()
		f.activeIdx = (f.activeIdx + 1) % len(f.fields)
		f.fields[f.activeIdx].Input.Focus()
		return a, textinput.Blink

	case "shift+tab":
		f.fields[f.activeIdx].Input.Blur()
		f.activeIdx = (f.activeIdx - 1 + len(f.fields)) % len(f.fields)
		f.fields[f.activeIdx].Input.Focus()
		return a, textinput.Blink

	default:
		var cmd tea.Cmd
		f.fields[f.activeIdx].Input, cmd = f.fields[f.activeIdx].Input.Update(msg)
		return a, cmd
	}
}

// View renders the form.
func (f *TaskForm) View(width int) string {
	s := titleStyle.Render(" New Task ") + "\n\n"
	for i, field := range f.fields {
		prefix := "  "
		if i == f.activeIdx {
			prefix = "▸ "
		}
		s += prefix + dimStyle.Render(field.Label+": ") + field.Input.View() + "\n"
	}
	s += "\n" + helpStyle.Render("  tab:next  shift+tab:prev  enter:submit  esc:cancel")
	return s
}
