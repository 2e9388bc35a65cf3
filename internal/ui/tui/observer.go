package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dimo-network/k3sform/internal/provisioning"
)

// sender is the part of tea.Program the observer needs.
type sender interface {
	Send(msg tea.Msg)
}

// Observer forwards apply events to the TUI program.
type Observer struct {
	program sender
}

// NewObserver creates an observer sending to p.
func NewObserver(p sender) *Observer {
	return &Observer{program: p}
}

func (o *Observer) Printf(format string, v ...any) {
	o.program.Send(LogMsg{Line: fmt.Sprintf(format, v...)})
}

func (o *Observer) Event(e provisioning.Event) {
	switch e.Type {
	case provisioning.EventTaskStarted:
		o.program.Send(TaskMsg{Name: e.Phase, State: TaskRunning})
	case provisioning.EventTaskSucceeded:
		o.program.Send(TaskMsg{Name: e.Phase, State: TaskSucceeded, Duration: fieldDuration(e)})
	case provisioning.EventTaskFailed:
		o.program.Send(TaskMsg{Name: e.Phase, State: TaskFailed, Duration: fieldDuration(e), Message: e.Message})
	case provisioning.EventTaskSkipped:
		o.program.Send(TaskMsg{Name: e.Phase, State: TaskSkipped})
	case provisioning.EventRelease:
		o.program.Send(ReleaseMsg{Release: e.Resource, Action: e.Fields["action"]})
	case provisioning.EventValidationWarning:
		o.program.Send(LogMsg{Line: fmt.Sprintf("warning: %s: %s", e.Fields["field"], e.Message)})
	case provisioning.EventResourceCreated, provisioning.EventResourceDeleted:
		o.program.Send(LogMsg{Line: fmt.Sprintf("[%s] %s %s", e.Phase, e.Message, e.Resource)})
	}
}

func (o *Observer) Progress(phase string, current, total int) {
	o.program.Send(LogMsg{Line: fmt.Sprintf("[%s] %d/%d", phase, current, total)})
}

// WithFields returns the same observer; the view has no use for fields.
func (o *Observer) WithFields(map[string]string) provisioning.Observer {
	return o
}

func fieldDuration(e provisioning.Event) time.Duration {
	d, err := time.ParseDuration(e.Fields["duration"])
	if err != nil {
		return 0
	}
	return d
}
