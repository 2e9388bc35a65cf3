// Package tui provides a Bubble Tea terminal view of an apply.
package tui

import "time"

// TaskState is the display state of a graph task.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskRunning
	TaskSucceeded
	TaskFailed
	TaskSkipped
)

// TaskMsg reports a task transition.
type TaskMsg struct {
	Name     string
	State    TaskState
	Duration time.Duration
	Message  string
}

// ReleaseMsg reports the Helm action taken for a release.
type ReleaseMsg struct {
	Release string
	Action  string
}

// LogMsg carries a progress line.
type LogMsg struct{ Line string }

// TickMsg is sent periodically to refresh the display.
type TickMsg struct{}

// DoneMsg signals that the apply returned.
type DoneMsg struct{ Err error }
