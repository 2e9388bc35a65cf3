package tui

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dimo-network/k3sform/internal/provisioning"
)

var plan = []string{"network", "compute", "k3s-install", "release/kafka"}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m30s"},
		{3600 * time.Second, "1h0m"},
		{3661 * time.Second, "1h1m"},
	}
	for _, tt := range tests {
		got := formatDuration(tt.d)
		if got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestNewApplyModel(t *testing.T) {
	m := NewApplyModel("demo", "fsn1", plan)
	if len(m.Tasks) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(m.Tasks))
	}
	if m.EstimatedRemaining == 0 {
		t.Error("expected a non-zero initial estimate")
	}
	if p := calculateProgress(m); p != 0 {
		t.Errorf("expected 0 progress, got %v", p)
	}
}

func TestModelUpdateTask(t *testing.T) {
	m := NewApplyModel("demo", "fsn1", plan)

	m.updateTask(TaskMsg{Name: "network", State: TaskRunning})
	if m.Tasks[0].State != TaskRunning || m.Tasks[0].Started.IsZero() {
		t.Error("expected network to be running with a start time")
	}

	m.updateTask(TaskMsg{Name: "network", State: TaskSucceeded, Duration: 8 * time.Second})
	if m.Tasks[0].State != TaskSucceeded || m.Tasks[0].Duration != 8*time.Second {
		t.Errorf("unexpected row %+v", m.Tasks[0])
	}

	m.updateTask(TaskMsg{Name: "nodes", State: TaskRunning})
	if len(m.Tasks) != 5 || m.Tasks[4].Name != "nodes" {
		t.Error("expected unknown task to be appended")
	}

	finished, total := m.Counts()
	if finished != 1 || total != 5 {
		t.Errorf("Counts() = %d/%d, want 1/5", finished, total)
	}
}

func TestModelUpdate_Messages(t *testing.T) {
	var tm tea.Model = NewApplyModel("demo", "fsn1", plan)

	tm, _ = tm.Update(TaskMsg{Name: "release/kafka", State: TaskSucceeded, Duration: time.Minute})
	tm, _ = tm.Update(ReleaseMsg{Release: "kafka", Action: "installed"})
	for i := 0; i < 7; i++ {
		tm, _ = tm.Update(LogMsg{Line: "line"})
	}
	tm, cmd := tm.Update(DoneMsg{})

	m := tm.(Model)
	if m.Tasks[3].Action != "installed" {
		t.Errorf("expected release action, got %q", m.Tasks[3].Action)
	}
	if len(m.Log) != maxLogLines {
		t.Errorf("expected %d log lines, got %d", maxLogLines, len(m.Log))
	}
	if !m.Done || cmd == nil {
		t.Error("expected done with a quit command")
	}
	if calculateProgress(m) != 1.0 {
		t.Error("expected full progress after a successful run")
	}
}

func TestRenderView(t *testing.T) {
	m := NewApplyModel("demo", "fsn1", plan)
	m.updateTask(TaskMsg{Name: "network", State: TaskSucceeded, Duration: 8 * time.Second})
	m.updateTask(TaskMsg{Name: "compute", State: TaskFailed, Message: "failed to ensure server\nmore detail"})
	m.updateTask(TaskMsg{Name: "k3s-install", State: TaskSkipped})

	out := renderView(m)
	for _, want := range []string{"demo", "fsn1", "network", checkMark, crossMark, skipMark, "failed to ensure server", "tasks: 3/4"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output", want)
		}
	}
	if strings.Contains(out, "more detail") {
		t.Error("expected only the first line of task errors")
	}
}

func TestRenderView_DoneWithError(t *testing.T) {
	m := NewApplyModel("demo", "", plan)
	m.Done = true
	m.Err = errors.New("task compute: boom")

	out := renderView(m)
	if !strings.Contains(out, "Error: task compute: boom") {
		t.Errorf("expected error in header, got %q", out)
	}
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func TestObserver(t *testing.T) {
	rec := &recordingSender{}
	obs := NewObserver(rec)

	obs.Event(provisioning.Event{Type: provisioning.EventTaskStarted, Phase: "network"})
	obs.Event(provisioning.Event{Type: provisioning.EventTaskSucceeded, Phase: "network", Fields: map[string]string{"duration": "1.5s"}})
	obs.Event(provisioning.Event{Type: provisioning.EventTaskFailed, Phase: "compute", Message: "failed: boom"})
	obs.Event(provisioning.Event{Type: provisioning.EventRelease, Resource: "kafka", Fields: map[string]string{"action": "upgraded"}})
	obs.Event(provisioning.Event{Type: provisioning.EventPhaseStarted, Phase: "network"})
	obs.WithFields(map[string]string{"run": "x"}).Printf("hello %s", "world")

	if len(rec.msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d: %v", len(rec.msgs), rec.msgs)
	}
	if got := rec.msgs[1].(TaskMsg); got.State != TaskSucceeded || got.Duration != 1500*time.Millisecond {
		t.Errorf("unexpected success message %+v", got)
	}
	if got := rec.msgs[2].(TaskMsg); got.State != TaskFailed || got.Message != "failed: boom" {
		t.Errorf("unexpected failure message %+v", got)
	}
	if got := rec.msgs[3].(ReleaseMsg); got.Release != "kafka" || got.Action != "upgraded" {
		t.Errorf("unexpected release message %+v", got)
	}
	if got := rec.msgs[4].(LogMsg); got.Line != "hello world" {
		t.Errorf("unexpected log line %q", got.Line)
	}
}
