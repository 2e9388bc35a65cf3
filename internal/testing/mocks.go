package testing

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/dimo-network/k3sform/internal/platform/ssh"
	"github.com/dimo-network/k3sform/internal/provisioning"
)

// RecordingObserver keeps every event and log line. It is safe for
// concurrent use; derived observers share the parent's record.
type RecordingObserver struct {
	rec    *record
	fields map[string]string
}

type record struct {
	mu       sync.Mutex
	events   []provisioning.Event
	messages []string
}

var _ provisioning.Observer = (*RecordingObserver)(nil)

// NewRecordingObserver creates an empty recorder.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{rec: &record{}}
}

func (o *RecordingObserver) Printf(format string, v ...any) {
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	o.rec.messages = append(o.rec.messages, fmt.Sprintf(format, v...))
}

func (o *RecordingObserver) Event(event provisioning.Event) {
	if len(o.fields) > 0 {
		merged := maps.Clone(o.fields)
		maps.Copy(merged, event.Fields)
		event.Fields = merged
	}
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	o.rec.events = append(o.rec.events, event)
}

func (o *RecordingObserver) Progress(phase string, current, total int) {
	o.Event(provisioning.Event{
		Type:    provisioning.EventProgress,
		Phase:   phase,
		Message: fmt.Sprintf("%d/%d", current, total),
	})
}

func (o *RecordingObserver) WithFields(fields map[string]string) provisioning.Observer {
	merged := maps.Clone(o.fields)
	if merged == nil {
		merged = map[string]string{}
	}
	maps.Copy(merged, fields)
	return &RecordingObserver{rec: o.rec, fields: merged}
}

// Events returns a copy of the recorded events.
func (o *RecordingObserver) Events() []provisioning.Event {
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	return slices.Clone(o.rec.events)
}

// EventsOfType filters the recorded events.
func (o *RecordingObserver) EventsOfType(t provisioning.EventType) []provisioning.Event {
	var out []provisioning.Event
	for _, e := range o.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Messages returns the formatted Printf lines.
func (o *RecordingObserver) Messages() []string {
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	return slices.Clone(o.rec.messages)
}

// KubeconfigPath is where k3s writes its admin kubeconfig.
const KubeconfigPath = "/etc/rancher/k3s/k3s.yaml"

// FakeHost is an ssh.Executor that behaves like a fresh VM: the kubeconfig
// only exists once a command piping the k3s installer has run.
type FakeHost struct {
	// Kubeconfig is served after install. Defaults to Kubeconfig(6443).
	Kubeconfig string
	// FailInstall makes the installer exit non-zero.
	FailInstall bool

	mu        sync.Mutex
	installed bool
	commands  []string
}

var _ ssh.Executor = (*FakeHost)(nil)

// NewFakeHost returns a host without k3s.
func NewFakeHost() *FakeHost {
	return &FakeHost{Kubeconfig: Kubeconfig(6443)}
}

func (h *FakeHost) Execute(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, command)

	switch {
	case strings.Contains(command, "get.k3s.io"):
		if h.FailInstall {
			return "", &ssh.CommandError{
				Host: "fake", Command: command, ExitStatus: 1,
				Output: "[ERROR]  Download failed",
				Err:    fmt.Errorf("process exited with status 1"),
			}
		}
		h.installed = true
		return "[INFO]  systemd: Starting k3s\n", nil
	case strings.Contains(command, "cat "+KubeconfigPath):
		if !h.installed {
			output := "cat: " + KubeconfigPath + ": No such file or directory"
			return output, &ssh.CommandError{
				Host: "fake", Command: command, ExitStatus: 1, Output: output,
				Err: fmt.Errorf("process exited with status 1"),
			}
		}
		return h.Kubeconfig, nil
	default:
		return "", nil
	}
}

// Installed reports whether the installer has run.
func (h *FakeHost) Installed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.installed
}

// Commands returns every command executed so far.
func (h *FakeHost) Commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.commands)
}
