package provisioning

import (
	"fmt"
	"log"
	"maps"
	"slices"
	"strings"
	"time"
)

// Logger is the minimal printf-style logger accepted by the stage packages.
type Logger interface {
	Printf(format string, v ...any)
}

// Observer defines the interface for structured observability during an apply.
type Observer interface {
	Logger

	// Event emits a structured event
	Event(event Event)

	// Progress reports progress for a phase
	Progress(phase string, current, total int)

	// WithFields returns a new Observer with additional context fields
	WithFields(fields map[string]string) Observer
}

// Event represents a structured provisioning event.
type Event struct {
	Type      EventType         // Type of event
	Phase     string            // Phase or task name (e.g., "network", "release/kafka")
	Message   string            // Human-readable message
	Resource  string            // Resource name if applicable
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType represents the type of provisioning event.
type EventType string

const (
	EventPhaseStarted   EventType = "phase.started"
	EventPhaseCompleted EventType = "phase.completed"
	EventPhaseFailed    EventType = "phase.failed"

	EventResourceCreating EventType = "resource.creating"
	EventResourceCreated  EventType = "resource.created"
	EventResourceExists   EventType = "resource.exists"
	EventResourceFailed   EventType = "resource.failed"
	EventResourceDeleting EventType = "resource.deleting"
	EventResourceDeleted  EventType = "resource.deleted"

	// Task events mirror the dependency graph executor.
	EventTaskStarted   EventType = "task.started"
	EventTaskSucceeded EventType = "task.succeeded"
	EventTaskFailed    EventType = "task.failed"
	EventTaskSkipped   EventType = "task.skipped"

	// EventRelease carries the Helm action in the "action" field.
	EventRelease EventType = "release"

	EventValidationWarning EventType = "validation.warning"

	EventProgress EventType = "progress"
)

// IsFailure reports whether the event type marks a failure.
func (t EventType) IsFailure() bool {
	return t == EventPhaseFailed || t == EventResourceFailed || t == EventTaskFailed
}

// ConsoleObserver implements Observer on top of the standard log package.
type ConsoleObserver struct {
	logger        *log.Logger
	contextFields map[string]string
}

// NewConsoleObserver creates an observer writing to the default logger.
func NewConsoleObserver() *ConsoleObserver {
	return &ConsoleObserver{logger: log.Default(), contextFields: map[string]string{}}
}

// NewConsoleObserverWithLogger creates an observer writing to l.
func NewConsoleObserverWithLogger(l *log.Logger) *ConsoleObserver {
	return &ConsoleObserver{logger: l, contextFields: map[string]string{}}
}

// Printf implements Logger.
func (o *ConsoleObserver) Printf(format string, v ...any) {
	o.logger.Printf(format, v...)
}

// Event implements Observer.
func (o *ConsoleObserver) Event(event Event) {
	o.logger.Print(FormatEvent(o.merge(event)))
}

// Progress implements Observer.
func (o *ConsoleObserver) Progress(phase string, current, total int) {
	if total <= 0 {
		o.logger.Printf("[%s] Progress: %d/%d", phase, current, total)
		return
	}
	o.logger.Printf("[%s] Progress: %d/%d (%d%%)", phase, current, total, current*100/total)
}

// WithFields implements Observer.
func (o *ConsoleObserver) WithFields(fields map[string]string) Observer {
	merged := maps.Clone(o.contextFields)
	maps.Copy(merged, fields)
	return &ConsoleObserver{logger: o.logger, contextFields: merged}
}

func (o *ConsoleObserver) merge(event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	fields := maps.Clone(o.contextFields)
	maps.Copy(fields, event.Fields)
	event.Fields = fields
	return event
}

// FormatEvent renders an event as a single log line. Fields are sorted so
// the output is stable.
func FormatEvent(event Event) string {
	parts := []string{string(event.Type)}
	if event.Phase != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.Phase))
	}
	if event.Resource != "" {
		parts = append(parts, "resource="+event.Resource)
	}
	if event.Message != "" {
		parts = append(parts, event.Message)
	}
	if len(event.Fields) > 0 {
		keys := slices.Sorted(maps.Keys(event.Fields))
		fieldParts := make([]string, 0, len(keys))
		for _, k := range keys {
			fieldParts = append(fieldParts, k+"="+event.Fields[k])
		}
		parts = append(parts, "("+strings.Join(fieldParts, ", ")+")")
	}
	return strings.Join(parts, " ")
}

// Helper functions for common events

// LogPhaseStart logs a phase start event.
func LogPhaseStart(observer Observer, phase string) {
	observer.Event(Event{Type: EventPhaseStarted, Phase: phase, Message: "starting"})
}

// LogPhaseComplete logs a phase completion event.
func LogPhaseComplete(observer Observer, phase string, duration time.Duration) {
	observer.Event(Event{
		Type:    EventPhaseCompleted,
		Phase:   phase,
		Message: fmt.Sprintf("completed in %v", duration.Round(time.Millisecond)),
	})
}

// LogPhaseFailed logs a phase failure event.
func LogPhaseFailed(observer Observer, phase string, err error) {
	observer.Event(Event{Type: EventPhaseFailed, Phase: phase, Message: fmt.Sprintf("failed: %v", err)})
}

// LogResourceCreating logs a resource creation start event.
func LogResourceCreating(observer Observer, phase, resourceType, resourceName string) {
	observer.Event(Event{
		Type:     EventResourceCreating,
		Phase:    phase,
		Resource: resourceName,
		Message:  "creating " + resourceType,
		Fields:   map[string]string{"type": resourceType},
	})
}

// LogResourceCreated logs a successful resource creation event.
func LogResourceCreated(observer Observer, phase, resourceType, resourceName string, resourceID int64) {
	observer.Event(Event{
		Type:     EventResourceCreated,
		Phase:    phase,
		Resource: resourceName,
		Message:  resourceType + " created",
		Fields:   map[string]string{"type": resourceType, "id": fmt.Sprint(resourceID)},
	})
}

// LogResourceExists logs when a resource already exists.
func LogResourceExists(observer Observer, phase, resourceType, resourceName string, resourceID int64) {
	observer.Event(Event{
		Type:     EventResourceExists,
		Phase:    phase,
		Resource: resourceName,
		Message:  resourceType + " already exists",
		Fields:   map[string]string{"type": resourceType, "id": fmt.Sprint(resourceID)},
	})
}

// LogResourceDeleting logs a resource deletion start event.
func LogResourceDeleting(observer Observer, phase, resourceType, resourceName string) {
	observer.Event(Event{
		Type:     EventResourceDeleting,
		Phase:    phase,
		Resource: resourceName,
		Message:  "deleting " + resourceType,
		Fields:   map[string]string{"type": resourceType},
	})
}

// LogResourceDeleted logs a successful resource deletion event.
func LogResourceDeleted(observer Observer, phase, resourceType, resourceName string) {
	observer.Event(Event{
		Type:     EventResourceDeleted,
		Phase:    phase,
		Resource: resourceName,
		Message:  resourceType + " deleted",
		Fields:   map[string]string{"type": resourceType},
	})
}

// LogRelease logs the Helm action taken for a release.
func LogRelease(observer Observer, release, namespace, action string, revision int) {
	observer.Event(Event{
		Type:     EventRelease,
		Phase:    "release/" + release,
		Resource: release,
		Message:  action,
		Fields: map[string]string{
			"namespace": namespace,
			"action":    action,
			"revision":  fmt.Sprint(revision),
		},
	})
}

// Discard is an observer that drops everything.
type Discard struct{}

func (Discard) Printf(string, ...any)                   {}
func (Discard) Event(Event)                             {}
func (Discard) Progress(string, int, int)               {}
func (d Discard) WithFields(map[string]string) Observer { return d }

// Multi fans events out to several observers.
type Multi []Observer

func (m Multi) Printf(format string, v ...any) {
	for _, o := range m {
		o.Printf(format, v...)
	}
}

func (m Multi) Event(event Event) {
	for _, o := range m {
		o.Event(event)
	}
}

func (m Multi) Progress(phase string, current, total int) {
	for _, o := range m {
		o.Progress(phase, current, total)
	}
}

func (m Multi) WithFields(fields map[string]string) Observer {
	out := make(Multi, len(m))
	for i, o := range m {
		out[i] = o.WithFields(fields)
	}
	return out
}
