package provisioning

import (
	"fmt"
	"time"
)

// TaskHooks turns graph executor callbacks into observer events and metrics.
// Either dependency may be nil.
type TaskHooks struct {
	Observer Observer
	Metrics  *Metrics
}

func (h TaskHooks) TaskStarted(name string) {
	if h.Observer != nil {
		h.Observer.Event(Event{Type: EventTaskStarted, Phase: name, Message: "started", Timestamp: time.Now()})
	}
}

func (h TaskHooks) TaskFinished(name string, d time.Duration, err error) {
	if h.Metrics != nil {
		h.Metrics.ObserveTask(name, d, err)
	}
	if h.Observer == nil {
		return
	}
	ev := Event{
		Type:      EventTaskSucceeded,
		Phase:     name,
		Message:   fmt.Sprintf("completed in %v", d.Round(time.Millisecond)),
		Timestamp: time.Now(),
		Fields:    map[string]string{"duration": d.Round(time.Millisecond).String()},
	}
	if err != nil {
		ev.Type = EventTaskFailed
		ev.Message = fmt.Sprintf("failed: %v", err)
	}
	h.Observer.Event(ev)
}

func (h TaskHooks) TaskSkipped(name string) {
	if h.Metrics != nil {
		h.Metrics.ObserveSkipped(name)
	}
	if h.Observer != nil {
		h.Observer.Event(Event{Type: EventTaskSkipped, Phase: name, Message: "skipped", Timestamp: time.Now()})
	}
}
