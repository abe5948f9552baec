// internal/events/recorder.go
package events

import "sync"

// Recorder is a Publisher that keeps every event in memory. The scenario
// runner and tests read the journal back.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	next   Publisher
}

var _ Publisher = (*Recorder)(nil)

// NewRecorder creates a recorder. If next is non-nil every event is also
// forwarded to it.
func NewRecorder(next Publisher) *Recorder {
	return &Recorder{next: next}
}

// Publish appends the event and forwards it.
func (r *Recorder) Publish(event Event) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()

	if r.next != nil {
		return r.next.Publish(event)
	}
	return nil
}

// Events returns a copy of the journal.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the journal.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
