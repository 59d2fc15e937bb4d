package stream

import (
	"errors"
	"fmt"

	"github.com/Haoxincode/coursechat/internal/domain/answer"
)

// ErrAfterTerminal is returned when an event follows finish or error.
var ErrAfterTerminal = errors.New("event after terminal event")

// Reconciler rebuilds client state from an event stream: each data event
// replaces the slot keyed by (type, id).
type Reconciler struct {
	messageID string
	slots     map[Key]Event
	order     []Key
	finished  bool
	errText   string
	failed    bool
	applied   int
}

// NewReconciler returns an empty Reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{slots: make(map[Key]Event)}
}

// Apply folds one event into the state.
func (r *Reconciler) Apply(ev Event) error {
	if r.finished || r.failed {
		return fmt.Errorf("%w: %s", ErrAfterTerminal, ev.Type)
	}
	r.applied++

	switch {
	case ev.Type == TypeStart:
		r.messageID = ev.MessageID
	case ev.Type == TypeFinish:
		r.finished = true
	case ev.Type == TypeError:
		r.failed = true
		r.errText = ev.ErrorText
	case ev.IsData():
		k := ev.Key()
		if _, ok := r.slots[k]; !ok {
			r.order = append(r.order, k)
		}
		r.slots[k] = ev
	}
	return nil
}

// MessageID is the id announced by the start event.
func (r *Reconciler) MessageID() string { return r.messageID }

// Finished reports whether a finish event was seen.
func (r *Reconciler) Finished() bool { return r.finished }

// Err returns the error text, if the stream failed.
func (r *Reconciler) Err() (string, bool) { return r.errText, r.failed }

// Applied is the number of events folded so far.
func (r *Reconciler) Applied() int { return r.applied }

// Slots returns the reconciled data events in first-seen order.
func (r *Reconciler) Slots() []Event {
	out := make([]Event, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.slots[k])
	}
	return out
}

// Slot returns the latest event for a key.
func (r *Reconciler) Slot(kind, id string) (Event, bool) {
	ev, ok := r.slots[Key{Type: dataPrefix + kind, ID: id}]
	return ev, ok
}

// Response decodes the current main response payload.
func (r *Reconciler) Response() (answer.Response, bool, error) {
	ev, ok := r.Slot(KindResponse, ResponseID)
	if !ok {
		return answer.Response{}, false, nil
	}
	var resp answer.Response
	if err := ev.DecodeData(&resp); err != nil {
		return answer.Response{}, true, err
	}
	return resp, true, nil
}

// Metadata decodes the current metadata payload.
func (r *Reconciler) Metadata() (map[string]any, bool, error) {
	ev, ok := r.Slot(KindMetadata, MetadataID)
	if !ok {
		return nil, false, nil
	}
	var meta map[string]any
	if err := ev.DecodeData(&meta); err != nil {
		return nil, true, err
	}
	return meta, true, nil
}
