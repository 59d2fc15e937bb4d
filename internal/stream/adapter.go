// Package stream turns a single-pass source of answer snapshots into a
// rate-limited UI message event stream.
//
// Every partial snapshot is re-emitted in full under a fixed id, so receivers
// reconcile by replacing state instead of concatenating text. Partials that
// arrive faster than the throttle interval are dropped; the final snapshot is
// always delivered.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Haoxincode/coursechat/internal/domain/answer"
	"github.com/Haoxincode/coursechat/internal/domain/idmap"
)

// DefaultThrottle is the minimum gap between two emitted partials.
const DefaultThrottle = 50 * time.Millisecond

// UnknownErrorText is sent when a failure carries no usable message.
const UnknownErrorText = "Unknown error occurred"

// Source is a single-pass producer of answer snapshots.
// Next returns ok=false once the sequence is exhausted; Final may only be
// called after that and returns the complete answer.
type Source interface {
	Next(ctx context.Context) (snapshot answer.Answer, ok bool, err error)
	Final(ctx context.Context) (answer.Answer, error)
}

// Sink receives outbound events in order.
type Sink interface {
	Write(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Write implements Sink.
func (f SinkFunc) Write(ctx context.Context, ev Event) error { return f(ctx, ev) }

// StartFunc is notified once the start event is out. Its failures are ignored.
type StartFunc func(ctx context.Context) error

// CompleteFunc receives the raw final answer and returns extra metadata.
// A failure is reported to the client as a stream error.
type CompleteFunc func(ctx context.Context, final answer.Answer) (map[string]any, error)

// State is the lifecycle phase of one Run.
type State string

const (
	StateIdle       State = "idle"
	StateStreaming  State = "streaming"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateErrored    State = "errored"
)

const (
	evStart   = "start"
	evExhaust = "exhaust"
	evFinish  = "finish"
	evFail    = "fail"
)

// Adapter holds the configuration of the stream conversion. It keeps no
// per-stream state and may be reused across requests.
type Adapter struct {
	throttle   time.Duration
	onStart    StartFunc
	onComplete CompleteFunc
	docs       answer.DocResolver
	clock      func() time.Time
	newID      func() string
	logger     *zap.Logger
	events     *prometheus.CounterVec
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithThrottle sets the minimum gap between emitted partials. Zero disables throttling.
func WithThrottle(d time.Duration) Option {
	return func(a *Adapter) {
		if d < 0 {
			d = 0
		}
		a.throttle = d
	}
}

// WithOnStart registers a fire-and-forget start callback.
func WithOnStart(fn StartFunc) Option {
	return func(a *Adapter) { a.onStart = fn }
}

// WithOnComplete registers the completion callback whose result is merged into metadata.
func WithOnComplete(fn CompleteFunc) Option {
	return func(a *Adapter) { a.onComplete = fn }
}

// WithDocIDMapper resolves citation placeholders back to document ids.
func WithDocIDMapper(m *idmap.Mapper[string]) Option {
	return func(a *Adapter) {
		if m == nil {
			a.docs = nil
			return
		}
		a.docs = m
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.clock = now }
}

// WithMessageID overrides the message id generator.
func WithMessageID(fn func() string) Option {
	return func(a *Adapter) { a.newID = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithEventCounter counts emitted events by type, plus "dropped" partials.
// The counter vec must have a single "type" label.
func WithEventCounter(c *prometheus.CounterVec) Option {
	return func(a *Adapter) { a.events = c }
}

// NewAdapter creates an Adapter with a 50ms throttle by default.
func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		throttle: DefaultThrottle,
		clock:    time.Now,
		newID:    func() string { return "msg-" + uuid.NewString() },
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Throttle returns the configured throttle interval.
func (a *Adapter) Throttle() time.Duration { return a.throttle }

// Run consumes src and writes the event stream to sink.
//
// Failures of the source or of the completion callback are turned into a
// single error event; Run then returns the terminal state and a nil error.
// A non-nil error means the sink itself failed and the stream was abandoned.
func (a *Adapter) Run(ctx context.Context, src Source, sink Sink) (State, error) {
	r := &run{
		Adapter:   a,
		src:       src,
		sink:      sink,
		messageID: a.newID(),
	}
	r.machine = r.newMachine()

	err := r.execute(ctx)
	return State(r.machine.Current()), err
}

// run is the state of a single stream. It is discarded when Run returns.
type run struct {
	*Adapter
	src       Source
	sink      Sink
	machine   *fsm.FSM
	messageID string
	lastEmit  time.Time
	emitted   int
	dropped   int
}

func (r *run) newMachine() *fsm.FSM {
	return fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: evStart, Src: []string{string(StateIdle)}, Dst: string(StateStreaming)},
			{Name: evExhaust, Src: []string{string(StateStreaming)}, Dst: string(StateFinalizing)},
			{Name: evFinish, Src: []string{string(StateFinalizing)}, Dst: string(StateDone)},
			{Name: evFail, Src: []string{string(StateStreaming), string(StateFinalizing)}, Dst: string(StateErrored)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				r.logger.Debug("Stream state changed",
					zap.String("message_id", r.messageID),
					zap.String("from", e.Src),
					zap.String("to", e.Dst),
				)
			},
		},
	)
}

func (r *run) execute(ctx context.Context) error {
	// The throttle window opens with the stream, so a throttle longer than the
	// whole generation yields only the final emission.
	r.lastEmit = r.clock()

	if err := r.emit(ctx, Start(r.messageID)); err != nil {
		return err
	}
	r.transition(ctx, evStart)
	r.notifyStart(ctx)

	for {
		partial, ok, err := r.next(ctx)
		if err != nil {
			return r.fail(ctx, err)
		}
		if !ok {
			break
		}

		now := r.clock()
		if now.Sub(r.lastEmit) < r.throttle {
			r.dropped++
			r.count("dropped")
			continue
		}
		if err := r.emit(ctx, DataReplace(KindResponse, ResponseID, partial.Normalize(r.docs))); err != nil {
			return err
		}
		r.lastEmit = now
		r.emitted++
	}

	r.transition(ctx, evExhaust)

	final, err := r.final(ctx)
	if err != nil {
		return r.fail(ctx, err)
	}
	// Never throttled: the client must always end up with the complete answer.
	if err := r.emit(ctx, DataReplace(KindResponse, ResponseID, final.Normalize(r.docs))); err != nil {
		return err
	}

	meta, err := r.complete(ctx, final)
	if err != nil {
		return r.fail(ctx, err)
	}
	if err := r.emit(ctx, DataReplace(KindMetadata, MetadataID, meta)); err != nil {
		return err
	}
	if err := r.emit(ctx, Finish()); err != nil {
		return err
	}
	r.transition(ctx, evFinish)

	r.logger.Debug("Stream finished",
		zap.String("message_id", r.messageID),
		zap.Int("partials_emitted", r.emitted),
		zap.Int("partials_dropped", r.dropped),
	)
	return nil
}

func (r *run) next(ctx context.Context) (a answer.Answer, ok bool, err error) {
	defer recoverInto(&err)
	return r.src.Next(ctx)
}

func (r *run) final(ctx context.Context) (a answer.Answer, err error) {
	defer recoverInto(&err)
	return r.src.Final(ctx)
}

func (r *run) complete(ctx context.Context, final answer.Answer) (meta map[string]any, err error) {
	meta = map[string]any{}
	if r.onComplete != nil {
		extra, cbErr := r.callComplete(ctx, final)
		if cbErr != nil {
			return nil, cbErr
		}
		for k, v := range extra {
			meta[k] = v
		}
	}
	meta["isComplete"] = true
	return meta, nil
}

func (r *run) callComplete(ctx context.Context, final answer.Answer) (extra map[string]any, err error) {
	defer recoverInto(&err)
	return r.onComplete(ctx, final)
}

func (r *run) notifyStart(ctx context.Context) {
	if r.onStart == nil {
		return
	}
	err := func() (err error) {
		defer recoverInto(&err)
		return r.onStart(ctx)
	}()
	if err != nil {
		r.logger.Warn("Stream start callback failed", zap.String("message_id", r.messageID), zap.Error(err))
	}
}

// fail emits the terminal error event. It returns an error only when the sink fails.
func (r *run) fail(ctx context.Context, cause error) error {
	r.transition(ctx, evFail)
	r.logger.Error("Stream failed",
		zap.String("message_id", r.messageID),
		zap.Int("partials_emitted", r.emitted),
		zap.Error(cause),
	)
	return r.emit(ctx, Error(errorText(cause)))
}

func (r *run) emit(ctx context.Context, ev Event) error {
	if err := r.sink.Write(ctx, ev); err != nil {
		r.logger.Warn("Stream sink write failed",
			zap.String("message_id", r.messageID),
			zap.String("event", ev.Type),
			zap.Error(err),
		)
		return fmt.Errorf("write %s event: %w", ev.Type, err)
	}
	r.count(ev.Type)
	return nil
}

func (r *run) transition(ctx context.Context, event string) {
	if err := r.machine.Event(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Warn("Invalid stream transition",
			zap.String("event", event),
			zap.String("state", r.machine.Current()),
			zap.Error(err),
		)
	}
}

func (r *run) count(label string) {
	if r.events != nil {
		r.events.WithLabelValues(label).Inc()
	}
}

// panicError carries a recovered panic value.
type panicError struct {
	value any
}

func (p *panicError) Error() string {
	if err, ok := p.value.(error); ok {
		return err.Error()
	}
	return UnknownErrorText
}

func (p *panicError) Unwrap() error {
	err, _ := p.value.(error)
	return err
}

func recoverInto(err *error) {
	if v := recover(); v != nil {
		*err = &panicError{value: v}
	}
}

func errorText(err error) string {
	if err == nil {
		return UnknownErrorText
	}
	var pe *panicError
	if errors.As(err, &pe) && pe.Unwrap() == nil {
		return UnknownErrorText
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return UnknownErrorText
}
