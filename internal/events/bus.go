package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrHandlerPanic wraps a panic recovered from a handler.
var ErrHandlerPanic = errors.New("handler panicked")

// ErrUnexpectedEvent is returned by typed handlers registered with On when
// they receive a variant other than the one they subscribed to.
var ErrUnexpectedEvent = errors.New("unexpected event type")

// Handler reacts to one event. Handlers with side effects must be idempotent
// on the event's IdempotencyKey: the bus does not deduplicate.
type Handler func(ctx context.Context, ev Event) (Outcome, error)

// Publisher is the narrow view of the bus that components publishing
// follow-up events depend on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) (*Report, error)
}

type subscription struct {
	name    string
	handler Handler
}

// Bus is an in-process typed publish/subscribe dispatcher. It is safe for
// concurrent use; Subscribe may be called while publishes are in flight.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Kind][]subscription
	workers int
	log     zerolog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithWorkers bounds how many handlers of one publish run concurrently.
// Values < 1 are ignored.
func WithWorkers(n int) Option {
	return func(b *Bus) {
		if n >= 1 {
			b.workers = n
		}
	}
}

// WithLogger sets the logger used for handler failures.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bus) { b.log = l }
}

// NewBus returns an empty bus. By default up to 4 handlers run concurrently.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:    make(map[Kind][]subscription),
		workers: 4,
		log:     log.Logger,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe registers h under name for events of kind. Multiple handlers per
// kind are allowed; they are invoked independently and in no defined order.
func (b *Bus) Subscribe(kind Kind, name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[kind] = append(b.subs[kind], subscription{name: name, handler: h})
}

// On registers a handler that only accepts the concrete variant T.
func On[T Event](b *Bus, name string, h func(ctx context.Context, ev T) (Outcome, error)) {
	var zero T
	b.Subscribe(zero.Kind(), name, func(ctx context.Context, ev Event) (Outcome, error) {
		t, ok := ev.(T)
		if !ok {
			return Outcome{}, fmt.Errorf("%w: %s got %T", ErrUnexpectedEvent, zero.Kind(), ev)
		}
		return h(ctx, t)
	})
}

// Subscribers returns the handler names registered for kind.
func (b *Bus) Subscribers(kind Kind) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.subs[kind]))
	for _, s := range b.subs[kind] {
		names = append(names, s.name)
	}
	return names
}

// Publish validates ev and delivers it to every handler subscribed to its
// kind, returning once all of them finished. A failing or panicking handler
// does not prevent delivery to the others; failures are collected in the
// report. The returned error is non-nil only for invalid events.
func (b *Bus) Publish(ctx context.Context, ev Event) (*Report, error) {
	if err := Validate(ev); err != nil {
		return nil, err
	}
	kind := ev.Kind()
	meta := ev.Meta()

	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[kind]...)
	b.mu.RUnlock()

	eventsPublished.WithLabelValues(string(kind)).Inc()

	report := &Report{Kind: kind, Key: meta.IdempotencyKey}
	if len(subs) == 0 {
		return report, nil
	}

	outcomes := make([]Outcome, len(subs))
	errs := make([]error, len(subs))

	var g errgroup.Group
	g.SetLimit(b.workers)
	for i, s := range subs {
		g.Go(func() error {
			start := time.Now()
			outcomes[i], errs[i] = invoke(ctx, s, ev)
			handlerDuration.WithLabelValues(string(kind), s.name).Observe(time.Since(start).Seconds())
			return nil
		})
	}
	_ = g.Wait()

	for i, s := range subs {
		if errs[i] != nil {
			handlerFailures.WithLabelValues(string(kind), s.name).Inc()
			b.log.Error().
				Err(errs[i]).
				Str("kind", string(kind)).
				Str("handler", s.name).
				Str("user_id", meta.UserID).
				Str("idempotency_key", meta.IdempotencyKey).
				Msg("event handler failed")
			report.Failures = append(report.Failures, HandlerError{Handler: s.name, Kind: kind, Err: errs[i]})
			continue
		}
		o := outcomes[i]
		if o.Handler == "" {
			o.Handler = s.name
		}
		report.Outcomes = append(report.Outcomes, o)
	}
	return report, nil
}

// invoke runs one handler, converting a panic into an error.
func invoke(ctx context.Context, s subscription, ev Event) (out Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()
	return s.handler(ctx, ev)
}
