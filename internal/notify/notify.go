// Package notify republishes selected bus events to external observers
// (analytics, the messaging adapter, channel admins) over Redis pub/sub or
// RabbitMQ. Delivery is best effort: a broker outage is logged and counted
// but never fails the interaction that produced the event.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/dianabot-core/internal/events"
)

// Notification is the wire body sent to every publisher.
type Notification struct {
	Kind   events.Kind  `json:"kind"`
	Event  events.Event `json:"event"`
	SentAt time.Time    `json:"sent_at"`
}

// Encode renders n as JSON.
func (n Notification) Encode() ([]byte, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode %s notification: %w", n.Kind, err)
	}
	return body, nil
}

// Publisher delivers encoded notifications to one external system.
type Publisher interface {
	io.Closer
	Name() string
	Available(ctx context.Context) bool
	Publish(ctx context.Context, n Notification) error
}

// Kinds forwarded by default.
var DefaultKinds = []events.Kind{
	events.KindStageAdvanced,
	events.KindTokenIssued,
	events.KindTokenRedeemed,
}

// Forwarder fans bus events out to publishers.
type Forwarder struct {
	Publishers []Publisher
	Log        *zerolog.Logger
	Now        func() time.Time
}

// NewForwarder returns a forwarder over the non-nil publishers.
func NewForwarder(pubs ...Publisher) *Forwarder {
	f := &Forwarder{}
	for _, p := range pubs {
		if p != nil {
			f.Publishers = append(f.Publishers, p)
		}
	}
	return f
}

// Attach subscribes the forwarder to kinds (DefaultKinds when empty).
func (f *Forwarder) Attach(bus *events.Bus, kinds ...events.Kind) {
	if len(kinds) == 0 {
		kinds = DefaultKinds
	}
	for _, k := range kinds {
		bus.Subscribe(k, "notify", f.Handle)
	}
}

// Handle forwards ev to every available publisher. Publisher errors are
// logged and counted; the returned outcome carries no messages.
func (f *Forwarder) Handle(ctx context.Context, ev events.Event) (events.Outcome, error) {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	n := Notification{Kind: ev.Kind(), Event: ev, SentAt: now().UTC()}

	var errs []error
	for _, p := range f.Publishers {
		if !p.Available(ctx) {
			published.WithLabelValues(p.Name(), string(n.Kind), "skipped").Inc()
			continue
		}
		if err := p.Publish(ctx, n); err != nil {
			published.WithLabelValues(p.Name(), string(n.Kind), "error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		published.WithLabelValues(p.Name(), string(n.Kind), "ok").Inc()
	}
	if err := errors.Join(errs...); err != nil {
		f.logger().Warn().Err(err).
			Str("kind", string(n.Kind)).
			Str("user_id", ev.Meta().UserID).
			Str("idempotency_key", ev.Meta().IdempotencyKey).
			Msg("notification not delivered")
	}
	return events.Outcome{}, nil
}

// Close closes every publisher.
func (f *Forwarder) Close() error {
	var errs []error
	for _, p := range f.Publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Forwarder) logger() *zerolog.Logger {
	if f.Log != nil {
		return f.Log
	}
	return &log.Logger
}
