// Package events defines the closed set of events exchanged between the
// progression, ledger, and token components, and the in-process Bus that
// delivers them.
//
// Every event embeds an Envelope carrying the fields all handlers rely on
// (user, idempotency key, timestamp). Variants are plain value types and are
// validated by their constructors; Bus.Publish validates again so a
// hand-built literal cannot slip through with missing fields.
package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tbourn/dianabot-core/internal/domain"
)

// Kind names an event variant. It is also the subscription key.
type Kind string

const (
	KindRewardEarned          Kind = "reward.earned"
	KindInteractionSubmitted  Kind = "interaction.submitted"
	KindStageAdvanced         Kind = "stage.advanced"
	KindStageValidationFailed Kind = "stage.validation_failed"
	KindTokenIssued           Kind = "token.issued"
	KindTokenRedeemed         Kind = "token.redeemed"
)

// ErrInvalidEvent is returned when an event is missing required fields.
var ErrInvalidEvent = errors.New("invalid event")

// Envelope holds the fields shared by every event. IdempotencyKey is the
// event's identity: replays with the same key must not double-apply effects.
type Envelope struct {
	UserID         string    `json:"user_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	Timestamp      time.Time `json:"timestamp"`
}

// Meta returns the envelope itself; embedding it gives every variant the
// method required by Event.
func (e Envelope) Meta() Envelope { return e }

func (e Envelope) validate() error {
	switch {
	case strings.TrimSpace(e.UserID) == "":
		return invalid("user_id is required")
	case strings.TrimSpace(e.IdempotencyKey) == "":
		return invalid("idempotency_key is required")
	case e.Timestamp.IsZero():
		return invalid("timestamp is required")
	}
	return nil
}

// Event is implemented by the variants in this package only.
type Event interface {
	Kind() Kind
	Meta() Envelope
	validate() error
}

// Validate reports whether ev carries every field its kind requires.
func Validate(ev Event) error {
	if ev == nil {
		return invalid("event is nil")
	}
	if err := ev.Meta().validate(); err != nil {
		return err
	}
	return ev.validate()
}

func invalid(msg string) error { return fmt.Errorf("%w: %s", ErrInvalidEvent, msg) }

// RewardEarned asks the ledger to credit Amount to the user.
type RewardEarned struct {
	Envelope
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (RewardEarned) Kind() Kind { return KindRewardEarned }

func (e RewardEarned) validate() error {
	if e.Amount <= 0 {
		return invalid("reward amount must be positive")
	}
	if strings.TrimSpace(e.Reason) == "" {
		return invalid("reward reason is required")
	}
	return nil
}

// NewRewardEarned builds a validated RewardEarned event.
func NewRewardEarned(env Envelope, amount int64, reason string) (RewardEarned, error) {
	ev := RewardEarned{Envelope: env, Amount: amount, Reason: reason}
	return ev, Validate(ev)
}

// InteractionSubmitted carries the signal the progression engine scores.
type InteractionSubmitted struct {
	Envelope
	Interaction string        `json:"interaction"`
	Text        string        `json:"text,omitempty"`
	Latency     time.Duration `json:"latency,omitempty"`
}

func (InteractionSubmitted) Kind() Kind { return KindInteractionSubmitted }

func (e InteractionSubmitted) validate() error {
	if strings.TrimSpace(e.Interaction) == "" {
		return invalid("interaction kind is required")
	}
	if e.Latency < 0 {
		return invalid("latency must not be negative")
	}
	return nil
}

// NewInteractionSubmitted builds a validated InteractionSubmitted event.
func NewInteractionSubmitted(env Envelope, interaction, text string, latency time.Duration) (InteractionSubmitted, error) {
	ev := InteractionSubmitted{Envelope: env, Interaction: interaction, Text: text, Latency: latency}
	return ev, Validate(ev)
}

// StageAdvanced is published once per successful transition.
type StageAdvanced struct {
	Envelope
	From  domain.Stage `json:"from"`
	To    domain.Stage `json:"to"`
	Score float64      `json:"score"`
}

func (StageAdvanced) Kind() Kind { return KindStageAdvanced }

func (e StageAdvanced) validate() error {
	next, ok := e.From.Next()
	if !ok || next != e.To {
		return invalid(fmt.Sprintf("stage transition %q -> %q is not a single forward step", e.From, e.To))
	}
	return nil
}

// NewStageAdvanced builds a validated StageAdvanced event.
func NewStageAdvanced(env Envelope, from, to domain.Stage, score float64) (StageAdvanced, error) {
	ev := StageAdvanced{Envelope: env, From: from, To: to, Score: score}
	return ev, Validate(ev)
}

// StageValidationFailed is published when a scored interaction did not
// advance the user. Rationale is suitable for tailored feedback.
type StageValidationFailed struct {
	Envelope
	Stage     domain.Stage `json:"stage"`
	Score     float64      `json:"score"`
	Rationale string       `json:"rationale"`
}

func (StageValidationFailed) Kind() Kind { return KindStageValidationFailed }

func (e StageValidationFailed) validate() error {
	if !e.Stage.Valid() {
		return invalid("stage is unknown")
	}
	return nil
}

// NewStageValidationFailed builds a validated StageValidationFailed event.
func NewStageValidationFailed(env Envelope, stage domain.Stage, score float64, rationale string) (StageValidationFailed, error) {
	ev := StageValidationFailed{Envelope: env, Stage: stage, Score: score, Rationale: rationale}
	return ev, Validate(ev)
}

// TokenIssued is published when a new access token is minted.
type TokenIssued struct {
	Envelope
	TokenID   string    `json:"token_id"`
	Tier      string    `json:"tier"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (TokenIssued) Kind() Kind { return KindTokenIssued }

func (e TokenIssued) validate() error {
	if e.TokenID == "" || e.Tier == "" {
		return invalid("token_id and tier are required")
	}
	if e.ExpiresAt.IsZero() {
		return invalid("expires_at is required")
	}
	return nil
}

// NewTokenIssued builds a validated TokenIssued event.
func NewTokenIssued(env Envelope, tokenID, tier string, expiresAt time.Time) (TokenIssued, error) {
	ev := TokenIssued{Envelope: env, TokenID: tokenID, Tier: tier, ExpiresAt: expiresAt}
	return ev, Validate(ev)
}

// TokenRedeemed is published after a successful redemption.
type TokenRedeemed struct {
	Envelope
	TokenID string `json:"token_id"`
	Tier    string `json:"tier"`
}

func (TokenRedeemed) Kind() Kind { return KindTokenRedeemed }

func (e TokenRedeemed) validate() error {
	if e.TokenID == "" || e.Tier == "" {
		return invalid("token_id and tier are required")
	}
	return nil
}

// NewTokenRedeemed builds a validated TokenRedeemed event.
func NewTokenRedeemed(env Envelope, tokenID, tier string) (TokenRedeemed, error) {
	ev := TokenRedeemed{Envelope: env, TokenID: tokenID, Tier: tier}
	return ev, Validate(ev)
}
