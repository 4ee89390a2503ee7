// Package services – Coordinator
//
// This file implements the composition root of the core. The Coordinator is
// the only type that knows the ledger, the progression engine, and the token
// issuer; they never reference each other and react to one another only
// through the event bus.
//
// Flow for one interaction:
//  1. Validate and derive the idempotency key (client key, else a hash of
//     user, payload, and arrival-time bucket).
//  2. Serialize per user; return the stored receipt for replays.
//  3. Publish reward.earned, then interaction.submitted. Two sequential
//     publishes make "credit before stage check" explicit.
//  4. Fold every outcome (including nested follow-ups) into one Result and
//     store it as a receipt when no handler failed.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/dianabot-core/internal/domain"
	"github.com/tbourn/dianabot-core/internal/events"
	"github.com/tbourn/dianabot-core/internal/repo"
	"github.com/tbourn/dianabot-core/internal/sysutil"
)

const (
	defaultBucket     = time.Minute
	defaultReceiptTTL = 24 * time.Hour
)

// Interaction kinds with a default reward.
const (
	InteractionMessage  = "message"
	InteractionReaction = "reaction"
	InteractionCheckin  = "checkin"
)

// DefaultRewards is the amount credited per interaction kind.
func DefaultRewards() map[string]int64 {
	return map[string]int64{
		InteractionMessage:  5,
		InteractionReaction: 2,
		InteractionCheckin:  10,
	}
}

// Interaction is what the transport adapter hands to the coordinator.
type Interaction struct {
	UserID    string
	Kind      string
	Text      string
	Latency   time.Duration
	Timestamp time.Time

	// Payload is the raw boundary payload used for key derivation. When nil,
	// Kind and Text stand in.
	Payload []byte

	// IdempotencyKey, when set, is used verbatim instead of the derived key.
	IdempotencyKey string
}

// Result is the aggregated response rendered by the boundary.
type Result struct {
	IdempotencyKey string       `json:"idempotency_key"`
	StageChanged   bool         `json:"stage_changed"`
	Stage          domain.Stage `json:"stage"`
	NewBalance     int64        `json:"new_balance"`
	Messages       []string     `json:"messages"`
	TierUnlocked   *string      `json:"tier_unlocked"`
	Denials        []string     `json:"denials,omitempty"`
	Replayed       bool         `json:"replayed"`
}

// TokenGrant is an issued token plus its signed credential (empty when no
// signing key is configured).
type TokenGrant struct {
	Token      *domain.AccessToken `json:"token"`
	Credential string              `json:"credential,omitempty"`
}

// CoordinatorConfig tunes key derivation, receipts and rewards.
type CoordinatorConfig struct {
	// Bucket is the arrival-time window folded into derived keys, so a
	// transport retry within the window maps to the same key.
	Bucket     time.Duration
	ReceiptTTL time.Duration
	Rewards    map[string]int64
	Now        func() time.Time
}

// Coordinator wires the components through the bus and serves the boundary.
type Coordinator struct {
	db          *gorm.DB
	bus         *events.Bus
	ledger      *LedgerService
	progression *ProgressionService
	tokens      *TokenService
	cfg         CoordinatorConfig
	locks       sysutil.KeyedMutex
}

// NewCoordinator subscribes every component to the bus and fills the narrow
// dependencies they were constructed without.
func NewCoordinator(db *gorm.DB, bus *events.Bus, ledger *LedgerService, progression *ProgressionService, tokens *TokenService, cfg CoordinatorConfig) *Coordinator {
	if cfg.Bucket <= 0 {
		cfg.Bucket = defaultBucket
	}
	if cfg.ReceiptTTL <= 0 {
		cfg.ReceiptTTL = defaultReceiptTTL
	}
	if cfg.Rewards == nil {
		cfg.Rewards = DefaultRewards()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if progression.Wallet == nil {
		progression.Wallet = ledger
	}
	if progression.Bus == nil {
		progression.Bus = bus
	}
	if tokens.Stages == nil {
		tokens.Stages = progression
	}
	if tokens.Balances == nil {
		tokens.Balances = ledger
	}
	if tokens.Bus == nil {
		tokens.Bus = bus
	}

	events.On(bus, "ledger", ledger.HandleRewardEarned)
	events.On(bus, "progression", progression.HandleInteraction)
	events.On(bus, "tokens", tokens.HandleStageAdvanced)

	return &Coordinator{
		db:          db,
		bus:         bus,
		ledger:      ledger,
		progression: progression,
		tokens:      tokens,
		cfg:         cfg,
	}
}

// DeriveKey returns the hex SHA-256 of (userID, payload, timestamp bucket).
func DeriveKey(userID string, payload []byte, ts time.Time, bucket time.Duration) string {
	slot := ts.UnixNano()
	if bucket > 0 {
		slot /= int64(bucket)
	}
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write(payload)
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(slot, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// Key returns the idempotency key used for in.
func (c *Coordinator) Key(in Interaction) string {
	if k := strings.TrimSpace(in.IdempotencyKey); k != "" {
		return k
	}
	payload := in.Payload
	if payload == nil {
		payload = []byte(in.Kind + "\x00" + in.Text)
	}
	return DeriveKey(in.UserID, payload, in.Timestamp, c.cfg.Bucket)
}

// Handle processes one interaction end to end.
func (c *Coordinator) Handle(ctx context.Context, in Interaction) (*Result, error) {
	if err := validateInteraction(in); err != nil {
		return nil, err
	}
	key := c.Key(in)

	tr := otel.Tracer("services/Coordinator")
	ctx, span := tr.Start(ctx, "Handle",
		trace.WithAttributes(
			attribute.String("user.id", in.UserID),
			attribute.String("interaction.kind", in.Kind),
			attribute.String("event.key", key),
		),
	)
	defer span.End()

	unlock := c.locks.Lock(in.UserID)
	defer unlock()

	if res, err := c.replay(ctx, in.UserID, key); err != nil || res != nil {
		return res, err
	}
	if !c.ledger.Available(ctx) || !c.progression.Available(ctx) {
		return nil, ErrUnavailable
	}

	var reports []*events.Report
	if amount := c.cfg.Rewards[in.Kind]; amount > 0 {
		ev, err := events.NewRewardEarned(c.envelope(in, key, "reward"), amount, "interaction: "+in.Kind)
		if err != nil {
			return nil, err
		}
		rep, err := c.bus.Publish(ctx, ev)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}

	ev, err := events.NewInteractionSubmitted(c.envelope(in, key, "progress"), in.Kind, in.Text, in.Latency)
	if err != nil {
		return nil, err
	}
	rep, err := c.bus.Publish(ctx, ev)
	if err != nil {
		return nil, err
	}
	reports = append(reports, rep)

	res := aggregate(key, reports)
	for _, r := range reports {
		if ferr := r.Err(); ferr != nil {
			ctxLogger(ctx).Error().Err(ferr).Str("user_id", in.UserID).Str("idempotency_key", key).Msg("interaction handlers failed")
			return nil, fmt.Errorf("interaction %s: %w", key, ferr)
		}
	}

	if res.NewBalance, err = c.ledger.Balance(ctx, in.UserID); err != nil {
		return nil, err
	}
	if res.Stage == "" {
		if res.Stage, err = c.progression.Stage(ctx, in.UserID); err != nil {
			return nil, err
		}
	}

	c.storeReceipt(ctx, in.UserID, key, res)
	return res, nil
}

// IssueToken issues (or returns the outstanding) token for tier.
func (c *Coordinator) IssueToken(ctx context.Context, userID, tier string) (*TokenGrant, error) {
	if !c.tokens.Available(ctx) {
		return nil, ErrUnavailable
	}
	tok, err := c.tokens.Issue(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	grant := &TokenGrant{Token: tok}
	if len(c.tokens.SigningKey) > 0 {
		if grant.Credential, err = c.tokens.Credential(tok); err != nil {
			return nil, err
		}
	}
	return grant, nil
}

// RedeemToken redeems by token ID.
func (c *Coordinator) RedeemToken(ctx context.Context, tokenID string) (*Redemption, error) {
	if !c.tokens.Available(ctx) {
		return nil, ErrUnavailable
	}
	return c.tokens.Redeem(ctx, tokenID)
}

// RedeemCredential redeems by signed credential.
func (c *Coordinator) RedeemCredential(ctx context.Context, credential string) (*Redemption, error) {
	if !c.tokens.Available(ctx) {
		return nil, ErrUnavailable
	}
	return c.tokens.RedeemCredential(ctx, credential)
}

// Sweep expires overdue tokens and purges stale receipts.
func (c *Coordinator) Sweep(ctx context.Context) (expired, purged int64, err error) {
	now := c.cfg.Now().UTC()
	if expired, err = c.tokens.ExpireSweep(ctx, now); err != nil {
		return 0, 0, err
	}
	purged, err = repo.PurgeReceipts(ctx, c.db, now)
	return expired, purged, err
}

// Ledger, Progression and Tokens expose the components for read endpoints.
func (c *Coordinator) Ledger() *LedgerService            { return c.ledger }
func (c *Coordinator) Progression() *ProgressionService { return c.progression }
func (c *Coordinator) Tokens() *TokenService            { return c.tokens }

func (c *Coordinator) replay(ctx context.Context, userID, key string) (*Result, error) {
	rec, err := repo.GetReceipt(ctx, c.db, userID, key, c.cfg.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var res Result
	if err := json.Unmarshal(rec.Result, &res); err != nil {
		return nil, fmt.Errorf("decode receipt %s: %w", key, err)
	}
	res.Replayed = true
	return &res, nil
}

func (c *Coordinator) storeReceipt(ctx context.Context, userID, key string, res *Result) {
	body, err := json.Marshal(res)
	if err != nil {
		ctxLogger(ctx).Error().Err(err).Msg("encode receipt")
		return
	}
	if _, err := repo.CreateReceipt(ctx, c.db, userID, key, body, c.cfg.ReceiptTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
		// The effects are committed and idempotent; a missing receipt only
		// means a replay re-runs handlers as no-ops.
		ctxLogger(ctx).Warn().Err(err).Str("idempotency_key", key).Msg("store receipt")
	}
}

func (c *Coordinator) envelope(in Interaction, key, suffix string) events.Envelope {
	return events.Envelope{
		UserID:         in.UserID,
		IdempotencyKey: key + ":" + suffix,
		Timestamp:      in.Timestamp.UTC(),
	}
}

func validateInteraction(in Interaction) error {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidInteraction)
	case strings.TrimSpace(in.Kind) == "":
		return fmt.Errorf("%w: kind is required", ErrInvalidInteraction)
	case in.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", ErrInvalidInteraction)
	case in.Latency < 0:
		return fmt.Errorf("%w: latency must not be negative", ErrInvalidInteraction)
	}
	return nil
}

// aggregate folds every outcome into a Result in delivery order.
func aggregate(key string, reports []*events.Report) *Result {
	res := &Result{IdempotencyKey: key, Messages: []string{}}
	for _, rep := range reports {
		rep.Walk(func(o events.Outcome) {
			res.Messages = append(res.Messages, o.Messages...)
			if o.StageChanged {
				res.StageChanged = true
			}
			if o.Stage != "" {
				res.Stage = o.Stage
			}
			if o.TierUnlocked != "" {
				tier := o.TierUnlocked
				res.TierUnlocked = &tier
			}
			if o.Denial != nil {
				res.Denials = append(res.Denials, o.Denial.Error())
			}
		})
	}
	return res
}

func ctxLogger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
