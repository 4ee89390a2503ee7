// Package services – ProgressionService
//
// This file implements the progression engine: a per-user state machine over
// domain.Stages. Each interaction is scored with the scorer registered for the
// user's *stored* current stage (event metadata is never trusted for that),
// recorded in the score history, and may advance the user by exactly one
// stage when the score reaches the stage threshold and the balance covers the
// stage cost.
//
// Idempotency: the score record for (user, idempotency key) is the processed
// marker. A replayed interaction finds it and returns without side effects.
// The stage cost is charged through the Wallet with a key derived from the
// interaction, so a retry after a partial failure never pays twice.
//
// Observability: public entry points open OpenTelemetry spans; follow-up
// events (stage.advanced / stage.validation_failed) are published only after
// the state change committed.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/dianabot-core/internal/domain"
	"github.com/tbourn/dianabot-core/internal/events"
	"github.com/tbourn/dianabot-core/internal/repo"
	"github.com/tbourn/dianabot-core/internal/scoring"
)

const defaultHistoryDepth = 10

// StageReader is the read-only view of progression the token issuer needs.
type StageReader interface {
	Stage(ctx context.Context, userID string) (domain.Stage, error)
}

// ProgressionService decides and executes stage transitions.
type ProgressionService struct {
	DB      *gorm.DB
	Wallet  Wallet
	Bus     events.Publisher
	Scorers *scoring.Registry

	// Rules maps a stage to the requirements for leaving it; nil means
	// domain.DefaultStageRules. Stages without an entry use a zero threshold
	// and no cost.
	Rules map[domain.Stage]domain.StageRule

	// HistoryDepth bounds how many previous same-stage scores are handed to
	// the scorer (default 10).
	HistoryDepth int

	// Now is the clock; defaults to time.Now in UTC.
	Now func() time.Time
}

// Evaluation is the result of scoring one interaction.
type Evaluation struct {
	Stage     domain.Stage
	Score     float64
	Passed    bool
	Advanced  bool
	NewStage  domain.Stage
	Rationale string
	Replayed  bool
}

// HandleInteraction is the bus handler for interaction.submitted.
func (s *ProgressionService) HandleInteraction(ctx context.Context, ev events.InteractionSubmitted) (events.Outcome, error) {
	eval, rep, err := s.Evaluate(ctx, ev)
	if err != nil {
		return events.Outcome{}, err
	}
	out := events.Outcome{
		Stage:        eval.NewStage,
		StageChanged: eval.Advanced,
		Followup:     rep,
	}
	if eval.Replayed && !eval.Advanced {
		return out, nil
	}
	switch {
	case eval.Advanced:
		to, _ := eval.Stage.Next()
		out.Messages = []string{fmt.Sprintf("You reached the %s stage.", to)}
	case eval.Stage.Terminal():
		out.Messages = []string{"You are already at the final stage."}
	default:
		out.Messages = []string{eval.Rationale}
	}
	if !eval.Advanced && eval.Passed {
		// Good enough score, but the stage cost could not be paid.
		out.Denial = ErrInsufficientBalance
	}
	return out, nil
}

// Evaluate scores ev against the user's current stage and applies the
// transition rule. The returned report belongs to the follow-up event, if
// one was published.
func (s *ProgressionService) Evaluate(ctx context.Context, ev events.InteractionSubmitted) (*Evaluation, *events.Report, error) {
	tr := otel.Tracer("services/ProgressionService")
	ctx, span := tr.Start(ctx, "Evaluate",
		trace.WithAttributes(
			attribute.String("user.id", ev.UserID),
			attribute.String("event.key", ev.IdempotencyKey),
		),
	)
	defer span.End()

	now := s.now()
	state, err := repo.EnsureProgression(ctx, s.DB, ev.UserID, now)
	if err != nil {
		return nil, nil, err
	}

	if rec, err := repo.GetScoreBySource(ctx, s.DB, ev.UserID, ev.IdempotencyKey); err == nil {
		return s.replay(ctx, state, ev, rec, now)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, nil, err
	}

	stage := state.Stage
	history, err := s.stageHistory(ctx, ev.UserID, stage)
	if err != nil {
		return nil, nil, err
	}
	verdict := s.scorer(stage).Score(scoring.Input{
		Interaction: ev.Interaction,
		Text:        ev.Text,
		Latency:     ev.Latency,
	}, history)
	score := scoring.Clamp(verdict.Score)
	span.SetAttributes(attribute.String("stage", string(stage)), attribute.Float64("score", score))

	eval := &Evaluation{Stage: stage, NewStage: stage, Score: score, Rationale: verdict.Rationale}
	rec := &domain.ScoreRecord{
		UserID:        ev.UserID,
		Stage:         stage,
		Score:         score,
		Rationale:     verdict.Rationale,
		SourceEventID: ev.IdempotencyKey,
		CreatedAt:     now,
	}

	if stage.Terminal() {
		if err := repo.AppendScore(ctx, s.DB, rec); err != nil {
			return s.onAppendErr(ctx, state, ev, err)
		}
		return eval, nil, nil
	}

	rule := s.rule(stage)
	eval.Passed = score >= rule.Threshold
	if eval.Passed {
		advanced, err := s.tryAdvance(ctx, ev, rule, rec, eval, now)
		if err != nil {
			return nil, nil, err
		}
		if advanced {
			adv, err := events.NewStageAdvanced(s.envelope(ev, "advanced", now), stage, eval.NewStage, score)
			if err != nil {
				return nil, nil, err
			}
			rep, err := s.publish(ctx, adv)
			return eval, rep, err
		}
		if eval.Replayed {
			return eval, nil, nil
		}
	}

	rec.Passed = eval.Passed
	rec.Rationale = eval.Rationale
	if err := repo.AppendScore(ctx, s.DB, rec); err != nil {
		return s.onAppendErr(ctx, state, ev, err)
	}
	failed, err := events.NewStageValidationFailed(s.envelope(ev, "failed", now), stage, score, eval.Rationale)
	if err != nil {
		return nil, nil, err
	}
	rep, err := s.publish(ctx, failed)
	return eval, rep, err
}

// tryAdvance pays the stage cost and performs the transition. It returns
// false (with eval updated) when the balance does not cover the cost.
//
// The cost is charged under a key derived from the event and the stage, so a
// retry after a failed transition reuses the earlier payment.
func (s *ProgressionService) tryAdvance(ctx context.Context, ev events.InteractionSubmitted, rule domain.StageRule, rec *domain.ScoreRecord, eval *Evaluation, now time.Time) (bool, error) {
	stage := eval.Stage
	costKey := ev.IdempotencyKey + ":cost:" + string(stage)

	if rule.Cost > 0 {
		if _, err := s.Wallet.Charge(ctx, ev.UserID, rule.Cost, "stage cost: "+string(stage), costKey); err != nil {
			if !errors.Is(err, ErrInsufficientBalance) {
				return false, err
			}
			bal, berr := s.Wallet.Balance(ctx, ev.UserID)
			if berr != nil {
				return false, berr
			}
			eval.Rationale = fmt.Sprintf("balance %d is below the %d needed to leave %s", bal, rule.Cost, stage)
			return false, nil
		}
	}

	rec.Passed, rec.Advanced = true, true
	var next domain.Stage
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.AppendScore(ctx, tx, rec); err != nil {
			return err
		}
		n, err := repo.AdvanceStage(ctx, tx, ev.UserID, stage, now)
		if err != nil {
			return err
		}
		next = n
		return nil
	})
	switch {
	case err == nil:
		eval.Advanced, eval.NewStage = true, next
		return true, nil
	case errors.Is(err, repo.ErrDuplicate):
		// A concurrent delivery of the same event won and used the payment.
		eval.Replayed = true
		return false, nil
	case errors.Is(err, repo.ErrStaleStage):
		// The user left this stage elsewhere; the payment will never be used.
		if rule.Cost > 0 {
			if _, rerr := s.Wallet.Credit(ctx, ev.UserID, rule.Cost, "stage cost refund: "+string(stage), costKey+":refund"); rerr != nil && !errors.Is(rerr, ErrDuplicateCredit) {
				zerolog.Ctx(ctx).Error().Err(rerr).Str("user_id", ev.UserID).Msg("stage cost refund failed")
			}
		}
		return false, fmt.Errorf("advance from %s: %w", stage, err)
	}
	return false, err
}

// State returns the user's progression. Unseen users are reported at the
// first stage without persisting anything.
func (s *ProgressionService) State(ctx context.Context, userID string) (*domain.UserProgression, error) {
	p, err := repo.GetProgression(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		first := domain.FirstStage()
		return &domain.UserProgression{UserID: userID, Stage: first, StageIndex: first.Index()}, nil
	}
	return p, err
}

// Stage implements StageReader.
func (s *ProgressionService) Stage(ctx context.Context, userID string) (domain.Stage, error) {
	p, err := s.State(ctx, userID)
	if err != nil {
		return "", err
	}
	return p.Stage, nil
}

// History returns up to limit score records, oldest first.
func (s *ProgressionService) History(ctx context.Context, userID string, limit int) ([]domain.ScoreRecord, error) {
	return repo.ListScores(ctx, s.DB, userID, limit)
}

// Available reports whether the progression store answers.
func (s *ProgressionService) Available(ctx context.Context) bool {
	return s.DB != nil && repo.Ping(s.DB.WithContext(ctx)) == nil
}

func (s *ProgressionService) stageHistory(ctx context.Context, userID string, stage domain.Stage) ([]float64, error) {
	depth := s.HistoryDepth
	if depth <= 0 {
		depth = defaultHistoryDepth
	}
	recs, err := repo.ListScores(ctx, s.DB, userID, depth)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(recs))
	for _, r := range recs {
		if r.Stage == stage {
			out = append(out, r.Score)
		}
	}
	return out, nil
}

// onAppendErr turns a lost race on the processed marker into a replay.
func (s *ProgressionService) onAppendErr(ctx context.Context, state *domain.UserProgression, ev events.InteractionSubmitted, err error) (*Evaluation, *events.Report, error) {
	if !errors.Is(err, repo.ErrDuplicate) {
		return nil, nil, err
	}
	rec, gerr := repo.GetScoreBySource(ctx, s.DB, ev.UserID, ev.IdempotencyKey)
	if gerr != nil {
		return nil, nil, gerr
	}
	return s.replay(ctx, state, ev, rec, s.now())
}

// replay returns the recorded verdict. A recorded advance is announced again
// under the same key so stage.advanced handlers that failed on the first
// delivery get another chance; those handlers are idempotent.
func (s *ProgressionService) replay(ctx context.Context, state *domain.UserProgression, ev events.InteractionSubmitted, rec *domain.ScoreRecord, now time.Time) (*Evaluation, *events.Report, error) {
	eval := replayed(state, rec)
	if !rec.Advanced {
		return eval, nil, nil
	}
	to, ok := rec.Stage.Next()
	if !ok {
		return eval, nil, nil
	}
	adv, err := events.NewStageAdvanced(s.envelope(ev, "advanced", now), rec.Stage, to, rec.Score)
	if err != nil {
		return nil, nil, err
	}
	rep, err := s.publish(ctx, adv)
	return eval, rep, err
}

func replayed(state *domain.UserProgression, rec *domain.ScoreRecord) *Evaluation {
	return &Evaluation{
		Stage:     rec.Stage,
		NewStage:  state.Stage,
		Score:     rec.Score,
		Passed:    rec.Passed,
		Advanced:  rec.Advanced,
		Rationale: rec.Rationale,
		Replayed:  true,
	}
}

func (s *ProgressionService) publish(ctx context.Context, ev events.Event) (*events.Report, error) {
	if s.Bus == nil {
		return nil, nil
	}
	return s.Bus.Publish(ctx, ev)
}

func (s *ProgressionService) envelope(ev events.InteractionSubmitted, suffix string, now time.Time) events.Envelope {
	return events.Envelope{
		UserID:         ev.UserID,
		IdempotencyKey: ev.IdempotencyKey + ":" + suffix,
		Timestamp:      now,
	}
}

var defaultScorers = scoring.DefaultRegistry()

func (s *ProgressionService) scorer(stage domain.Stage) scoring.Scorer {
	if s.Scorers == nil {
		return defaultScorers.For(stage)
	}
	return s.Scorers.For(stage)
}

func (s *ProgressionService) rule(stage domain.Stage) domain.StageRule {
	if s.Rules == nil {
		return domain.DefaultStageRules()[stage]
	}
	return s.Rules[stage]
}

func (s *ProgressionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
