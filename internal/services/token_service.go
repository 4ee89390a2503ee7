// Package services – TokenService
//
// This file implements the access token issuer. Tokens are single-use and
// time-bounded; each resource tier has a requirement table entry (minimum
// stage, minimum balance, TTL).
//
// Semantics:
//   - Issue is idempotent: while an outstanding token exists for
//     (user, tier) it is returned instead of minting another. The partial
//     unique index ux_token_outstanding backs this up under races.
//   - Redeem is one conditional UPDATE, so exactly one concurrent redeemer
//     wins. Expiry is checked by the UPDATE itself; the sweep is bookkeeping.
//   - Credential wraps a token in an HS256 JWT so the boundary can hand out
//     an opaque invite string; RedeemCredential verifies it and redeems.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/dianabot-core/internal/domain"
	"github.com/tbourn/dianabot-core/internal/events"
	"github.com/tbourn/dianabot-core/internal/repo"
)

const credentialIssuer = "dianabot"

// TokenService issues and redeems access tokens.
type TokenService struct {
	DB       *gorm.DB
	Stages   StageReader
	Balances BalanceReader
	Bus      events.Publisher

	// Tiers is the requirement table; nil means domain.DefaultTierRules.
	Tiers []domain.TierRule

	// SigningKey signs credentials. Credential fails when it is empty.
	SigningKey []byte

	Now func() time.Time
}

// Redemption is the result of a successful redeem.
type Redemption struct {
	TokenID string `json:"token_id"`
	UserID  string `json:"user_id"`
	Tier    string `json:"tier"`
}

type credentialClaims struct {
	jwt.RegisteredClaims
	Tier string `json:"tier"`
}

// Tier returns the requirement entry for name.
func (s *TokenService) Tier(name string) (domain.TierRule, bool) {
	for _, t := range s.tiers() {
		if t.Name == name {
			return t, true
		}
	}
	return domain.TierRule{}, false
}

// Issue returns the outstanding token for (userID, tier), minting one when
// none exists. It fails with ErrUnknownTier or ErrPreconditionNotMet.
func (s *TokenService) Issue(ctx context.Context, userID, tier string) (*domain.AccessToken, error) {
	tr := otel.Tracer("services/TokenService")
	ctx, span := tr.Start(ctx, "Issue",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("token.tier", tier),
		),
	)
	defer span.End()

	tok, created, err := s.issue(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	if created {
		s.announce(ctx, tok)
	}
	return tok, nil
}

func (s *TokenService) issue(ctx context.Context, userID, tier string) (*domain.AccessToken, bool, error) {
	rule, ok := s.Tier(tier)
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	if err := s.checkPreconditions(ctx, userID, rule); err != nil {
		return nil, false, err
	}

	now := s.now()
	if _, err := repo.ExpireOverdueFor(ctx, s.DB, userID, tier, now); err != nil {
		return nil, false, err
	}
	if tok, err := repo.FindOutstanding(ctx, s.DB, userID, tier, now); err == nil {
		return tok, false, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, err
	}

	tok := &domain.AccessToken{
		UserID:    userID,
		Tier:      tier,
		Status:    domain.TokenIssued,
		IssuedAt:  now,
		ExpiresAt: now.Add(rule.TTL),
	}
	if err := repo.CreateToken(ctx, s.DB, tok); err != nil {
		if !errors.Is(err, repo.ErrDuplicate) {
			return nil, false, err
		}
		// A concurrent issuer minted it first.
		existing, ferr := repo.FindOutstanding(ctx, s.DB, userID, tier, now)
		if ferr != nil {
			return nil, false, ferr
		}
		return existing, false, nil
	}
	return tok, true, nil
}

func (s *TokenService) checkPreconditions(ctx context.Context, userID string, rule domain.TierRule) error {
	if s.Stages != nil && rule.MinStage != "" {
		stage, err := s.Stages.Stage(ctx, userID)
		if err != nil {
			return err
		}
		if !stage.AtLeast(rule.MinStage) {
			return fmt.Errorf("%w: %s requires stage %s, user is at %s", ErrPreconditionNotMet, rule.Name, rule.MinStage, stage)
		}
	}
	if s.Balances != nil && rule.MinBalance > 0 {
		bal, err := s.Balances.Balance(ctx, userID)
		if err != nil {
			return err
		}
		if bal < rule.MinBalance {
			return fmt.Errorf("%w: %s requires a balance of %d, user has %d", ErrPreconditionNotMet, rule.Name, rule.MinBalance, bal)
		}
	}
	return nil
}

// Redeem marks tokenID as redeemed and returns what it granted.
func (s *TokenService) Redeem(ctx context.Context, tokenID string) (*Redemption, error) {
	tr := otel.Tracer("services/TokenService")
	ctx, span := tr.Start(ctx, "Redeem", trace.WithAttributes(attribute.String("token.id", tokenID)))
	defer span.End()

	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil, ErrTokenNotFound
	}
	now := s.now()
	won, err := repo.MarkRedeemed(ctx, s.DB, tokenID, now)
	if err != nil {
		return nil, err
	}
	tok, err := repo.GetToken(ctx, s.DB, tokenID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, classifyLoser(tok, now)
	}

	red := &Redemption{TokenID: tok.ID, UserID: tok.UserID, Tier: tok.Tier}
	if ev, err := events.NewTokenRedeemed(events.Envelope{
		UserID:         tok.UserID,
		IdempotencyKey: "token:" + tok.ID + ":redeemed",
		Timestamp:      now,
	}, tok.ID, tok.Tier); err == nil {
		s.publish(ctx, ev)
	}
	return red, nil
}

// classifyLoser explains why the conditional update did not match.
func classifyLoser(tok *domain.AccessToken, now time.Time) error {
	switch {
	case tok.Status == domain.TokenRedeemed || tok.RedeemedAt != nil:
		return ErrTokenAlreadyRedeemed
	case tok.Status == domain.TokenExpired || now.After(tok.ExpiresAt):
		return ErrTokenExpired
	}
	return ErrTokenAlreadyRedeemed
}

// Credential signs tok into an HS256 JWT carrying jti, sub, tier and exp.
func (s *TokenService) Credential(tok *domain.AccessToken) (string, error) {
	if len(s.SigningKey) == 0 {
		return "", errors.New("token signing key is not configured")
	}
	claims := credentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tok.ID,
			Subject:   tok.UserID,
			Issuer:    credentialIssuer,
			IssuedAt:  jwt.NewNumericDate(tok.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(tok.ExpiresAt),
		},
		Tier: tok.Tier,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.SigningKey)
}

// RedeemCredential verifies credential and redeems the token it names.
func (s *TokenService) RedeemCredential(ctx context.Context, credential string) (*Redemption, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" || len(s.SigningKey) == 0 {
		return nil, ErrInvalidCredential
	}
	var claims credentialClaims
	_, err := jwt.ParseWithClaims(credential, &claims, func(*jwt.Token) (any, error) {
		return s.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || claims.ID == "" || claims.Issuer != credentialIssuer {
		return nil, ErrInvalidCredential
	}
	tok, err := repo.GetToken(ctx, s.DB, claims.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	if tok.UserID != claims.Subject || tok.Tier != claims.Tier {
		return nil, ErrInvalidCredential
	}
	// Expiry is decided by the stored token, checked atomically in Redeem.
	return s.Redeem(ctx, tok.ID)
}

// ExpireSweep marks every overdue issued token as expired.
func (s *TokenService) ExpireSweep(ctx context.Context, now time.Time) (int64, error) {
	return repo.ExpireOverdue(ctx, s.DB, now.UTC())
}

// List returns every token held by userID, newest first.
func (s *TokenService) List(ctx context.Context, userID string) ([]domain.AccessToken, error) {
	return repo.ListTokens(ctx, s.DB, userID)
}

// Available reports whether the token store answers.
func (s *TokenService) Available(ctx context.Context) bool {
	return s.DB != nil && repo.Ping(s.DB.WithContext(ctx)) == nil
}

// HandleStageAdvanced auto-issues every tier unlocked by entering ev.To.
func (s *TokenService) HandleStageAdvanced(ctx context.Context, ev events.StageAdvanced) (events.Outcome, error) {
	var out events.Outcome
	for _, rule := range s.tiers() {
		if !rule.AutoIssue || rule.MinStage != ev.To {
			continue
		}
		tok, created, err := s.issue(ctx, ev.UserID, rule.Name)
		if errors.Is(err, ErrPreconditionNotMet) {
			out.Messages = append(out.Messages, fmt.Sprintf("%s is not unlocked yet.", rule.Name))
			continue
		}
		if err != nil {
			return events.Outcome{}, err
		}
		out.TierUnlocked = tok.Tier
		out.Messages = append(out.Messages, fmt.Sprintf("You unlocked %s access.", tok.Tier))
		if created {
			out.Followup = s.announce(ctx, tok)
		}
	}
	return out, nil
}

// announce publishes token.issued for a freshly minted token.
func (s *TokenService) announce(ctx context.Context, tok *domain.AccessToken) *events.Report {
	ev, err := events.NewTokenIssued(events.Envelope{
		UserID:         tok.UserID,
		IdempotencyKey: "token:" + tok.ID + ":issued",
		Timestamp:      tok.IssuedAt,
	}, tok.ID, tok.Tier, tok.ExpiresAt)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("token_id", tok.ID).Msg("build token.issued")
		return nil
	}
	return s.publish(ctx, ev)
}

func (s *TokenService) publish(ctx context.Context, ev events.Event) *events.Report {
	if s.Bus == nil {
		return nil
	}
	rep, err := s.Bus.Publish(ctx, ev)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("kind", string(ev.Kind())).Msg("publish token event")
	}
	return rep
}

func (s *TokenService) tiers() []domain.TierRule {
	if s.Tiers == nil {
		return domain.DefaultTierRules()
	}
	return s.Tiers
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
