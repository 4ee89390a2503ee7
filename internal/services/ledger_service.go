// Package services – LedgerService
//
// This file implements the reward ledger. Every balance change is an
// append-only entry plus a compare-and-set update of the cached running total,
// both in one transaction. The CAS refuses to take the balance below zero, so
// the non-negative invariant holds even when debits race; a lost race rolls
// the transaction back and retries from a fresh read.
//
// Idempotency: entries carrying a source event ID are unique per user, so a
// replayed credit (or stage-cost charge) can never move the balance twice.
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/dianabot-core/internal/domain"
	"github.com/tbourn/dianabot-core/internal/events"
	"github.com/tbourn/dianabot-core/internal/repo"
	"github.com/tbourn/dianabot-core/internal/utils"
)

const defaultLedgerRetries = 5

// errStaleAccount signals a lost CAS inside one attempt.
var errStaleAccount = errors.New("stale ledger account")

// LedgerService owns the per-user currency balance.
type LedgerService struct {
	DB *gorm.DB

	// MaxRetries bounds optimistic retries per operation (default 5).
	MaxRetries int
}

// BalanceReader is the read-only view of the ledger other components need.
type BalanceReader interface {
	Balance(ctx context.Context, userID string) (int64, error)
}

// Wallet is what the progression engine needs to pay (and refund) stage
// costs.
type Wallet interface {
	BalanceReader
	Charge(ctx context.Context, userID string, delta int64, reason, sourceEventID string) (int64, error)
	Credit(ctx context.Context, userID string, delta int64, reason, sourceEventID string) (int64, error)
}

// Credit adds delta to userID's balance and returns the new balance.
// A second credit with the same sourceEventID returns ErrDuplicateCredit
// together with the unchanged balance.
func (s *LedgerService) Credit(ctx context.Context, userID string, delta int64, reason, sourceEventID string) (int64, error) {
	ctx, span := s.start(ctx, "Credit", userID, delta)
	defer span.End()

	if delta <= 0 {
		return 0, ErrInvalidAmount
	}
	bal, dup, err := s.apply(ctx, userID, delta, reason, sourceEventID)
	if err != nil {
		return bal, err
	}
	if dup {
		return bal, ErrDuplicateCredit
	}
	return bal, nil
}

// Debit removes delta from userID's balance. It returns
// ErrInsufficientBalance, leaving state unchanged, when delta exceeds it.
func (s *LedgerService) Debit(ctx context.Context, userID string, delta int64, reason string) (int64, error) {
	ctx, span := s.start(ctx, "Debit", userID, delta)
	defer span.End()

	if delta <= 0 {
		return 0, ErrInvalidAmount
	}
	bal, _, err := s.apply(ctx, userID, -delta, reason, "")
	return bal, err
}

// Charge is an idempotent debit keyed on sourceEventID: a replay returns the
// current balance without debiting again. A zero delta is a no-op.
func (s *LedgerService) Charge(ctx context.Context, userID string, delta int64, reason, sourceEventID string) (int64, error) {
	ctx, span := s.start(ctx, "Charge", userID, delta)
	defer span.End()

	if delta < 0 {
		return 0, ErrInvalidAmount
	}
	if delta == 0 {
		return s.Balance(ctx, userID)
	}
	bal, _, err := s.apply(ctx, userID, -delta, reason, sourceEventID)
	return bal, err
}

// Balance returns the cached running total for userID.
func (s *LedgerService) Balance(ctx context.Context, userID string) (int64, error) {
	acc, err := repo.GetAccount(ctx, s.DB, userID)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// Entries returns a page of userID's entries (newest first) and the total
// entry count.
func (s *LedgerService) Entries(ctx context.Context, userID string, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	tr := otel.Tracer("services/LedgerService")
	ctx, span := tr.Start(ctx, "Entries",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	p := utils.NewPage(page, pageSize)
	total, err := repo.CountEntries(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.LedgerEntry{}, 0, nil
	}
	items, err := repo.ListEntriesPage(ctx, s.DB, userID, p.Offset(), p.Size)
	return items, total, err
}

// Available reports whether the ledger store answers.
func (s *LedgerService) Available(ctx context.Context) bool {
	return s.DB != nil && repo.Ping(s.DB.WithContext(ctx)) == nil
}

// HandleRewardEarned is the bus handler crediting reward events. A replayed
// event is an idempotent no-op.
func (s *LedgerService) HandleRewardEarned(ctx context.Context, ev events.RewardEarned) (events.Outcome, error) {
	bal, err := s.Credit(ctx, ev.UserID, ev.Amount, ev.Reason, ev.IdempotencyKey)
	switch {
	case errors.Is(err, ErrDuplicateCredit):
		return events.Outcome{Balance: &bal}, nil
	case err != nil:
		return events.Outcome{}, err
	}
	return events.Outcome{Balance: &bal}, nil
}

// apply runs one balance change with optimistic retry. dup reports that the
// source event was already applied (balance is then the current one).
func (s *LedgerService) apply(ctx context.Context, userID string, delta int64, reason, sourceEventID string) (balance int64, dup bool, err error) {
	var src *string
	if sourceEventID != "" {
		src = &sourceEventID
	}
	retries := s.MaxRetries
	if retries <= 0 {
		retries = defaultLedgerRetries
	}

	type applied struct {
		balance int64
		dup     bool
	}
	attempt := 0
	res, err := backoff.Retry(ctx, func() (applied, error) {
		attempt++
		var out applied
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repo.EnsureAccount(ctx, tx, userID); err != nil {
				return err
			}
			acc, err := repo.GetAccount(ctx, tx, userID)
			if err != nil {
				return err
			}
			out.balance = acc.Balance

			if src != nil {
				if _, err := repo.GetEntryBySource(ctx, tx, userID, *src); err == nil {
					out.dup = true
					return nil
				} else if !errors.Is(err, repo.ErrNotFound) {
					return err
				}
			}
			if delta > 0 && acc.Balance > math.MaxInt64-delta {
				return fmt.Errorf("%w: balance would overflow", ErrInvalidAmount)
			}
			if acc.Balance+delta < 0 {
				return ErrInsufficientBalance
			}

			entry := &domain.LedgerEntry{
				UserID:        userID,
				Delta:         delta,
				Reason:        reason,
				SourceEventID: src,
				CreatedAt:     time.Now().UTC(),
			}
			if err := repo.InsertEntry(ctx, tx, entry); err != nil {
				if errors.Is(err, repo.ErrDuplicate) {
					out.dup = true
					return nil
				}
				return err
			}
			ok, err := repo.AddToBalance(ctx, tx, userID, delta, acc.Version)
			if err != nil {
				return err
			}
			if !ok {
				return errStaleAccount
			}
			out.balance = acc.Balance + delta
			return nil
		})
		if errors.Is(err, errStaleAccount) || isBusy(err) {
			zerolog.Ctx(ctx).Debug().Str("user_id", userID).Int("attempt", attempt).Msg("ledger retry")
			return out, err
		}
		if err != nil {
			return out, backoff.Permanent(err)
		}
		return out, nil
	},
		backoff.WithBackOff(s.retryBackOff()),
		backoff.WithMaxTries(uint(retries)),
	)

	var perm *backoff.PermanentError
	switch {
	case errors.As(err, &perm):
		return res.balance, false, perm.Err
	case errors.Is(err, errStaleAccount) || isBusy(err):
		return res.balance, false, ErrLedgerContention
	}
	return res.balance, res.dup, err
}

// retryBackOff spaces optimistic retries with a short jittered delay.
func (s *LedgerService) retryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxInterval = 50 * time.Millisecond
	return b
}

func (s *LedgerService) start(ctx context.Context, op, userID string, delta int64) (context.Context, trace.Span) {
	tr := otel.Tracer("services/LedgerService")
	return tr.Start(ctx, op,
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int64("ledger.delta", delta),
		),
	)
}

// isBusy detects SQLite writer contention, which is safe to retry because the
// failed transaction was rolled back.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}
