// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the reward
// ledger: append-only entries plus the cached per-user running total.
//
// Error semantics:
//   - A second entry with the same (user_id, source_event_id) returns
//     ErrDuplicate.
//   - AddToBalance is a compare-and-set on the account version that also
//     refuses to take the balance below zero; it reports whether the row was
//     updated instead of returning an error for a lost race.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/dianabot-core/internal/domain"
)

// GetAccount returns the cached account for userID. Users without any entry
// get a zero-valued account (not an error).
func GetAccount(ctx context.Context, db *gorm.DB, userID string) (*domain.LedgerAccount, error) {
	var acc domain.LedgerAccount
	err := db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&acc).Error
	if err != nil {
		return nil, err
	}
	if acc.UserID == "" {
		acc.UserID = userID
	}
	return &acc, nil
}

// EnsureAccount creates a zero-balance account row for userID if missing.
func EnsureAccount(ctx context.Context, db *gorm.DB, userID string) error {
	acc := &domain.LedgerAccount{UserID: userID, UpdatedAt: time.Now().UTC()}
	return db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(acc).Error
}

// InsertEntry appends a ledger entry. The entry ID and CreatedAt are filled
// when empty.
func InsertEntry(ctx context.Context, db *gorm.DB, e *domain.LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return translate(db.WithContext(ctx).Create(e).Error)
}

// AddToBalance applies delta to userID's cached total when the stored
// version still equals expectVersion and the result stays non-negative.
// It returns false when no row matched.
func AddToBalance(ctx context.Context, db *gorm.DB, userID string, delta, expectVersion int64) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.LedgerAccount{}).
		Where("user_id = ? AND version = ? AND balance + ? >= 0", userID, expectVersion, delta).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", delta),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetEntryBySource returns the entry recorded for (userID, sourceEventID),
// or ErrNotFound.
func GetEntryBySource(ctx context.Context, db *gorm.DB, userID, sourceEventID string) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := db.WithContext(ctx).
		Where("user_id = ? AND source_event_id = ?", userID, sourceEventID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// SumEntries recomputes the balance from the entries table. It is the audit
// counterpart of the cached total.
func SumEntries(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE user_id = ?", userID).
		Scan(&total).Error
	return total, err
}

// CountEntries returns the number of entries recorded for userID.
func CountEntries(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.LedgerEntry{}).Where("user_id = ?", userID).Count(&total).Error
	return total, err
}

// ListEntriesPage returns a page of userID's entries, newest first.
func ListEntriesPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
