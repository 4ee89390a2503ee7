// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for access tokens.
//
// Redemption is a single conditional UPDATE: a token moves to "redeemed" only
// if it is still "issued", unredeemed, and not past its expiry. The row count
// tells the caller whether it won; losers then read the row to classify why.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/dianabot-core/internal/domain"
)

// CreateToken inserts an issued token. A second outstanding token for the
// same (user_id, tier) violates ux_token_outstanding and yields ErrDuplicate.
func CreateToken(ctx context.Context, db *gorm.DB, t *domain.AccessToken) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.TokenIssued
	}
	return translate(db.WithContext(ctx).Create(t).Error)
}

// GetToken fetches a token by ID, or ErrNotFound.
func GetToken(ctx context.Context, db *gorm.DB, id string) (*domain.AccessToken, error) {
	var t domain.AccessToken
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// FindOutstanding returns the issued, unexpired token for (userID, tier) at
// now, or ErrNotFound.
func FindOutstanding(ctx context.Context, db *gorm.DB, userID, tier string, now time.Time) (*domain.AccessToken, error) {
	var t domain.AccessToken
	err := db.WithContext(ctx).
		Where("user_id = ? AND tier = ? AND status = ? AND redeemed_at IS NULL AND expires_at >= ?",
			userID, tier, domain.TokenIssued, now).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTokens returns every token held by userID, newest first.
func ListTokens(ctx context.Context, db *gorm.DB, userID string) ([]domain.AccessToken, error) {
	var out []domain.AccessToken
	err := db.WithContext(ctx).Where("user_id = ?", userID).Order("issued_at DESC, id DESC").Find(&out).Error
	return out, err
}

// MarkRedeemed atomically flips an outstanding token to redeemed. It returns
// true only for the single caller whose update matched.
func MarkRedeemed(ctx context.Context, db *gorm.DB, id string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.AccessToken{}).
		Where("id = ? AND status = ? AND redeemed_at IS NULL AND expires_at >= ?", id, domain.TokenIssued, now).
		Updates(map[string]any{
			"status":      domain.TokenRedeemed,
			"redeemed_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ExpireOverdue marks every issued token whose expiry lies before now as
// expired and returns how many rows changed.
func ExpireOverdue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.AccessToken{}).
		Where("status = ? AND expires_at < ?", domain.TokenIssued, now).
		Update("status", domain.TokenExpired)
	return res.RowsAffected, res.Error
}

// ExpireOverdueFor is ExpireOverdue scoped to one (userID, tier) pair. The
// issuer runs it before minting so a stale row cannot block the partial
// unique index.
func ExpireOverdueFor(ctx context.Context, db *gorm.DB, userID, tier string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.AccessToken{}).
		Where("user_id = ? AND tier = ? AND status = ? AND expires_at < ?", userID, tier, domain.TokenIssued, now).
		Update("status", domain.TokenExpired)
	return res.RowsAffected, res.Error
}
