// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for interaction
// receipts, which give the coordinator safe-replay semantics: a repeated
// interaction with the same key returns the stored result.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/dianabot-core/internal/domain"
)

// GetReceipt returns a non-expired receipt for (userID, key) or ErrNotFound.
func GetReceipt(ctx context.Context, db *gorm.DB, userID, key string, now time.Time) (*domain.InteractionReceipt, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.InteractionReceipt
	err := db.WithContext(ctx).
		Where("user_id = ? AND key = ? AND expires_at > ?", userID, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateReceipt inserts a receipt and returns ErrDuplicate on unique violation.
func CreateReceipt(ctx context.Context, db *gorm.DB, userID, key string, result []byte, ttl time.Duration) (*domain.InteractionReceipt, error) {
	now := time.Now().UTC()
	rec := &domain.InteractionReceipt{
		ID:        uuid.NewString(),
		UserID:    userID,
		Key:       key,
		Result:    result,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeReceipts deletes receipts that expired before now.
func PurgeReceipts(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.InteractionReceipt{})
	return res.RowsAffected, res.Error
}
