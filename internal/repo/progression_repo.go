// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for progression
// state and score history.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
//
// AdvanceStage is the only function in the codebase that writes the stage
// columns after creation. It performs a compare-and-set on stage_index so a
// transition can only ever move one step forward from the state the caller
// observed.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/dianabot-core/internal/domain"
)

// GetProgression fetches the progression row for userID, or ErrNotFound.
func GetProgression(ctx context.Context, db *gorm.DB, userID string) (*domain.UserProgression, error) {
	var p domain.UserProgression
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// EnsureProgression returns the progression row for userID, creating it at
// the first stage when absent. Concurrent creators converge on one row.
func EnsureProgression(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*domain.UserProgression, error) {
	p, err := GetProgression(ctx, db, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	first := domain.FirstStage()
	row := &domain.UserProgression{
		UserID:         userID,
		Stage:          first,
		StageIndex:     first.Index(),
		StageEnteredAt: now,
	}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return nil, err
	}
	return GetProgression(ctx, db, userID)
}

// AdvanceStage moves userID from stage `from` to its successor. It returns
// the new stage, ErrTerminalStage when `from` is the last stage, or
// ErrStaleStage when the stored stage is no longer `from`.
func AdvanceStage(ctx context.Context, db *gorm.DB, userID string, from domain.Stage, now time.Time) (domain.Stage, error) {
	next, ok := from.Next()
	if !ok {
		return from, ErrTerminalStage
	}
	res := db.WithContext(ctx).
		Model(&domain.UserProgression{}).
		Where("user_id = ? AND stage_index = ?", userID, from.Index()).
		Updates(map[string]any{
			"stage":            next,
			"stage_index":      next.Index(),
			"stage_entered_at": now,
			"updated_at":       now,
		})
	if res.Error != nil {
		return from, res.Error
	}
	if res.RowsAffected == 0 {
		return from, ErrStaleStage
	}
	return next, nil
}

// AppendScore inserts a score record. A record with the same
// (user_id, source_event_id) yields ErrDuplicate.
func AppendScore(ctx context.Context, db *gorm.DB, rec *domain.ScoreRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return translate(db.WithContext(ctx).Create(rec).Error)
}

// GetScoreBySource returns the score record produced by sourceEventID for
// userID, or ErrNotFound.
func GetScoreBySource(ctx context.Context, db *gorm.DB, userID, sourceEventID string) (*domain.ScoreRecord, error) {
	var rec domain.ScoreRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND source_event_id = ?", userID, sourceEventID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListScores returns the most recent `limit` score records for userID in
// chronological order (oldest first). limit <= 0 returns the full history.
func ListScores(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.ScoreRecord, error) {
	var out []domain.ScoreRecord
	q := db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
