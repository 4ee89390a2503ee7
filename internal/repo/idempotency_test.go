package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/dianabot-core/internal/domain"
)

func newRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// A fresh in-memory database per test run; closed when the test ends.
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection serializes writers and keeps the shared-cache DB alive.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestGetReceipt_BlankKey_ReturnsNotFound(t *testing.T) {
	db := newRepoDB(t, &domain.InteractionReceipt{})
	rec, err := GetReceipt(context.Background(), db, "u1", "   ", time.Now().UTC())
	if rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for blank key, got (%v, %v)", rec, err)
	}
}

func TestGetReceipt_ExpiredOrMissing_ReturnsNotFound(t *testing.T) {
	db := newRepoDB(t, &domain.InteractionReceipt{})
	now := time.Now().UTC()

	exp := &domain.InteractionReceipt{
		ID:        "expired",
		UserID:    "u1",
		Key:       "k1",
		Result:    []byte(`{}`),
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	if err := db.Create(exp).Error; err != nil {
		t.Fatalf("seed expired: %v", err)
	}

	if rec, err := GetReceipt(context.Background(), db, "u1", "k1", now); rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for expired, got (%v, %v)", rec, err)
	}
	if rec, err := GetReceipt(context.Background(), db, "u1", "missing", now); rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for missing, got (%v, %v)", rec, err)
	}
}

func TestCreateReceipt_RoundTrip_Duplicate_AndPurge(t *testing.T) {
	db := newRepoDB(t, &domain.InteractionReceipt{})
	ctx := context.Background()

	rec, err := CreateReceipt(ctx, db, "u1", "k1", []byte(`{"stage_changed":true}`), time.Hour)
	if err != nil {
		t.Fatalf("CreateReceipt: %v", err)
	}
	if rec.ID == "" || !rec.ExpiresAt.After(rec.CreatedAt) {
		t.Fatalf("unexpected receipt: %+v", rec)
	}

	got, err := GetReceipt(ctx, db, "u1", "k1", time.Now().UTC())
	if err != nil {
		t.Fatalf("GetReceipt: %v", err)
	}
	if string(got.Result) != `{"stage_changed":true}` {
		t.Fatalf("result mismatch: %s", got.Result)
	}

	if _, err := CreateReceipt(ctx, db, "u1", "k1", []byte(`{}`), time.Hour); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// Another user may reuse the same key.
	if _, err := CreateReceipt(ctx, db, "u2", "k1", []byte(`{}`), time.Hour); err != nil {
		t.Fatalf("other user same key: %v", err)
	}

	n, err := PurgeReceipts(ctx, db, time.Now().UTC().Add(2*time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("PurgeReceipts = %d, %v; want 2, nil", n, err)
	}
}
