// Package domain defines the persistence models for progression state, the
// reward ledger, access tokens, and interaction receipts. These types are
// mapped with GORM and shared across the repository and service layers.
package domain

import "time"

// UserProgression is the per-user position in the stage sequence. Exactly one
// row exists per user; it is created on the first interaction and only ever
// moves forward.
//
// Fields:
//   - UserID: platform user identifier (primary key).
//   - Stage: current stage name; mirrors StageIndex for readability.
//   - StageIndex: position of Stage in Stages; the transition CAS column.
//   - StageEnteredAt: when the current stage was entered (UTC).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type UserProgression struct {
	UserID         string    `json:"user_id"          gorm:"type:varchar(64);primaryKey"`
	Stage          Stage     `json:"current_stage"    gorm:"type:varchar(32);not null"`
	StageIndex     int       `json:"stage_index"      gorm:"not null;default:0"`
	StageEnteredAt time.Time `json:"stage_entered_at" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for UserProgression.
func (UserProgression) TableName() string { return "user_progressions" }

// ScoreRecord is one entry of a user's score history. A record is written for
// every scored interaction, passed or not, and doubles as the progression
// engine's processed marker: (user_id, source_event_id) is unique.
type ScoreRecord struct {
	ID            string    `json:"id"              gorm:"type:char(36);primaryKey"`
	UserID        string    `json:"user_id"         gorm:"type:varchar(64);not null;index:idx_user_scores,priority:1;uniqueIndex:ux_score_user_source,priority:1"`
	Stage         Stage     `json:"stage"           gorm:"type:varchar(32);not null"`
	Score         float64   `json:"score"           gorm:"not null"`
	Passed        bool      `json:"passed"          gorm:"not null"`
	Advanced      bool      `json:"advanced"        gorm:"not null"`
	Rationale     string    `json:"rationale"       gorm:"type:text;not null;default:''"`
	SourceEventID string    `json:"source_event_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_score_user_source,priority:2"`
	CreatedAt     time.Time `json:"created_at"      gorm:"index:idx_user_scores,priority:2"`
}

// TableName returns the database table name for ScoreRecord.
func (ScoreRecord) TableName() string { return "score_records" }

// LedgerEntry is an append-only currency movement. Credits carry a positive
// Delta, debits a negative one. SourceEventID, when set, is unique per user so
// a causing event can affect the balance at most once.
type LedgerEntry struct {
	ID            string    `json:"entry_id"                  gorm:"type:char(36);primaryKey"`
	UserID        string    `json:"user_id"                   gorm:"type:varchar(64);not null;index:idx_user_entries,priority:1;uniqueIndex:ux_ledger_user_source,priority:1"`
	Delta         int64     `json:"delta"                     gorm:"not null;check:delta <> 0"`
	Reason        string    `json:"reason"                    gorm:"type:varchar(255);not null"`
	SourceEventID *string   `json:"source_event_id,omitempty" gorm:"type:varchar(128);uniqueIndex:ux_ledger_user_source,priority:2"`
	CreatedAt     time.Time `json:"created_at"                gorm:"index:idx_user_entries,priority:2"`
}

// TableName returns the database table name for LedgerEntry.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// LedgerAccount caches the running total of a user's entries. It is updated
// in the same transaction as every entry insert; Version increments on each
// change.
type LedgerAccount struct {
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);primaryKey"`
	Balance   int64     `json:"balance"    gorm:"not null;default:0;check:balance >= 0"`
	Version   int64     `json:"version"    gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for LedgerAccount.
func (LedgerAccount) TableName() string { return "ledger_accounts" }

// Token lifecycle states. issued -> redeemed and issued -> expired are the
// only transitions; both targets are terminal.
const (
	TokenIssued   = "issued"
	TokenRedeemed = "redeemed"
	TokenExpired  = "expired"
)

// AccessToken is a single-use, time-bounded credential for a resource tier.
type AccessToken struct {
	ID         string     `json:"token_id"              gorm:"type:char(36);primaryKey"`
	UserID     string     `json:"user_id"               gorm:"type:varchar(64);not null;index:idx_token_user_tier,priority:1"`
	Tier       string     `json:"resource_tier"         gorm:"type:varchar(64);not null;index:idx_token_user_tier,priority:2"`
	Status     string     `json:"status"                gorm:"type:varchar(16);not null;default:'issued';check:status IN ('issued','redeemed','expired')"`
	IssuedAt   time.Time  `json:"issued_at"             gorm:"not null"`
	ExpiresAt  time.Time  `json:"expires_at"            gorm:"not null;index"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
}

// TableName returns the database table name for AccessToken.
func (AccessToken) TableName() string { return "access_tokens" }

// Outstanding reports whether t is still redeemable at now.
func (t AccessToken) Outstanding(now time.Time) bool {
	return t.Status == TokenIssued && t.RedeemedAt == nil && !now.After(t.ExpiresAt)
}
