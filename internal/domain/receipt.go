package domain

import "time"

// InteractionReceipt records the aggregated result of a previously handled
// interaction, keyed by (user_id, key). It lets a replayed interaction return
// the originally produced response without re-running any handler.
type InteractionReceipt struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_receipt_user_key,priority:1"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_receipt_user_key,priority:2"`
	Result    []byte    `gorm:"type:BLOB NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (InteractionReceipt) TableName() string { return "interaction_receipts" }
