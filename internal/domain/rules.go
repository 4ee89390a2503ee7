package domain

import "time"

// StageRule gates leaving a stage: the interaction score must reach Threshold
// and the balance must cover Cost, which is debited on advance.
type StageRule struct {
	Threshold float64 `json:"threshold"`
	Cost      int64   `json:"cost"`
}

// DefaultStageRules are the rules for leaving each non-terminal stage.
func DefaultStageRules() map[Stage]StageRule {
	return map[Stage]StageRule{
		StageIntro:      {Threshold: 0.5, Cost: 0},
		StageEngaged:    {Threshold: 0.6, Cost: 10},
		StageTrusted:    {Threshold: 0.7, Cost: 25},
		StagePrivileged: {Threshold: 0.8, Cost: 50},
	}
}

// TierRule is one row of the access requirement table.
type TierRule struct {
	Name       string        `json:"name"`
	MinStage   Stage         `json:"min_stage"`
	MinBalance int64         `json:"min_balance"`
	TTL        time.Duration `json:"ttl"`
	// AutoIssue mints the token as soon as the user enters MinStage.
	AutoIssue bool `json:"auto_issue"`
}

// Tier names.
const (
	TierVIP         = "vip"
	TierInnerCircle = "inner_circle"
)

// DefaultTierRules returns the built-in tiers.
func DefaultTierRules() []TierRule {
	return []TierRule{
		{Name: TierVIP, MinStage: StageTrusted, TTL: 24 * time.Hour, AutoIssue: true},
		{Name: TierInnerCircle, MinStage: StageInner, MinBalance: 50, TTL: time.Hour, AutoIssue: true},
	}
}
