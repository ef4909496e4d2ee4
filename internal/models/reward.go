package models

type RewardTier string

const (
	TierExceptional  RewardTier = "exceptional"
	TierVeryGood     RewardTier = "very_good"
	TierAcceptable   RewardTier = "acceptable"
	TierInsufficient RewardTier = "insufficient"
)

// RewardDecision is the committed outcome of reward resolution. Immutable
// once persisted; disputes create compensating records instead of mutating it.
type RewardDecision struct {
	Tier       RewardTier `json:"tier"`
	MinPercent float64    `json:"min_percent"`
	MaxPercent float64    `json:"max_percent"`
	Percent    float64    `json:"percent"`
	Amount     float64    `json:"amount"`

	// PlatformFee is charged to the business on top of the reward; it is
	// never subtracted from the customer-visible amount.
	PlatformFee float64 `json:"platform_fee"`
}

// TierBounds is one business-overridable tier configuration row.
type TierBounds struct {
	MinScore   float64 `json:"min_score"`
	MaxScore   float64 `json:"max_score"`
	MinPercent float64 `json:"min_percent"`
	MaxPercent float64 `json:"max_percent"`
}

// BusinessPolicy carries a business's reward configuration. Overrides are
// clamped to the platform-wide bounds when the policy is loaded.
type BusinessPolicy struct {
	BusinessID         string                    `json:"business_id"`
	Tiers              map[RewardTier]TierBounds `json:"tiers,omitempty"`
	PlatformFeePercent float64                   `json:"platform_fee_percent"`
}
