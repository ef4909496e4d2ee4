// Package reward maps a quality score, a fraud verdict and the transaction
// amount onto a reward decision. The resolver is a pure function; committing
// its output is the orchestrator's job.
package reward

import (
	"math"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
)

// tier is one row of the platform default tier table.
type tier struct {
	name       models.RewardTier
	minScore   float64
	maxScore   float64
	minPercent float64
	maxPercent float64
}

// Platform defaults: 90-100 exceptional 8-12%, 75-89 very good 4-7%,
// 60-74 acceptable 1-3%, below 60 nothing.
var defaultTiers = []tier{
	{models.TierExceptional, 90, 100, 8, 12},
	{models.TierVeryGood, 75, 89, 4, 7},
	{models.TierAcceptable, 60, 74, 1, 3},
	{models.TierInsufficient, 0, 59, 0, 0},
}

// Resolver computes reward decisions. MaxRewardPercent is the platform-wide
// cap that business tier overrides are clamped to.
type Resolver struct {
	PlatformFeePercent float64
	MaxRewardPercent   float64
}

func NewResolver(platformFeePercent, maxRewardPercent float64) *Resolver {
	return &Resolver{
		PlatformFeePercent: platformFeePercent,
		MaxRewardPercent:   maxRewardPercent,
	}
}

// Resolve computes the reward for a completed evaluation. A reject verdict
// forces a zero reward regardless of score.
func (r *Resolver) Resolve(qualityTotal float64, verdict models.FraudVerdict, transactionAmount float64, policy *models.BusinessPolicy) *models.RewardDecision {
	t := lookupTier(qualityTotal)
	minPct, maxPct := r.tierBounds(t, policy)

	decision := &models.RewardDecision{
		Tier:       t.name,
		MinPercent: minPct,
		MaxPercent: maxPct,
	}

	if verdict == models.VerdictReject || t.name == models.TierInsufficient || transactionAmount <= 0 {
		return decision
	}

	// Linear interpolation across the tier's score sub-range: the tier's
	// score midpoint lands on its percentage midpoint.
	span := t.maxScore - t.minScore
	frac := 0.0
	if span > 0 {
		frac = (clampScore(qualityTotal) - t.minScore) / span
	}
	// Fractional totals between a tier ceiling and the next floor stay at
	// the tier's max percentage.
	if frac > 1 {
		frac = 1
	}
	pct := minPct + frac*(maxPct-minPct)
	pct = math.Round(pct*100) / 100

	feePct := r.PlatformFeePercent
	if policy != nil && policy.PlatformFeePercent > 0 {
		feePct = policy.PlatformFeePercent
	}

	decision.Percent = pct
	decision.Amount = roundMoney(transactionAmount * pct / 100)
	decision.PlatformFee = roundMoney(decision.Amount * feePct / 100)
	return decision
}

func lookupTier(total float64) tier {
	for _, t := range defaultTiers {
		if total >= t.minScore {
			return t
		}
	}
	return defaultTiers[len(defaultTiers)-1]
}

// tierBounds applies a business override, clamped to the platform bounds.
func (r *Resolver) tierBounds(t tier, policy *models.BusinessPolicy) (float64, float64) {
	minPct, maxPct := t.minPercent, t.maxPercent
	if policy != nil {
		if b, ok := policy.Tiers[t.name]; ok {
			minPct, maxPct = b.MinPercent, b.MaxPercent
		}
	}
	minPct = clampPercent(minPct, r.MaxRewardPercent)
	maxPct = clampPercent(maxPct, r.MaxRewardPercent)
	if maxPct < minPct {
		maxPct = minPct
	}
	return minPct, maxPct
}

func clampPercent(p, max float64) float64 {
	if p < 0 {
		return 0
	}
	if p > max {
		return max
	}
	return p
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
