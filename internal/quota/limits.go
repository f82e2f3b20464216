package quota

import "github.com/rpattn/pawlog/internal/domain"

// Unlimited is the limit reported for tiers without a pet cap.
const Unlimited = -1

var petLimits = map[domain.Tier]int{
	domain.TierFree:    1,
	domain.TierPremium: Unlimited,
}

// Limit returns the maximum number of pets allowed on tier.
// Unknown tiers get the free limit.
func Limit(tier domain.Tier) int {
	if limit, ok := petLimits[tier]; ok {
		return limit
	}
	return petLimits[domain.TierFree]
}

// Feature is a capability gated by subscription tier.
type Feature string

const (
	FeatureExport Feature = "export"
	FeatureImport Feature = "import"
)

var premiumFeatures = map[Feature]struct{}{
	FeatureExport: {},
}

// Allows reports whether tier can use feature.
func Allows(tier domain.Tier, feature Feature) bool {
	if _, gated := premiumFeatures[feature]; !gated {
		return true
	}
	return tier == domain.TierPremium
}

// Usage describes the quota state of a principal.
type Usage struct {
	Tier      domain.Tier `json:"tier"`
	Limit     int         `json:"limit"`     // -1 for unlimited
	Used      int         `json:"used"`
	Remaining int         `json:"remaining"` // -1 for unlimited
}

func newUsage(tier domain.Tier, used int) Usage {
	limit := Limit(tier)
	usage := Usage{Tier: tier, Limit: limit, Used: used, Remaining: Unlimited}
	if limit != Unlimited {
		usage.Remaining = limit - used
		if usage.Remaining < 0 {
			usage.Remaining = 0
		}
	}
	return usage
}
