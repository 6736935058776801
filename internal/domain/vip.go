package domain

// VipTierID identifies a loyalty tier
type VipTierID string

const (
	VipTierMember  VipTierID = "member"
	VipTierSilver  VipTierID = "silver"
	VipTierGold    VipTierID = "gold"
	VipTierDiamond VipTierID = "diamond"
)

// VipTier is a loyalty level unlocked by cumulative spend.
// Threshold is inclusive.
type VipTier struct {
	ID              VipTierID `json:"id"`
	Name            string    `json:"name"`
	Emoji           string    `json:"emoji"`
	Threshold       int64     `json:"threshold"`
	Benefits        []string  `json:"benefits"`
	DiscountPercent int       `json:"discount_percent"`
}

// VipProgress is derived from a spend amount and a tier table; never stored
type VipProgress struct {
	CurrentTier    VipTier  `json:"current_tier"`
	TotalSpent     int64    `json:"total_spent"`
	NextTier       *VipTier `json:"next_tier"`
	ProgressToNext float64  `json:"progress_to_next"`
	AmountToNext   int64    `json:"amount_to_next"`
}

var defaultVipTiers = []VipTier{
	{
		ID:              VipTierMember,
		Name:            "Member",
		Emoji:           "🥉",
		Threshold:       0,
		Benefits:        []string{"Birthday voucher", "Member-only newsletter"},
		DiscountPercent: 0,
	},
	{
		ID:              VipTierSilver,
		Name:            "Silver",
		Emoji:           "🥈",
		Threshold:       1_000_000,
		Benefits:        []string{"3% off every order", "Free shipping over 300,000", "Early sale access"},
		DiscountPercent: 3,
	},
	{
		ID:              VipTierGold,
		Name:            "Gold",
		Emoji:           "🥇",
		Threshold:       3_000_000,
		Benefits:        []string{"5% off every order", "Free shipping", "Priority support", "Quarterly gift"},
		DiscountPercent: 5,
	},
	{
		ID:              VipTierDiamond,
		Name:            "Diamond",
		Emoji:           "💎",
		Threshold:       10_000_000,
		Benefits:        []string{"10% off every order", "Free express shipping", "Dedicated account manager", "Exclusive product previews"},
		DiscountPercent: 10,
	},
}

// DefaultVipTiers returns a copy of the built-in tier table, ascending by threshold
func DefaultVipTiers() []VipTier {
	return CloneVipTiers(defaultVipTiers)
}

// Clone returns t with its own Benefits slice
func (t VipTier) Clone() VipTier {
	if t.Benefits != nil {
		t.Benefits = append(make([]string, 0, len(t.Benefits)), t.Benefits...)
	}
	return t
}

// CloneVipTiers deep copies a tier table
func CloneVipTiers(tiers []VipTier) []VipTier {
	if tiers == nil {
		return nil
	}
	out := make([]VipTier, len(tiers))
	for i, t := range tiers {
		out[i] = t.Clone()
	}
	return out
}
