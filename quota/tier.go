package quota

import "time"

type Tier struct {
	Name       string        `json:"name"`
	MinBalance float64       `json:"minBalance"`
	Quota      int           `json:"quota"`
	Cooldown   time.Duration `json:"-"`
	Unlimited  bool          `json:"unlimited"`
}

// CooldownSeconds is what clients display.
func (t Tier) CooldownSeconds() int {
	return int(t.Cooldown / time.Second)
}

// Tiers is ordered from the highest balance down; TierFor takes the first
// tier whose MinBalance the balance reaches.
var Tiers = []Tier{
	{Name: "whale", MinBalance: 1_000_000, Unlimited: true, Cooldown: 0},
	{Name: "gold", MinBalance: 300_001, Quota: 70, Cooldown: 15 * time.Second},
	{Name: "silver", MinBalance: 50_001, Quota: 45, Cooldown: 25 * time.Second},
	{Name: "holder", MinBalance: 1, Quota: 30, Cooldown: 30 * time.Second},
	{Name: "guest", MinBalance: 0, Quota: 5, Cooldown: 60 * time.Second},
}

// TierFor maps a token balance onto its tier. Balances below 1, including a
// disconnected wallet, get the guest tier.
func TierFor(balance float64) Tier {
	for _, tier := range Tiers {
		if balance >= tier.MinBalance {
			return tier
		}
	}
	return Tiers[len(Tiers)-1]
}
