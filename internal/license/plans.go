package license

import "sportai.io/internal/facility"

// Plan is one entry of the subscription price list.
type Plan struct {
	Name     string        `json:"name"`
	Tier     facility.Tier `json:"tier"`
	Price    string        `json:"price"`
	Included []string      `json:"included"`
	Excluded []string      `json:"excluded,omitempty"`
	Action   string        `json:"action"`
}

var plans = []Plan{
	{
		Name:  "Starter",
		Tier:  facility.TierStarter,
		Price: "$99/month",
		Included: []string{
			"Basic facility management",
			"Member management",
			"Event scheduling",
			"Basic reporting",
			"5 user accounts",
			"Email support",
		},
		Excluded: []string{"AI modules", "Advanced analytics", "API access"},
		Action:   "Upgrade to Starter",
	},
	{
		Name:  "Professional",
		Tier:  facility.TierProfessional,
		Price: "$299/month",
		Included: []string{
			"Everything in Starter",
			"AI-powered insights",
			"Advanced analytics",
			"Revenue optimization",
			"API access",
			"25 user accounts",
			"Priority support",
			"Custom branding",
		},
		Excluded: []string{"Multi-facility support"},
		Action:   "Upgrade to Professional",
	},
	{
		Name:  "Enterprise",
		Tier:  facility.TierEnterprise,
		Price: "Custom",
		Included: []string{
			"Everything in Professional",
			"Multi-facility management",
			"Unlimited users",
			"Custom integrations",
			"White-label options",
			"Dedicated support",
			"SLA guarantee",
			"On-premise deployment",
			"Custom training",
		},
		Action: "Contact Sales",
	},
}

// Plans returns the static plan table.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}
