package entity

type SubscriptionTier string

const (
	TierFree    SubscriptionTier = "free"
	TierFamily  SubscriptionTier = "family"
	TierPremium SubscriptionTier = "premium"
)

// Account is the billing owner of a group of personas. It is created and
// mutated by the registration flow; this service only reads it.
type Account struct {
	Base
	Email            string           `db:"email"`
	SubscriptionTier SubscriptionTier `db:"subscription_tier"`
	MaxSessions      int              `db:"max_sessions"`
}
