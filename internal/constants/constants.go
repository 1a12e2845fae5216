package constants

// Plan types
const (
	PlanLoyalty = "loyalty"
	PlanAnnual  = "annual"
	PlanGold    = "gold"
)

// Card statuses
const (
	CardStatusActive    = "active"
	CardStatusCompleted = "completed"
	CardStatusRedeemed  = "redeemed"
)

// Queue names
const (
	QueueDefault = "default"
)

// Async task types
const (
	TaskDuplicateScan = "card:duplicate_scan"
)

// SessionPlans reports whether a plan tracks prepaid sessions instead of stamps.
func SessionPlans(plan string) bool {
	return plan == PlanAnnual || plan == PlanGold
}
