package enums

// TimelineStepKey names a milestone on the application timeline.
type TimelineStepKey string

const (
	TimelineStepAppPaid      TimelineStepKey = "app_paid"
	TimelineStepAppStep2Paid TimelineStepKey = "app_step2_paid"
)

// TimelineStepStatus is the state of a single timeline step.
type TimelineStepStatus string

const (
	TimelineStepStatusPending   TimelineStepStatus = "pending"
	TimelineStepStatusCompleted TimelineStepStatus = "completed"
)
