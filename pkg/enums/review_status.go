package enums

// ReviewStatus tracks admin review of manually submitted payments.
type ReviewStatus string

const (
	ReviewStatusNone          ReviewStatus = "none"
	ReviewStatusPendingReview ReviewStatus = "pending_review"
	ReviewStatusApproved      ReviewStatus = "approved"
)

func (r ReviewStatus) String() string {
	return string(r)
}
