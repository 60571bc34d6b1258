package enums

import "fmt"

// PaymentType identifies which installment of the application fee a payment covers.
type PaymentType string

const (
	PaymentTypeFull  PaymentType = "full"
	PaymentTypeStep1 PaymentType = "step1"
	PaymentTypeStep2 PaymentType = "step2"
)

var validPaymentTypes = []PaymentType{
	PaymentTypeFull,
	PaymentTypeStep1,
	PaymentTypeStep2,
}

func (p PaymentType) String() string {
	return string(p)
}

func (p PaymentType) IsValid() bool {
	for _, candidate := range validPaymentTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// StepKeys returns the timeline steps completed when a payment of this type settles.
func (p PaymentType) StepKeys() []TimelineStepKey {
	switch p {
	case PaymentTypeFull:
		return []TimelineStepKey{TimelineStepAppPaid, TimelineStepAppStep2Paid}
	case PaymentTypeStep1:
		return []TimelineStepKey{TimelineStepAppPaid}
	case PaymentTypeStep2:
		return []TimelineStepKey{TimelineStepAppStep2Paid}
	default:
		return nil
	}
}

// Label is the human-readable line item name used on receipts.
func (p PaymentType) Label() string {
	switch p {
	case PaymentTypeFull:
		return "Application Fee (Full)"
	case PaymentTypeStep1:
		return "Application Fee (Step 1)"
	case PaymentTypeStep2:
		return "Application Fee (Step 2)"
	default:
		return "Application Fee"
	}
}

func ParsePaymentType(value string) (PaymentType, error) {
	for _, candidate := range validPaymentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment type %q", value)
}
