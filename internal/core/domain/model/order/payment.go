package order

import (
	"fmt"

	"dispatch/internal/pkg/errs"
)

// PaymentStatus is a side channel independent of the lifecycle state
// machine: setting it never moves the lifecycle, and it may only change
// while the order is non-terminal.
type PaymentStatus int

const (
	// PaymentUnknown represents an invalid or undefined payment status.
	PaymentUnknown PaymentStatus = iota

	// PaymentPending means payment has not been confirmed yet.
	PaymentPending

	// PaymentPaid means the customer paid; confirmation from the delivery
	// side is outstanding.
	PaymentPaid

	// PaymentSuccessful means the delivery side acknowledged the payment.
	PaymentSuccessful
)

func paymentStatusStrings() map[PaymentStatus]string {
	return map[PaymentStatus]string{
		PaymentUnknown:    "unknown",
		PaymentPending:    "pending",
		PaymentPaid:       "paid",
		PaymentSuccessful: "successful",
	}
}

// ParsePaymentStatus converts a wire value into a PaymentStatus.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	for status, str := range paymentStatusStrings() {
		if str == s && status != PaymentUnknown {
			return status, nil
		}
	}
	return PaymentUnknown, errs.NewValueIsInvalidErrorWithCause(
		"payment status", fmt.Errorf("%q is not a valid payment status", s))
}

// Validate checks that the PaymentStatus is one of the declared values.
func (p PaymentStatus) Validate() error {
	if p == PaymentUnknown {
		return errs.NewValueIsInvalidErrorWithCause(
			"payment status", fmt.Errorf("%d is not a valid payment status", p))
	}
	if _, ok := paymentStatusStrings()[p]; !ok {
		return errs.NewValueIsInvalidErrorWithCause(
			"payment status", fmt.Errorf("%d is not a valid payment status", p))
	}
	return nil
}

// String returns the wire representation of the payment status.
func (p PaymentStatus) String() string {
	if str, ok := paymentStatusStrings()[p]; ok {
		return str
	}
	return "unknown"
}
