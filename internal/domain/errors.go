package domain

import "errors"

// Input errors: rejected before any transaction begins.
var (
	ErrInvalidReading   = errors.New("invalid meter reading")
	ErrInvalidAmount    = errors.New("payment amount must be greater than zero")
	ErrInvalidPayment   = errors.New("invalid payment request")
	ErrInvalidDueDate   = errors.New("invalid due date")
	ErrDuplicateReading = errors.New("a reading already exists for this meter and date")
	ErrMeterNotFound    = errors.New("meter not found")
)

// Lookup failures.
var (
	ErrReadingNotFound = errors.New("meter reading not found")
	ErrBillNotFound    = errors.New("bill not found")
	ErrPaymentNotFound = errors.New("payment not found")
)

// Conflict errors: detected inside the transaction.
var (
	ErrBillAlreadyExists    = errors.New("a bill already exists for this reading")
	ErrBillAlreadySettled   = errors.New("bill is already paid or cancelled")
	ErrOverpayment          = errors.New("payment exceeds outstanding balance")
	ErrPaymentNotRefundable = errors.New("payment cannot be refunded")
	ErrConcurrentUpdate     = errors.New("concurrent update, retry the operation")
)

// Eligibility and consistency errors: fatal to a single bill generation.
var (
	ErrConnectionNotActive = errors.New("service connection is not active")
	ErrReadingNotBillable  = errors.New("reading type is not billable")
	ErrNegativeConsumption = errors.New("consumption is negative")
	ErrNoApplicableTariff  = errors.New("no applicable tariff")
	ErrAmbiguousTariff     = errors.New("more than one active tariff matches")
)

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// IsInputError reports whether err describes a request the caller must correct.
func IsInputError(err error) bool {
	return isAny(err, ErrInvalidReading, ErrInvalidAmount, ErrInvalidPayment, ErrInvalidDueDate,
		ErrDuplicateReading, ErrMeterNotFound, ErrReadingNotFound, ErrBillNotFound, ErrPaymentNotFound)
}

// IsConflict reports whether err is a conflict with the current state of the store.
// ErrConcurrentUpdate is the only conflict that is worth retrying.
func IsConflict(err error) bool {
	return isAny(err, ErrBillAlreadyExists, ErrBillAlreadySettled, ErrOverpayment,
		ErrPaymentNotRefundable, ErrConcurrentUpdate)
}

// IsRetryable reports whether the operation may succeed if simply retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate)
}

// IsConsistencyError reports tariff and eligibility failures of bill generation.
func IsConsistencyError(err error) bool {
	return isAny(err, ErrConnectionNotActive, ErrReadingNotBillable, ErrNegativeConsumption,
		ErrNoApplicableTariff, ErrAmbiguousTariff)
}
