package domain

import "errors"

var (
	ErrBillingNotFound    = errors.New("billing record not found")
	ErrPaymentDeclined    = errors.New("payment declined")
	ErrNotRefundable      = errors.New("billing record not refundable")
	ErrReservationNotHeld = errors.New("reservation is not in a payable state")
)
