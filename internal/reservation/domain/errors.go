package domain

import "errors"

var (
	ErrInsufficientInventory  = errors.New("insufficient inventory")
	ErrReservationNotFound    = errors.New("reservation not found")
	ErrReservationExpired     = errors.New("reservation expired")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidQuantity        = errors.New("quantity must be positive")
)
