package application

import (
	"context"
	"time"

	"github.com/tripvana/travel-booking-system/internal/reservation/domain"
)

// LedgerRepository owns inventory_units. TryHold is the only mutation
// that races across callers and must be atomic per resource.
type LedgerRepository interface {
	Availability(ctx context.Context, resourceID string) (int, error)
	TryHold(ctx context.Context, resourceID string, quantity int, reservationID string, expiresAt time.Time) ([]domain.InventoryUnit, error)
	Commit(ctx context.Context, reservationID string) error
	Release(ctx context.Context, reservationID string) error
}

type ReservationRepository interface {
	Create(ctx context.Context, r domain.Reservation) error
	Get(ctx context.Context, id string) (domain.Reservation, error)
	// Transition performs a compare-and-set on the state column and
	// returns ErrInvalidStateTransition when the reservation exists in
	// a different state, ErrReservationNotFound when it does not exist.
	Transition(ctx context.Context, id string, from, to domain.ReservationState, now time.Time) error
	Delete(ctx context.Context, id string) error
	// ExpireOverdue flips held reservations past their expiry to
	// expired and frees their units in one transaction, returning the
	// expired reservation ids.
	ExpireOverdue(ctx context.Context, now time.Time) ([]string, error)
}
