package domain

import "time"

type ResourceType string

const (
	ResourceFlightSeat ResourceType = "flight-seat"
	ResourceHotelRoom  ResourceType = "hotel-room"
	ResourceCar        ResourceType = "car"
)

type UnitStatus string

const (
	UnitFree   UnitStatus = "free"
	UnitHeld   UnitStatus = "held"
	UnitBooked UnitStatus = "booked"
)

// InventoryUnit is one sellable unit (a seat, a room-night, a car).
// At most one reservation may hold or book a unit at a time; a held
// unit always carries its holder and an expiry.
type InventoryUnit struct {
	ID                  string
	ResourceType        ResourceType
	ResourceID          string
	Status              UnitStatus
	HoldExpiresAt       *time.Time
	HolderReservationID *string
}

type ReservationState string

const (
	StatePending   ReservationState = "pending"
	StateHeld      ReservationState = "held"
	StateConfirmed ReservationState = "confirmed"
	StateReleased  ReservationState = "released"
	StateExpired   ReservationState = "expired"
)

type Reservation struct {
	ID          string
	ResourceID  string
	Quantity    int
	State       ReservationState
	OwnerUserID string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	UpdatedAt   time.Time
}

// Terminal reports whether the reservation can transition no further.
func (r Reservation) Terminal() bool {
	switch r.State {
	case StateConfirmed, StateReleased, StateExpired:
		return true
	}
	return false
}

func (r Reservation) ExpiredAt(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

func NewReservation(id, resourceID, userID string, quantity int, now time.Time, ttl time.Duration) Reservation {
	return Reservation{
		ID:          id,
		ResourceID:  resourceID,
		Quantity:    quantity,
		State:       StatePending,
		OwnerUserID: userID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		UpdatedAt:   now,
	}
}
