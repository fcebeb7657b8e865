package domain

import (
	"errors"
	"time"
)

type EntryStatus string

const (
	StatusUpcoming  EntryStatus = "upcoming"
	StatusConfirmed EntryStatus = "confirmed"
	StatusCancelled EntryStatus = "cancelled"
	StatusFailed    EntryStatus = "failed"
)

// Terminal statuses are never overwritten by a later (or replayed)
// created/confirmed event; that is what makes out-of-order delivery
// collapse to a single entry.
func (s EntryStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusFailed
}

// HistoryEntry is the per-user projection of booking events, keyed by
// booking id. It is written only by the event consumer.
type HistoryEntry struct {
	BookingID            string
	UserID               string
	BookingType          string
	Status               EntryStatus
	TotalAmountPaidCents int64
	PaymentMethod        string
	Details              map[string]any
	BookedAt             time.Time
	UpdatedAt            time.Time
}

var ErrEntryNotFound = errors.New("history entry not found")
