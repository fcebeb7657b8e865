package application

import (
	"context"

	"github.com/tripvana/travel-booking-system/internal/history/domain"
)

type HistoryRepository interface {
	// Upsert writes the entry by booking id. An existing terminal
	// entry keeps its status; everything else is updated.
	Upsert(ctx context.Context, e domain.HistoryEntry) error
	Get(ctx context.Context, bookingID string) (domain.HistoryEntry, error)
	ListByUser(ctx context.Context, userID string) ([]domain.HistoryEntry, error)
}
