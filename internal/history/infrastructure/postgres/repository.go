package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tripvana/travel-booking-system/internal/history/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// Upsert keys on booking_id. A row already in a terminal status keeps
// that status; user id and type are kept from the first write when a
// later event omits them (terminal stubs from out-of-order delivery).
func (r *Repository) Upsert(ctx context.Context, e domain.HistoryEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO user_booking_history
			(booking_id, user_id, booking_type, status, total_amount_paid_cents, payment_method, details, booked_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (booking_id) DO UPDATE SET
			user_id = CASE WHEN user_booking_history.user_id = '' THEN EXCLUDED.user_id ELSE user_booking_history.user_id END,
			booking_type = CASE WHEN user_booking_history.booking_type = '' THEN EXCLUDED.booking_type ELSE user_booking_history.booking_type END,
			status = CASE
				WHEN user_booking_history.status IN ('cancelled','failed') THEN user_booking_history.status
				ELSE EXCLUDED.status
			END,
			total_amount_paid_cents = GREATEST(user_booking_history.total_amount_paid_cents, EXCLUDED.total_amount_paid_cents),
			payment_method = CASE WHEN EXCLUDED.payment_method = '' THEN user_booking_history.payment_method ELSE EXCLUDED.payment_method END,
			details = user_booking_history.details || EXCLUDED.details,
			updated_at = EXCLUDED.updated_at
	`, e.BookingID, e.UserID, e.BookingType, e.Status, e.TotalAmountPaidCents, e.PaymentMethod, details, e.BookedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert history entry: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, bookingID string) (domain.HistoryEntry, error) {
	var e domain.HistoryEntry
	var details []byte
	err := r.pool.QueryRow(ctx, `
		SELECT booking_id, user_id, booking_type, status, total_amount_paid_cents, payment_method, details, booked_at, updated_at
		FROM user_booking_history WHERE booking_id = $1
	`, bookingID).Scan(&e.BookingID, &e.UserID, &e.BookingType, &e.Status,
		&e.TotalAmountPaidCents, &e.PaymentMethod, &details, &e.BookedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.HistoryEntry{}, domain.ErrEntryNotFound
		}
		return domain.HistoryEntry{}, fmt.Errorf("get history entry: %w", err)
	}
	if err := json.Unmarshal(details, &e.Details); err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("unmarshal details: %w", err)
	}
	return e, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT booking_id, user_id, booking_type, status, total_amount_paid_cents, payment_method, details, booked_at, updated_at
		FROM user_booking_history WHERE user_id = $1
		ORDER BY booked_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var details []byte
		if err := rows.Scan(&e.BookingID, &e.UserID, &e.BookingType, &e.Status,
			&e.TotalAmountPaidCents, &e.PaymentMethod, &details, &e.BookedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("unmarshal details: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
