package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tripvana/travel-booking-system/internal/reservation/domain"
)

// LedgerRepository stores inventory units. Holds are taken with a
// single conditional update over row locks, so concurrent TryHold calls
// for the same resource can never hand out the same unit twice, and
// expired holds are reclaimed in the same pass.
type LedgerRepository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewLedgerRepository(log *slog.Logger, pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{log: log, pool: pool}
}

func (r *LedgerRepository) Availability(ctx context.Context, resourceID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM inventory_units
		WHERE resource_id = $1
		  AND (status = 'free' OR (status = 'held' AND hold_expires_at < now()))
	`, resourceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("availability: %w", err)
	}
	return n, nil
}

func (r *LedgerRepository) TryHold(ctx context.Context, resourceID string, quantity int, reservationID string, expiresAt time.Time) ([]domain.InventoryUnit, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		UPDATE inventory_units
		SET status = 'held', holder_reservation_id = $2, hold_expires_at = $3
		WHERE id IN (
			SELECT id FROM inventory_units
			WHERE resource_id = $1
			  AND (status = 'free' OR (status = 'held' AND hold_expires_at < now()))
			ORDER BY id
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, resource_type, resource_id, status, hold_expires_at, holder_reservation_id
	`, resourceID, reservationID, expiresAt, quantity)
	if err != nil {
		return nil, fmt.Errorf("hold units: %w", err)
	}

	var units []domain.InventoryUnit
	for rows.Next() {
		var u domain.InventoryUnit
		if err := rows.Scan(&u.ID, &u.ResourceType, &u.ResourceID, &u.Status, &u.HoldExpiresAt, &u.HolderReservationID); err != nil {
			rows.Close()
			return nil, err
		}
		units = append(units, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Partial holds roll back with the transaction.
	if len(units) < quantity {
		return nil, domain.ErrInsufficientInventory
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return units, nil
}

func (r *LedgerRepository) Commit(ctx context.Context, reservationID string) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE inventory_units
		SET status = 'booked', hold_expires_at = NULL
		WHERE holder_reservation_id = $1 AND status IN ('held', 'booked')
	`, reservationID)
	if err != nil {
		return fmt.Errorf("commit units: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

func (r *LedgerRepository) Release(ctx context.Context, reservationID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE inventory_units
		SET status = 'free', holder_reservation_id = NULL, hold_expires_at = NULL
		WHERE holder_reservation_id = $1 AND status = 'held'
	`, reservationID)
	if err != nil {
		return fmt.Errorf("release units: %w", err)
	}
	return nil
}
