package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tripvana/travel-booking-system/internal/reservation/domain"
)

type ReservationRepository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewReservationRepository(log *slog.Logger, pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{log: log, pool: pool}
}

func (r *ReservationRepository) Create(ctx context.Context, res domain.Reservation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reservations (id, resource_id, quantity, state, owner_user_id, created_at, expires_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, res.ID, res.ResourceID, res.Quantity, res.State, res.OwnerUserID, res.CreatedAt, res.ExpiresAt, res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (r *ReservationRepository) Get(ctx context.Context, id string) (domain.Reservation, error) {
	var res domain.Reservation
	err := r.pool.QueryRow(ctx, `
		SELECT id, resource_id, quantity, state, owner_user_id, created_at, expires_at, updated_at
		FROM reservations WHERE id = $1
	`, id).Scan(&res.ID, &res.ResourceID, &res.Quantity, &res.State, &res.OwnerUserID, &res.CreatedAt, &res.ExpiresAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

func (r *ReservationRepository) Transition(ctx context.Context, id string, from, to domain.ReservationState, now time.Time) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE reservations SET state = $3, updated_at = $4
		WHERE id = $1 AND state = $2
	`, id, from, to, now)
	if err != nil {
		return fmt.Errorf("transition reservation: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	// The CAS missed: distinguish a wrong state from a missing row.
	var current domain.ReservationState
	err = r.pool.QueryRow(ctx, `SELECT state FROM reservations WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrReservationNotFound
	}
	if err != nil {
		return fmt.Errorf("transition reservation: %w", err)
	}
	return domain.ErrInvalidStateTransition
}

func (r *ReservationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	return err
}

// ExpireOverdue marks overdue held reservations expired and frees their
// units in one transaction, so a crash between the two cannot strand a
// hold.
func (r *ReservationRepository) ExpireOverdue(ctx context.Context, now time.Time) ([]string, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		UPDATE reservations SET state = 'expired', updated_at = $1
		WHERE id IN (
			SELECT id FROM reservations
			WHERE state = 'held' AND expires_at < $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("expire reservations: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return nil, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `
		UPDATE inventory_units
		SET status = 'free', holder_reservation_id = NULL, hold_expires_at = NULL
		WHERE holder_reservation_id = ANY($1) AND status = 'held'
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("free expired units: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}
