package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tripvana/travel-booking-system/internal/billing/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// SaveWithOutbox upserts the billing record and queues its booking
// event in the same transaction. The event row becomes visible to the
// relay only after the record commit, which is what makes
// publish-after-commit hold.
func (r *Repository) SaveWithOutbox(ctx context.Context, rec domain.BillingRecord, eventType string, payload []byte, headers map[string]string, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var refund []byte
	if rec.RefundDetails != nil {
		refund, err = json.Marshal(rec.RefundDetails)
		if err != nil {
			return fmt.Errorf("marshal refund details: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO billing_records
			(billing_id, booking_id, reservation_id, user_id, booking_type, total_amount_paid_cents,
			 payment_method, transaction_status, invoice_number, refund_details, reconciled, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,false,$11,$12)
		ON CONFLICT (billing_id) DO UPDATE SET
			transaction_status = $8,
			invoice_number = $9,
			refund_details = $10,
			reconciled = false,
			updated_at = $12
	`, rec.BillingID, rec.BookingID, rec.ReservationID, rec.UserID, rec.BookingType,
		rec.TotalAmountPaidCents, rec.PaymentMethod, rec.TransactionStatus,
		rec.InvoiceNumber, refund, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert billing record: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,'pending')
	`, "billing", rec.BookingID, eventType, payload, headers, traceparent)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, billingID string) (domain.BillingRecord, error) {
	return r.scanOne(ctx, `WHERE billing_id = $1`, billingID)
}

func (r *Repository) GetByBookingID(ctx context.Context, bookingID string) (domain.BillingRecord, error) {
	return r.scanOne(ctx, `WHERE booking_id = $1`, bookingID)
}

func (r *Repository) scanOne(ctx context.Context, where string, arg any) (domain.BillingRecord, error) {
	var rec domain.BillingRecord
	var refund []byte
	err := r.pool.QueryRow(ctx, `
		SELECT billing_id, booking_id, reservation_id, user_id, booking_type, total_amount_paid_cents,
		       payment_method, transaction_status, invoice_number, refund_details, created_at, updated_at
		FROM billing_records `+where, arg).
		Scan(&rec.BillingID, &rec.BookingID, &rec.ReservationID, &rec.UserID, &rec.BookingType,
			&rec.TotalAmountPaidCents, &rec.PaymentMethod, &rec.TransactionStatus,
			&rec.InvoiceNumber, &refund, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BillingRecord{}, domain.ErrBillingNotFound
		}
		return domain.BillingRecord{}, fmt.Errorf("get billing record: %w", err)
	}
	if len(refund) > 0 {
		rec.RefundDetails = &domain.RefundDetails{}
		if err := json.Unmarshal(refund, rec.RefundDetails); err != nil {
			return domain.BillingRecord{}, fmt.Errorf("unmarshal refund details: %w", err)
		}
	}
	return rec, nil
}

func (r *Repository) ListUnreconciled(ctx context.Context, grace time.Duration, limit int) ([]domain.BillingRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT billing_id, booking_id, reservation_id, user_id, booking_type, total_amount_paid_cents,
		       payment_method, transaction_status, invoice_number, refund_details, created_at, updated_at
		FROM billing_records
		WHERE NOT reconciled
		  AND transaction_status <> 'pending'
		  AND updated_at < now() - make_interval(secs => $1)
		ORDER BY updated_at
		LIMIT $2
	`, grace.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("list unreconciled: %w", err)
	}
	defer rows.Close()

	var records []domain.BillingRecord
	for rows.Next() {
		var rec domain.BillingRecord
		var refund []byte
		if err := rows.Scan(&rec.BillingID, &rec.BookingID, &rec.ReservationID, &rec.UserID, &rec.BookingType,
			&rec.TotalAmountPaidCents, &rec.PaymentMethod, &rec.TransactionStatus,
			&rec.InvoiceNumber, &refund, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if len(refund) > 0 {
			rec.RefundDetails = &domain.RefundDetails{}
			if err := json.Unmarshal(refund, rec.RefundDetails); err != nil {
				return nil, fmt.Errorf("unmarshal refund details: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) MarkReconciled(ctx context.Context, billingID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE billing_records SET reconciled = true WHERE billing_id = $1`, billingID)
	return err
}

func (r *Repository) RequeueStuckOutbox(ctx context.Context, olderThan time.Duration, maxRetries int) (int, error) {
	ct, err := r.pool.Exec(ctx, `
		UPDATE outbox SET status = 'pending', relay_id = NULL, lease_until = NULL
		WHERE retry_count < $2
		  AND (status = 'failed'
		       OR (status = 'in_progress' AND lease_until < now() - make_interval(secs => $1)))
	`, olderThan.Seconds(), maxRetries)
	if err != nil {
		return 0, fmt.Errorf("requeue stuck outbox: %w", err)
	}
	return int(ct.RowsAffected()), nil
}
