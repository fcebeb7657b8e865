package application

import (
	"context"
	"time"

	"github.com/tripvana/travel-booking-system/internal/billing/domain"
)

// BillingRepository persists records together with their outbox event
// in a single transaction, so a durable payment decision always has an
// event queued behind it.
type BillingRepository interface {
	SaveWithOutbox(ctx context.Context, rec domain.BillingRecord, eventType string, payload []byte, headers map[string]string, traceparent string) error
	Get(ctx context.Context, billingID string) (domain.BillingRecord, error)
	GetByBookingID(ctx context.Context, bookingID string) (domain.BillingRecord, error)
	// ListUnreconciled returns decided records older than grace whose
	// reservation state has not been verified yet.
	ListUnreconciled(ctx context.Context, grace time.Duration, limit int) ([]domain.BillingRecord, error)
	MarkReconciled(ctx context.Context, billingID string) error
	// RequeueStuckOutbox flips failed or lease-expired outbox rows back
	// to pending, up to maxRetries attempts per row.
	RequeueStuckOutbox(ctx context.Context, olderThan time.Duration, maxRetries int) (int, error)
}

type ReservationSnapshot struct {
	ID        string
	State     string
	Quantity  int
	ExpiresAt time.Time
}

// ReservationClient talks to the reservation coordinator. Confirm and
// Release are best-effort from the payment path; the reconciler retries
// them until inventory matches billing.
type ReservationClient interface {
	Get(ctx context.Context, reservationID string) (ReservationSnapshot, error)
	Confirm(ctx context.Context, reservationID string) error
	Release(ctx context.Context, reservationID string) error
}

type ChargeRequest struct {
	BookingID     string
	UserID        string
	AmountCents   int64
	PaymentMethod string
	CardNumber    string
}

// Gateway attempts the charge. A decline is domain.ErrPaymentDeclined;
// any other error means the outcome is unknown and nothing is recorded.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) error
}
