package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tripvana/travel-booking-system/internal/billing/domain"
)

// Service is the billing transaction writer. It decides the payment,
// persists the record with its booking event in one transaction, and
// then best-effort aligns the reservation; the record stays the source
// of truth if that last step fails.
type Service struct {
	log          *slog.Logger
	repo         BillingRepository
	reservations ReservationClient
	gateway      Gateway
	now          func() time.Time
}

func NewService(log *slog.Logger, repo BillingRepository, reservations ReservationClient, gateway Gateway) *Service {
	return &Service{
		log:          log,
		repo:         repo,
		reservations: reservations,
		gateway:      gateway,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type PaymentInput struct {
	ReservationID  string
	BookingID      string
	UserID         string
	BookingType    string
	AmountCents    int64
	PaymentMethod  string
	CardNumber     string
	BookingDetails map[string]any
}

// SubmitPayment charges the gateway for a held, unexpired reservation.
// A decline is a normal outcome: it is recorded as failed and the hold
// is released so the units go back on sale immediately.
func (s *Service) SubmitPayment(ctx context.Context, in PaymentInput, headers map[string]string, traceparent string) (domain.BillingRecord, error) {
	bookingID := in.BookingID
	if bookingID == "" {
		bookingID = uuid.NewString()
	} else {
		// A retried request with the same booking id must not charge
		// the gateway twice; the decided record is the answer.
		existing, err := s.repo.GetByBookingID(ctx, bookingID)
		switch {
		case err == nil && existing.Decided():
			s.log.Info("payment retry absorbed", "booking_id", bookingID, "billing_id", existing.BillingID)
			return existing, nil
		case err != nil && !errors.Is(err, domain.ErrBillingNotFound):
			return domain.BillingRecord{}, fmt.Errorf("check existing booking: %w", err)
		}
	}

	snap, err := s.reservations.Get(ctx, in.ReservationID)
	if err != nil {
		return domain.BillingRecord{}, fmt.Errorf("get reservation: %w", err)
	}
	now := s.now()
	if snap.State != "held" || !snap.ExpiresAt.After(now) {
		return domain.BillingRecord{}, domain.ErrReservationNotHeld
	}

	rec := domain.BillingRecord{
		BillingID:            uuid.NewString(),
		BookingID:            bookingID,
		ReservationID:        in.ReservationID,
		UserID:               in.UserID,
		BookingType:          in.BookingType,
		TotalAmountPaidCents: in.AmountCents,
		PaymentMethod:        in.PaymentMethod,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	var eventType, reason string
	chargeErr := s.gateway.Charge(ctx, ChargeRequest{
		BookingID:     bookingID,
		UserID:        in.UserID,
		AmountCents:   in.AmountCents,
		PaymentMethod: in.PaymentMethod,
		CardNumber:    in.CardNumber,
	})
	switch {
	case chargeErr == nil:
		rec.TransactionStatus = domain.StatusCompleted
		rec.InvoiceNumber = newInvoiceNumber()
		eventType = domain.EventBookingConfirmed
	case errors.Is(chargeErr, domain.ErrPaymentDeclined):
		rec.TransactionStatus = domain.StatusFailed
		eventType = domain.EventBookingFailed
		reason = chargeErr.Error()
	default:
		// Outcome unknown: record nothing, surface the error.
		return domain.BillingRecord{}, fmt.Errorf("charge: %w", chargeErr)
	}

	if err := s.saveWithEvent(ctx, rec, eventType, in.BookingDetails, reason, headers, traceparent); err != nil {
		return domain.BillingRecord{}, err
	}

	// Best-effort reservation alignment; the reconciler closes any gap.
	if rec.TransactionStatus == domain.StatusCompleted {
		if err := s.reservations.Confirm(ctx, in.ReservationID); err != nil {
			s.log.Error("confirm reservation failed after payment", "reservation_id", in.ReservationID, "booking_id", bookingID, "err", err)
		}
	} else {
		if err := s.reservations.Release(ctx, in.ReservationID); err != nil {
			s.log.Error("release reservation failed after declined payment", "reservation_id", in.ReservationID, "booking_id", bookingID, "err", err)
		}
	}

	s.log.Info("payment decided",
		"billing_id", rec.BillingID,
		"booking_id", bookingID,
		"status", rec.TransactionStatus,
	)
	return rec, nil
}

// Refund is a financial event only: the record moves to refunded and a
// booking.cancelled event goes out, but booked inventory stays booked
// unless a cancel request pairs with it.
func (s *Service) Refund(ctx context.Context, billingID string, amountCents int64, reason string, headers map[string]string, traceparent string) (domain.BillingRecord, error) {
	rec, err := s.repo.Get(ctx, billingID)
	if err != nil {
		return domain.BillingRecord{}, err
	}
	if rec.TransactionStatus != domain.StatusCompleted {
		return domain.BillingRecord{}, domain.ErrNotRefundable
	}

	now := s.now()
	if amountCents <= 0 {
		amountCents = rec.TotalAmountPaidCents
	}
	if reason == "" {
		reason = "Customer request"
	}
	rec.TransactionStatus = domain.StatusRefunded
	rec.RefundDetails = &domain.RefundDetails{
		AmountCents: amountCents,
		RefundedAt:  now,
		Reason:      reason,
		Status:      "pending",
	}
	rec.UpdatedAt = now

	if err := s.saveWithEvent(ctx, rec, domain.EventBookingCancelled, nil, reason, headers, traceparent); err != nil {
		return domain.BillingRecord{}, err
	}

	s.log.Info("refund recorded", "billing_id", billingID, "amount_cents", amountCents)
	return rec, nil
}

// CancelByBookingID cancels the billing side of a booking and releases
// its reservation. Already cancelled or refunded records are returned
// as-is.
func (s *Service) CancelByBookingID(ctx context.Context, bookingID, reason string, headers map[string]string, traceparent string) (domain.BillingRecord, error) {
	rec, err := s.repo.GetByBookingID(ctx, bookingID)
	if err != nil {
		return domain.BillingRecord{}, err
	}
	switch rec.TransactionStatus {
	case domain.StatusCancelled, domain.StatusRefunded:
		return rec, nil
	}

	now := s.now()
	if reason == "" {
		reason = "Booking cancelled"
	}
	rec.TransactionStatus = domain.StatusCancelled
	if rec.RefundDetails == nil {
		rec.RefundDetails = &domain.RefundDetails{
			AmountCents: rec.TotalAmountPaidCents,
			RefundedAt:  now,
			Reason:      reason,
			Status:      "pending",
		}
	}
	rec.UpdatedAt = now

	if err := s.saveWithEvent(ctx, rec, domain.EventBookingCancelled, nil, reason, headers, traceparent); err != nil {
		return domain.BillingRecord{}, err
	}

	if rec.ReservationID != "" {
		if err := s.reservations.Release(ctx, rec.ReservationID); err != nil {
			s.log.Error("release reservation failed on cancel", "reservation_id", rec.ReservationID, "booking_id", bookingID, "err", err)
		}
	}

	s.log.Info("booking cancelled", "billing_id", rec.BillingID, "booking_id", bookingID)
	return rec, nil
}

func (s *Service) GetBilling(ctx context.Context, billingID string) (domain.BillingRecord, error) {
	return s.repo.Get(ctx, billingID)
}

func (s *Service) saveWithEvent(ctx context.Context, rec domain.BillingRecord, eventType string, details map[string]any, reason string, headers map[string]string, traceparent string) error {
	event := domain.NewBookingEvent(eventType, rec, details, reason, s.now())
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.repo.SaveWithOutbox(ctx, rec, eventType, payload, headers, traceparent); err != nil {
		return fmt.Errorf("save billing record: %w", err)
	}
	return nil
}

func newInvoiceNumber() string {
	return "INV-" + uuid.NewString()[:8]
}
