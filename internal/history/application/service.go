package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tripvana/travel-booking-system/internal/history/domain"
)

// ErrMalformedEvent marks a message that cannot be decoded; the
// consumer counts it as poison and moves on.
var ErrMalformedEvent = errors.New("malformed booking event")

// bookingEvent mirrors the wire schema of the bookings topic. Unknown
// fields are ignored by the decoder, which is the forward-compatibility
// contract.
type bookingEvent struct {
	EventType         string         `json:"eventType"`
	Timestamp         time.Time      `json:"timestamp"`
	BookingID         string         `json:"bookingId"`
	BillingID         string         `json:"billingId"`
	UserID            string         `json:"userId"`
	Type              string         `json:"type"`
	TotalAmountPaid   int64          `json:"totalAmountPaid"`
	PaymentMethod     string         `json:"paymentMethod"`
	TransactionStatus string         `json:"transactionStatus"`
	Reason            string         `json:"reason"`
	Data              struct {
		InvoiceNumber  string         `json:"invoiceNumber"`
		BookingDetails map[string]any `json:"bookingDetails"`
	} `json:"data"`
}

// Service folds booking events into the user's history. Folding is an
// upsert by booking id, so replays are harmless, and terminal statuses
// win regardless of arrival order.
type Service struct {
	log  *slog.Logger
	repo HistoryRepository
	now  func() time.Time
}

func NewService(log *slog.Logger, repo HistoryRepository) *Service {
	return &Service{
		log:  log,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Apply processes one raw message from the bookings topic.
func (s *Service) Apply(ctx context.Context, raw []byte) error {
	var ev bookingEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.BookingID == "" {
		return fmt.Errorf("%w: missing bookingId", ErrMalformedEvent)
	}

	var status domain.EntryStatus
	switch ev.EventType {
	case "booking.created":
		status = domain.StatusUpcoming
	case "booking.confirmed":
		status = domain.StatusConfirmed
	case "booking.cancelled":
		status = domain.StatusCancelled
	case "booking.failed":
		status = domain.StatusFailed
	default:
		// Unknown but well-formed: skip, never crash the loop.
		s.log.Warn("unknown event type skipped", "event_type", ev.EventType, "booking_id", ev.BookingID)
		return nil
	}

	bookedAt := ev.Timestamp
	if bookedAt.IsZero() {
		bookedAt = s.now()
	}

	details := ev.Data.BookingDetails
	if details == nil {
		details = map[string]any{}
	}
	if ev.BillingID != "" {
		details["billingId"] = ev.BillingID
	}
	if ev.Data.InvoiceNumber != "" {
		details["invoiceNumber"] = ev.Data.InvoiceNumber
	}
	if ev.Reason != "" {
		details["reason"] = ev.Reason
	}

	entry := domain.HistoryEntry{
		BookingID:            ev.BookingID,
		UserID:               ev.UserID,
		BookingType:          ev.Type,
		Status:               status,
		TotalAmountPaidCents: ev.TotalAmountPaid,
		PaymentMethod:        ev.PaymentMethod,
		Details:              details,
		BookedAt:             bookedAt,
		UpdatedAt:            s.now(),
	}

	if err := s.repo.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("upsert history entry: %w", err)
	}

	s.log.Info("booking event applied",
		"event_type", ev.EventType,
		"booking_id", ev.BookingID,
		"status", status,
	)
	return nil
}

func (s *Service) GetEntry(ctx context.Context, bookingID string) (domain.HistoryEntry, error) {
	return s.repo.Get(ctx, bookingID)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.HistoryEntry, error) {
	return s.repo.ListByUser(ctx, userID)
}
