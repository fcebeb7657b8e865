package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tripvana/travel-booking-system/internal/reservation/domain"
)

const DefaultHoldTTL = 15 * time.Minute

// Service is the reservation coordinator: it drives the
// pending -> held -> {confirmed|released|expired} lifecycle and guards
// every ledger mutation behind it.
type Service struct {
	log          *slog.Logger
	ledger       LedgerRepository
	reservations ReservationRepository
	holdTTL      time.Duration
	now          func() time.Time
}

type Option func(*Service)

func WithHoldTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(log *slog.Logger, ledger LedgerRepository, reservations ReservationRepository, opts ...Option) *Service {
	s := &Service{
		log:          log,
		ledger:       ledger,
		reservations: reservations,
		holdTTL:      DefaultHoldTTL,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateReservation places a hold on quantity units of the resource.
// Sold-out requests are not retried here; the caller re-searches.
func (s *Service) CreateReservation(ctx context.Context, resourceID, userID string, quantity int) (domain.Reservation, error) {
	if quantity <= 0 {
		return domain.Reservation{}, domain.ErrInvalidQuantity
	}

	now := s.now()
	r := domain.NewReservation(uuid.NewString(), resourceID, userID, quantity, now, s.holdTTL)

	if err := s.reservations.Create(ctx, r); err != nil {
		return domain.Reservation{}, fmt.Errorf("create reservation: %w", err)
	}

	if _, err := s.ledger.TryHold(ctx, resourceID, quantity, r.ID, r.ExpiresAt); err != nil {
		if delErr := s.reservations.Delete(ctx, r.ID); delErr != nil {
			s.log.Error("delete pending reservation failed", "reservation_id", r.ID, "err", delErr)
		}
		if errors.Is(err, domain.ErrInsufficientInventory) {
			return domain.Reservation{}, err
		}
		return domain.Reservation{}, fmt.Errorf("hold units: %w", err)
	}

	if err := s.reservations.Transition(ctx, r.ID, domain.StatePending, domain.StateHeld, now); err != nil {
		return domain.Reservation{}, fmt.Errorf("mark held: %w", err)
	}
	r.State = domain.StateHeld

	s.log.Info("reservation held",
		"reservation_id", r.ID,
		"resource_id", resourceID,
		"quantity", quantity,
		"expires_at", r.ExpiresAt,
	)
	return r, nil
}

// ConfirmReservation books the held units. Confirming an already
// confirmed reservation is a no-op success.
func (s *Service) ConfirmReservation(ctx context.Context, reservationID string) error {
	r, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		return err
	}

	switch r.State {
	case domain.StateConfirmed:
		return nil
	case domain.StateHeld:
	default:
		if r.State == domain.StateExpired {
			return domain.ErrReservationExpired
		}
		return domain.ErrInvalidStateTransition
	}

	now := s.now()
	if r.ExpiredAt(now) {
		s.expire(ctx, r.ID, now)
		return domain.ErrReservationExpired
	}

	if err := s.ledger.Commit(ctx, reservationID); err != nil {
		return fmt.Errorf("commit units: %w", err)
	}
	if err := s.reservations.Transition(ctx, reservationID, domain.StateHeld, domain.StateConfirmed, now); err != nil {
		return fmt.Errorf("mark confirmed: %w", err)
	}

	s.log.Info("reservation confirmed", "reservation_id", reservationID)
	return nil
}

// CancelReservation releases the hold. Valid from pending or held;
// cancelling an already released reservation is a no-op success.
func (s *Service) CancelReservation(ctx context.Context, reservationID string) error {
	r, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		return err
	}

	switch r.State {
	case domain.StateReleased, domain.StateExpired:
		return nil
	case domain.StatePending, domain.StateHeld:
	default:
		return domain.ErrInvalidStateTransition
	}

	if err := s.ledger.Release(ctx, reservationID); err != nil {
		return fmt.Errorf("release units: %w", err)
	}
	if err := s.reservations.Transition(ctx, reservationID, r.State, domain.StateReleased, s.now()); err != nil {
		return fmt.Errorf("mark released: %w", err)
	}

	s.log.Info("reservation released", "reservation_id", reservationID)
	return nil
}

func (s *Service) GetReservation(ctx context.Context, reservationID string) (domain.Reservation, error) {
	return s.reservations.Get(ctx, reservationID)
}

func (s *Service) Availability(ctx context.Context, resourceID string) (int, error) {
	return s.ledger.Availability(ctx, resourceID)
}

// ExpireOverdue is the sweep entry point; see Sweeper.
func (s *Service) ExpireOverdue(ctx context.Context) ([]string, error) {
	ids, err := s.reservations.ExpireOverdue(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("expire overdue: %w", err)
	}
	for _, id := range ids {
		s.log.Info("reservation expired", "reservation_id", id)
	}
	return ids, nil
}

func (s *Service) expire(ctx context.Context, reservationID string, now time.Time) {
	if err := s.ledger.Release(ctx, reservationID); err != nil {
		s.log.Error("release on expiry failed", "reservation_id", reservationID, "err", err)
		return
	}
	if err := s.reservations.Transition(ctx, reservationID, domain.StateHeld, domain.StateExpired, now); err != nil {
		s.log.Error("mark expired failed", "reservation_id", reservationID, "err", err)
	}
}
