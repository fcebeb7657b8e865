package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/tripvana/travel-booking-system/internal/billing/domain"
)

// Reconciler detects and repairs divergence left behind by partial
// failures: outbox rows that never reached the broker, and reservations
// whose state disagrees with the recorded payment outcome.
type Reconciler struct {
	log          *slog.Logger
	repo         BillingRepository
	reservations ReservationClient
	interval     time.Duration
	grace        time.Duration
	maxRetries   int
	batchSize    int
}

func NewReconciler(log *slog.Logger, repo BillingRepository, reservations ReservationClient, interval, grace time.Duration) *Reconciler {
	return &Reconciler{
		log:          log,
		repo:         repo,
		reservations: reservations,
		interval:     interval,
		grace:        grace,
		maxRetries:   10,
		batchSize:    100,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.log.Info("reconciler started", "interval", r.interval.String())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return
		case <-t.C:
			r.tick(ctx)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	requeued, err := r.repo.RequeueStuckOutbox(ctx, r.grace, r.maxRetries)
	if err != nil {
		r.log.Error("requeue stuck outbox failed", "err", err)
	} else if requeued > 0 {
		r.log.Warn("requeued stuck outbox events", "count", requeued)
	}

	records, err := r.repo.ListUnreconciled(ctx, r.grace, r.batchSize)
	if err != nil {
		r.log.Error("list unreconciled failed", "err", err)
		return
	}
	for _, rec := range records {
		r.reconcile(ctx, rec)
	}
}

// reconcile re-drives the coordinator until the reservation's terminal
// state matches the billing outcome, then marks the record settled.
func (r *Reconciler) reconcile(ctx context.Context, rec domain.BillingRecord) {
	if rec.ReservationID == "" {
		_ = r.repo.MarkReconciled(ctx, rec.BillingID)
		return
	}

	snap, err := r.reservations.Get(ctx, rec.ReservationID)
	if err != nil {
		r.log.Error("reconcile: get reservation failed", "billing_id", rec.BillingID, "err", err)
		return
	}

	var want string
	var drive func(context.Context, string) error
	switch rec.TransactionStatus {
	case domain.StatusCompleted, domain.StatusRefunded:
		// Refunds keep inventory booked.
		want, drive = "confirmed", r.reservations.Confirm
	case domain.StatusFailed, domain.StatusCancelled:
		want, drive = "released", r.reservations.Release
	default:
		return
	}

	switch {
	case snap.State == want:
		if err := r.repo.MarkReconciled(ctx, rec.BillingID); err != nil {
			r.log.Error("mark reconciled failed", "billing_id", rec.BillingID, "err", err)
		}
	case snap.State == "expired" && want == "released":
		// The sweep already freed the units.
		if err := r.repo.MarkReconciled(ctx, rec.BillingID); err != nil {
			r.log.Error("mark reconciled failed", "billing_id", rec.BillingID, "err", err)
		}
	case snap.State == "expired":
		// Paid but the hold expired before confirm: cannot be repaired
		// automatically, a human has to rebook or refund.
		r.log.Error("paid reservation expired before confirm",
			"billing_id", rec.BillingID,
			"reservation_id", rec.ReservationID,
		)
	default:
		if err := drive(ctx, rec.ReservationID); err != nil {
			r.log.Error("reconcile drive failed",
				"billing_id", rec.BillingID,
				"reservation_id", rec.ReservationID,
				"want", want,
				"err", err,
			)
			return
		}
		r.log.Warn("reconciled reservation to billing outcome",
			"billing_id", rec.BillingID,
			"reservation_id", rec.ReservationID,
			"state", want,
		)
		if err := r.repo.MarkReconciled(ctx, rec.BillingID); err != nil {
			r.log.Error("mark reconciled failed", "billing_id", rec.BillingID, "err", err)
		}
	}
}
