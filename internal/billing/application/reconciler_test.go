package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tripvana/travel-booking-system/internal/billing/domain"
)

func newTestReconciler(repo *fakeBillingRepo, client *fakeReservationClient) *Reconciler {
	return NewReconciler(testLogger(), repo, client, time.Minute, 2*time.Minute)
}

func TestReconcile_SettledWhenStatesAlreadyMatch(t *testing.T) {
	repo := newFakeBillingRepo()
	client := newFakeReservationClient()
	client.snapshots["res-1"] = ReservationSnapshot{ID: "res-1", State: "confirmed"}
	repo.unreconciled = []domain.BillingRecord{
		{BillingID: "b1", ReservationID: "res-1", TransactionStatus: domain.StatusCompleted},
	}

	newTestReconciler(repo, client).tick(context.Background())

	assert.Equal(t, []string{"b1"}, repo.reconciled)
	assert.Empty(t, client.confirmed, "nothing to drive")
}

func TestReconcile_DrivesConfirmForCompletedPayment(t *testing.T) {
	repo := newFakeBillingRepo()
	client := newFakeReservationClient()
	client.snapshots["res-1"] = ReservationSnapshot{ID: "res-1", State: "held", ExpiresAt: time.Now().Add(time.Minute)}
	repo.unreconciled = []domain.BillingRecord{
		{BillingID: "b1", ReservationID: "res-1", TransactionStatus: domain.StatusCompleted},
	}

	newTestReconciler(repo, client).tick(context.Background())

	assert.Equal(t, []string{"res-1"}, client.confirmed)
	assert.Equal(t, []string{"b1"}, repo.reconciled)
}

func TestReconcile_DrivesReleaseForFailedPayment(t *testing.T) {
	repo := newFakeBillingRepo()
	client := newFakeReservationClient()
	client.snapshots["res-1"] = ReservationSnapshot{ID: "res-1", State: "held", ExpiresAt: time.Now().Add(time.Minute)}
	repo.unreconciled = []domain.BillingRecord{
		{BillingID: "b1", ReservationID: "res-1", TransactionStatus: domain.StatusFailed},
	}

	newTestReconciler(repo, client).tick(context.Background())

	assert.Equal(t, []string{"res-1"}, client.released)
	assert.Equal(t, []string{"b1"}, repo.reconciled)
}

func TestReconcile_RefundedKeepsReservationConfirmed(t *testing.T) {
	repo := newFakeBillingRepo()
	client := newFakeReservationClient()
	client.snapshots["res-1"] = ReservationSnapshot{ID: "res-1", State: "held", ExpiresAt: time.Now().Add(time.Minute)}
	repo.unreconciled = []domain.BillingRecord{
		{BillingID: "b1", ReservationID: "res-1", TransactionStatus: domain.StatusRefunded},
	}

	newTestReconciler(repo, client).tick(context.Background())

	assert.Equal(t, []string{"res-1"}, client.confirmed)
	assert.Empty(t, client.released)
}

func TestReconcile_ExpiredSettlesReleaseOutcome(t *testing.T) {
	repo := newFakeBillingRepo()
	client := newFakeReservationClient()
	client.snapshots["res-1"] = ReservationSnapshot{ID: "res-1", State: "expired"}
	repo.unreconciled = []domain.BillingRecord{
		{BillingID: "b1", ReservationID: "res-1", TransactionStatus: domain.StatusCancelled},
	}

	newTestReconciler(repo, client).tick(context.Background())

	assert.Equal(t, []string{"b1"}, repo.reconciled, "the sweep already freed the units")
	assert.Empty(t, client.released)
}

func TestReconcile_ExpiredPaidRecordStaysOpen(t *testing.T) {
	repo := newFakeBillingRepo()
	client := newFakeReservationClient()
	client.snapshots["res-1"] = ReservationSnapshot{ID: "res-1", State: "expired"}
	repo.unreconciled = []domain.BillingRecord{
		{BillingID: "b1", ReservationID: "res-1", TransactionStatus: domain.StatusCompleted},
	}

	newTestReconciler(repo, client).tick(context.Background())

	assert.Empty(t, repo.reconciled, "a paid-but-expired booking needs an operator")
	assert.Empty(t, client.confirmed)
}

func TestReconcile_DriveFailureLeavesRecordOpen(t *testing.T) {
	repo := newFakeBillingRepo()
	client := newFakeReservationClient()
	client.snapshots["res-1"] = ReservationSnapshot{ID: "res-1", State: "held", ExpiresAt: time.Now().Add(time.Minute)}
	client.confirmErr = context.DeadlineExceeded
	repo.unreconciled = []domain.BillingRecord{
		{BillingID: "b1", ReservationID: "res-1", TransactionStatus: domain.StatusCompleted},
	}

	newTestReconciler(repo, client).tick(context.Background())

	assert.Empty(t, repo.reconciled, "retry on the next tick")
}

func TestReconcile_NoReservationSettlesImmediately(t *testing.T) {
	repo := newFakeBillingRepo()
	client := newFakeReservationClient()
	repo.unreconciled = []domain.BillingRecord{
		{BillingID: "b1", TransactionStatus: domain.StatusCompleted},
	}

	newTestReconciler(repo, client).tick(context.Background())

	assert.Equal(t, []string{"b1"}, repo.reconciled)
}
