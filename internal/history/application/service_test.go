package application

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripvana/travel-booking-system/internal/history/domain"
)

// fakeHistoryRepo mirrors the terminal-preserving upsert the SQL
// repository does: cancelled and failed entries keep their status, and
// details merge instead of replace.
type fakeHistoryRepo struct {
	byBookingID map[string]domain.HistoryEntry
	upserts     int
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{byBookingID: map[string]domain.HistoryEntry{}}
}

func (f *fakeHistoryRepo) Upsert(_ context.Context, e domain.HistoryEntry) error {
	f.upserts++
	cur, ok := f.byBookingID[e.BookingID]
	if !ok {
		f.byBookingID[e.BookingID] = e
		return nil
	}
	if !cur.Status.Terminal() {
		cur.Status = e.Status
	}
	if e.UserID != "" {
		cur.UserID = e.UserID
	}
	if e.BookingType != "" {
		cur.BookingType = e.BookingType
	}
	if e.TotalAmountPaidCents > cur.TotalAmountPaidCents {
		cur.TotalAmountPaidCents = e.TotalAmountPaidCents
	}
	if e.PaymentMethod != "" {
		cur.PaymentMethod = e.PaymentMethod
	}
	for k, v := range e.Details {
		if cur.Details == nil {
			cur.Details = map[string]any{}
		}
		cur.Details[k] = v
	}
	cur.UpdatedAt = e.UpdatedAt
	f.byBookingID[e.BookingID] = cur
	return nil
}

func (f *fakeHistoryRepo) Get(_ context.Context, bookingID string) (domain.HistoryEntry, error) {
	e, ok := f.byBookingID[bookingID]
	if !ok {
		return domain.HistoryEntry{}, domain.ErrEntryNotFound
	}
	return e, nil
}

func (f *fakeHistoryRepo) ListByUser(_ context.Context, userID string) ([]domain.HistoryEntry, error) {
	var out []domain.HistoryEntry
	for _, e := range f.byBookingID {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func newHistoryService() (*Service, *fakeHistoryRepo) {
	repo := newFakeHistoryRepo()
	return NewService(slog.New(slog.DiscardHandler), repo), repo
}

func TestApply_ConfirmedEvent(t *testing.T) {
	svc, repo := newHistoryService()

	raw := []byte(`{
		"eventType": "booking.confirmed",
		"timestamp": "2026-08-28T10:00:00Z",
		"bookingId": "bk1",
		"billingId": "bill1",
		"userId": "u1",
		"type": "hotel",
		"totalAmountPaid": 12000,
		"paymentMethod": "card",
		"transactionStatus": "completed",
		"data": {
			"invoiceNumber": "INV-1a2b3c4d",
			"bookingDetails": {"nights": 3}
		}
	}`)

	require.NoError(t, svc.Apply(context.Background(), raw))

	entry, err := repo.Get(context.Background(), "bk1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, entry.Status)
	assert.Equal(t, "u1", entry.UserID)
	assert.Equal(t, "hotel", entry.BookingType)
	assert.Equal(t, int64(12000), entry.TotalAmountPaidCents)
	assert.Equal(t, "bill1", entry.Details["billingId"])
	assert.Equal(t, "INV-1a2b3c4d", entry.Details["invoiceNumber"])
	assert.Equal(t, float64(3), entry.Details["nights"])
	assert.Equal(t, time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC), entry.BookedAt)
}

func TestApply_ReplayIsIdempotent(t *testing.T) {
	svc, repo := newHistoryService()

	raw := []byte(`{"eventType":"booking.confirmed","bookingId":"bk1","userId":"u1"}`)
	require.NoError(t, svc.Apply(context.Background(), raw))
	require.NoError(t, svc.Apply(context.Background(), raw))

	entries, err := repo.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "replay must not duplicate the entry")
	assert.Equal(t, domain.StatusConfirmed, entries[0].Status)
}

func TestApply_TerminalStatusWinsOutOfOrder(t *testing.T) {
	svc, repo := newHistoryService()

	// The cancel lands first, the confirm is a straggler.
	cancelled := []byte(`{"eventType":"booking.cancelled","bookingId":"bk1","userId":"u1","reason":"plans changed"}`)
	confirmed := []byte(`{"eventType":"booking.confirmed","bookingId":"bk1","userId":"u1"}`)

	require.NoError(t, svc.Apply(context.Background(), cancelled))
	require.NoError(t, svc.Apply(context.Background(), confirmed))

	entry, err := repo.Get(context.Background(), "bk1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, entry.Status)
	assert.Equal(t, "plans changed", entry.Details["reason"])
}

func TestApply_LateEventEnrichesTerminalEntry(t *testing.T) {
	svc, repo := newHistoryService()

	failed := []byte(`{"eventType":"booking.failed","bookingId":"bk1"}`)
	created := []byte(`{"eventType":"booking.created","bookingId":"bk1","userId":"u1","type":"flight","totalAmountPaid":8000}`)

	require.NoError(t, svc.Apply(context.Background(), failed))
	require.NoError(t, svc.Apply(context.Background(), created))

	entry, err := repo.Get(context.Background(), "bk1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, entry.Status, "status stays terminal")
	assert.Equal(t, "u1", entry.UserID, "but the straggler still fills in the blanks")
	assert.Equal(t, "flight", entry.BookingType)
	assert.Equal(t, int64(8000), entry.TotalAmountPaidCents)
}

func TestApply_UnknownEventTypeIsSkipped(t *testing.T) {
	svc, repo := newHistoryService()

	raw := []byte(`{"eventType":"booking.reminder-sent","bookingId":"bk1"}`)
	require.NoError(t, svc.Apply(context.Background(), raw))
	assert.Zero(t, repo.upserts)
}

func TestApply_Malformed(t *testing.T) {
	svc, _ := newHistoryService()

	for name, raw := range map[string][]byte{
		"invalid json":      []byte(`{not json`),
		"missing bookingId": []byte(`{"eventType":"booking.created"}`),
	} {
		err := svc.Apply(context.Background(), raw)
		assert.ErrorIs(t, err, ErrMalformedEvent, name)
	}
}

func TestApply_ZeroTimestampDefaultsToNow(t *testing.T) {
	svc, repo := newHistoryService()

	before := time.Now().UTC()
	raw := []byte(`{"eventType":"booking.created","bookingId":"bk1"}`)
	require.NoError(t, svc.Apply(context.Background(), raw))

	entry, err := repo.Get(context.Background(), "bk1")
	require.NoError(t, err)
	assert.False(t, entry.BookedAt.Before(before))
}

func TestApply_UnknownFieldsTolerated(t *testing.T) {
	svc, repo := newHistoryService()

	raw := []byte(`{"eventType":"booking.created","bookingId":"bk1","futureField":{"a":1}}`)
	require.NoError(t, svc.Apply(context.Background(), raw))

	entry, err := repo.Get(context.Background(), "bk1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUpcoming, entry.Status)
}
