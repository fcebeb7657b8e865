//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripvana/travel-booking-system/internal/billing/domain"
	billpg "github.com/tripvana/travel-booking-system/internal/billing/infrastructure/postgres"
	resapp "github.com/tripvana/travel-booking-system/internal/reservation/application"
	resdomain "github.com/tripvana/travel-booking-system/internal/reservation/domain"
	respg "github.com/tripvana/travel-booking-system/internal/reservation/infrastructure/postgres"
	"github.com/tripvana/travel-booking-system/internal/storage"
	"github.com/tripvana/travel-booking-system/pkg/idempotency"
	"github.com/tripvana/travel-booking-system/pkg/outbox"
)

var (
	env  *Env
	pool *pgxpool.Pool
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	env, err = Setup(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "containers setup failed:", err)
		os.Exit(1)
	}

	if err := storage.Migrate(ctx, env.PGURL); err != nil {
		fmt.Fprintln(os.Stderr, "migrate failed:", err)
		env.Teardown(ctx)
		os.Exit(1)
	}

	pool, err = pgxpool.New(ctx, env.PGURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pg connect failed:", err)
		env.Teardown(ctx)
		os.Exit(1)
	}

	code := m.Run()

	pool.Close()
	env.Teardown(ctx)
	os.Exit(code)
}

func seedUnits(t *testing.T, resourceID string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		_, err := pool.Exec(ctx,
			`INSERT INTO inventory_units (id, resource_type, resource_id) VALUES ($1, 'hotel-room', $2)`,
			uuid.NewString(), resourceID,
		)
		require.NoError(t, err)
	}
}

// Ten buyers race for three rooms; exactly three holds may succeed.
func TestNoOversellUnderContention(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	resourceID := "hotel-" + uuid.NewString()
	seedUnits(t, resourceID, 3)

	svc := resapp.NewService(log, respg.NewLedgerRepository(log, pool), respg.NewReservationRepository(log, pool))

	const buyers = 10
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateReservation(context.Background(), resourceID, fmt.Sprintf("u%d", i), 1)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			require.ErrorIs(t, err, resdomain.ErrInsufficientInventory)
		}
	}
	assert.Equal(t, 3, won)

	avail, err := svc.Availability(context.Background(), resourceID)
	require.NoError(t, err)
	assert.Zero(t, avail)
}

// A two-unit request against one remaining unit must not take the unit.
func TestPartialHoldRollsBack(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	resourceID := "hotel-" + uuid.NewString()
	seedUnits(t, resourceID, 1)

	svc := resapp.NewService(log, respg.NewLedgerRepository(log, pool), respg.NewReservationRepository(log, pool))

	_, err := svc.CreateReservation(context.Background(), resourceID, "u1", 2)
	require.ErrorIs(t, err, resdomain.ErrInsufficientInventory)

	avail, err := svc.Availability(context.Background(), resourceID)
	require.NoError(t, err)
	assert.Equal(t, 1, avail)
}

// The billing write and its outbox row commit together, and the relay
// delivers the event to the broker keyed by booking id.
func TestOutboxRelayDeliversToKafka(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	topic := "bookings-it"
	bookingID := uuid.NewString()

	rec := domain.BillingRecord{
		BillingID:            uuid.NewString(),
		BookingID:            bookingID,
		UserID:               "u1",
		BookingType:          "hotel",
		TotalAmountPaidCents: 12_000,
		PaymentMethod:        "Credit Card",
		TransactionStatus:    domain.StatusCompleted,
		CreatedAt:            time.Now().UTC(),
		UpdatedAt:            time.Now().UTC(),
	}
	event := domain.NewBookingEvent(domain.EventBookingConfirmed, rec, nil, "", time.Now().UTC())
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	repo := billpg.NewRepository(log, pool)
	require.NoError(t, repo.SaveWithOutbox(ctx, rec, domain.EventBookingConfirmed, payload, nil, ""))

	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(env.Brokers...),
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	relay := outbox.NewRelay(log, billpg.NewOutboxStore(log, pool),
		outbox.NewDispatcher(log, writer, topic, "billing-service"), "it-relay",
		outbox.WithInterval(100*time.Millisecond))
	relayCtx, relayCancel := context.WithCancel(ctx)
	defer relayCancel()
	go func() { _ = relay.Run(relayCtx) }()

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: env.Brokers,
		Topic:   topic,
		GroupID: "it-" + uuid.NewString(),
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, bookingID, string(msg.Key))

	var got domain.BookingEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, domain.EventBookingConfirmed, got.EventType)
	assert.Equal(t, bookingID, got.BookingID)
}

func TestIdempotencyStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	opts, err := goredis.ParseURL(env.RedisURL)
	require.NoError(t, err)
	rdb := goredis.NewClient(opts)
	defer rdb.Close()

	store := idempotency.NewStore(rdb, "it-group", time.Minute)
	key := store.Key("bookings", 0, 42)

	seen, err := store.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen, "first delivery")

	seen, err = store.Seen(ctx, key)
	require.NoError(t, err)
	assert.True(t, seen, "duplicate delivery")

	require.NoError(t, store.Forget(ctx, key))
	seen, err = store.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen, "redelivery after a failed apply")
}
