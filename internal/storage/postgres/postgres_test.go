package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/launchpad/internal/storage"
	"github.com/rovshanmuradov/launchpad/internal/storage/models"
)

// setupTestDB starts a PostgreSQL container and applies migrations.
func setupTestDB(t *testing.T) storage.Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("launchpad"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := NewStorage(dsn, Options{MaxOpenConns: 4, MaxIdleConns: 2}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.RunMigrations())
	return store
}

func tradeBatch(id, asset, side string, at time.Time) storage.Batch {
	return storage.Batch{
		Event: &models.EventRecord{
			EventID:    id,
			Type:       "trade.executed",
			Asset:      asset,
			OccurredAt: at,
			Payload:    `{"side":"` + side + `"}`,
		},
		Trade: &models.TradeRecord{
			EventID:    id,
			Asset:      asset,
			Side:       side,
			Trader:     "alice",
			Amount:     10,
			Value:      55000,
			FeeTotal:   550,
			Supply:     1010,
			ExecutedAt: at,
		},
	}
}

func TestPostgresStorage(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("save and list trades", func(t *testing.T) {
		require.NoError(t, store.SaveBatch(ctx, tradeBatch("00000000-0000-0000-0000-000000000001", "post:1", "buy", base)))
		require.NoError(t, store.SaveBatch(ctx, tradeBatch("00000000-0000-0000-0000-000000000002", "post:1", "sell", base.Add(time.Minute))))
		require.NoError(t, store.SaveBatch(ctx, tradeBatch("00000000-0000-0000-0000-000000000003", "post:2", "buy", base.Add(2*time.Minute))))

		all, err := store.ListTrades(ctx, storage.TradeFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, uint64(55000), all[0].Value)

		sells, err := store.ListTrades(ctx, storage.TradeFilter{Asset: "post:1", Side: "sell"})
		require.NoError(t, err)
		require.Len(t, sells, 1)
		assert.Equal(t, "00000000-0000-0000-0000-000000000002", sells[0].EventID)

		window, err := store.ListTrades(ctx, storage.TradeFilter{From: base.Add(30 * time.Second)})
		require.NoError(t, err)
		assert.Len(t, window, 2)
	})

	t.Run("duplicate event is ignored", func(t *testing.T) {
		b := tradeBatch("00000000-0000-0000-0000-000000000001", "post:1", "buy", base)
		require.NoError(t, store.SaveBatch(ctx, b))

		trades, err := store.ListTrades(ctx, storage.TradeFilter{Asset: "post:1"})
		require.NoError(t, err)
		assert.Len(t, trades, 2)
	})

	t.Run("launch lookup", func(t *testing.T) {
		err := store.SaveBatch(ctx, storage.Batch{
			Event: &models.EventRecord{
				EventID:    "00000000-0000-0000-0000-000000000010",
				Type:       "launch.token_created",
				Asset:      "profile:1",
				OccurredAt: base,
				Payload:    `{}`,
			},
			Launch: &models.LaunchRecord{
				EventID:       "00000000-0000-0000-0000-000000000010",
				Asset:         "profile:1",
				Kind:          "profile",
				InitialSupply: 1000000,
				Circulating:   1000000,
				Holders:       2,
				LaunchedAt:    base,
			},
		})
		require.NoError(t, err)

		got, err := store.GetLaunch(ctx, "profile:1")
		require.NoError(t, err)
		assert.Equal(t, uint64(1000000), got.InitialSupply)

		_, err = store.GetLaunch(ctx, "profile:404")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("events by asset", func(t *testing.T) {
		evs, err := store.ListEvents(ctx, "post:1", 0, 0)
		require.NoError(t, err)
		assert.Len(t, evs, 2)

		ev, err := store.GetEvent(ctx, "00000000-0000-0000-0000-000000000003")
		require.NoError(t, err)
		assert.Equal(t, "post:2", ev.Asset)
	})
}
