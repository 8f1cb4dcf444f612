//go:build integration

package orders

import (
	"context"
	"testing"
	"time"

	"lv-tradedesk/internal/db"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"
	"lv-tradedesk/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *db.DB {
	t.Helper()
	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("tradedesk_test"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_pass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := db.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	d := db.New(pool)
	require.NoError(t, d.Migrate(ctx))
	return d
}

func TestListUnsettledSkipsFinishedRuns(t *testing.T) {
	database := startPostgres(t)
	ctx := context.Background()

	var userID, accountID string
	require.NoError(t, database.Conn(ctx).QueryRow(ctx,
		`INSERT INTO users (email, password_hash) VALUES ('u@example.com', 'x') RETURNING id::text`).Scan(&userID))
	require.NoError(t, database.Conn(ctx).QueryRow(ctx,
		`INSERT INTO accounts (user_id, balance) VALUES ($1, 10000) RETURNING id::text`, userID).Scan(&accountID))

	store := NewStore(database)
	checkpoints := workflow.NewCheckpointStore(database)
	place := func() model.Order {
		o, err := store.Insert(ctx, model.Order{
			UserID: userID, AccountID: accountID, Symbol: "AAPL",
			Side: types.OrderSideBuy, Type: types.OrderTypeMarket, Qty: d("1"), TimeInForce: types.TimeInForceGTC,
		})
		require.NoError(t, err)
		return o
	}
	filledAgo := time.Now().UTC().Add(-10 * time.Minute)

	stuck := place()
	_, err := store.MarkFilled(ctx, stuck.ID, d("100"), d("0.1"), filledAgo)
	require.NoError(t, err)
	require.NoError(t, checkpoints.Mark(ctx, RunID(stuck.ID), StepExecute, false))

	done := place()
	_, err = store.MarkFilled(ctx, done.ID, d("100"), d("0.1"), filledAgo)
	require.NoError(t, err)
	require.NoError(t, checkpoints.Mark(ctx, RunID(done.ID), StepNotify, false))

	recent := place()
	_, err = store.MarkFilled(ctx, recent.ID, d("100"), d("0.1"), time.Now().UTC())
	require.NoError(t, err)

	place()

	got, err := store.ListUnsettled(ctx, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stuck.ID, got[0].ID)
	assert.Equal(t, types.OrderStatusFilled, got[0].Status)
}
