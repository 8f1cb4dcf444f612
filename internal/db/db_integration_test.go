//go:build integration

package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *DB {
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
	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	d := New(pool)
	require.NoError(t, d.Migrate(ctx))
	return d
}

func TestMigrateIsIdempotent(t *testing.T) {
	d := startPostgres(t)
	require.NoError(t, d.Migrate(context.Background()))
}

func TestInTxRollsBackOnError(t *testing.T) {
	d := startPostgres(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := d.InTx(ctx, func(ctx context.Context) error {
		_, err := d.Conn(ctx).Exec(ctx, `INSERT INTO workflow_checkpoints (run_id, step) VALUES ('r1', 's1')`)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, d.Conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM workflow_checkpoints WHERE run_id = 'r1'`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestInTxJoinsOuterTransaction(t *testing.T) {
	d := startPostgres(t)
	ctx := context.Background()

	err := d.InTx(ctx, func(outer context.Context) error {
		if err := d.InTx(outer, func(inner context.Context) error {
			_, err := d.Conn(inner).Exec(inner, `INSERT INTO workflow_checkpoints (run_id, step) VALUES ('r2', 's1')`)
			return err
		}); err != nil {
			return err
		}
		return errors.New("abort outer")
	})
	require.Error(t, err)

	var n int
	require.NoError(t, d.Conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM workflow_checkpoints WHERE run_id = 'r2'`).Scan(&n))
	assert.Equal(t, 0, n, "inner work must roll back with the outer transaction")
}
