package trades

import (
	"context"
	"errors"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/db"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const tradeColumns = `id, account_id, order_id, position_id, symbol, side, qty, price, commission, realized_pnl, executed_at`

type Store struct {
	db *db.DB
}

func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

func scanTrade(row pgx.Row) (model.Trade, error) {
	var t model.Trade
	var orderID *string
	var side string
	if err := row.Scan(&t.ID, &t.AccountID, &orderID, &t.PositionID, &t.Symbol, &side, &t.Qty, &t.Price, &t.Commission, &t.RealizedPnL, &t.ExecutedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return t, apperr.NotFound("trade")
		}
		return t, err
	}
	if orderID != nil {
		t.OrderID = *orderID
	}
	t.Side = types.OrderSide(side)
	return t, nil
}

// Insert records a trade. A second trade for the same order is rejected as
// a Conflict.
func (s *Store) Insert(ctx context.Context, t model.Trade) (model.Trade, error) {
	var orderID *string
	if t.OrderID != "" {
		orderID = &t.OrderID
	}
	row := s.db.Conn(ctx).QueryRow(ctx, `
		insert into trades (account_id, order_id, position_id, symbol, side, qty, price, commission, realized_pnl, executed_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		returning `+tradeColumns,
		t.AccountID, orderID, t.PositionID, t.Symbol, string(t.Side), t.Qty, t.Price, t.Commission, t.RealizedPnL, t.ExecutedAt)
	out, err := scanTrade(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return out, apperr.Conflict("trade")
		}
		return out, err
	}
	return out, nil
}

// ListByAccount pages trades newest first.
func (s *Store) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]model.Trade, error) {
	return s.list(ctx, "select "+tradeColumns+" from trades where account_id = $1 order by executed_at desc, id limit $2 offset $3", accountID, limit, offset)
}

// History returns every trade of an account in execution order.
func (s *Store) History(ctx context.Context, accountID string) ([]model.Trade, error) {
	return s.list(ctx, "select "+tradeColumns+" from trades where account_id = $1 order by executed_at asc, id", accountID)
}

func (s *Store) list(ctx context.Context, sql string, args ...any) ([]model.Trade, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Trade, 0, 16)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
