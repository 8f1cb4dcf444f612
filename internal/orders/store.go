package orders

import (
	"context"
	"errors"
	"time"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/db"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, user_id, account_id, symbol, side, type, qty, filled_qty, limit_price, stop_price, stop_loss, take_profit, time_in_force, status, fill_price, commission, reject_reason, position_id, realized_pnl, created_at, updated_at, filled_at, cancelled_at`

type Store struct {
	db *db.DB
}

func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var side, typ, tif, status string
	var positionID *string
	err := row.Scan(&o.ID, &o.UserID, &o.AccountID, &o.Symbol, &side, &typ, &o.Qty, &o.FilledQty, &o.LimitPrice, &o.StopPrice, &o.StopLoss, &o.TakeProfit, &tif, &status, &o.FillPrice, &o.Commission, &o.RejectReason, &positionID, &o.RealizedPnL, &o.CreatedAt, &o.UpdatedAt, &o.FilledAt, &o.CancelledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return o, apperr.NotFound("order")
		}
		return o, err
	}
	o.Side = types.OrderSide(side)
	o.Type = types.OrderType(typ)
	o.TimeInForce = types.TimeInForce(tif)
	o.Status = types.OrderStatus(status)
	if positionID != nil {
		o.PositionID = *positionID
	}
	return o, nil
}

func (s *Store) Insert(ctx context.Context, o model.Order) (model.Order, error) {
	row := s.db.Conn(ctx).QueryRow(ctx, `
		insert into orders (user_id, account_id, symbol, side, type, qty, limit_price, stop_price, stop_loss, take_profit, time_in_force, status)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending')
		returning `+orderColumns,
		o.UserID, o.AccountID, o.Symbol, string(o.Side), string(o.Type), o.Qty, o.LimitPrice, o.StopPrice, o.StopLoss, o.TakeProfit, string(o.TimeInForce))
	return scanOrder(row)
}

func (s *Store) Get(ctx context.Context, id string) (model.Order, error) {
	return scanOrder(s.db.Conn(ctx).QueryRow(ctx, "select "+orderColumns+" from orders where id = $1", id))
}

// GetForUpdate locks the row until the surrounding transaction ends.
func (s *Store) GetForUpdate(ctx context.Context, id string) (model.Order, error) {
	return scanOrder(s.db.Conn(ctx).QueryRow(ctx, "select "+orderColumns+" from orders where id = $1 for update", id))
}

type Filter struct {
	AccountID string
	Status    types.OrderStatus
	Limit     int
	Offset    int
}

func (s *Store) List(ctx context.Context, f Filter) ([]model.Order, error) {
	sql := "select " + orderColumns + " from orders where ($1 = '' or account_id::text = $1) and ($2 = '' or status = $2) order by created_at desc, id limit $3 offset $4"
	return s.list(ctx, sql, f.AccountID, string(f.Status), f.Limit, f.Offset)
}

// ListByStatus returns orders in status created before the cutoff, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status types.OrderStatus, before time.Time) ([]model.Order, error) {
	return s.list(ctx, "select "+orderColumns+" from orders where status = $1 and created_at < $2 order by created_at asc", string(status), before)
}

// ListUnsettled returns filled orders whose run stopped before its final
// step, filled before the cutoff, oldest first.
func (s *Store) ListUnsettled(ctx context.Context, before time.Time) ([]model.Order, error) {
	return s.list(ctx, "select "+orderColumns+` from orders o
		where o.status = $1 and o.filled_at < $2
		and not exists (
			select 1 from workflow_checkpoints c
			where c.run_id = $3::text || o.id::text and c.step = $4
		)
		order by o.filled_at asc`,
		string(types.OrderStatusFilled), before, RunID(""), StepNotify)
}

func (s *Store) list(ctx context.Context, sql string, args ...any) ([]model.Order, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Order, 0, 16)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Transition moves an order to status when it is currently in one of from.
// It reports NotFound for unknown ids and a Conflict when the status moved.
func (s *Store) Transition(ctx context.Context, id string, from []types.OrderStatus, to types.OrderStatus, reason string) (model.Order, error) {
	fromStr := make([]string, len(from))
	for i, st := range from {
		fromStr[i] = string(st)
	}
	row := s.db.Conn(ctx).QueryRow(ctx, `
		update orders
		set status = $2, reject_reason = $3, updated_at = now(),
			cancelled_at = case when $2 = 'cancelled' then now() else cancelled_at end
		where id = $1 and status = any($4)
		returning `+orderColumns, id, string(to), reason, fromStr)
	o, err := scanOrder(row)
	if apperr.KindOf(err) == apperr.KindNotFound {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return o, getErr
		}
		return o, apperr.Conflict("order")
	}
	return o, err
}

// MarkFilled records a complete fill of a pending or open order.
func (s *Store) MarkFilled(ctx context.Context, id string, price, commission decimal.Decimal, at time.Time) (model.Order, error) {
	row := s.db.Conn(ctx).QueryRow(ctx, `
		update orders
		set status = 'filled', filled_qty = qty, fill_price = $2, commission = $3, filled_at = $4, updated_at = $4
		where id = $1 and status in ('pending', 'open', 'partially_filled')
		returning `+orderColumns, id, price, commission, at)
	o, err := scanOrder(row)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return o, apperr.Conflict("order")
	}
	return o, err
}

// SetOutcome links a filled order to the position it touched and the P&L
// it realized.
func (s *Store) SetOutcome(ctx context.Context, id, positionID string, realized *decimal.Decimal) error {
	tag, err := s.db.Conn(ctx).Exec(ctx, "update orders set position_id = $2, realized_pnl = $3, updated_at = now() where id = $1", id, positionID, realized)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order")
	}
	return nil
}
