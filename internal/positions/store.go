package positions

import (
	"context"
	"errors"
	"math"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/db"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/jackc/pgx/v5"
)

const positionColumns = `id, account_id, symbol, side, qty, avg_price, current_price, unrealized_pnl, realized_pnl, leverage, stop_loss, take_profit, risk_percent, status, close_reason, version, opened_at, updated_at, closed_at`

type Store struct {
	db *db.DB
}

func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

func scanPosition(row pgx.Row) (model.Position, error) {
	var p model.Position
	var side, status, reason string
	var risk float64
	err := row.Scan(&p.ID, &p.AccountID, &p.Symbol, &side, &p.Qty, &p.AvgPrice, &p.CurrentPrice, &p.UnrealizedPnL, &p.RealizedPnL, &p.Leverage, &p.StopLoss, &p.TakeProfit, &risk, &status, &reason, &p.Version, &p.OpenedAt, &p.UpdatedAt, &p.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, apperr.NotFound("position")
		}
		return p, err
	}
	p.Side = types.PositionSide(side)
	p.Status = types.PositionStatus(status)
	p.CloseReason = types.CloseReason(reason)
	p.RiskPercent = types.Ratio(risk)
	return p, nil
}

func (s *Store) Get(ctx context.Context, id string) (model.Position, error) {
	return scanPosition(s.db.Conn(ctx).QueryRow(ctx, "select "+positionColumns+" from positions where id = $1", id))
}

// GetOpen returns the open position for account and symbol, or nil.
func (s *Store) GetOpen(ctx context.Context, accountID, symbol string) (*model.Position, error) {
	p, err := scanPosition(s.db.Conn(ctx).QueryRow(ctx, "select "+positionColumns+" from positions where account_id = $1 and symbol = $2 and status = 'open' for update", accountID, symbol))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListByAccount lists positions of an account; an empty status lists all.
func (s *Store) ListByAccount(ctx context.Context, accountID string, status types.PositionStatus) ([]model.Position, error) {
	if status == "" {
		return s.list(ctx, "select "+positionColumns+" from positions where account_id = $1 order by opened_at desc", accountID)
	}
	return s.list(ctx, "select "+positionColumns+" from positions where account_id = $1 and status = $2 order by opened_at desc", accountID, string(status))
}

func (s *Store) ListOpen(ctx context.Context) ([]model.Position, error) {
	return s.list(ctx, "select "+positionColumns+" from positions where status = 'open' order by account_id, opened_at")
}

func (s *Store) list(ctx context.Context, sql string, args ...any) ([]model.Position, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Position, 0, 8)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Insert(ctx context.Context, p model.Position) (model.Position, error) {
	row := s.db.Conn(ctx).QueryRow(ctx, `
		insert into positions (account_id, symbol, side, qty, avg_price, current_price, unrealized_pnl, realized_pnl, leverage, stop_loss, take_profit, risk_percent, status, opened_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		returning `+positionColumns,
		p.AccountID, p.Symbol, string(p.Side), p.Qty, p.AvgPrice, p.CurrentPrice, p.UnrealizedPnL, p.RealizedPnL, p.Leverage, p.StopLoss, p.TakeProfit, ratioValue(p.RiskPercent), string(types.PositionStatusOpen), p.OpenedAt)
	return scanPosition(row)
}

// Update writes p when its version still matches the stored row and the row
// is still open. A lost race surfaces as a Conflict.
func (s *Store) Update(ctx context.Context, p model.Position) (model.Position, error) {
	row := s.db.Conn(ctx).QueryRow(ctx, `
		update positions
		set qty = $3, avg_price = $4, current_price = $5, unrealized_pnl = $6, realized_pnl = $7,
			stop_loss = $8, take_profit = $9, risk_percent = $10, status = $11, close_reason = $12,
			closed_at = $13, updated_at = now(), version = version + 1
		where id = $1 and version = $2 and status = 'open'
		returning `+positionColumns,
		p.ID, p.Version, p.Qty, p.AvgPrice, p.CurrentPrice, p.UnrealizedPnL, p.RealizedPnL,
		p.StopLoss, p.TakeProfit, ratioValue(p.RiskPercent), string(p.Status), string(p.CloseReason), p.ClosedAt)
	out, err := scanPosition(row)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return out, apperr.Conflict("position")
	}
	return out, err
}

// ratioValue stores NaN as zero.
func ratioValue(r types.Ratio) float64 {
	f := r.Float64()
	if math.IsNaN(f) {
		return 0
	}
	return f
}
