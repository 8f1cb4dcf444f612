package accounts

import (
	"context"
	"errors"
	"math"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/db"
	"lv-tradedesk/internal/margin"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, user_id, balance, equity, buying_power, used_margin, free_margin, margin_level, leverage, status, version, created_at, updated_at`

type Store struct {
	db *db.DB
}

func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

func scanAccount(row pgx.Row) (model.Account, error) {
	var a model.Account
	var level float64
	var status string
	err := row.Scan(&a.ID, &a.UserID, &a.Balance, &a.Equity, &a.BuyingPower, &a.UsedMargin, &a.FreeMargin, &level, &a.Leverage, &status, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return a, apperr.NotFound("account")
		}
		return a, err
	}
	a.MarginLevel = types.Ratio(level)
	a.Status = types.AccountStatus(status)
	return a, nil
}

func (s *Store) Create(ctx context.Context, userID string, balance decimal.Decimal, leverage int) (model.Account, error) {
	row := s.db.Conn(ctx).QueryRow(ctx, `
		INSERT INTO accounts (user_id, balance, equity, buying_power, free_margin, leverage)
		VALUES ($1, $2, $2, $3, $2, $4)
		RETURNING `+accountColumns,
		userID, balance, balance.Mul(decimal.NewFromInt(int64(leverage))), leverage)
	return scanAccount(row)
}

func (s *Store) Get(ctx context.Context, id string) (model.Account, error) {
	return scanAccount(s.db.Conn(ctx).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]model.Account, error) {
	return s.list(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY created_at ASC`, userID)
}

func (s *Store) ListActive(ctx context.Context) ([]model.Account, error) {
	return s.list(ctx, `SELECT `+accountColumns+` FROM accounts WHERE status = 'active' ORDER BY id`)
}

func (s *Store) list(ctx context.Context, sql string, args ...any) ([]model.Account, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Account, 0, 4)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AdjustBalance adds delta to the balance atomically and returns the row.
func (s *Store) AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (model.Account, error) {
	row := s.db.Conn(ctx).QueryRow(ctx, `
		UPDATE accounts
		SET balance = balance + $2, version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING `+accountColumns, id, delta)
	return scanAccount(row)
}

// SaveSnapshot persists the derived margin fields of an account.
func (s *Store) SaveSnapshot(ctx context.Context, id string, snap margin.Snapshot, buyingPower decimal.Decimal) error {
	level := snap.MarginLevel.Float64()
	if math.IsNaN(level) {
		level = 0
	}
	tag, err := s.db.Conn(ctx).Exec(ctx, `
		UPDATE accounts
		SET equity = $2, used_margin = $3, free_margin = $4, margin_level = $5, buying_power = $6, updated_at = NOW()
		WHERE id = $1
	`, id, snap.Equity, snap.UsedMargin, snap.FreeMargin, level, buyingPower)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("account")
	}
	return nil
}

func (s *Store) SetStatus(ctx context.Context, id string, status types.AccountStatus) (model.Account, error) {
	row := s.db.Conn(ctx).QueryRow(ctx, `
		UPDATE accounts SET status = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING `+accountColumns, id, string(status))
	return scanAccount(row)
}

func (s *Store) SetLeverage(ctx context.Context, id string, leverage int) (model.Account, error) {
	row := s.db.Conn(ctx).QueryRow(ctx, `
		UPDATE accounts SET leverage = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING `+accountColumns, id, leverage)
	return scanAccount(row)
}

func (s *Store) HasOpenPositions(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.db.Conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM positions WHERE account_id = $1 AND status = 'open')`, id).Scan(&ok)
	return ok, err
}
