package funding

import (
	"context"
	"errors"
	"time"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/db"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/jackc/pgx/v5"
)

const txnColumns = `id, user_id, account_id, type, amount, method, reference, status, failure_reason, created_at, updated_at, completed_at`

type Store struct {
	db *db.DB
}

func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

func scanTxn(row pgx.Row) (model.Transaction, error) {
	var t model.Transaction
	var typ, status string
	err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &typ, &t.Amount, &t.Method, &t.Reference, &status, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return t, apperr.NotFound("transaction")
		}
		return t, err
	}
	t.Type = types.TransactionType(typ)
	t.Status = types.TransactionStatus(status)
	return t, nil
}

func (s *Store) Insert(ctx context.Context, t model.Transaction) (model.Transaction, error) {
	row := s.db.Conn(ctx).QueryRow(ctx, `
		INSERT INTO transactions (user_id, account_id, type, amount, method, reference, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		RETURNING `+txnColumns,
		t.UserID, t.AccountID, string(t.Type), t.Amount, t.Method, t.Reference)
	return scanTxn(row)
}

func (s *Store) Get(ctx context.Context, id string) (model.Transaction, error) {
	return scanTxn(s.db.Conn(ctx).QueryRow(ctx, `SELECT `+txnColumns+` FROM transactions WHERE id = $1`, id))
}

func (s *Store) GetForUpdate(ctx context.Context, id string) (model.Transaction, error) {
	return scanTxn(s.db.Conn(ctx).QueryRow(ctx, `SELECT `+txnColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
}

type Filter struct {
	UserID string
	Status types.TransactionStatus
	Limit  int
	Offset int
}

func (s *Store) List(ctx context.Context, f Filter) ([]model.Transaction, error) {
	return s.list(ctx, `
		SELECT `+txnColumns+` FROM transactions
		WHERE ($1 = '' OR user_id::text = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`, f.UserID, string(f.Status), f.Limit, f.Offset)
}

// ListUnsettled returns pending and processing transactions last touched
// before the cutoff, oldest first.
func (s *Store) ListUnsettled(ctx context.Context, before time.Time) ([]model.Transaction, error) {
	return s.list(ctx, `
		SELECT `+txnColumns+` FROM transactions
		WHERE status IN ('pending', 'processing') AND updated_at < $1
		ORDER BY created_at ASC`, before)
}

func (s *Store) list(ctx context.Context, sql string, args ...any) ([]model.Transaction, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Transition moves a transaction from one of the given statuses to to. A
// transaction in any other status yields Conflict.
func (s *Store) Transition(ctx context.Context, id string, from []types.TransactionStatus, to types.TransactionStatus, reason string) (model.Transaction, error) {
	fromStr := make([]string, len(from))
	for i, st := range from {
		fromStr[i] = string(st)
	}
	row := s.db.Conn(ctx).QueryRow(ctx, `
		UPDATE transactions
		SET status = $2, failure_reason = $3, updated_at = NOW(),
			completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE completed_at END
		WHERE id = $1 AND status = ANY($4)
		RETURNING `+txnColumns, id, string(to), reason, fromStr)
	t, err := scanTxn(row)
	if apperr.KindOf(err) == apperr.KindNotFound {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return t, getErr
		}
		return t, apperr.Conflict("transaction")
	}
	return t, err
}
