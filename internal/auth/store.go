package auth

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

const userColumns = `id, email, name, role, kyc_status, created_at`

type Store struct {
	db *db.DB
}

func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

func scanUser(row pgx.Row, extra ...any) (model.User, error) {
	var u model.User
	var role, kyc string
	dest := append([]any{&u.ID, &u.Email, &u.Name, &role, &kyc, &u.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return u, apperr.NotFound("user")
		}
		return u, err
	}
	u.Role = types.Role(role)
	u.KYCStatus = types.KYCStatus(kyc)
	return u, nil
}

func (s *Store) Create(ctx context.Context, email, name, passwordHash string, role types.Role) (model.User, error) {
	row := s.db.Conn(ctx).QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns, email, name, passwordHash, string(role))
	u, err := scanUser(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return u, apperr.ErrEmailTaken
	}
	return u, err
}

func (s *Store) Get(ctx context.Context, id string) (model.User, error) {
	return scanUser(s.db.Conn(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail returns the user and their password hash.
func (s *Store) GetByEmail(ctx context.Context, email string) (model.User, string, error) {
	var hash string
	u, err := scanUser(s.db.Conn(ctx).QueryRow(ctx, `SELECT `+userColumns+`, password_hash FROM users WHERE email = $1`, email), &hash)
	return u, hash, err
}

func (s *Store) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) SetKYCStatus(ctx context.Context, id string, status types.KYCStatus) error {
	tag, err := s.db.Conn(ctx).Exec(ctx, `UPDATE users SET kyc_status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user")
	}
	return nil
}
