package watchlist

import (
	"context"
	"errors"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/db"
	"lv-tradedesk/internal/model"

	"github.com/jackc/pgx/v5"
)

type Store struct {
	db *db.DB
}

func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

// Add inserts the symbol unless the user already watches it; either way the
// stored row is returned.
func (s *Store) Add(ctx context.Context, userID, symbol string) (model.WatchlistItem, error) {
	q := s.db.Conn(ctx)
	var it model.WatchlistItem
	err := q.QueryRow(ctx, `
		insert into watchlist (user_id, symbol) values ($1, $2)
		on conflict (user_id, symbol) do nothing
		returning id, user_id, symbol, created_at`, userID, symbol).
		Scan(&it.ID, &it.UserID, &it.Symbol, &it.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		err = q.QueryRow(ctx, `select id, user_id, symbol, created_at from watchlist where user_id = $1 and symbol = $2`, userID, symbol).
			Scan(&it.ID, &it.UserID, &it.Symbol, &it.CreatedAt)
	}
	return it, err
}

func (s *Store) Remove(ctx context.Context, userID, symbol string) error {
	tag, err := s.db.Conn(ctx).Exec(ctx, `delete from watchlist where user_id = $1 and symbol = $2`, userID, symbol)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("watchlist_item")
	}
	return nil
}

func (s *Store) List(ctx context.Context, userID string) ([]model.WatchlistItem, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, `select id, user_id, symbol, created_at from watchlist where user_id = $1 order by created_at, symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WatchlistItem
	for rows.Next() {
		var it model.WatchlistItem
		if err := rows.Scan(&it.ID, &it.UserID, &it.Symbol, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
