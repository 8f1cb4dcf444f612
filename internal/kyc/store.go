package kyc

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

const kycColumns = `id, user_id, status, full_name, document_type, document_number, country, reviewer_id, rejection_reason, submitted_at, reviewed_at`

type Store struct {
	db *db.DB
}

func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

func scanVerification(row pgx.Row) (model.KYCVerification, error) {
	var v model.KYCVerification
	var status string
	var reviewer *string
	err := row.Scan(&v.ID, &v.UserID, &status, &v.FullName, &v.DocumentType, &v.DocumentNumber, &v.Country, &reviewer, &v.RejectionReason, &v.SubmittedAt, &v.ReviewedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return v, apperr.NotFound("verification")
		}
		return v, err
	}
	v.Status = types.KYCStatus(status)
	if reviewer != nil {
		v.ReviewerID = *reviewer
	}
	return v, nil
}

// Insert stores a pending request. A second pending request for the same
// user hits the partial unique index and is reported as already pending.
func (s *Store) Insert(ctx context.Context, v model.KYCVerification) (model.KYCVerification, error) {
	row := s.db.Conn(ctx).QueryRow(ctx, `
		insert into kyc_verifications (user_id, status, full_name, document_type, document_number, country)
		values ($1, 'pending', $2, $3, $4, $5)
		returning `+kycColumns,
		v.UserID, v.FullName, v.DocumentType, v.DocumentNumber, v.Country)
	out, err := scanVerification(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return out, apperr.ErrKYCAlreadyPending
	}
	return out, err
}

func (s *Store) GetForUpdate(ctx context.Context, id string) (model.KYCVerification, error) {
	return scanVerification(s.db.Conn(ctx).QueryRow(ctx, "select "+kycColumns+" from kyc_verifications where id = $1 for update", id))
}

// Latest returns the user's most recent request.
func (s *Store) Latest(ctx context.Context, userID string) (model.KYCVerification, error) {
	return scanVerification(s.db.Conn(ctx).QueryRow(ctx, "select "+kycColumns+" from kyc_verifications where user_id = $1 order by submitted_at desc limit 1", userID))
}

func (s *Store) ListByStatus(ctx context.Context, status types.KYCStatus, limit, offset int) ([]model.KYCVerification, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, "select "+kycColumns+" from kyc_verifications where status = $1 order by submitted_at asc limit $2 offset $3", string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.KYCVerification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Decide records a reviewer's decision on a pending request.
func (s *Store) Decide(ctx context.Context, id string, status types.KYCStatus, reviewerID, reason string) (model.KYCVerification, error) {
	row := s.db.Conn(ctx).QueryRow(ctx, `
		update kyc_verifications
		set status = $2, reviewer_id = $3, rejection_reason = $4, reviewed_at = now()
		where id = $1 and status = 'pending'
		returning `+kycColumns, id, string(status), reviewerID, reason)
	v, err := scanVerification(row)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return v, apperr.ErrKYCNotPending
	}
	return v, err
}
