package workflow

import (
	"context"
	"errors"

	"lv-tradedesk/internal/db"

	"github.com/jackc/pgx/v5"
)

// CheckpointStore keeps step completion markers in workflow_checkpoints.
type CheckpointStore struct {
	db *db.DB
}

func NewCheckpointStore(d *db.DB) *CheckpointStore {
	return &CheckpointStore{db: d}
}

func (s *CheckpointStore) Lookup(ctx context.Context, runID, step string) (bool, bool, error) {
	var halted bool
	err := s.db.Conn(ctx).QueryRow(ctx, "select halted from workflow_checkpoints where run_id = $1 and step = $2", runID, step).Scan(&halted)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, halted, nil
}

func (s *CheckpointStore) Mark(ctx context.Context, runID, step string, halted bool) error {
	_, err := s.db.Conn(ctx).Exec(ctx, `
		insert into workflow_checkpoints (run_id, step, halted) values ($1, $2, $3)
		on conflict (run_id, step) do nothing
	`, runID, step, halted)
	return err
}

// Reset drops every checkpoint of a run so it can be started again.
func (s *CheckpointStore) Reset(ctx context.Context, runID string) error {
	_, err := s.db.Conn(ctx).Exec(ctx, "delete from workflow_checkpoints where run_id = $1", runID)
	return err
}
