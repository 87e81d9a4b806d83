package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// sqliteTx implements storage.Tx for one group's transaction.
type sqliteTx struct {
	tx      *sql.Tx
	groupID int64
}

var _ storage.Tx = (*sqliteTx)(nil)

// ActiveCycle returns the group's active cycle.
func (t *sqliteTx) ActiveCycle(ctx context.Context) (*models.Cycle, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, group_id, start_time, end_time, is_active
		 FROM cycles WHERE group_id = ? AND is_active = 1`,
		t.groupID,
	)
	cycle, err := scanCycle(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get active cycle: %w", err)
	}
	return cycle, nil
}

// GetCycle retrieves a cycle of this group by ID.
func (t *sqliteTx) GetCycle(ctx context.Context, cycleID int64) (*models.Cycle, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, group_id, start_time, end_time, is_active
		 FROM cycles WHERE id = ? AND group_id = ?`,
		cycleID, t.groupID,
	)
	cycle, err := scanCycle(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle %d: %w", cycleID, err)
	}
	return cycle, nil
}

// CreateCycle inserts a new active cycle.
func (t *sqliteTx) CreateCycle(ctx context.Context, cycle *models.Cycle) error {
	if cycle.StartTime.IsZero() {
		cycle.StartTime = time.Now()
	}
	cycle.GroupID = t.groupID
	cycle.Active = true
	cycle.EndTime = nil

	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO cycles (group_id, start_time, is_active) VALUES (?, ?, 1)",
		t.groupID, cycle.StartTime.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read cycle id: %w", err)
	}
	cycle.ID = id
	return nil
}

// CloseCycle marks a cycle inactive.
func (t *sqliteTx) CloseCycle(ctx context.Context, cycleID int64, endTime time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE cycles SET is_active = 0, end_time = ? WHERE id = ? AND group_id = ? AND is_active = 1",
		endTime.UnixMilli(), cycleID, t.groupID,
	)
	if err != nil {
		return fmt.Errorf("failed to close cycle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to close cycle: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to close cycle %d: %w", cycleID, storage.ErrNotFound)
	}
	return nil
}

func scanCycle(row *sql.Row) (*models.Cycle, error) {
	var (
		cycle  models.Cycle
		start  int64
		end    sql.NullInt64
		active bool
	)
	err := row.Scan(&cycle.ID, &cycle.GroupID, &start, &end, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cycle.StartTime = time.UnixMilli(start)
	cycle.Active = active
	if end.Valid {
		endTime := time.UnixMilli(end.Int64)
		cycle.EndTime = &endTime
	}
	return &cycle, nil
}
