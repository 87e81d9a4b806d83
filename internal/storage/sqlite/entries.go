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

const entryColumns = "id, cycle_id, group_id, actor_id, amount, note, created_at"

// carryOverLike matches the notes of carry-over entries.
const carryOverLike = models.CarryOverPrefix + "%"

// InsertEntry appends an entry to a cycle of this group.
func (t *sqliteTx) InsertEntry(ctx context.Context, entry *models.Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.GroupID = t.groupID

	// The cycle must belong to this group.
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO entries (cycle_id, group_id, actor_id, amount, note, created_at)
		 SELECT id, group_id, ?, ?, ?, ? FROM cycles WHERE id = ? AND group_id = ?`,
		entry.ActorID, entry.Amount, entry.Note, entry.CreatedAt.UnixMilli(),
		entry.CycleID, t.groupID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to insert entry: cycle %d: %w", entry.CycleID, storage.ErrNotFound)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read entry id: %w", err)
	}
	entry.ID = id
	return nil
}

// LastEntry returns the newest entry of a cycle.
func (t *sqliteTx) LastEntry(ctx context.Context, cycleID int64) (*models.Entry, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE cycle_id = ? AND group_id = ? ORDER BY id DESC LIMIT 1",
		cycleID, t.groupID,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last entry: %w", err)
	}
	return entry, nil
}

// DeleteEntry removes an entry by ID.
func (t *sqliteTx) DeleteEntry(ctx context.Context, entryID int64) error {
	res, err := t.tx.ExecContext(ctx,
		"DELETE FROM entries WHERE id = ? AND group_id = ?",
		entryID, t.groupID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("entry %d: %w", entryID, storage.ErrNotFound)
	}
	return nil
}

// ListEntries returns every entry of a cycle in insertion order.
func (t *sqliteTx) ListEntries(ctx context.Context, cycleID int64) ([]models.Entry, error) {
	return t.queryEntries(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE cycle_id = ? AND group_id = ? ORDER BY id",
		cycleID, t.groupID,
	)
}

// PageEntries returns one page of a cycle's entries, newest first.
func (t *sqliteTx) PageEntries(ctx context.Context, cycleID int64, offset, limit int) ([]models.Entry, error) {
	if offset < 0 {
		offset = 0
	}
	return t.queryEntries(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE cycle_id = ? AND group_id = ? ORDER BY id DESC LIMIT ? OFFSET ?",
		cycleID, t.groupID, limit, offset,
	)
}

// CountEntries counts the entries of a cycle.
func (t *sqliteTx) CountEntries(ctx context.Context, cycleID int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entries WHERE cycle_id = ? AND group_id = ?",
		cycleID, t.groupID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

// HasCarryOver reports whether a cycle already holds a carry-over entry.
func (t *sqliteTx) HasCarryOver(ctx context.Context, cycleID int64) (bool, error) {
	var found int
	err := t.tx.QueryRowContext(ctx,
		"SELECT 1 FROM entries WHERE cycle_id = ? AND group_id = ? AND note LIKE ? LIMIT 1",
		cycleID, t.groupID, carryOverLike,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check carry-over: %w", err)
	}
	return true, nil
}

func (t *sqliteTx) queryEntries(ctx context.Context, query string, args ...any) ([]models.Entry, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*models.Entry, error) {
	var (
		entry   models.Entry
		created int64
	)
	if err := row.Scan(&entry.ID, &entry.CycleID, &entry.GroupID, &entry.ActorID,
		&entry.Amount, &entry.Note, &created); err != nil {
		return nil, err
	}
	entry.CreatedAt = time.UnixMilli(created)
	return &entry, nil
}
