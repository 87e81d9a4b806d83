package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LatestCarriedBalance returns the amount of the newest carried balance row.
// A group without a row has nothing to carry and reads as 0.
func (t *sqliteTx) LatestCarriedBalance(ctx context.Context) (int64, error) {
	var amount int64
	err := t.tx.QueryRowContext(ctx,
		"SELECT amount FROM carried_balances WHERE group_id = ? ORDER BY id DESC LIMIT 1",
		t.groupID,
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get carried balance: %w", err)
	}
	return amount, nil
}

// ReplaceCarriedBalance supersedes the group's carried balance.
// Old rows are always removed; a new row is written only for a non-zero amount.
func (t *sqliteTx) ReplaceCarriedBalance(ctx context.Context, amount int64, at time.Time) error {
	if _, err := t.tx.ExecContext(ctx,
		"DELETE FROM carried_balances WHERE group_id = ?",
		t.groupID,
	); err != nil {
		return fmt.Errorf("failed to clear carried balance: %w", err)
	}
	if amount == 0 {
		return nil
	}

	if _, err := t.tx.ExecContext(ctx,
		"INSERT INTO carried_balances (group_id, amount, created_at) VALUES (?, ?, ?)",
		t.groupID, amount, at.UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to insert carried balance: %w", err)
	}
	return nil
}
