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

// UpsertParticipant inserts a participant or updates their display name.
func (t *sqliteTx) UpsertParticipant(ctx context.Context, p models.Participant) error {
	query := `
		INSERT INTO participants (user_id, display_name, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			updated_at = excluded.updated_at
	`

	_, err := t.tx.ExecContext(ctx, query, p.UserID, p.DisplayName, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert participant: %w", err)
	}
	return nil
}

// ParticipantByName retrieves a participant by "@username".
// When a name has moved between users, the most recently seen holder wins.
func (t *sqliteTx) ParticipantByName(ctx context.Context, displayName string) (*models.Participant, error) {
	query := `
		SELECT user_id, display_name
		FROM participants
		WHERE display_name = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`

	p := &models.Participant{}
	err := t.tx.QueryRowContext(ctx, query, displayName).Scan(&p.UserID, &p.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant by name: %w", err)
	}
	return p, nil
}

// GrantOperator gives a user operator rights in this group.
func (t *sqliteTx) GrantOperator(ctx context.Context, userID int64) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO operators (group_id, user_id) VALUES (?, ?)",
		t.groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to grant operator: %w", err)
	}
	return nil
}

// RevokeOperator removes a user's operator rights in this group.
func (t *sqliteTx) RevokeOperator(ctx context.Context, userID int64) error {
	_, err := t.tx.ExecContext(ctx,
		"DELETE FROM operators WHERE group_id = ? AND user_id = ?",
		t.groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke operator: %w", err)
	}
	return nil
}

// IsOperator reports whether the user holds an operator grant in this group.
func (t *sqliteTx) IsOperator(ctx context.Context, userID int64) (bool, error) {
	var found int
	err := t.tx.QueryRowContext(ctx,
		"SELECT 1 FROM operators WHERE group_id = ? AND user_id = ?",
		t.groupID, userID,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check operator: %w", err)
	}
	return true, nil
}

// ListOperators returns the operators of this group ordered by display name.
func (t *sqliteTx) ListOperators(ctx context.Context) ([]models.Participant, error) {
	query := `
		SELECT p.user_id, p.display_name
		FROM operators o
		JOIN participants p ON o.user_id = p.user_id
		WHERE o.group_id = ?
		ORDER BY p.display_name
	`

	rows, err := t.tx.QueryContext(ctx, query, t.groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list operators: %w", err)
	}
	defer rows.Close()

	var operators []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.UserID, &p.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan operator: %w", err)
		}
		operators = append(operators, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operators: %w", err)
	}
	return operators, nil
}
