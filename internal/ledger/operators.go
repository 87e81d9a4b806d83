package ledger

import (
	"context"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// RecordParticipant stores a sender seen in the group, renaming the
// participant if their username changed.
func (l *Ledger) RecordParticipant(ctx context.Context, groupID int64, p models.Participant) error {
	return l.update(ctx, groupID, func(ctx context.Context, tx storage.Tx) error {
		return tx.UpsertParticipant(ctx, p)
	})
}

// LookupParticipant resolves an "@username" to a recorded participant.
// Returns storage.ErrNotFound when nobody with that name has been seen.
func (l *Ledger) LookupParticipant(ctx context.Context, groupID int64, name string) (models.Participant, error) {
	name = models.MentionName(name)
	if name == "" {
		return models.Participant{}, storage.ErrNotFound
	}

	var p models.Participant
	err := l.store.View(ctx, groupID, func(tx storage.Tx) error {
		found, err := tx.ParticipantByName(ctx, name)
		if err != nil {
			return err
		}
		p = *found
		return nil
	})
	return p, err
}

// GrantOperator makes p an operator of the group. The participant is
// recorded first so the grant always references a known user.
func (l *Ledger) GrantOperator(ctx context.Context, groupID int64, p models.Participant) error {
	err := l.update(ctx, groupID, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.UpsertParticipant(ctx, p); err != nil {
			return err
		}
		return tx.GrantOperator(ctx, p.UserID)
	})
	if err != nil {
		return err
	}
	l.logger.Info("Operator granted", "group_id", groupID, "user_id", p.UserID)
	return nil
}

// RevokeOperator removes the user's operator grant, if any.
func (l *Ledger) RevokeOperator(ctx context.Context, groupID, userID int64) error {
	err := l.update(ctx, groupID, func(ctx context.Context, tx storage.Tx) error {
		return tx.RevokeOperator(ctx, userID)
	})
	if err != nil {
		return err
	}
	l.logger.Info("Operator revoked", "group_id", groupID, "user_id", userID)
	return nil
}

// IsOperator reports whether the user holds an operator grant in the group.
func (l *Ledger) IsOperator(ctx context.Context, groupID, userID int64) (bool, error) {
	var ok bool
	err := l.store.View(ctx, groupID, func(tx storage.Tx) error {
		var err error
		ok, err = tx.IsOperator(ctx, userID)
		return err
	})
	return ok, err
}

// Operators lists the group's operators.
func (l *Ledger) Operators(ctx context.Context, groupID int64) ([]models.Participant, error) {
	var ops []models.Participant
	err := l.store.View(ctx, groupID, func(tx storage.Tx) error {
		var err error
		ops, err = tx.ListOperators(ctx)
		return err
	})
	return ops, err
}
