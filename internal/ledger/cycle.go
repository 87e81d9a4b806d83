package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmynk/groupledger/internal/calculator"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// OpenResult is returned by Open.
type OpenResult struct {
	Cycle models.Cycle

	// PreviousBalance is the balance carried from the last closed cycle.
	// Import should only be offered when it is non-zero.
	PreviousBalance int64
}

// CloseResult is returned by Close.
type CloseResult struct {
	Cycle   models.Cycle
	Summary calculator.Summary
}

// Open starts a new cycle. It fails with ErrAlreadyActive while another
// cycle of the group is active.
func (l *Ledger) Open(ctx context.Context, groupID int64) (OpenResult, error) {
	var res OpenResult
	err := l.update(ctx, groupID, func(ctx context.Context, tx storage.Tx) error {
		defer l.cycles.Invalidate(groupID)

		_, err := l.activeCycleID(ctx, tx, groupID)
		if err == nil {
			return ErrAlreadyActive
		}
		if !errors.Is(err, ErrNoActiveCycle) {
			return err
		}

		cycle := models.Cycle{StartTime: l.now()}
		if err := tx.CreateCycle(ctx, &cycle); err != nil {
			return err
		}
		previous, err := tx.LatestCarriedBalance(ctx)
		if err != nil {
			return err
		}

		res = OpenResult{Cycle: cycle, PreviousBalance: previous}
		return nil
	})
	if err != nil {
		return OpenResult{}, err
	}

	l.logger.Info("Cycle opened",
		"group_id", groupID,
		"cycle_id", res.Cycle.ID,
		"previous_balance", res.PreviousBalance,
	)
	return res, nil
}

// Close ends the active cycle. In one transaction it computes the final
// summary, marks the cycle inactive and replaces the group's carried
// balance with the net balance (no row when the net balance is zero).
// On failure nothing changes and the cycle stays active.
func (l *Ledger) Close(ctx context.Context, groupID int64) (CloseResult, error) {
	var res CloseResult
	err := l.update(ctx, groupID, func(ctx context.Context, tx storage.Tx) error {
		defer l.cycles.Invalidate(groupID)

		cycleID, err := l.activeCycleID(ctx, tx, groupID)
		if err != nil {
			return err
		}
		summary, err := summarize(ctx, tx, cycleID)
		if err != nil {
			return err
		}

		end := l.now()
		if err := tx.CloseCycle(ctx, cycleID, end); err != nil {
			return err
		}
		if err := tx.ReplaceCarriedBalance(ctx, summary.NetBalance, end); err != nil {
			return err
		}
		cycle, err := tx.GetCycle(ctx, cycleID)
		if err != nil {
			return err
		}

		res = CloseResult{Cycle: *cycle, Summary: summary}
		return nil
	})
	if err != nil {
		if !isStateError(err) {
			l.logger.Error("Close cycle rolled back", "group_id", groupID, "error", err)
		}
		return CloseResult{}, err
	}

	l.logger.Info("Cycle closed",
		"group_id", groupID,
		"cycle_id", res.Cycle.ID,
		"net_balance", res.Summary.NetBalance,
	)
	return res, nil
}

// ImportCarryOver records the previous cycle's balance in the active cycle.
// It fails with ErrAlreadyImported if the cycle already has a carry-over.
func (l *Ledger) ImportCarryOver(ctx context.Context, groupID, actorID, amount int64) (EntryResult, error) {
	return l.RecordCarryOver(ctx, groupID, actorID, amount, importNote)
}

// RecordCarryOver is ImportCarryOver with a custom note. An empty note is
// recorded as the default carry-over note.
func (l *Ledger) RecordCarryOver(ctx context.Context, groupID, actorID, amount int64, note string) (EntryResult, error) {
	if amount == 0 {
		return EntryResult{}, fmt.Errorf("%w: 0", ErrInvalidAmount)
	}

	entry := models.Entry{
		ActorID: actorID,
		Amount:  amount,
		Note:    models.CarryOverNote(note, carryDefault),
	}
	return l.appendEntry(ctx, groupID, entry, func(ctx context.Context, tx storage.Tx, cycleID int64) error {
		has, err := tx.HasCarryOver(ctx, cycleID)
		if err != nil {
			return err
		}
		if has {
			return ErrAlreadyImported
		}
		return nil
	})
}

// isStateError reports whether err is an expected domain condition rather
// than a storage failure.
func isStateError(err error) bool {
	return errors.Is(err, ErrNoActiveCycle) ||
		errors.Is(err, ErrAlreadyActive) ||
		errors.Is(err, ErrEmptyLedger) ||
		errors.Is(err, ErrAlreadyImported) ||
		errors.Is(err, ErrInvalidAmount)
}

// IsStateError reports whether err is a validation or state error that
// leaves the ledger unchanged and can be shown to the user as is.
func IsStateError(err error) bool {
	return isStateError(err)
}
