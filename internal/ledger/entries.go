package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmynk/groupledger/internal/calculator"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// EntryResult is returned by operations that add or remove an entry.
type EntryResult struct {
	// Entry is the entry that was added or removed.
	Entry models.Entry

	// Summary is the cycle's summary after the change.
	Summary calculator.Summary
}

// Page is one page of a cycle's entries, newest first.
type Page struct {
	CycleID    int64
	Number     int
	TotalPages int
	Entries    []models.Entry
}

// Details is a page of entries together with the cycle's summary, read
// from the same snapshot.
type Details struct {
	Cycle   models.Cycle
	Summary calculator.Summary
	Page    Page
}

// AddEntry appends a deposit (amount > 0) or withdrawal (amount < 0) to
// the active cycle and returns the recomputed summary.
func (l *Ledger) AddEntry(ctx context.Context, groupID, actorID, amount int64, note string) (EntryResult, error) {
	if amount == 0 {
		return EntryResult{}, fmt.Errorf("%w: 0", ErrInvalidAmount)
	}
	entry := models.Entry{
		ActorID: actorID,
		Amount:  amount,
		Note:    models.NormalizeNote(note),
	}
	return l.appendEntry(ctx, groupID, entry, nil)
}

// appendEntry inserts entry into the active cycle. check, if set, runs
// first in the same transaction and may veto the insert.
func (l *Ledger) appendEntry(ctx context.Context, groupID int64, entry models.Entry, check func(ctx context.Context, tx storage.Tx, cycleID int64) error) (EntryResult, error) {
	var res EntryResult
	err := l.update(ctx, groupID, func(ctx context.Context, tx storage.Tx) error {
		cycleID, err := l.activeCycleID(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(ctx, tx, cycleID); err != nil {
				return err
			}
		}

		entry.CycleID = cycleID
		entry.CreatedAt = l.now()
		if err := tx.InsertEntry(ctx, &entry); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				l.cycles.Invalidate(groupID)
			}
			return err
		}

		summary, err := summarize(ctx, tx, cycleID)
		if err != nil {
			return err
		}
		res = EntryResult{Entry: entry, Summary: summary}
		return nil
	})
	if err != nil {
		if !isStateError(err) {
			l.logger.Error("Add entry rolled back", "group_id", groupID, "amount", entry.Amount, "error", err)
		}
		return EntryResult{}, err
	}

	l.logger.Debug("Entry added",
		"group_id", groupID,
		"cycle_id", res.Entry.CycleID,
		"entry_id", res.Entry.ID,
		"amount", res.Entry.Amount,
	)
	return res, nil
}

// UndoLast removes the newest entry of the active cycle, carry-overs
// included, and returns it with the refreshed summary.
func (l *Ledger) UndoLast(ctx context.Context, groupID int64) (EntryResult, error) {
	var res EntryResult
	err := l.update(ctx, groupID, func(ctx context.Context, tx storage.Tx) error {
		cycleID, err := l.activeCycleID(ctx, tx, groupID)
		if err != nil {
			return err
		}

		last, err := tx.LastEntry(ctx, cycleID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrEmptyLedger
		}
		if err != nil {
			return err
		}
		if err := tx.DeleteEntry(ctx, last.ID); err != nil {
			return err
		}

		summary, err := summarize(ctx, tx, cycleID)
		if err != nil {
			return err
		}
		res = EntryResult{Entry: *last, Summary: summary}
		return nil
	})
	if err != nil {
		if !isStateError(err) {
			l.logger.Error("Undo rolled back", "group_id", groupID, "error", err)
		}
		return EntryResult{}, err
	}

	l.logger.Debug("Entry removed", "group_id", groupID, "entry_id", res.Entry.ID)
	return res, nil
}

// Summarize computes the summary of a cycle of the group.
func (l *Ledger) Summarize(ctx context.Context, groupID, cycleID int64) (calculator.Summary, error) {
	var summary calculator.Summary
	err := l.store.View(ctx, groupID, func(tx storage.Tx) error {
		if _, err := tx.GetCycle(ctx, cycleID); err != nil {
			return err
		}
		var err error
		summary, err = summarize(ctx, tx, cycleID)
		return err
	})
	return summary, err
}

// ListPage returns one page of a cycle's entries, newest first. Pages are
// 1-indexed; a page past the end has no entries but still reports the
// correct TotalPages.
func (l *Ledger) ListPage(ctx context.Context, groupID, cycleID int64, page int) (Page, error) {
	var p Page
	err := l.store.View(ctx, groupID, func(tx storage.Tx) error {
		var err error
		p, err = l.page(ctx, tx, cycleID, page)
		return err
	})
	return p, err
}

// Details returns the cycle's summary and one page of its entries.
func (l *Ledger) Details(ctx context.Context, groupID, cycleID int64, page int) (Details, error) {
	var d Details
	err := l.store.View(ctx, groupID, func(tx storage.Tx) error {
		cycle, err := tx.GetCycle(ctx, cycleID)
		if err != nil {
			return err
		}
		summary, err := summarize(ctx, tx, cycleID)
		if err != nil {
			return err
		}
		p, err := l.page(ctx, tx, cycleID, page)
		if err != nil {
			return err
		}
		d = Details{Cycle: *cycle, Summary: summary, Page: p}
		return nil
	})
	return d, err
}

func (l *Ledger) page(ctx context.Context, tx storage.Tx, cycleID int64, page int) (Page, error) {
	if page < 1 {
		page = 1
	}
	total, err := tx.CountEntries(ctx, cycleID)
	if err != nil {
		return Page{}, err
	}
	p := Page{
		CycleID:    cycleID,
		Number:     page,
		TotalPages: calculator.TotalPages(total, l.pageSize),
	}
	if page > p.TotalPages {
		return p, nil
	}
	p.Entries, err = tx.PageEntries(ctx, cycleID, (page-1)*l.pageSize, l.pageSize)
	if err != nil {
		return Page{}, err
	}
	return p, nil
}

// Status is the state of a group's ledger.
type Status struct {
	Cycle   models.Cycle
	Summary calculator.Summary

	// CarriedBalance is the balance left by the last closed cycle.
	CarriedBalance int64
}

// Status returns the group's active cycle and its summary, or
// ErrNoActiveCycle.
func (l *Ledger) Status(ctx context.Context, groupID int64) (Status, error) {
	var st Status
	err := l.store.View(ctx, groupID, func(tx storage.Tx) error {
		carried, err := tx.LatestCarriedBalance(ctx)
		if err != nil {
			return err
		}
		st.CarriedBalance = carried

		cycle, err := tx.ActiveCycle(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNoActiveCycle
		}
		if err != nil {
			return err
		}
		st.Cycle = *cycle
		st.Summary, err = summarize(ctx, tx, cycle.ID)
		return err
	})
	return st, err
}

// ActiveCycle returns the group's active cycle, or ErrNoActiveCycle.
func (l *Ledger) ActiveCycle(ctx context.Context, groupID int64) (models.Cycle, error) {
	var cycle models.Cycle
	err := l.store.View(ctx, groupID, func(tx storage.Tx) error {
		c, err := tx.ActiveCycle(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNoActiveCycle
		}
		if err != nil {
			return err
		}
		cycle = *c
		return nil
	})
	return cycle, err
}
