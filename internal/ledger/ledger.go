// Package ledger implements the per-group cycle state machine and entry
// ledger on top of storage.Store.
//
// Every mutating operation runs under the group's lock and inside one
// store transaction: either all of its writes apply or none do. Read-only
// operations (Summarize, ListPage, Details, Status) take no lock and read a
// consistent snapshot.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mmynk/groupledger/internal/cache"
	"github.com/mmynk/groupledger/internal/calculator"
	"github.com/mmynk/groupledger/internal/serializer"
	"github.com/mmynk/groupledger/internal/storage"
)

var (
	ErrNoActiveCycle   = errors.New("no active cycle")
	ErrAlreadyActive   = errors.New("a cycle is already active")
	ErrEmptyLedger     = errors.New("no entries to undo")
	ErrAlreadyImported = errors.New("carry-over already recorded for this cycle")
	ErrInvalidAmount   = errors.New("amount must be a non-zero integer")
)

// DefaultPageSize is the number of entries on one details page.
const DefaultPageSize = 10

const (
	importNote   = "自动导入"
	carryDefault = "上期结余"
)

// Ledger is the entry point for all ledger operations.
type Ledger struct {
	store    storage.Store
	locks    *serializer.Locks
	cycles   *cache.ActiveCycles
	now      func() time.Time
	pageSize int
	logger   *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for cycle and entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithPageSize sets the details page size. Non-positive values are ignored.
func WithPageSize(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New creates a Ledger. locks and cycles are process-wide and shared with
// anything else that writes to the same store.
func New(store storage.Store, locks *serializer.Locks, cycles *cache.ActiveCycles, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		locks:    locks,
		cycles:   cycles,
		now:      time.Now,
		pageSize: DefaultPageSize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PageSize returns the configured details page size.
func (l *Ledger) PageSize() int { return l.pageSize }

// ParseAmount parses a signed whole amount such as "+100" or "-50".
// Zero, fractions and out-of-range values fail with ErrInvalidAmount.
func ParseAmount(s string) (int64, error) {
	amount, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if amount == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return amount, nil
}

// update runs fn under the group lock inside a write transaction.
func (l *Ledger) update(ctx context.Context, groupID int64, fn func(ctx context.Context, tx storage.Tx) error) error {
	return l.locks.With(ctx, groupID, func(ctx context.Context) error {
		return l.store.Update(ctx, groupID, func(tx storage.Tx) error {
			return fn(ctx, tx)
		})
	})
}

// activeCycleID returns the group's active cycle ID. Callers must hold the
// group lock; the cache is only written here.
func (l *Ledger) activeCycleID(ctx context.Context, tx storage.Tx, groupID int64) (int64, error) {
	if id, ok := l.cycles.Get(groupID); ok {
		return id, nil
	}
	cycle, err := tx.ActiveCycle(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrNoActiveCycle
	}
	if err != nil {
		return 0, err
	}
	l.cycles.Set(groupID, cycle.ID)
	return cycle.ID, nil
}

func summarize(ctx context.Context, tx storage.Tx, cycleID int64) (calculator.Summary, error) {
	entries, err := tx.ListEntries(ctx, cycleID)
	if err != nil {
		return calculator.Summary{}, err
	}
	return calculator.Summarize(entries), nil
}
