// Package storage provides abstractions for persistent ledger storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/groupledger/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the group-partitioned ledger storage.
// This abstraction allows swapping storage backends without changing the
// ledger layer. Every group is stored independently; its schema is created
// on first use.
type Store interface {
	// Update runs fn inside a read-write transaction for the group.
	// If fn returns an error, or the commit fails, every write made by fn
	// is rolled back and the error is returned.
	Update(ctx context.Context, groupID int64, fn func(tx Tx) error) error

	// View runs fn inside a read-only transaction, giving it a consistent
	// snapshot of the group's data.
	View(ctx context.Context, groupID int64, fn func(tx Tx) error) error

	// Groups lists the IDs of all groups that have storage.
	Groups(ctx context.Context) ([]int64, error)

	// Close releases any resources held by the store.
	Close() error
}

// Tx is the set of per-entity operations available inside a transaction.
// All operations are scoped to the transaction's group.
type Tx interface {
	// ActiveCycle returns the active cycle, or ErrNotFound.
	ActiveCycle(ctx context.Context) (*models.Cycle, error)
	// GetCycle returns a cycle of this group by ID, or ErrNotFound.
	GetCycle(ctx context.Context, cycleID int64) (*models.Cycle, error)
	// CreateCycle inserts an active cycle and populates cycle.ID.
	CreateCycle(ctx context.Context, cycle *models.Cycle) error
	// CloseCycle marks the cycle inactive with the given end time.
	CloseCycle(ctx context.Context, cycleID int64, endTime time.Time) error

	// InsertEntry appends an entry and populates entry.ID.
	InsertEntry(ctx context.Context, entry *models.Entry) error
	// LastEntry returns the most recently inserted entry of a cycle, or ErrNotFound.
	LastEntry(ctx context.Context, cycleID int64) (*models.Entry, error)
	// DeleteEntry removes an entry by ID.
	DeleteEntry(ctx context.Context, entryID int64) error
	// ListEntries returns every entry of a cycle in insertion order.
	ListEntries(ctx context.Context, cycleID int64) ([]models.Entry, error)
	// PageEntries returns up to limit entries of a cycle, newest first, skipping offset.
	PageEntries(ctx context.Context, cycleID int64, offset, limit int) ([]models.Entry, error)
	// CountEntries returns the number of entries in a cycle.
	CountEntries(ctx context.Context, cycleID int64) (int, error)
	// HasCarryOver reports whether the cycle already holds a carry-over entry.
	HasCarryOver(ctx context.Context, cycleID int64) (bool, error)

	// LatestCarriedBalance returns the current carried balance, 0 when none.
	LatestCarriedBalance(ctx context.Context) (int64, error)
	// ReplaceCarriedBalance deletes every carried balance row and inserts
	// a new one when amount is non-zero.
	ReplaceCarriedBalance(ctx context.Context, amount int64, at time.Time) error

	// UpsertParticipant inserts or renames a participant.
	UpsertParticipant(ctx context.Context, p models.Participant) error
	// ParticipantByName looks up a participant by "@username", or ErrNotFound.
	ParticipantByName(ctx context.Context, displayName string) (*models.Participant, error)

	// GrantOperator adds an operator grant; granting twice is a no-op.
	GrantOperator(ctx context.Context, userID int64) error
	// RevokeOperator removes an operator grant; revoking a missing grant is a no-op.
	RevokeOperator(ctx context.Context, userID int64) error
	// IsOperator reports whether the user holds an operator grant.
	IsOperator(ctx context.Context, userID int64) (bool, error)
	// ListOperators returns the group's operators with their display names.
	ListOperators(ctx context.Context) ([]models.Participant, error)
}
