package models

import "time"

// Cycle represents one accounting period for a group.
// At most one cycle per group is active at any time.
type Cycle struct {
	// ID is assigned by the store on insert.
	ID int64

	// GroupID is the chat the cycle belongs to.
	GroupID int64

	// StartTime is when the cycle was opened.
	StartTime time.Time

	// EndTime is when the cycle was closed. Nil while the cycle is active.
	EndTime *time.Time

	// Active reports whether entries may still be recorded in this cycle.
	Active bool
}

// CarriedBalance is the net balance left over when a cycle closes.
// Only the latest row per group is meaningful; a missing row reads as 0.
type CarriedBalance struct {
	ID        int64
	GroupID   int64
	Amount    int64
	CreatedAt time.Time
}
