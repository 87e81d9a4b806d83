package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// CarryOverPrefix marks an entry as balance imported from a previous cycle.
	CarryOverPrefix = "[结余]"

	// MaxNoteLength is the maximum number of characters kept in a note.
	MaxNoteLength = 255

	// blankNote is what the store keeps for an entry without a note.
	blankNote = " "
)

// Entry represents a single signed amount recorded in a cycle.
// Positive ordinary entries are deposits, negative ones withdrawals.
type Entry struct {
	// ID is assigned by the store on insert and defines insertion order.
	ID int64

	// CycleID is the cycle this entry belongs to.
	CycleID int64

	// GroupID must match the cycle's group.
	GroupID int64

	// ActorID is the user who recorded the entry.
	ActorID int64

	// Amount is never zero.
	Amount int64

	// Note is the stored note, including CarryOverPrefix for carry-overs.
	Note string

	// CreatedAt is when the entry was recorded.
	CreatedAt time.Time
}

// IsCarryOver reports whether the entry carries a previous balance.
func (e Entry) IsCarryOver() bool {
	return strings.HasPrefix(e.Note, CarryOverPrefix)
}

// IsDeposit reports whether the entry is an ordinary positive entry.
func (e Entry) IsDeposit() bool {
	return !e.IsCarryOver() && e.Amount > 0
}

// IsWithdrawal reports whether the entry is an ordinary negative entry.
func (e Entry) IsWithdrawal() bool {
	return !e.IsCarryOver() && e.Amount < 0
}

// DisplayNote returns the note as it should be shown to users.
func (e Entry) DisplayNote() string {
	return strings.TrimSpace(e.Note)
}

// NormalizeNote truncates a user-supplied note to MaxNoteLength characters
// and substitutes the blank placeholder for an empty one. A leading
// CarryOverPrefix is removed so ordinary entries cannot be mistaken for
// carry-overs.
func NormalizeNote(note string) string {
	note = strings.TrimSpace(note)
	for strings.HasPrefix(note, CarryOverPrefix) {
		note = strings.TrimSpace(strings.TrimPrefix(note, CarryOverPrefix))
	}
	if utf8.RuneCountInString(note) > MaxNoteLength {
		note = string([]rune(note)[:MaxNoteLength])
	}
	if note == "" {
		return blankNote
	}
	return note
}

// CarryOverNote builds the stored note of a carry-over entry.
// An empty note falls back to the given default.
func CarryOverNote(note, fallback string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		note = fallback
	}
	full := CarryOverPrefix + " " + note
	if utf8.RuneCountInString(full) > MaxNoteLength {
		full = string([]rune(full)[:MaxNoteLength])
	}
	return full
}
