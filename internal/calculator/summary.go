package calculator

import (
	"github.com/mmynk/groupledger/internal/models"
)

// RecentLimit is how many of the latest deposits and withdrawals a Summary keeps.
const RecentLimit = 5

// Summary aggregates the entries of one cycle.
type Summary struct {
	TotalDeposits    int64
	DepositCount     int
	TotalWithdrawals int64 // absolute value
	WithdrawalCount  int

	// PreviousBalance is the sum of carry-over entries in the cycle.
	PreviousBalance int64
	CarryOverCount  int

	// NetBalance = TotalDeposits - TotalWithdrawals + PreviousBalance
	NetBalance int64

	// EntryCount counts every entry, carry-overs included.
	EntryCount int

	// RecentDeposits and RecentWithdrawals hold up to RecentLimit
	// ordinary entries, newest first.
	RecentDeposits    []models.Entry
	RecentWithdrawals []models.Entry
}

// Summarize computes a Summary by scanning the entries of a cycle.
//
// Algorithm:
//   - Carry-over entries only contribute to PreviousBalance
//   - Ordinary positive entries are deposits, negative ones withdrawals
//   - Recency is decided by entry ID, not by slice position, so the totals
//     and recent lists are the same for any ordering of the same entries
func Summarize(entries []models.Entry) Summary {
	var s Summary
	for _, e := range entries {
		s.EntryCount++
		switch {
		case e.IsCarryOver():
			s.PreviousBalance += e.Amount
			s.CarryOverCount++
		case e.Amount > 0:
			s.TotalDeposits += e.Amount
			s.DepositCount++
			s.RecentDeposits = keepRecent(s.RecentDeposits, e)
		case e.Amount < 0:
			s.TotalWithdrawals += -e.Amount
			s.WithdrawalCount++
			s.RecentWithdrawals = keepRecent(s.RecentWithdrawals, e)
		}
	}
	s.NetBalance = s.TotalDeposits - s.TotalWithdrawals + s.PreviousBalance
	return s
}

// keepRecent inserts e into list (sorted by ID descending) and trims it to RecentLimit.
func keepRecent(list []models.Entry, e models.Entry) []models.Entry {
	pos := len(list)
	for i, existing := range list {
		if e.ID > existing.ID {
			pos = i
			break
		}
	}
	if pos >= RecentLimit {
		return list
	}
	list = append(list, models.Entry{})
	copy(list[pos+1:], list[pos:])
	list[pos] = e
	if len(list) > RecentLimit {
		list = list[:RecentLimit]
	}
	return list
}

// TotalPages returns the number of pages needed for n items, never less than 1.
func TotalPages(n, pageSize int) int {
	if pageSize <= 0 || n <= 0 {
		return 1
	}
	return (n + pageSize - 1) / pageSize
}
