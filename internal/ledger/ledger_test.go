package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/groupledger/internal/cache"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/serializer"
	"github.com/mmynk/groupledger/internal/storage"
	"github.com/mmynk/groupledger/internal/storage/sqlite"
)

const testGroup int64 = -100777

func newTestLedger(t *testing.T, opts ...Option) (*Ledger, *sqlite.SQLiteStore) {
	t.Helper()

	store, err := sqlite.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return New(store, serializer.New(), cache.NewActiveCycles(), opts...), store
}

func mustOpen(t *testing.T, l *Ledger) OpenResult {
	t.Helper()
	res, err := l.Open(context.Background(), testGroup)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return res
}

func mustAdd(t *testing.T, l *Ledger, amount int64, note string) EntryResult {
	t.Helper()
	res, err := l.AddEntry(context.Background(), testGroup, 42, amount, note)
	if err != nil {
		t.Fatalf("AddEntry(%d) failed: %v", amount, err)
	}
	return res
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"+100", 100, false},
		{"-50", -50, false},
		{"300", 300, false},
		{" +7 ", 7, false},
		{"0", 0, true},
		{"+0", 0, true},
		{"1.5", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{"99999999999999999999", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Errorf("ParseAmount(%q) error = %v, want ErrInvalidAmount", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseAmount(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestOpenClose(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	if _, err := l.Close(ctx, testGroup); !errors.Is(err, ErrNoActiveCycle) {
		t.Fatalf("Close without cycle: error = %v, want ErrNoActiveCycle", err)
	}

	opened := mustOpen(t, l)
	if opened.PreviousBalance != 0 {
		t.Errorf("PreviousBalance = %d, want 0", opened.PreviousBalance)
	}
	if !opened.Cycle.Active {
		t.Error("Expected opened cycle to be active")
	}

	if _, err := l.Open(ctx, testGroup); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second Open: error = %v, want ErrAlreadyActive", err)
	}

	closed, err := l.Close(ctx, testGroup)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if closed.Cycle.Active || closed.Cycle.EndTime == nil {
		t.Errorf("Closed cycle = %+v, want inactive with end time", closed.Cycle)
	}
	if closed.Cycle.ID != opened.Cycle.ID {
		t.Errorf("Closed cycle ID = %d, want %d", closed.Cycle.ID, opened.Cycle.ID)
	}

	if _, err := l.AddEntry(ctx, testGroup, 1, 10, ""); !errors.Is(err, ErrNoActiveCycle) {
		t.Errorf("AddEntry after close: error = %v, want ErrNoActiveCycle", err)
	}
}

func TestConcurrentOpen(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	const n = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		conflict int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Open(ctx, testGroup)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrAlreadyActive):
				conflict++
			default:
				t.Errorf("Open failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 || conflict != n-1 {
		t.Errorf("success = %d, conflict = %d, want 1 and %d", success, conflict, n-1)
	}
}

func TestAddEntryAndUndo(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	mustOpen(t, l)

	if _, err := l.UndoLast(ctx, testGroup); !errors.Is(err, ErrEmptyLedger) {
		t.Fatalf("Undo on empty cycle: error = %v, want ErrEmptyLedger", err)
	}
	if _, err := l.AddEntry(ctx, testGroup, 1, 0, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("AddEntry(0): error = %v, want ErrInvalidAmount", err)
	}

	before := mustAdd(t, l, 500, "first").Summary

	added := mustAdd(t, l, -120, "payout")
	if added.Entry.ID == 0 {
		t.Error("Expected entry ID to be set")
	}
	if added.Summary.NetBalance != 380 {
		t.Errorf("NetBalance = %d, want 380", added.Summary.NetBalance)
	}

	undone, err := l.UndoLast(ctx, testGroup)
	if err != nil {
		t.Fatalf("UndoLast failed: %v", err)
	}
	if undone.Entry.ID != added.Entry.ID {
		t.Errorf("Undo removed entry %d, want %d", undone.Entry.ID, added.Entry.ID)
	}
	if undone.Summary.NetBalance != before.NetBalance ||
		undone.Summary.EntryCount != before.EntryCount ||
		undone.Summary.TotalWithdrawals != before.TotalWithdrawals {
		t.Errorf("Summary after undo = %+v, want %+v", undone.Summary, before)
	}
}

func TestAddEntryNotes(t *testing.T) {
	l, _ := newTestLedger(t)
	mustOpen(t, l)

	tests := []struct {
		name string
		note string
		want string
	}{
		{"empty", "", " "},
		{"plain", "client A", "client A"},
		{"prefix stripped", models.CarryOverPrefix + " fake", "fake"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustAdd(t, l, 10, tt.note)
			if res.Entry.Note != tt.want {
				t.Errorf("Note = %q, want %q", res.Entry.Note, tt.want)
			}
			if res.Entry.IsCarryOver() {
				t.Error("Ordinary entry must not be a carry-over")
			}
		})
	}
}

func TestCarryOver(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	if _, err := l.ImportCarryOver(ctx, testGroup, 1, 100); !errors.Is(err, ErrNoActiveCycle) {
		t.Fatalf("Import without cycle: error = %v, want ErrNoActiveCycle", err)
	}

	mustOpen(t, l)

	if _, err := l.ImportCarryOver(ctx, testGroup, 1, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("Import(0): error = %v, want ErrInvalidAmount", err)
	}

	res, err := l.ImportCarryOver(ctx, testGroup, 1, 900)
	if err != nil {
		t.Fatalf("ImportCarryOver failed: %v", err)
	}
	if res.Entry.Note != models.CarryOverPrefix+" "+importNote {
		t.Errorf("Note = %q", res.Entry.Note)
	}
	if res.Summary.PreviousBalance != 900 || res.Summary.NetBalance != 900 {
		t.Errorf("Summary = %+v, want previous and net 900", res.Summary)
	}
	if res.Summary.DepositCount != 0 {
		t.Errorf("DepositCount = %d, want 0", res.Summary.DepositCount)
	}

	if _, err := l.ImportCarryOver(ctx, testGroup, 1, 900); !errors.Is(err, ErrAlreadyImported) {
		t.Errorf("second Import: error = %v, want ErrAlreadyImported", err)
	}
	if _, err := l.RecordCarryOver(ctx, testGroup, 1, 50, "manual"); !errors.Is(err, ErrAlreadyImported) {
		t.Errorf("RecordCarryOver after import: error = %v, want ErrAlreadyImported", err)
	}

	// Undoing the carry-over frees the slot.
	if _, err := l.UndoLast(ctx, testGroup); err != nil {
		t.Fatalf("UndoLast failed: %v", err)
	}
	manual, err := l.RecordCarryOver(ctx, testGroup, 1, -30, "")
	if err != nil {
		t.Fatalf("RecordCarryOver failed: %v", err)
	}
	if manual.Entry.Note != models.CarryOverPrefix+" "+carryDefault {
		t.Errorf("Note = %q", manual.Entry.Note)
	}
	if manual.Summary.NetBalance != -30 {
		t.Errorf("NetBalance = %d, want -30", manual.Summary.NetBalance)
	}
}

func TestCarriedBalanceAcrossCycles(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	mustOpen(t, l)
	mustAdd(t, l, 1000, "")
	mustAdd(t, l, -300, "")
	mustAdd(t, l, 200, "")

	closed, err := l.Close(ctx, testGroup)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	s := closed.Summary
	if s.TotalDeposits != 1200 || s.DepositCount != 2 || s.TotalWithdrawals != 300 || s.WithdrawalCount != 1 {
		t.Errorf("Summary = %+v", s)
	}
	if s.NetBalance != 900 {
		t.Fatalf("NetBalance = %d, want 900", s.NetBalance)
	}

	next := mustOpen(t, l)
	if next.PreviousBalance != 900 {
		t.Fatalf("PreviousBalance = %d, want 900", next.PreviousBalance)
	}

	// A cycle closed at zero clears the carried balance.
	if _, err := l.Close(ctx, testGroup); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	third := mustOpen(t, l)
	if third.PreviousBalance != 0 {
		t.Errorf("PreviousBalance = %d, want 0", third.PreviousBalance)
	}
}

func TestPagination(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	cycle := mustOpen(t, l).Cycle

	for i := 1; i <= 25; i++ {
		mustAdd(t, l, int64(i), "")
	}

	tests := []struct {
		page      int
		wantLen   int
		wantFirst int64
	}{
		{1, 10, 25},
		{2, 10, 15},
		{3, 5, 5},
		{4, 0, 0},
	}

	for _, tt := range tests {
		p, err := l.ListPage(ctx, testGroup, cycle.ID, tt.page)
		if err != nil {
			t.Fatalf("ListPage(%d) failed: %v", tt.page, err)
		}
		if p.TotalPages != 3 {
			t.Errorf("page %d: TotalPages = %d, want 3", tt.page, p.TotalPages)
		}
		if len(p.Entries) != tt.wantLen {
			t.Errorf("page %d: len = %d, want %d", tt.page, len(p.Entries), tt.wantLen)
			continue
		}
		if tt.wantLen > 0 && p.Entries[0].Amount != tt.wantFirst {
			t.Errorf("page %d: first amount = %d, want %d", tt.page, p.Entries[0].Amount, tt.wantFirst)
		}
	}
}

func TestPaginationEmptyAndPageSize(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, WithPageSize(4))
	cycle := mustOpen(t, l).Cycle

	p, err := l.ListPage(ctx, testGroup, cycle.ID, 1)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if p.TotalPages != 1 || len(p.Entries) != 0 {
		t.Errorf("empty cycle page = %+v, want 1 total page and no entries", p)
	}

	for i := 0; i < 9; i++ {
		mustAdd(t, l, 1, "")
	}
	d, err := l.Details(ctx, testGroup, cycle.ID, 3)
	if err != nil {
		t.Fatalf("Details failed: %v", err)
	}
	if d.Page.TotalPages != 3 || len(d.Page.Entries) != 1 {
		t.Errorf("Details page = %+v, want 3 pages and 1 entry", d.Page)
	}
	if d.Summary.EntryCount != 9 {
		t.Errorf("EntryCount = %d, want 9", d.Summary.EntryCount)
	}
}

func TestConcurrentAddEntry(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	cycle := mustOpen(t, l).Cycle

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := int64(10)
			if i%2 == 1 {
				amount = -3
			}
			if _, err := l.AddEntry(ctx, testGroup, int64(i), amount, ""); err != nil {
				t.Errorf("AddEntry failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	s, err := l.Summarize(ctx, testGroup, cycle.ID)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if s.EntryCount != n || s.DepositCount != n/2 || s.WithdrawalCount != n/2 {
		t.Errorf("Summary = %+v, want %d entries split evenly", s, n)
	}
	if want := int64(n/2*10 - n/2*3); s.NetBalance != want {
		t.Errorf("NetBalance = %d, want %d", s.NetBalance, want)
	}
}

func TestSummarizeUnknownCycle(t *testing.T) {
	l, _ := newTestLedger(t)
	if _, err := l.Summarize(context.Background(), testGroup, 999); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want storage.ErrNotFound", err)
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	l, _ := newTestLedger(t, WithClock(func() time.Time { return fixed }))

	if _, err := l.Status(ctx, testGroup); !errors.Is(err, ErrNoActiveCycle) {
		t.Fatalf("error = %v, want ErrNoActiveCycle", err)
	}

	mustOpen(t, l)
	mustAdd(t, l, 70, "")

	st, err := l.Status(ctx, testGroup)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !st.Cycle.StartTime.Equal(fixed) {
		t.Errorf("StartTime = %v, want %v", st.Cycle.StartTime, fixed)
	}
	if st.Summary.NetBalance != 70 {
		t.Errorf("NetBalance = %d, want 70", st.Summary.NetBalance)
	}
}

func TestCloseRollsBackOnCancelledContext(t *testing.T) {
	l, _ := newTestLedger(t)
	mustOpen(t, l)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Close(ctx, testGroup); err == nil {
		t.Fatal("Expected Close with cancelled context to fail")
	}

	if _, err := l.ActiveCycle(context.Background(), testGroup); err != nil {
		t.Errorf("Cycle should remain active after failed close: %v", err)
	}
}

func TestOperators(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	alice := models.Participant{UserID: 7, DisplayName: "@alice"}
	if err := l.RecordParticipant(ctx, testGroup, alice); err != nil {
		t.Fatalf("RecordParticipant failed: %v", err)
	}

	found, err := l.LookupParticipant(ctx, testGroup, "alice")
	if err != nil {
		t.Fatalf("LookupParticipant failed: %v", err)
	}
	if found.UserID != 7 {
		t.Errorf("UserID = %d, want 7", found.UserID)
	}
	if _, err := l.LookupParticipant(ctx, testGroup, "@nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want storage.ErrNotFound", err)
	}

	bob := models.Participant{UserID: 8, DisplayName: "@bob"}
	if err := l.GrantOperator(ctx, testGroup, bob); err != nil {
		t.Fatalf("GrantOperator failed: %v", err)
	}
	ok, err := l.IsOperator(ctx, testGroup, 8)
	if err != nil || !ok {
		t.Fatalf("IsOperator = %v, %v, want true", ok, err)
	}

	ops, err := l.Operators(ctx, testGroup)
	if err != nil {
		t.Fatalf("Operators failed: %v", err)
	}
	if len(ops) != 1 || ops[0].DisplayName != "@bob" {
		t.Errorf("Operators = %+v, want [@bob]", ops)
	}

	if err := l.RevokeOperator(ctx, testGroup, 8); err != nil {
		t.Fatalf("RevokeOperator failed: %v", err)
	}
	if ok, _ := l.IsOperator(ctx, testGroup, 8); ok {
		t.Error("Expected grant to be revoked")
	}
}
