package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mmynk/groupledger/internal/cache"
	"github.com/mmynk/groupledger/internal/delivery"
	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/report"
	"github.com/mmynk/groupledger/internal/serializer"
	"github.com/mmynk/groupledger/internal/storage/sqlite"
)

const (
	group    int64 = -1009
	adminID  int64 = 1
	memberID int64 = 2
)

var (
	admin  = User{ID: adminID, Username: "boss"}
	member = User{ID: memberID, Username: "member"}
)

type sent struct {
	op  string
	to  delivery.Target
	msg report.Message
}

type fakeOutbox struct {
	mu      sync.Mutex
	sent    []sent
	answers []string
}

func (f *fakeOutbox) Reply(ctx context.Context, to delivery.Target, msg report.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{op: "reply", to: to, msg: msg})
}

func (f *fakeOutbox) Edit(ctx context.Context, at delivery.Target, msg report.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{op: "edit", to: at, msg: msg})
}

func (f *fakeOutbox) Answer(ctx context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, id)
}

func (f *fakeOutbox) last(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("Expected a reply, got none")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeOutbox) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeDirectory struct {
	admins []int64
	err    error
}

func (d *fakeDirectory) Administrators(ctx context.Context, groupID int64) ([]int64, error) {
	return d.admins, d.err
}

type fixture struct {
	svc    *Service
	ledger *ledger.Ledger
	out    *fakeOutbox
	reg    *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlite.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	l := ledger.New(store, serializer.New(), cache.NewActiveCycles())
	admins := cache.NewAdmins(&fakeDirectory{admins: []int64{adminID}}, time.Minute)
	out := &fakeOutbox{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	svc := New(l, admins, out, WithMetrics(m), WithClock(func() time.Time { return fixed }))
	return &fixture{svc: svc, ledger: l, out: out, reg: reg}
}

var nextMessageID = 100

func (f *fixture) send(from User, text string) {
	nextMessageID++
	f.svc.HandleMessage(context.Background(), Message{
		ChatID:    group,
		IsGroup:   true,
		MessageID: nextMessageID,
		From:      from,
		Text:      text,
	})
}

func (f *fixture) replyTo(from User, target User, text string) {
	nextMessageID++
	f.svc.HandleMessage(context.Background(), Message{
		ChatID:    group,
		IsGroup:   true,
		MessageID: nextMessageID,
		From:      from,
		Text:      text,
		ReplyTo:   &target,
	})
}

func (f *fixture) press(from User, data, text string) {
	f.svc.HandleCallback(context.Background(), Callback{
		ID:          "cb",
		From:        from,
		ChatID:      group,
		MessageID:   7,
		MessageText: text,
		Data:        data,
	})
}

func TestEndToEndCycle(t *testing.T) {
	f := newFixture(t)

	f.send(admin, "上课")
	if got := f.out.last(t).msg.Text; got != "☀️ 新的记账周期已顺利开启！" {
		t.Errorf("open reply = %q", got)
	}

	f.send(admin, "+1000 first")
	f.send(admin, "-300")
	f.send(admin, "+200")

	last := f.out.last(t).msg
	if !strings.Contains(last.Text, "未下: <b>900</b> RMB") {
		t.Errorf("summary = %q, want net 900", last.Text)
	}
	if len(last.Keyboard) != 1 || !strings.HasPrefix(last.Keyboard[0][0].Data, "details_-1009_") {
		t.Errorf("keyboard = %+v", last.Keyboard)
	}

	f.send(admin, "下课")
	if got := f.out.last(t).msg.Text; !strings.Contains(got, "最终未下: 900 RMB") {
		t.Errorf("close reply = %q", got)
	}

	f.send(admin, "上课")
	prompt := f.out.last(t).msg
	if len(prompt.Keyboard) != 1 || prompt.Keyboard[0][0].Data != "importbalance_-1009_900" {
		t.Fatalf("open prompt keyboard = %+v, want import of 900", prompt.Keyboard)
	}

	f.press(admin, prompt.Keyboard[0][0].Data, prompt.Text)
	n := f.out.count()
	edited := f.out.sent[n-2]
	if edited.op != "edit" || edited.msg.Keyboard != nil || !strings.Contains(edited.msg.Text, "<b>900</b>") {
		t.Errorf("import edit = %+v", edited)
	}
	if got := f.out.last(t).msg.Text; !strings.Contains(got, "未下: <b>900</b> RMB") {
		t.Errorf("import summary = %q", got)
	}

	// A second press is rejected.
	f.press(admin, prompt.Keyboard[0][0].Data, prompt.Text)
	if got := f.out.last(t); got.op != "edit" || !strings.HasSuffix(got.msg.Text, report.ImportAlreadyExists) {
		t.Errorf("second import = %+v", got)
	}

	if len(f.out.answers) != 2 {
		t.Errorf("answers = %d, want every callback answered", len(f.out.answers))
	}
}

func TestPermissions(t *testing.T) {
	f := newFixture(t)

	f.send(member, "上课")
	if got := f.out.last(t).msg.Text; got != report.NoPermission {
		t.Errorf("reply = %q, want %q", got, report.NoPermission)
	}

	f.send(admin, "上课")
	before := f.out.count()

	for _, text := range []string{"+100", "-5", "结余 +10", "撤销"} {
		f.send(member, text)
	}
	if f.out.count() != before {
		t.Errorf("unauthorized entry commands must be silent, got %+v", f.out.sent[before:])
	}

	f.send(member, "设置操作员 @member")
	if got := f.out.last(t).msg.Text; got != report.AdminOnly {
		t.Errorf("reply = %q, want %q", got, report.AdminOnly)
	}
	f.send(member, "当前操作员")
	if got := f.out.last(t).msg.Text; got != report.AdminOnlyView {
		t.Errorf("reply = %q, want %q", got, report.AdminOnlyView)
	}

	// The member spoke above, so they can be granted by name.
	f.send(admin, "设置操作员 @member")
	if got := f.out.last(t).msg.Text; got != "✅ 已将 @member 设为操作员。" {
		t.Errorf("grant reply = %q", got)
	}

	f.send(member, "+100")
	if got := f.out.last(t).msg.Text; !strings.Contains(got, "未下: <b>100</b> RMB") {
		t.Errorf("operator entry reply = %q", got)
	}

	f.send(admin, "当前操作员")
	if got := f.out.last(t).msg.Text; got != "当前操作员：\n@member" {
		t.Errorf("list reply = %q", got)
	}

	f.replyTo(admin, member, "删除操作员")
	if got := f.out.last(t).msg.Text; got != "✅ 已移除 @member 的操作员权限。" {
		t.Errorf("revoke reply = %q", got)
	}
	before = f.out.count()
	f.send(member, "+100")
	if f.out.count() != before {
		t.Error("revoked operator must be ignored")
	}
}

func TestOperatorTargets(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"no target", "设置操作员", report.OperatorUsage},
		{"bare at", "设置操作员 @", report.OperatorUsage},
		{"unknown", "设置操作员 @ghost", "用户 @ghost 未在群内发言过。"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.send(admin, tt.text)
			if got := f.out.last(t).msg.Text; got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
		})
	}

	nameless := User{ID: 55}
	f.replyTo(admin, nameless, "设置操作员")
	if got := f.out.last(t).msg.Text; got != "✅ 已将 用户ID 55 设为操作员。" {
		t.Errorf("reply = %q", got)
	}
	ok, err := f.ledger.IsOperator(context.Background(), group, 55)
	if err != nil || !ok {
		t.Errorf("IsOperator = %v, %v, want true", ok, err)
	}
}

func TestLedgerErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		text string
		want string
	}{
		{"下课", report.NoActiveCycle},
		{"+100", report.NoActiveCycleHint},
		{"撤销", noCycle},
		{"结余 +5", noCycle},
	}
	for _, tt := range tests {
		f.send(admin, tt.text)
		if got := f.out.last(t).msg.Text; got != tt.want {
			t.Errorf("%s: reply = %q, want %q", tt.text, got, tt.want)
		}
	}

	f.send(admin, "上课")
	tests = []struct {
		text string
		want string
	}{
		{"上课", report.AlreadyActive},
		{"撤销", report.NothingToUndo},
		{"+0", report.InvalidAmount},
		{"结余", report.CarryOverUsage},
		{"结余 abc", report.CarryOverUsage},
	}
	for _, tt := range tests {
		f.send(admin, tt.text)
		if got := f.out.last(t).msg.Text; got != tt.want {
			t.Errorf("%s: reply = %q, want %q", tt.text, got, tt.want)
		}
	}

	f.send(admin, "结余 -50 昨天")
	if got := f.out.last(t).msg.Text; !strings.HasPrefix(got, "✅结余记录成功！") || !strings.Contains(got, "未下: <b>-50</b> RMB") {
		t.Errorf("carry-over reply = %q", got)
	}
	f.send(admin, "结余 +50")
	if got := f.out.last(t).msg.Text; got != report.AlreadyCarried {
		t.Errorf("reply = %q, want %q", got, report.AlreadyCarried)
	}

	f.send(admin, "撤销")
	if got := f.out.last(t).msg.Text; !strings.HasPrefix(got, "✅已撤销: -50 × [结余] 昨天") {
		t.Errorf("undo reply = %q", got)
	}
}

func TestIgnoredMessages(t *testing.T) {
	f := newFixture(t)

	for _, text := range []string{"hello", "+100abc", "上课了", "帮助我", "100", ""} {
		f.send(admin, text)
	}
	f.svc.HandleMessage(context.Background(), Message{ChatID: 5, IsGroup: false, From: admin, Text: "帮助"})

	if f.out.count() != 0 {
		t.Errorf("Expected no replies, got %+v", f.out.sent)
	}

	f.send(member, "帮助")
	if got := f.out.last(t).msg; got.Text != report.Help().Text {
		t.Error("help should be available to anyone")
	}
}

func TestDetailsCallback(t *testing.T) {
	f := newFixture(t)

	f.send(admin, "上课")
	for i := 0; i < 12; i++ {
		f.send(admin, "+1")
	}
	data := f.out.last(t).msg.Keyboard[0][0].Data

	f.press(member, data, "")
	got := f.out.last(t)
	if got.op != "edit" || got.to.MessageID != 7 {
		t.Fatalf("details = %+v, want edit of the button's message", got)
	}
	for _, want := range []string{"⏰截止时间: 2024-06-01 12:00:00", "第 1 / 共 2 页", "📌(总 12 笔"} {
		if !strings.Contains(got.msg.Text, want) {
			t.Errorf("details missing %q:\n%s", want, got.msg.Text)
		}
	}
	if len(got.msg.Keyboard) != 1 || got.msg.Keyboard[0][0].Text != "下一页 ➡️" {
		t.Errorf("keyboard = %+v", got.msg.Keyboard)
	}

	before := f.out.count()
	f.press(member, "details_-42_1_1", "")
	f.press(member, "garbage", "")
	if f.out.count() != before {
		t.Error("foreign or malformed callbacks must be ignored")
	}
}

func TestImportWithoutCycle(t *testing.T) {
	f := newFixture(t)

	f.press(admin, report.ImportCallback(group, 300), "prompt")
	got := f.out.last(t)
	if got.op != "edit" || got.msg.Text != "prompt\n\n⚠️"+report.ImportNoCycle {
		t.Errorf("reply = %+v", got)
	}

	before := f.out.count()
	f.press(member, report.ImportCallback(group, 300), "prompt")
	if f.out.count() != before {
		t.Error("unauthorized import must be silent")
	}
}

func TestAdminLookupFailure(t *testing.T) {
	store, err := sqlite.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	l := ledger.New(store, serializer.New(), cache.NewActiveCycles())
	admins := cache.NewAdmins(&fakeDirectory{err: errors.New("api down")}, time.Minute)
	out := &fakeOutbox{}
	svc := New(l, admins, out)

	svc.HandleMessage(context.Background(), Message{ChatID: group, IsGroup: true, From: admin, Text: "上课"})
	if got := out.last(t).msg.Text; got != report.NoPermission {
		t.Errorf("reply = %q, want %q", got, report.NoPermission)
	}
}

type panicDirectory struct{}

func (panicDirectory) Administrators(ctx context.Context, groupID int64) ([]int64, error) {
	panic("boom")
}

func TestPanicRecovery(t *testing.T) {
	f := newFixture(t)
	f.svc.admins = cache.NewAdmins(panicDirectory{}, time.Minute)

	f.send(admin, "上课")

	if got := f.out.last(t).msg.Text; got != report.InternalError {
		t.Errorf("reply = %q, want %q", got, report.InternalError)
	}
	expected := `
# HELP ledgerbot_handler_panics_total Panics recovered while handling updates.
# TYPE ledgerbot_handler_panics_total counter
ledgerbot_handler_panics_total 1
`
	if err := testutil.GatherAndCompare(f.reg, strings.NewReader(expected), "ledgerbot_handler_panics_total"); err != nil {
		t.Error(err)
	}

	// The service keeps working afterwards.
	f.send(admin, "帮助")
	if got := f.out.last(t).msg.Text; got != report.Help().Text {
		t.Error("Expected help after a recovered panic")
	}
}

func TestConcurrentCommands(t *testing.T) {
	f := newFixture(t)
	f.send(admin, "上课")

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.HandleMessage(context.Background(), Message{ChatID: group, IsGroup: true, From: admin, Text: "+10"})
		}()
	}
	wg.Wait()

	st, err := f.ledger.Status(context.Background(), group)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Summary.DepositCount != 30 || st.Summary.NetBalance != 300 {
		t.Errorf("Summary = %+v, want 30 deposits totalling 300", st.Summary)
	}
}
