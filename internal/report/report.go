// Package report renders ledger results as chat messages.
//
// Every function is pure: the same input always produces the same text
// and keyboard, so rendering can be tested without a transport.
package report

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mmynk/groupledger/internal/calculator"
	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/models"
)

// Mode selects how the transport parses a message's text.
type Mode string

const (
	ModePlain Mode = ""
	ModeHTML  Mode = "HTML"
)

// Button is an inline keyboard button carrying callback data.
type Button struct {
	Text string
	Data string
}

// Message is a rendered reply.
type Message struct {
	Text string
	Mode Mode

	// Keyboard holds rows of inline buttons. A nil keyboard removes any
	// existing buttons when the message is edited.
	Keyboard [][]Button
}

const (
	clockFormat   = "15:04:05"
	shortClock    = "15:04"
	cutoffFormat  = "2006-01-02 15:04:05"
	noRecords     = "无记录"
	currency      = "RMB"
	detailsLabel  = "📊详细账单"
	prevPageLabel = "⬅️ 上一页"
	nextPageLabel = "下一页 ➡️"
	importLabel   = "📥 是的，立即导入"
)

// Plain returns a plain-text message without buttons.
func Plain(text string) Message {
	return Message{Text: text}
}

// Summary renders the running summary of a cycle with a button that opens
// the first details page.
func Summary(groupID, cycleID int64, s calculator.Summary) Message {
	return Message{
		Text:     summaryText(s),
		Mode:     ModeHTML,
		Keyboard: [][]Button{{{Text: detailsLabel, Data: DetailsCallback(groupID, cycleID, 1)}}},
	}
}

func summaryText(s calculator.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🟢入款 (%d笔)\n", s.DepositCount)
	b.WriteString(recentLines(s.RecentDeposits))
	fmt.Fprintf(&b, "\n\n🔴下发 (%d笔)\n", s.WithdrawalCount)
	b.WriteString(recentLines(s.RecentWithdrawals))
	fmt.Fprintf(&b, "\n\n总入: <b>%d</b> %s\n", s.TotalDeposits, currency)
	fmt.Fprintf(&b, "总下: <b>%d</b> %s\n", s.TotalWithdrawals, currency)
	fmt.Fprintf(&b, "未下: <b>%d</b> %s", s.NetBalance, currency)
	return b.String()
}

// recentLines lists entries newest first; only the newest amount is bold.
func recentLines(entries []models.Entry) string {
	if len(entries) == 0 {
		return noRecords
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		amount := abs(e.Amount)
		if i == 0 {
			lines[i] = fmt.Sprintf("%s   <b>%d</b>", e.CreatedAt.Format(clockFormat), amount)
		} else {
			lines[i] = fmt.Sprintf("%s   %d", e.CreatedAt.Format(clockFormat), amount)
		}
	}
	return strings.Join(lines, "\n")
}

// Closed renders the final summary of a closed cycle.
func Closed(s calculator.Summary) Message {
	text := fmt.Sprintf(
		" ✅当前记账周期已结束！\n\n"+
			"本次账目汇总如下：\n"+
			"总入: %d %s\n"+
			"总下: %d %s\n"+
			"<b>最终未下: %d %s</b>\n"+
			"✅本周期账单已存档。",
		s.TotalDeposits, currency,
		s.TotalWithdrawals, currency,
		s.NetBalance, currency,
	)
	return Message{Text: text, Mode: ModeHTML}
}

// Opened renders the reply to opening a cycle. When a balance was carried
// from the previous cycle it offers a one-shot import button.
func Opened(groupID int64, res ledger.OpenResult) Message {
	if res.PreviousBalance == 0 {
		return Message{Text: "☀️ 新的记账周期已顺利开启！", Mode: ModeHTML}
	}
	text := fmt.Sprintf("☀️ 新的记账周期已开启！\n\n发现上个周期有结余 <b>%d</b> %s，需要现在导入吗？",
		res.PreviousBalance, currency)
	return Message{
		Text:     text,
		Mode:     ModeHTML,
		Keyboard: [][]Button{{{Text: importLabel, Data: ImportCallback(groupID, res.PreviousBalance)}}},
	}
}

// Imported replaces the import prompt after a successful import. The
// prompt keeps its first line and loses its button.
func Imported(prompt string, amount int64) Message {
	first, _, _ := strings.Cut(prompt, "\n")
	return Message{
		Text: fmt.Sprintf("%s\n\n✅ 结余 <b>%d</b> %s 已成功导入！", html.EscapeString(first), amount, currency),
		Mode: ModeHTML,
	}
}

// ImportRejected appends a failure notice to the import prompt.
func ImportRejected(prompt, reason string) Message {
	return Plain(prompt + "\n\n⚠️" + reason)
}

// CarryOverRecorded renders the reply to a manual carry-over.
func CarryOverRecorded(s calculator.Summary) Message {
	return Message{Text: "✅结余记录成功！\n\n" + summaryText(s), Mode: ModeHTML}
}

// Undone renders the reply to undoing the last entry.
func Undone(e models.Entry, s calculator.Summary) Message {
	text := fmt.Sprintf("✅已撤销: %d × %s\n\n", e.Amount, html.EscapeString(e.DisplayNote())) + summaryText(s)
	return Message{Text: text, Mode: ModeHTML}
}

// Details renders one page of entries with the cycle header and page
// navigation. cutoff is shown as the time the page was generated.
func Details(groupID int64, d ledger.Details, cutoff time.Time) Message {
	s := d.Summary
	p := d.Page

	var b strings.Builder
	fmt.Fprintf(&b, "⏰截止时间: %s\n", cutoff.Format(cutoffFormat))
	fmt.Fprintf(&b, "💳昨日未下: %d %s\n", s.PreviousBalance, currency)
	fmt.Fprintf(&b, "💰当前未下: <b>%d</b> %s\n", s.NetBalance, currency)
	fmt.Fprintf(&b, "📌(总 %d 笔, 入款 %d 笔, 下发 %d 笔, 结余 %d 笔)\n",
		s.EntryCount, s.DepositCount, s.WithdrawalCount, s.CarryOverCount)
	fmt.Fprintf(&b, "<b>📊 账单详情 - 第 %d / 共 %d 页</b>\n", p.Number, p.TotalPages)
	b.WriteString("<pre>")
	b.WriteString(detailLines(p.Entries))
	b.WriteString("</pre>")

	var nav []Button
	if p.Number > 1 {
		nav = append(nav, Button{Text: prevPageLabel, Data: DetailsCallback(groupID, p.CycleID, p.Number-1)})
	}
	if p.Number < p.TotalPages {
		nav = append(nav, Button{Text: nextPageLabel, Data: DetailsCallback(groupID, p.CycleID, p.Number+1)})
	}

	msg := Message{Text: b.String(), Mode: ModeHTML}
	if len(nav) > 0 {
		msg.Keyboard = [][]Button{nav}
	}
	return msg
}

func detailLines(entries []models.Entry) string {
	if len(entries) == 0 {
		return noRecords
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		marker := "🔴"
		switch {
		case e.IsCarryOver():
			marker = "⚖️"
		case e.Amount > 0:
			marker = "🟢"
		}
		lines[i] = fmt.Sprintf("%s %s | %8d | %s",
			marker, e.CreatedAt.Format(shortClock), e.Amount, html.EscapeString(e.DisplayNote()))
	}
	return strings.Join(lines, "\n")
}

// Operators lists the group's operators.
func Operators(ops []models.Participant) Message {
	if len(ops) == 0 {
		return Plain("当前没有操作员。")
	}
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = operatorName(op)
	}
	return Plain("当前操作员：\n" + strings.Join(names, "\n"))
}

// OperatorGranted confirms an operator grant.
func OperatorGranted(p models.Participant) Message {
	return Plain(fmt.Sprintf("✅ 已将 %s 设为操作员。", operatorName(p)))
}

// OperatorRevoked confirms an operator revocation.
func OperatorRevoked(p models.Participant) Message {
	return Plain(fmt.Sprintf("✅ 已移除 %s 的操作员权限。", operatorName(p)))
}

func operatorName(p models.Participant) string {
	if strings.HasPrefix(p.DisplayName, "@") {
		return p.DisplayName
	}
	return fmt.Sprintf("用户ID %d", p.UserID)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
