package service

import (
	"context"

	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/report"
)

const noCycle = "没有活跃周期。"

func (s *Service) open(ctx context.Context, m Message) string {
	if !s.authorized(ctx, m.ChatID, m.From.ID) {
		s.out.Reply(ctx, m.target(), report.Plain(report.NoPermission))
		return metrics.OutcomeRejected
	}

	res, err := s.ledger.Open(ctx, m.ChatID)
	if err != nil {
		return s.fail(ctx, m.target(), err, noCycle)
	}
	s.out.Reply(ctx, m.target(), report.Opened(m.ChatID, res))
	return metrics.OutcomeOK
}

func (s *Service) close(ctx context.Context, m Message) string {
	if !s.authorized(ctx, m.ChatID, m.From.ID) {
		s.out.Reply(ctx, m.target(), report.Plain(report.NoPermission))
		return metrics.OutcomeRejected
	}

	res, err := s.ledger.Close(ctx, m.ChatID)
	if err != nil {
		return s.fail(ctx, m.target(), err, report.NoActiveCycle)
	}
	s.out.Reply(ctx, m.target(), report.Closed(res.Summary))
	return metrics.OutcomeOK
}

// add records "+N [note]" or "-N [note]". Unauthorized senders are ignored.
func (s *Service) add(ctx context.Context, m Message, cmd Command) string {
	if !s.authorized(ctx, m.ChatID, m.From.ID) {
		return metrics.OutcomeRejected
	}

	amount, err := ledger.ParseAmount(cmd.Word)
	if err != nil {
		return s.fail(ctx, m.target(), err, report.NoActiveCycleHint)
	}
	res, err := s.ledger.AddEntry(ctx, m.ChatID, m.From.ID, amount, cmd.Note(0))
	if err != nil {
		return s.fail(ctx, m.target(), err, report.NoActiveCycleHint)
	}
	s.out.Reply(ctx, m.target(), report.Summary(m.ChatID, res.Entry.CycleID, res.Summary))
	return metrics.OutcomeOK
}

// carryOver records "结余 ±N [note]".
func (s *Service) carryOver(ctx context.Context, m Message, cmd Command) string {
	if !s.authorized(ctx, m.ChatID, m.From.ID) {
		return metrics.OutcomeRejected
	}

	if len(cmd.Args) == 0 {
		s.out.Reply(ctx, m.target(), report.Plain(report.CarryOverUsage))
		return metrics.OutcomeRejected
	}
	amount, err := ledger.ParseAmount(cmd.Args[0])
	if err != nil {
		s.out.Reply(ctx, m.target(), report.Plain(report.CarryOverUsage))
		return metrics.OutcomeRejected
	}

	res, err := s.ledger.RecordCarryOver(ctx, m.ChatID, m.From.ID, amount, cmd.Note(1))
	if err != nil {
		return s.fail(ctx, m.target(), err, noCycle)
	}
	s.out.Reply(ctx, m.target(), report.CarryOverRecorded(res.Summary))
	return metrics.OutcomeOK
}

func (s *Service) undo(ctx context.Context, m Message) string {
	if !s.authorized(ctx, m.ChatID, m.From.ID) {
		return metrics.OutcomeRejected
	}

	res, err := s.ledger.UndoLast(ctx, m.ChatID)
	if err != nil {
		return s.fail(ctx, m.target(), err, noCycle)
	}
	s.out.Reply(ctx, m.target(), report.Undone(res.Entry, res.Summary))
	return metrics.OutcomeOK
}
