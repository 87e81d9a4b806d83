package service

import (
	"context"
	"errors"

	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/report"
	"github.com/mmynk/groupledger/pkg/logging"
)

func (s *Service) callback(ctx context.Context, cb Callback) string {
	data, err := report.ParseCallback(cb.Data)
	if err != nil {
		logging.FromContext(ctx).Warn("Ignoring callback", "data", cb.Data, "error", err)
		return metrics.OutcomeRejected
	}
	// Buttons only act on the chat they were posted in.
	if data.GroupID != cb.ChatID {
		logging.FromContext(ctx).Warn("Callback group mismatch", "data", cb.Data)
		return metrics.OutcomeRejected
	}

	switch data.Action {
	case report.ActionDetails:
		return s.details(ctx, cb, data)
	case report.ActionImport:
		return s.importBalance(ctx, cb, data)
	default:
		return metrics.OutcomeRejected
	}
}

// details shows a page of entries. Anyone may page; no lock is taken.
func (s *Service) details(ctx context.Context, cb Callback, data report.Callback) string {
	d, err := s.ledger.Details(ctx, data.GroupID, data.CycleID, data.Page)
	if err != nil {
		logging.FromContext(ctx).Error("Failed to load details",
			"cycle_id", data.CycleID,
			"page", data.Page,
			"error", err,
		)
		s.out.Reply(ctx, cb.target(), report.Plain(report.DetailsFailed))
		return metrics.OutcomeError
	}
	s.out.Edit(ctx, cb.target(), report.Details(data.GroupID, d, s.now()))
	return metrics.OutcomeOK
}

// importBalance imports the carried balance offered by the open prompt.
// On success the prompt loses its button, so the import is one-shot.
func (s *Service) importBalance(ctx context.Context, cb Callback, data report.Callback) string {
	if !s.authorized(ctx, data.GroupID, cb.From.ID) {
		return metrics.OutcomeRejected
	}

	res, err := s.ledger.ImportCarryOver(ctx, data.GroupID, cb.From.ID, data.Amount)
	switch {
	case errors.Is(err, ledger.ErrNoActiveCycle):
		s.out.Edit(ctx, cb.target(), report.ImportRejected(cb.MessageText, report.ImportNoCycle))
		return metrics.OutcomeRejected
	case errors.Is(err, ledger.ErrAlreadyImported):
		s.out.Edit(ctx, cb.target(), report.ImportRejected(cb.MessageText, report.ImportAlreadyExists))
		return metrics.OutcomeRejected
	case err != nil:
		logging.FromContext(ctx).Error("Import failed", "amount", data.Amount, "error", err)
		s.out.Reply(ctx, cb.target(), report.Plain(report.ImportFailed))
		return metrics.OutcomeError
	}

	s.out.Edit(ctx, cb.target(), report.Imported(cb.MessageText, data.Amount))
	s.out.Reply(ctx, cb.target(), report.Summary(data.GroupID, res.Entry.CycleID, res.Summary))
	return metrics.OutcomeOK
}
