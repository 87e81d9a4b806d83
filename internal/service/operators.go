package service

import (
	"context"
	"errors"
	"strings"

	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/report"
	"github.com/mmynk/groupledger/internal/storage"
	"github.com/mmynk/groupledger/pkg/logging"
)

// ResolvedActor is the target of an operator command. It is one of
// FromReply, FromDirectory or Unresolved.
type ResolvedActor interface {
	resolvedActor()
}

// FromReply is the author of the message the command replied to.
type FromReply struct {
	User User
}

// FromDirectory is a participant found by "@username".
type FromDirectory struct {
	Participant models.Participant
}

// Unresolved means no target could be determined; Reply explains why.
type Unresolved struct {
	Reply report.Message
	Err   error
}

func (FromReply) resolvedActor()     {}
func (FromDirectory) resolvedActor() {}
func (Unresolved) resolvedActor()    {}

// resolveTarget picks the operator command's target: the replied-to user
// first, then an "@username" argument looked up among participants.
func (s *Service) resolveTarget(ctx context.Context, m Message, cmd Command) ResolvedActor {
	if m.ReplyTo != nil {
		return FromReply{User: *m.ReplyTo}
	}
	if len(cmd.Args) == 0 || !strings.HasPrefix(cmd.Args[0], "@") || len(cmd.Args[0]) == 1 {
		return Unresolved{Reply: report.Plain(report.OperatorUsage)}
	}

	name := cmd.Args[0]
	p, err := s.ledger.LookupParticipant(ctx, m.ChatID, name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return Unresolved{Reply: report.UnknownUser(name)}
	case err != nil:
		return Unresolved{Reply: report.Plain(report.RolledBack), Err: err}
	}
	return FromDirectory{Participant: p}
}

// setOperator grants or revokes operator rights. Admins only.
func (s *Service) setOperator(ctx context.Context, m Message, cmd Command) string {
	if !s.admins.IsAdmin(ctx, m.ChatID, m.From.ID) {
		s.out.Reply(ctx, m.target(), report.Plain(report.AdminOnly))
		return metrics.OutcomeRejected
	}

	var target models.Participant
	switch t := s.resolveTarget(ctx, m, cmd).(type) {
	case FromReply:
		target = t.User.Participant()
	case FromDirectory:
		target = t.Participant
	case Unresolved:
		s.out.Reply(ctx, m.target(), t.Reply)
		if t.Err != nil {
			logging.FromContext(ctx).Error("Operator target lookup failed", "error", t.Err)
			return metrics.OutcomeError
		}
		return metrics.OutcomeRejected
	}

	var (
		err   error
		reply report.Message
	)
	if cmd.Kind == CmdGrant {
		err = s.ledger.GrantOperator(ctx, m.ChatID, target)
		reply = report.OperatorGranted(target)
	} else {
		err = s.ledger.RevokeOperator(ctx, m.ChatID, target.UserID)
		reply = report.OperatorRevoked(target)
	}
	if err != nil {
		return s.fail(ctx, m.target(), err, noCycle)
	}
	s.out.Reply(ctx, m.target(), reply)
	return metrics.OutcomeOK
}

func (s *Service) listOperators(ctx context.Context, m Message) string {
	if !s.admins.IsAdmin(ctx, m.ChatID, m.From.ID) {
		s.out.Reply(ctx, m.target(), report.Plain(report.AdminOnlyView))
		return metrics.OutcomeRejected
	}

	ops, err := s.ledger.Operators(ctx, m.ChatID)
	if err != nil {
		return s.fail(ctx, m.target(), err, noCycle)
	}
	s.out.Reply(ctx, m.target(), report.Operators(ops))
	return metrics.OutcomeOK
}
