// Package service turns inbound chat commands and button callbacks into
// ledger operations and replies.
//
// The service knows nothing about the chat API: the transport converts its
// updates into Message and Callback values and delivers the replies
// through an Outbox.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/groupledger/internal/cache"
	"github.com/mmynk/groupledger/internal/delivery"
	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/middleware"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/report"
	"github.com/mmynk/groupledger/pkg/logging"
)

// Outbox delivers replies. Implementations handle their own failures.
type Outbox interface {
	Reply(ctx context.Context, to delivery.Target, msg report.Message)
	Edit(ctx context.Context, at delivery.Target, msg report.Message)
	Answer(ctx context.Context, callbackID string)
}

// User is a chat user.
type User struct {
	ID        int64
	Username  string
	FirstName string
}

// Participant returns the user as a ledger participant.
func (u User) Participant() models.Participant {
	return models.Participant{UserID: u.ID, DisplayName: models.MentionName(u.Username)}
}

// Message is an inbound text message.
type Message struct {
	ChatID    int64
	IsGroup   bool
	MessageID int
	From      User
	Text      string

	// ReplyTo is the author of the message being replied to, if any.
	ReplyTo *User
}

func (m Message) target() delivery.Target {
	return delivery.Target{ChatID: m.ChatID, MessageID: m.MessageID}
}

// Callback is an inline button press.
type Callback struct {
	ID          string
	From        User
	ChatID      int64
	MessageID   int
	MessageText string
	Data        string
}

func (c Callback) target() delivery.Target {
	return delivery.Target{ChatID: c.ChatID, MessageID: c.MessageID}
}

// Service handles commands and callbacks.
type Service struct {
	ledger  *ledger.Ledger
	admins  *cache.Admins
	out     Outbox
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records command metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time shown on details pages.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(l *ledger.Ledger, admins *cache.Admins, out Outbox, opts ...Option) *Service {
	s := &Service{
		ledger: l,
		admins: admins,
		out:    out,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleMessage processes a text message. Messages outside group chats and
// text that is not a command are ignored.
func (s *Service) HandleMessage(ctx context.Context, m Message) {
	if !m.IsGroup {
		return
	}
	cmd, ok := ParseCommand(m.Text)
	if !ok {
		return
	}

	u := middleware.Update{Command: cmd.Kind.String(), GroupID: m.ChatID, UserID: m.From.ID}
	middleware.Logging(ctx, s.metrics, u, func(ctx context.Context) string {
		s.recordSender(ctx, m)
		return s.dispatch(ctx, m, cmd)
	}, func(ctx context.Context) {
		s.out.Reply(ctx, m.target(), report.Plain(report.InternalError))
	})
}

// HandleCallback processes an inline button press.
func (s *Service) HandleCallback(ctx context.Context, cb Callback) {
	u := middleware.Update{Command: "callback", GroupID: cb.ChatID, UserID: cb.From.ID}
	middleware.Logging(ctx, s.metrics, u, func(ctx context.Context) string {
		s.out.Answer(ctx, cb.ID)
		return s.callback(ctx, cb)
	}, func(ctx context.Context) {
		s.out.Reply(ctx, cb.target(), report.Plain(report.InternalError))
	})
}

func (s *Service) recordSender(ctx context.Context, m Message) {
	if m.From.Username == "" {
		return
	}
	if err := s.ledger.RecordParticipant(ctx, m.ChatID, m.From.Participant()); err != nil {
		logging.FromContext(ctx).Warn("Failed to record participant", "error", err)
	}
}

func (s *Service) dispatch(ctx context.Context, m Message, cmd Command) string {
	switch cmd.Kind {
	case CmdOpen:
		return s.open(ctx, m)
	case CmdClose:
		return s.close(ctx, m)
	case CmdAdd:
		return s.add(ctx, m, cmd)
	case CmdCarryOver:
		return s.carryOver(ctx, m, cmd)
	case CmdUndo:
		return s.undo(ctx, m)
	case CmdGrant, CmdRevoke:
		return s.setOperator(ctx, m, cmd)
	case CmdOperators:
		return s.listOperators(ctx, m)
	case CmdHelp:
		s.out.Reply(ctx, m.target(), report.Help())
		return metrics.OutcomeOK
	default:
		return metrics.OutcomeRejected
	}
}

// authorized reports whether the user may change the group's ledger:
// chat administrators and granted operators.
func (s *Service) authorized(ctx context.Context, groupID, userID int64) bool {
	if s.admins.IsAdmin(ctx, groupID, userID) {
		return true
	}
	ok, err := s.ledger.IsOperator(ctx, groupID, userID)
	if err != nil {
		logging.FromContext(ctx).Error("Operator lookup failed", "error", err)
		return false
	}
	return ok
}

// fail replies to a ledger error. State errors get their specific text;
// anything else was rolled back.
func (s *Service) fail(ctx context.Context, to delivery.Target, err error, noCycle string) string {
	var text string
	switch {
	case errors.Is(err, ledger.ErrNoActiveCycle):
		text = noCycle
	case errors.Is(err, ledger.ErrAlreadyActive):
		text = report.AlreadyActive
	case errors.Is(err, ledger.ErrEmptyLedger):
		text = report.NothingToUndo
	case errors.Is(err, ledger.ErrAlreadyImported):
		text = report.AlreadyCarried
	case errors.Is(err, ledger.ErrInvalidAmount):
		text = report.InvalidAmount
	default:
		logging.FromContext(ctx).Error("Ledger operation failed", "error", err)
		s.out.Reply(ctx, to, report.Plain(report.RolledBack))
		return metrics.OutcomeError
	}
	s.out.Reply(ctx, to, report.Plain(text))
	return metrics.OutcomeRejected
}
