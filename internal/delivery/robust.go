package delivery

import (
	"context"

	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/report"
	"github.com/mmynk/groupledger/pkg/logging"
)

// Target addresses a message in a chat.
type Target struct {
	ChatID    int64
	MessageID int
}

// Responder performs outbound chat calls.
type Responder interface {
	// Reply sends msg to the chat as a reply to the target message.
	Reply(ctx context.Context, to Target, msg report.Message) error
	// Edit replaces the text and keyboard of the target message.
	Edit(ctx context.Context, at Target, msg report.Message) error
	// Answer acknowledges a callback query.
	Answer(ctx context.Context, callbackID string) error
}

// Robust wraps a Responder so that no call returns an error. Calls are
// retried through the Retrier; failures that survive it are logged and
// dropped.
type Robust struct {
	next    Responder
	retrier Retrier
}

// NewRobust wraps next.
func NewRobust(next Responder, retrier Retrier) *Robust {
	return &Robust{next: next, retrier: retrier}
}

// Reply sends a reply.
func (r *Robust) Reply(ctx context.Context, to Target, msg report.Message) {
	err := r.retrier.Do(ctx, "reply", func(ctx context.Context) error {
		return r.next.Reply(ctx, to, msg)
	})
	if err != nil {
		r.drop(ctx, "reply", to, err)
	}
}

// Edit edits a message. If the edit cannot be delivered, one fresh reply
// tells the user to try again.
func (r *Robust) Edit(ctx context.Context, at Target, msg report.Message) {
	err := r.retrier.Do(ctx, "edit", func(ctx context.Context) error {
		return r.next.Edit(ctx, at, msg)
	})
	if err == nil {
		return
	}
	r.drop(ctx, "edit", at, err)
	r.Reply(ctx, at, report.Plain(report.EditFailed))
}

// Answer acknowledges a callback query.
func (r *Robust) Answer(ctx context.Context, callbackID string) {
	err := r.retrier.Do(ctx, "answer", func(ctx context.Context) error {
		return r.next.Answer(ctx, callbackID)
	})
	if err != nil {
		r.retrier.Metrics.ObserveDelivery("answer", metrics.OutcomeDropped)
		logging.FromContext(ctx).Error("Callback answer dropped", "callback_id", callbackID, "error", err)
	}
}

func (r *Robust) drop(ctx context.Context, op string, t Target, err error) {
	r.retrier.Metrics.ObserveDelivery(op, metrics.OutcomeDropped)
	logging.FromContext(ctx).Error("Delivery dropped",
		"op", op,
		"chat_id", t.ChatID,
		"message_id", t.MessageID,
		"error", err,
	)
}
