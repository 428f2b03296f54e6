package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/dwilches/phabricator-slack-notifier/internal/types"
)

// Tracker enriches firehose transactions and resolves object metadata. The
// Phabricator Conduit client implements it.
type Tracker interface {
	// Transactions returns the enriched transactions for the given PHIDs,
	// order preserved as returned by the tracker.
	Transactions(ctx context.Context, objectType types.ObjectType, objectPHID string, txPHIDs []string) ([]types.Transaction, error)
	// Link returns a Slack-formatted permalink for an object PHID.
	Link(ctx context.Context, phid string) (string, error)
	// Owner returns the owner identity of a task or diff; ok is false
	// when the object has no owner.
	Owner(ctx context.Context, phid string) (owner string, ok bool, err error)
}

// Directory resolves Phabricator identities (PHIDs or usernames) to users
// and Slack mentions.
type Directory interface {
	User(id string) (types.User, bool)
	Mention(id string) (string, bool)
}

// Sender delivers rendered messages to the chat platform. Delivery failures
// are handled inside the implementation and never surface here.
type Sender interface {
	Send(ctx context.Context, msg types.Message)
}

// UnknownUserError reports a Phabricator identity that could not be
// resolved to a directory entry. It is fatal to the current request.
type UnknownUserError struct {
	Identity string
}

func (e *UnknownUserError) Error() string {
	return fmt.Sprintf("unknown Phabricator user: %s", e.Identity)
}

// renderFunc renders one enriched transaction. A nil message with a nil
// error means the subtype has no rendering rule.
type renderFunc func(ctx context.Context, tx types.Transaction) (*types.Message, error)

// Dispatcher orchestrates one firehose request: enrichment, rendering, and
// delivery. All collaborators are injected at construction; the handler
// table is read-only afterwards.
type Dispatcher struct {
	logger    *zap.Logger
	tracker   Tracker
	directory Directory
	sender    Sender
	router    *ChannelRouter
	mentions  *MentionResolver
	handlers  map[types.ObjectType]renderFunc
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(logger *zap.Logger, tracker Tracker, directory Directory, sender Sender, router *ChannelRouter) *Dispatcher {
	d := &Dispatcher{
		logger:    logger.Named("dispatcher"),
		tracker:   tracker,
		directory: directory,
		sender:    sender,
		router:    router,
		mentions:  NewMentionResolver(directory),
	}
	d.handlers = map[types.ObjectType]renderFunc{
		types.ObjectTask:       d.renderTask,
		types.ObjectDiff:       d.renderDiff,
		types.ObjectCommit:     d.renderCommit,
		types.ObjectProject:    d.renderProject,
		types.ObjectRepository: d.renderRepository,
	}
	return d
}

// Handle processes one firehose payload. It never fails upward: any error
// or panic in the flow aborts the remaining batch and is converted into a
// single error-severity Slack report.
func (d *Dispatcher) Handle(ctx context.Context, payload types.Payload) {
	defer func() {
		if r := recover(); r != nil {
			d.reportFailure(ctx, payload, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := d.process(ctx, payload); err != nil {
		d.reportFailure(ctx, payload, err)
	}
}

func (d *Dispatcher) process(ctx context.Context, payload types.Payload) error {
	objectType := types.ObjectType(payload.Object.Type)

	transactions, err := d.tracker.Transactions(ctx, objectType, payload.Object.PHID, payload.TransactionPHIDs())
	if err != nil {
		return err
	}

	render, registered := d.handlers[objectType]
	for _, tx := range transactions {
		if !registered {
			d.debugNote(ctx, objectType, tx)
			continue
		}

		msg, err := render(ctx, tx)
		if err != nil {
			return err
		}
		if msg == nil {
			d.debugNote(ctx, objectType, tx)
			continue
		}

		d.sender.Send(ctx, *msg)
		messagesSentTotal.WithLabelValues(string(objectType)).Inc()
		d.logger.Debug("Sent message",
			zap.String("object_type", string(objectType)),
			zap.String("transaction_type", string(tx.Type)),
			zap.String("channel", msg.Channel))
	}
	return nil
}

// debugNote records a transaction that produced no message. The note goes
// to the debug channel when one is configured; otherwise it is log-only.
func (d *Dispatcher) debugNote(ctx context.Context, objectType types.ObjectType, tx types.Transaction) {
	eventsSkippedTotal.WithLabelValues(string(objectType)).Inc()
	d.logger.Debug("No message will be generated",
		zap.String("object_type", string(objectType)),
		zap.String("transaction_type", string(tx.Type)))

	channel, ok := d.router.Debug()
	if !ok {
		return
	}
	detail, err := json.MarshalIndent(tx, "", "    ")
	if err != nil {
		detail = []byte(fmt.Sprintf("%+v", tx))
	}
	d.sender.Send(ctx, types.Message{
		Text:     fmt.Sprintf("No message will be generated for: %s", detail),
		Channel:  channel,
		Severity: types.SeverityInfo,
	})
}

// reportFailure converts a processing error into one error-severity Slack
// message carrying the original payload and a stack trace. It is the only
// producer of error-severity messages and must not fail itself.
func (d *Dispatcher) reportFailure(ctx context.Context, payload types.Payload, err error) {
	requestFailuresTotal.Inc()
	d.logger.Error("Request processing failed", zap.Error(err))

	rendered, merr := json.Marshal(payload)
	original := string(rendered)
	if merr != nil {
		original = fmt.Sprintf("%+v", payload)
	}

	text := fmt.Sprintf("*Exception in Slack-Notiphier:* %v\n*Original message:* %s\n*Stacktrace:*\n```%s```",
		err, original, debug.Stack())
	d.sender.Send(ctx, types.Message{
		Text:     text,
		Severity: types.SeverityError,
	})
}
