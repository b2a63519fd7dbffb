package domain

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EventNotification is the live event name used for notification pushes.
const EventNotification = "notification"

// Channel is a live connection that can receive a pushed event.
type Channel interface {
	Send(event string, payload any) error
}

// Presence answers whether a user is reachable for a live push.
type Presence interface {
	Lookup(userID string) (Channel, bool)
}

// NotificationCreator is the single funnel feature modules produce
// notifications through.
type NotificationCreator interface {
	CreateNotification(ctx context.Context, recipientID, actorID string, typ NotificationType, message, referenceID string) DispatchResult
}

// Outcome describes what happened to one CreateNotification call.
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeSuppressed
	OutcomePersistFailed
	OutcomeStored
	OutcomePushed
	OutcomePushFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return "rejected"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomePersistFailed:
		return "persist_failed"
	case OutcomeStored:
		return "stored"
	case OutcomePushed:
		return "pushed"
	case OutcomePushFailed:
		return "push_failed"
	}
	return "unknown"
}

// DispatchResult is returned for observability only. Producers are expected
// to ignore it; a failed dispatch must never fail the triggering action.
type DispatchResult struct {
	Outcome      Outcome
	Notification *Notification
	Err          error
}

// Persisted reports whether a row was written.
func (r DispatchResult) Persisted() bool {
	return r.Outcome == OutcomeStored || r.Outcome == OutcomePushed || r.Outcome == OutcomePushFailed
}

const defaultWriteTimeout = 5 * time.Second

// Dispatcher persists notifications and pushes them to online recipients.
type Dispatcher struct {
	store        NotificationStore
	presence     Presence
	logger       *zap.Logger
	now          func() time.Time
	writeTimeout time.Duration
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithWriteTimeout bounds the detached persistence write.
func WithWriteTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.writeTimeout = timeout
		}
	}
}

func NewDispatcher(store NotificationStore, presence Presence, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:        store,
		presence:     presence,
		logger:       logger,
		now:          time.Now,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CreateNotification records a notification for recipientID caused by
// actorID and pushes it live when the recipient is connected.
func (d *Dispatcher) CreateNotification(ctx context.Context, recipientID, actorID string, typ NotificationType, message, referenceID string) DispatchResult {
	if recipientID == "" {
		d.logger.Warn("notification without recipient dropped",
			zap.String("actor_id", actorID),
			zap.String("type", string(typ)),
		)
		return DispatchResult{Outcome: OutcomeRejected, Err: ErrMissingRecipient}
	}
	// Self-actions are dropped before anything touches the store.
	if recipientID == actorID {
		return DispatchResult{Outcome: OutcomeSuppressed}
	}
	if !typ.Valid() {
		d.logger.Warn("notification with unknown type dropped",
			zap.String("recipient_id", recipientID),
			zap.String("type", string(typ)),
		)
		return DispatchResult{Outcome: OutcomeRejected, Err: ErrUnknownType}
	}

	n := &Notification{
		RecipientID: recipientID,
		ActorID:     actorID,
		Type:        typ,
		Message:     message,
		ReferenceID: referenceID,
		CreatedAt:   d.now().UTC(),
	}

	// The write outlives the caller: aborting the originating request does
	// not abort a notification that already started.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.writeTimeout)
	defer cancel()

	if err := d.store.Insert(writeCtx, n); err != nil {
		d.logger.Error("failed to persist notification",
			zap.String("recipient_id", recipientID),
			zap.String("actor_id", actorID),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
		return DispatchResult{Outcome: OutcomePersistFailed, Err: err}
	}

	ch, online := d.presence.Lookup(recipientID)
	if !online {
		return DispatchResult{Outcome: OutcomeStored, Notification: n}
	}

	if err := ch.Send(EventNotification, n); err != nil {
		// Not retried; the row is still there for the next poll.
		d.logger.Debug("live notification push failed",
			zap.String("notification_id", n.ID),
			zap.String("recipient_id", recipientID),
			zap.Error(err),
		)
		return DispatchResult{Outcome: OutcomePushFailed, Notification: n, Err: err}
	}

	return DispatchResult{Outcome: OutcomePushed, Notification: n}
}
