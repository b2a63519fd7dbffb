package domain

import (
	"context"
	"time"
)

// NotificationType is the closed set of notification kinds producers may emit.
type NotificationType string

const (
	NotificationLike         NotificationType = "LIKE"
	NotificationComment      NotificationType = "COMMENT"
	NotificationEventRSVP    NotificationType = "EVENT_RSVP"
	NotificationNewPost      NotificationType = "NEW_POST"
	NotificationNewEvent     NotificationType = "NEW_EVENT"
	NotificationNewStory     NotificationType = "NEW_STORY"
	NotificationStoryView    NotificationType = "STORY_VIEW"
	NotificationStoryLike    NotificationType = "STORY_LIKE"
	NotificationStoryComment NotificationType = "STORY_COMMENT"
	NotificationMention      NotificationType = "MENTION"
	NotificationPostShare    NotificationType = "POST_SHARE"
	NotificationCommentReply NotificationType = "COMMENT_REPLY"
	NotificationCloseFriend  NotificationType = "CLOSE_FRIEND"
	NotificationFollow       NotificationType = "FOLLOW"
)

var notificationTypes = map[NotificationType]struct{}{
	NotificationLike:         {},
	NotificationComment:      {},
	NotificationEventRSVP:    {},
	NotificationNewPost:      {},
	NotificationNewEvent:     {},
	NotificationNewStory:     {},
	NotificationStoryView:    {},
	NotificationStoryLike:    {},
	NotificationStoryComment: {},
	NotificationMention:      {},
	NotificationPostShare:    {},
	NotificationCommentReply: {},
	NotificationCloseFriend:  {},
	NotificationFollow:       {},
}

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	_, ok := notificationTypes[t]
	return ok
}

// Notification is a single durable notification owned by its recipient.
// Message is rendered once by the producer and never recomputed.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipientId"`
	ActorID     string           `json:"actorId,omitempty"`
	Type        NotificationType `json:"type"`
	Message     string           `json:"message"`
	ReferenceID string           `json:"referenceId,omitempty"`
	IsRead      bool             `json:"isRead"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// NotificationStore persists notifications. Implementations wrap driver
// failures in *PersistenceError and return ErrNotificationNotFound for
// unknown IDs.
type NotificationStore interface {
	// Insert stores n and assigns n.ID.
	Insert(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id string) (*Notification, error)
	// ListForUser returns the recipient's notifications newest first.
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]*Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id string) (*Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
