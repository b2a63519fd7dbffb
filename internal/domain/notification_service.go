package domain

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// NotificationService serves the poll-based notification endpoints.
type NotificationService struct {
	store  NotificationStore
	logger *zap.Logger
}

func NewNotificationService(store NotificationStore, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		store:  store,
		logger: logger,
	}
}

// NotificationPageSize returns the page size actually used for a requested
// limit.
func NotificationPageSize(limit int) int {
	if limit <= 0 {
		return defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		return maxNotificationLimit
	}
	return limit
}

func (s *NotificationService) GetNotifications(ctx context.Context, userID string, limit, offset int) ([]*Notification, error) {
	if offset < 0 {
		offset = 0
	}
	return s.store.ListForUser(ctx, userID, NotificationPageSize(limit), offset)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.store.CountUnread(ctx, userID)
}

// MarkRead marks one of userID's notifications read. Notifications owned by
// someone else are reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*Notification, error) {
	n, err := s.store.Get(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != userID {
		return nil, ErrNotificationNotFound
	}
	if n.IsRead {
		return n, nil
	}
	return s.store.MarkRead(ctx, notificationID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}

// RetentionSweeper deletes notifications older than a fixed age.
type RetentionSweeper struct {
	store  NotificationStore
	maxAge time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewRetentionSweeper(store NotificationStore, maxAge time.Duration, logger *zap.Logger) *RetentionSweeper {
	return &RetentionSweeper{
		store:  store,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}
}

// Sweep runs one retention pass and returns the number of deleted rows.
func (r *RetentionSweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.maxAge).UTC()
	deleted, err := r.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	r.logger.Info("notification retention sweep",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}

// Run sweeps every interval until ctx is cancelled.
func (r *RetentionSweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("notification retention sweep failed", zap.Error(err))
			}
		}
	}
}
