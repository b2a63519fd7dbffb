package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/locolive/pulse/internal/domain"
)

// BreakerSettings configures the circuit breaker in front of a store.
type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// BreakingNotificationStore trips after consecutive store failures and then
// fails fast, so a dead database does not stall every producer for the full
// write timeout.
type BreakingNotificationStore struct {
	next domain.NotificationStore
	cb   *gobreaker.CircuitBreaker
}

var _ domain.NotificationStore = (*BreakingNotificationStore)(nil)

func NewBreakingNotificationStore(next domain.NotificationStore, settings BreakerSettings, logger *zap.Logger) *BreakingNotificationStore {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notification-store",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		// Only store faults count; lookups of unknown IDs are normal traffic.
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsPersistence(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &BreakingNotificationStore{next: next, cb: cb}
}

// State reports the breaker state, used by the readiness check.
func (s *BreakingNotificationStore) State() gobreaker.State {
	return s.cb.State()
}

func (s *BreakingNotificationStore) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	v, err := s.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.NewPersistenceError(op, err)
	}
	return v, err
}

func (s *BreakingNotificationStore) Insert(ctx context.Context, n *domain.Notification) error {
	_, err := s.execute("insert notification", func() (interface{}, error) {
		return nil, s.next.Insert(ctx, n)
	})
	return err
}

func (s *BreakingNotificationStore) Get(ctx context.Context, id string) (*domain.Notification, error) {
	v, err := s.execute("get notification", func() (interface{}, error) {
		return s.next.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Notification), nil
}

func (s *BreakingNotificationStore) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Notification, error) {
	v, err := s.execute("list notifications", func() (interface{}, error) {
		return s.next.ListForUser(ctx, userID, limit, offset)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*domain.Notification), nil
}

func (s *BreakingNotificationStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	v, err := s.execute("count unread notifications", func() (interface{}, error) {
		return s.next.CountUnread(ctx, userID)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (s *BreakingNotificationStore) MarkRead(ctx context.Context, id string) (*domain.Notification, error) {
	v, err := s.execute("mark notification read", func() (interface{}, error) {
		return s.next.MarkRead(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Notification), nil
}

func (s *BreakingNotificationStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	v, err := s.execute("mark all notifications read", func() (interface{}, error) {
		return s.next.MarkAllRead(ctx, userID)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (s *BreakingNotificationStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	v, err := s.execute("delete old notifications", func() (interface{}, error) {
		return s.next.DeleteOlderThan(ctx, cutoff)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}
