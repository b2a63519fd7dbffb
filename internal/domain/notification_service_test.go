package domain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/locolive/pulse/internal/domain"
	"github.com/locolive/pulse/internal/repository"
)

func seedNotification(t *testing.T, store domain.NotificationStore, recipient string, createdAt time.Time) *domain.Notification {
	t.Helper()
	n := &domain.Notification{
		RecipientID: recipient,
		ActorID:     "actor",
		Type:        domain.NotificationLike,
		Message:     "actor liked your post",
		CreatedAt:   createdAt,
	}
	if err := store.Insert(context.Background(), n); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return n
}

func TestNotificationService_MarkReadOwnership(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := domain.NewNotificationService(repo, zap.NewNop())
	ctx := context.Background()
	n := seedNotification(t, repo, "bob", fixedNow)

	if _, err := svc.MarkRead(ctx, "mallory", n.ID); !errors.Is(err, domain.ErrNotificationNotFound) {
		t.Fatalf("MarkRead by non-owner = %v, want ErrNotificationNotFound", err)
	}
	if got, _ := repo.Get(ctx, n.ID); got.IsRead {
		t.Fatal("non-owner flipped the read flag")
	}

	if _, err := svc.MarkRead(ctx, "bob", "missing"); !errors.Is(err, domain.ErrNotificationNotFound) {
		t.Fatalf("MarkRead unknown = %v, want ErrNotificationNotFound", err)
	}

	got, err := svc.MarkRead(ctx, "bob", n.ID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !got.IsRead {
		t.Fatal("notification not marked read")
	}
}

func TestNotificationService_ReadStateMonotonic(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := domain.NewNotificationService(repo, zap.NewNop())
	ctx := context.Background()

	first := seedNotification(t, repo, "bob", fixedNow)
	seedNotification(t, repo, "bob", fixedNow.Add(time.Second))
	seedNotification(t, repo, "carol", fixedNow)

	if _, err := svc.MarkRead(ctx, "bob", first.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	// Marking again keeps it read.
	again, err := svc.MarkRead(ctx, "bob", first.ID)
	if err != nil || !again.IsRead {
		t.Fatalf("second MarkRead = %+v, %v", again, err)
	}

	if count, _ := svc.UnreadCount(ctx, "bob"); count != 1 {
		t.Fatalf("unread = %d, want 1", count)
	}

	updated, err := svc.MarkAllRead(ctx, "bob")
	if err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if updated != 1 {
		t.Fatalf("MarkAllRead updated %d, want 1", updated)
	}
	if updated, _ := svc.MarkAllRead(ctx, "bob"); updated != 0 {
		t.Fatalf("repeat MarkAllRead updated %d, want 0", updated)
	}
	if count, _ := svc.UnreadCount(ctx, "bob"); count != 0 {
		t.Fatalf("unread = %d, want 0", count)
	}
	if count, _ := svc.UnreadCount(ctx, "carol"); count != 1 {
		t.Fatalf("carol unread = %d, want 1 (untouched)", count)
	}
}

func TestNotificationService_Pagination(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := domain.NewNotificationService(repo, zap.NewNop())
	ctx := context.Background()

	// Same timestamps on purpose; ties must still page without overlap.
	for i := 0; i < 25; i++ {
		seedNotification(t, repo, "bob", fixedNow.Add(time.Duration(i/5)*time.Minute))
	}

	seen := map[string]bool{}
	var last time.Time
	for offset := 0; offset < 25; offset += 10 {
		page, err := svc.GetNotifications(ctx, "bob", 10, offset)
		if err != nil {
			t.Fatalf("GetNotifications: %v", err)
		}
		for _, n := range page {
			if seen[n.ID] {
				t.Fatalf("notification %s returned twice", n.ID)
			}
			seen[n.ID] = true
			if !last.IsZero() && n.CreatedAt.After(last) {
				t.Fatal("pages are not newest first")
			}
			last = n.CreatedAt
		}
	}
	if len(seen) != 25 {
		t.Fatalf("paged through %d notifications, want 25", len(seen))
	}

	defaults, _ := svc.GetNotifications(ctx, "bob", 0, 0)
	if len(defaults) != 20 {
		t.Fatalf("default page = %d, want 20", len(defaults))
	}
	if got := domain.NotificationPageSize(1000); got != 100 {
		t.Fatalf("NotificationPageSize(1000) = %d, want 100", got)
	}
}

func TestRetentionSweeper_Sweep(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()

	old := seedNotification(t, repo, "bob", time.Now().Add(-48*time.Hour))
	fresh := seedNotification(t, repo, "bob", time.Now().Add(-time.Hour))

	sweeper := domain.NewRetentionSweeper(repo, 24*time.Hour, zap.NewNop())
	deleted, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if _, err := repo.Get(ctx, old.ID); !errors.Is(err, domain.ErrNotificationNotFound) {
		t.Fatal("old notification survived the sweep")
	}
	if _, err := repo.Get(ctx, fresh.ID); err != nil {
		t.Fatalf("fresh notification removed: %v", err)
	}
}

func TestRetentionSweeper_RunStopsOnCancel(t *testing.T) {
	repo := repository.NewMemoryRepository()
	sweeper := domain.NewRetentionSweeper(repo, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx, time.Millisecond) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
