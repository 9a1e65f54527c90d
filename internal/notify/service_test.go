package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/pusulahq/pusula/backend/internal/events"
	"github.com/pusulahq/pusula/backend/internal/store"
	"gorm.io/gorm"
)

type sequenceIDGenerator struct {
	prefix string
	next   int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next), nil
}

func newTestNotifyService(t *testing.T, clock func() time.Time) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:pusula_notify_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&store.Notification{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	if clock == nil {
		clock = func() time.Time { return time.Unix(1700000600, 0).UTC() }
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: &sequenceIDGenerator{prefix: "notification"},
	})
	if err != nil {
		t.Fatalf("failed to construct notify service: %v", err)
	}
	return service, db
}

func TestEmitStoresUnreadNotification(t *testing.T) {
	service, db := newTestNotifyService(t, nil)

	stored, err := service.Emit(context.Background(), Draft{
		MessageKey:   "insight.follow_up_drafted",
		ParamsJSON:   `{"offerNo":"T-1"}`,
		Type:         "agent_follow_up",
		LinkPage:     "email_drafts",
		LinkRecordID: "draft-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.RecordID != "notification-1" {
		t.Fatalf("unexpected record id %s", stored.RecordID)
	}
	if stored.IsRead {
		t.Fatalf("expected notification to start unread")
	}
	if stored.CreatedAtSeconds != 1700000600 {
		t.Fatalf("unexpected creation timestamp %d", stored.CreatedAtSeconds)
	}

	var reloaded store.Notification
	if err := db.Take(&reloaded).Error; err != nil {
		t.Fatalf("failed to reload notification: %v", err)
	}
	if reloaded.MessageKey != "insight.follow_up_drafted" || reloaded.LinkRecordID != "draft-1" {
		t.Fatalf("unexpected stored notification: %+v", reloaded)
	}
}

func TestEmitPublishesNotificationEvent(t *testing.T) {
	service, _ := newTestNotifyService(t, nil)
	dispatcher := events.NewDispatcher()
	service.events = dispatcher

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, unsubscribe := dispatcher.Subscribe(ctx)
	defer unsubscribe()

	stored, err := service.Emit(context.Background(), Draft{MessageKey: "insight.customer_at_risk", Type: "agent_at_risk"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case message := <-messages:
		if message.Topic != events.TopicNotification {
			t.Fatalf("unexpected topic %s", message.Topic)
		}
		if len(message.RecordIDs) != 1 || message.RecordIDs[0] != stored.RecordID {
			t.Fatalf("unexpected record ids %v", message.RecordIDs)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected notification event")
	}
}

func TestMarkReadFlipsFlagAndRejectsUnknownID(t *testing.T) {
	service, db := newTestNotifyService(t, nil)

	stored, err := service.Emit(context.Background(), Draft{MessageKey: "k", Type: "t"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.MarkRead(context.Background(), stored.RecordID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var reloaded store.Notification
	if err := db.Take(&reloaded).Error; err != nil {
		t.Fatalf("failed to reload notification: %v", err)
	}
	if !reloaded.IsRead {
		t.Fatalf("expected notification to be read")
	}

	if err := service.MarkRead(context.Background(), "missing-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestMarkAllReadLeavesNothingUnread(t *testing.T) {
	service, _ := newTestNotifyService(t, nil)

	for i := 0; i < 3; i++ {
		if _, err := service.Emit(context.Background(), Draft{MessageKey: "k", Type: "t"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if err := service.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	unread, err := service.List(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("expected no unread notifications, got %d", len(unread))
	}
}

func TestListReturnsNewestFirst(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	clockValue := now
	service, _ := newTestNotifyService(t, func() time.Time { return clockValue })

	for i := 0; i < 3; i++ {
		if _, err := service.Emit(context.Background(), Draft{MessageKey: fmt.Sprintf("k-%d", i), Type: "t"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		clockValue = clockValue.Add(time.Minute)
	}

	notifications, err := service.List(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifications) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(notifications))
	}
	if notifications[0].MessageKey != "k-2" || notifications[2].MessageKey != "k-0" {
		t.Fatalf("expected newest first ordering, got %+v", notifications)
	}
}

func TestPruneDeletesOnlyReadNotificationsPastRetention(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	service, db := newTestNotifyService(t, func() time.Time { return now })

	old := now.Add(-100 * 24 * time.Hour).Unix()
	rows := []store.Notification{
		{RecordID: "n-old-read", MessageKey: "k", Type: "t", IsRead: true, CreatedAtSeconds: old},
		{RecordID: "n-old-unread", MessageKey: "k", Type: "t", IsRead: false, CreatedAtSeconds: old},
		{RecordID: "n-new-read", MessageKey: "k", Type: "t", IsRead: true, CreatedAtSeconds: now.Unix()},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("failed to seed notification: %v", err)
		}
	}

	deleted, err := service.Prune(context.Background(), 90*24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 pruned notification, got %d", deleted)
	}

	var remaining []store.Notification
	if err := db.Find(&remaining).Error; err != nil {
		t.Fatalf("failed to load notifications: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 surviving notifications, got %d", len(remaining))
	}
	for _, notification := range remaining {
		if notification.RecordID == "n-old-read" {
			t.Fatalf("expected old read notification to be pruned")
		}
	}

	// Zero retention disables pruning entirely.
	deleted, err = service.Prune(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected no pruning with zero retention, got %d", deleted)
	}
}
