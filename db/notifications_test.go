package db

import (
	"testing"
	"time"

	"github.com/deemkeen/mammut/domain"
	"github.com/google/uuid"
)

func testNotification(kind domain.NotificationKind, recipient, actor uuid.UUID, postId *uuid.UUID, emoji string) *domain.Notification {
	return &domain.Notification{
		Id:          uuid.New(),
		Kind:        kind,
		RecipientId: recipient,
		ActorId:     actor,
		PostId:      postId,
		Emoji:       emoji,
		CreatedAt:   time.Now(),
	}
}

func TestCreateNotificationCollapsesDuplicates(t *testing.T) {
	db := setupTestDB(t)
	recipient, actor := uuid.New(), uuid.New()
	postId := uuid.New()

	n := testNotification(domain.NotifyLike, recipient, actor, &postId, "")
	if err := db.CreateNotification(n); err != nil {
		t.Fatalf("Failed to create notification: %v", err)
	}

	// Redelivery of the same activity produces the same tuple
	dup := testNotification(domain.NotifyLike, recipient, actor, &postId, "")
	if err := db.CreateNotification(dup); err != nil {
		t.Errorf("Expected a duplicate notification to collapse, got %v", err)
	}

	list, err := db.ReadNotifications(recipient, false, 50)
	if err != nil {
		t.Fatalf("Failed to read notifications: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected one notification, got %d", len(list))
	}
}

func TestDeleteNotificationByTuple(t *testing.T) {
	db := setupTestDB(t)
	recipient, actor := uuid.New(), uuid.New()
	postId := uuid.New()

	if err := db.CreateNotification(testNotification(domain.NotifyRepost, recipient, actor, &postId, "")); err != nil {
		t.Fatalf("Failed to create notification: %v", err)
	}

	// Deletion matches on the identifying tuple, not the row id
	if err := db.DeleteNotification(testNotification(domain.NotifyRepost, recipient, actor, &postId, "")); err != nil {
		t.Fatalf("Failed to delete notification: %v", err)
	}

	list, err := db.ReadNotifications(recipient, false, 50)
	if err != nil {
		t.Fatalf("Failed to read notifications: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("Expected no notifications, got %d", len(list))
	}

	// Deleting again is a no-op
	if err := db.DeleteNotification(testNotification(domain.NotifyRepost, recipient, actor, &postId, "")); err != nil {
		t.Errorf("Expected deleting an absent notification to succeed, got %v", err)
	}
}

func TestNotificationsDistinguishedByEmoji(t *testing.T) {
	db := setupTestDB(t)
	recipient, actor := uuid.New(), uuid.New()
	postId := uuid.New()

	if err := db.CreateNotification(testNotification(domain.NotifyReaction, recipient, actor, &postId, "🔥")); err != nil {
		t.Fatalf("Failed to create reaction notification: %v", err)
	}
	if err := db.CreateNotification(testNotification(domain.NotifyReaction, recipient, actor, &postId, "👍")); err != nil {
		t.Fatalf("Failed to create second reaction notification: %v", err)
	}

	list, err := db.ReadNotifications(recipient, false, 50)
	if err != nil {
		t.Fatalf("Failed to read notifications: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("Expected two notifications for distinct emojis, got %d", len(list))
	}
}

func TestMarkNotificationsRead(t *testing.T) {
	db := setupTestDB(t)
	recipient := uuid.New()

	if err := db.CreateNotification(testNotification(domain.NotifyFollow, recipient, uuid.New(), nil, "")); err != nil {
		t.Fatalf("Failed to create notification: %v", err)
	}
	if err := db.CreateNotification(testNotification(domain.NotifyFollow, recipient, uuid.New(), nil, "")); err != nil {
		t.Fatalf("Failed to create notification: %v", err)
	}

	unread, err := db.CountUnread(recipient)
	if err != nil {
		t.Fatalf("Failed to count unread: %v", err)
	}
	if unread != 2 {
		t.Errorf("Expected 2 unread, got %d", unread)
	}

	if err := db.MarkNotificationsRead(recipient); err != nil {
		t.Fatalf("Failed to mark read: %v", err)
	}
	unread, err = db.CountUnread(recipient)
	if err != nil {
		t.Fatalf("Failed to count unread: %v", err)
	}
	if unread != 0 {
		t.Errorf("Expected 0 unread, got %d", unread)
	}

	onlyUnread, err := db.ReadNotifications(recipient, true, 50)
	if err != nil {
		t.Fatalf("Failed to read unread notifications: %v", err)
	}
	if len(onlyUnread) != 0 {
		t.Errorf("Expected no unread notifications, got %d", len(onlyUnread))
	}
}
