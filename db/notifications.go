package db

import (
	"database/sql"

	"github.com/deemkeen/mammut/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertNotification = `INSERT INTO notifications(id, kind, recipient_id, actor_id, post_id, emoji, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlDeleteNotification = `DELETE FROM notifications
		WHERE kind = ? AND recipient_id = ? AND actor_id = ? AND post_id IS ? AND emoji = ?`
	sqlSelectNotifications = `SELECT id, kind, recipient_id, actor_id, post_id, emoji, read, created_at
		FROM notifications WHERE recipient_id = ?`
	sqlMarkNotificationsRead = `UPDATE notifications SET read = 1 WHERE recipient_id = ? AND read = 0`
	sqlCountUnread           = `SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND read = 0`
)

// CreateNotification records a notification row. Duplicate deliveries of the
// same originating activity collapse onto the existing row and report
// success.
func (db *DB) CreateNotification(n *domain.Notification) error {
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		var postId any
		if n.PostId != nil {
			postId = n.PostId.String()
		}
		read := 0
		if n.Read {
			read = 1
		}
		_, err := tx.Exec(sqlInsertNotification,
			n.Id.String(), string(n.Kind), n.RecipientId.String(), n.ActorId.String(),
			postId, n.Emoji, read, n.CreatedAt)
		if err != nil {
			return convertUnique(err, &domain.ConflictError{Aggregate: domain.AggregateNotification, Key: n.Id.String()})
		}
		return insertEvent(tx, n.CreatedEvent())
	})
	if domain.IsConflict(err) {
		return nil
	}
	return err
}

// DeleteNotification removes the notification produced by a now-undone
// activity, matched by its identifying tuple rather than by row id. No-op
// when absent.
func (db *DB) DeleteNotification(n *domain.Notification) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		var postId any
		if n.PostId != nil {
			postId = n.PostId.String()
		}
		res, err := tx.Exec(sqlDeleteNotification,
			string(n.Kind), n.RecipientId.String(), n.ActorId.String(), postId, n.Emoji)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return nil
		}
		return insertEvent(tx, n.RemovedEvent())
	})
}

// ReadNotifications returns a recipient's notifications newest first, up to
// limit. An unread-only view passes onlyUnread.
func (db *DB) ReadNotifications(recipientId uuid.UUID, onlyUnread bool, limit int) ([]domain.Notification, error) {
	query := sqlSelectNotifications
	if onlyUnread {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := db.db.Query(query, recipientId.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var idStr, kind, recipientStr, actorStr string
		var postId, emoji sql.NullString
		var read int
		if err := rows.Scan(&idStr, &kind, &recipientStr, &actorStr, &postId, &emoji, &read, &n.CreatedAt); err != nil {
			return result, err
		}
		n.Id, _ = uuid.Parse(idStr)
		n.Kind = domain.NotificationKind(kind)
		n.RecipientId, _ = uuid.Parse(recipientStr)
		n.ActorId, _ = uuid.Parse(actorStr)
		if postId.Valid {
			pid, _ := uuid.Parse(postId.String)
			n.PostId = &pid
		}
		n.Emoji = emoji.String
		n.Read = read == 1
		result = append(result, n)
	}
	return result, rows.Err()
}

// MarkNotificationsRead marks all of a recipient's notifications as read.
func (db *DB) MarkNotificationsRead(recipientId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlMarkNotificationsRead, recipientId.String())
		return err
	})
}

// CountUnread returns the recipient's unread notification count.
func (db *DB) CountUnread(recipientId uuid.UUID) (int, error) {
	var n int
	err := db.db.QueryRow(sqlCountUnread, recipientId.String()).Scan(&n)
	return n, err
}
