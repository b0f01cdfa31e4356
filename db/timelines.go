package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/deemkeen/mammut/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertTimelineItem = `INSERT INTO timeline_items(id, type, actor_id, post_id, repost_id, created_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlTombstoneTimelineItems = `UPDATE timeline_items SET deleted_at = ? WHERE post_id = ? AND deleted_at IS NULL`
	sqlDeleteRepostItem       = `DELETE FROM timeline_items WHERE actor_id = ? AND post_id = ? AND type = 'repost'`

	sqlInsertFederatedItem = `INSERT INTO federated_timeline_items(id, post_id, relay_id, received_at) VALUES (?, ?, ?, ?)`

	sqlSelectTimelinePageHead = `SELECT ti.id, ti.type, ti.actor_id, ti.post_id, ti.repost_id, ti.created_at,
			p.id, p.actor_id, p.content, p.in_reply_to_uri, p.local, p.user_id, p.uri, p.created_at, p.deleted_at
		FROM timeline_items ti
		INNER JOIN posts p ON p.id = ti.post_id
		WHERE ti.deleted_at IS NULL AND p.deleted_at IS NULL`

	sqlSelectFederatedPage = `SELECT f.post_id, MIN(f.received_at) AS received_at,
			p.id, p.actor_id, p.content, p.in_reply_to_uri, p.local, p.user_id, p.uri, p.created_at, p.deleted_at
		FROM federated_timeline_items f
		INNER JOIN posts p ON p.id = f.post_id
		WHERE p.deleted_at IS NULL`

	sqlSelectLikeCounts     = `SELECT post_id, COUNT(*) FROM likes WHERE post_id IN (%s) GROUP BY post_id`
	sqlSelectRepostCounts   = `SELECT post_id, COUNT(*) FROM timeline_items WHERE type = 'repost' AND deleted_at IS NULL AND post_id IN (%s) GROUP BY post_id`
	sqlSelectReactionCounts = `SELECT post_id, emoji, COUNT(*) FROM reactions WHERE post_id IN (%s) GROUP BY post_id, emoji`
	sqlSelectViewerLikes    = `SELECT post_id FROM likes WHERE actor_id = ? AND post_id IN (%s)`
	sqlSelectViewerReposts  = `SELECT post_id FROM timeline_items WHERE actor_id = ? AND type = 'repost' AND deleted_at IS NULL AND post_id IN (%s)`
	sqlSelectImagesByPosts  = `SELECT id, post_id, url, alt_text, created_at FROM post_images WHERE post_id IN (%s) ORDER BY created_at ASC`
	sqlSelectPreviewsByPosts = `SELECT id, post_id, url, title, description, image_url, created_at FROM link_previews WHERE post_id IN (%s)`
)

func expandIn(query, placeholders string) string {
	return fmt.Sprintf(query, placeholders)
}

// parseStoredTime decodes a timestamp the driver returns as raw text. The
// sqlite driver only maps TEXT back to time.Time when the column's declared
// type is a time type; an aggregate like MIN(received_at) has no declared
// type, so the stored representation (time.Time.String(), possibly carrying a
// monotonic-clock suffix) comes back verbatim and must be parsed here.
func parseStoredTime(s string) (time.Time, error) {
	if i := strings.LastIndex(s, " m="); i >= 0 {
		s = s[:i]
	}
	var firstErr error
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999 -0700 MST",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// TimelineRow is one raw page row before feed assembly: the feed reference
// joined to its (non-deleted) post.
type TimelineRow struct {
	Item domain.TimelineItem
	Post domain.Post
}

// AddTimelineItem writes a standalone feed reference (reposts; post items are
// written with their post in CreatePost). A duplicate repost of the same post
// by the same actor is a benign conflict.
func (db *DB) AddTimelineItem(item *domain.TimelineItem) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if err := insertTimelineItem(tx, item); err != nil {
			return convertUnique(err, &domain.ConflictError{Aggregate: domain.AggregateTimelineItem, Key: item.PostId.String()})
		}
		return insertEvent(tx, item.AddedEvent())
	})
}

// RemoveRepostItem deletes an actor's repost reference for a post (Undo
// Announce). No-op when absent.
func (db *DB) RemoveRepostItem(actorId, postId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlDeleteRepostItem, actorId.String(), postId.String())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		item := domain.TimelineItem{Id: uuid.New(), Type: domain.TimelineItemRepost, ActorId: actorId, PostId: postId}
		return insertEvent(tx, item.RemovedEvent())
	})
}

// AddFederatedItem admits a post into the public federated feed via the given
// relay. Re-delivery of the same post over the same relay is a benign
// conflict, so duplicate applications leave the state unchanged.
func (db *DB) AddFederatedItem(item *domain.FederatedTimelineItem) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFederatedItem, item.Id.String(), item.PostId.String(), item.RelayId.String(), item.ReceivedAt)
		if err != nil {
			return convertUnique(err, &domain.ConflictError{Aggregate: domain.AggregateFederatedItem, Key: item.PostId.String()})
		}
		return insertEvent(tx, item.AddedEvent())
	})
}

func insertTimelineItem(tx *sql.Tx, item *domain.TimelineItem) error {
	var repostId any
	if item.RepostId != nil {
		repostId = item.RepostId.String()
	}
	_, err := tx.Exec(sqlInsertTimelineItem,
		item.Id.String(),
		string(item.Type),
		item.ActorId.String(),
		item.PostId.String(),
		repostId,
		item.CreatedAt,
		nullableTime(item.DeletedAt),
	)
	return err
}

// ReadTimelinePage returns one page of feed references for the given actor
// set, newest first, strictly older than the cursor when one is supplied.
// Rows with equal timestamps are ordered by id for determinism within a page;
// the cursor itself stays timestamp-only.
func (db *DB) ReadTimelinePage(actorIds []uuid.UUID, cursor *time.Time, limit int) ([]TimelineRow, error) {
	if len(actorIds) == 0 {
		return nil, nil
	}

	query := sqlSelectTimelinePageHead + ` AND ti.actor_id IN (` + placeholders(len(actorIds)) + `)`
	args := idArgs(actorIds)
	if cursor != nil {
		query += ` AND ti.created_at < ?`
		args = append(args, *cursor)
	}
	query += ` ORDER BY ti.created_at DESC, ti.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var page []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var itemIdStr, itemType, itemActorStr, itemPostStr string
		var repostId sql.NullString
		var postIdStr, postActorStr string
		var inReplyTo, userId, uri sql.NullString
		var local int
		var deletedAt sql.NullTime
		err := rows.Scan(
			&itemIdStr, &itemType, &itemActorStr, &itemPostStr, &repostId, &row.Item.CreatedAt,
			&postIdStr, &postActorStr, &row.Post.Content, &inReplyTo, &local, &userId, &uri, &row.Post.CreatedAt, &deletedAt,
		)
		if err != nil {
			return page, err
		}
		row.Item.Id, _ = uuid.Parse(itemIdStr)
		row.Item.Type = domain.TimelineItemType(itemType)
		row.Item.ActorId, _ = uuid.Parse(itemActorStr)
		row.Item.PostId, _ = uuid.Parse(itemPostStr)
		if repostId.Valid {
			rid, _ := uuid.Parse(repostId.String)
			row.Item.RepostId = &rid
		}
		row.Post.Id, _ = uuid.Parse(postIdStr)
		row.Post.ActorId, _ = uuid.Parse(postActorStr)
		row.Post.InReplyToURI = inReplyTo.String
		row.Post.Local = local == 1
		if userId.Valid {
			row.Post.UserId, _ = uuid.Parse(userId.String)
		}
		row.Post.URI = uri.String
		page = append(page, row)
	}
	return page, rows.Err()
}

// ReadFederatedPage returns one page of the public relay feed, deduplicated
// across relays (a post admitted via several relays appears once, positioned
// at its earliest admission).
func (db *DB) ReadFederatedPage(cursor *time.Time, limit int) ([]TimelineRow, error) {
	query := sqlSelectFederatedPage
	var args []any
	if cursor != nil {
		query += ` AND f.received_at < ?`
		args = append(args, *cursor)
	}
	query += ` GROUP BY f.post_id ORDER BY received_at DESC, f.post_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var page []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var itemPostStr, receivedAtStr string
		var postIdStr, postActorStr string
		var inReplyTo, userId, uri sql.NullString
		var local int
		var deletedAt sql.NullTime
		err := rows.Scan(
			&itemPostStr, &receivedAtStr,
			&postIdStr, &postActorStr, &row.Post.Content, &inReplyTo, &local, &userId, &uri, &row.Post.CreatedAt, &deletedAt,
		)
		if err != nil {
			return page, err
		}
		if row.Item.CreatedAt, err = parseStoredTime(receivedAtStr); err != nil {
			return page, err
		}
		row.Item.Type = domain.TimelineItemPost
		row.Item.PostId, _ = uuid.Parse(itemPostStr)
		row.Item.ActorId, _ = uuid.Parse(postActorStr)
		row.Post.Id, _ = uuid.Parse(postIdStr)
		row.Post.ActorId, _ = uuid.Parse(postActorStr)
		row.Post.InReplyToURI = inReplyTo.String
		row.Post.Local = local == 1
		if userId.Valid {
			row.Post.UserId, _ = uuid.Parse(userId.String)
		}
		row.Post.URI = uri.String
		page = append(page, row)
	}
	return page, rows.Err()
}

// ReadPostCounts bulk-fetches like/repost/reaction tallies for a post-id set
// as grouped counts, avoiding per-row join fan-out.
func (db *DB) ReadPostCounts(postIds []uuid.UUID) (map[uuid.UUID]domain.PostCounts, error) {
	counts := make(map[uuid.UUID]domain.PostCounts)
	if len(postIds) == 0 {
		return counts, nil
	}

	in := placeholders(len(postIds))
	args := idArgs(postIds)

	collect := func(query string, assign func(c *domain.PostCounts, n int)) error {
		rows, err := db.db.Query(expandIn(query, in), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var idStr string
			var n int
			if err := rows.Scan(&idStr, &n); err != nil {
				return err
			}
			id, _ := uuid.Parse(idStr)
			c := counts[id]
			assign(&c, n)
			counts[id] = c
		}
		return rows.Err()
	}

	if err := collect(sqlSelectLikeCounts, func(c *domain.PostCounts, n int) { c.Likes = n }); err != nil {
		return counts, err
	}
	if err := collect(sqlSelectRepostCounts, func(c *domain.PostCounts, n int) { c.Reposts = n }); err != nil {
		return counts, err
	}

	rows, err := db.db.Query(expandIn(sqlSelectReactionCounts, in), args...)
	if err != nil {
		return counts, err
	}
	defer rows.Close()
	for rows.Next() {
		var idStr, emoji string
		var n int
		if err := rows.Scan(&idStr, &emoji, &n); err != nil {
			return counts, err
		}
		id, _ := uuid.Parse(idStr)
		c := counts[id]
		c.Reactions += n
		counts[id] = c
	}
	return counts, rows.Err()
}

// ReadReactionSummaries bulk-fetches per-emoji tallies for a post-id set.
func (db *DB) ReadReactionSummaries(postIds []uuid.UUID) (map[uuid.UUID][]domain.ReactionSummary, error) {
	result := make(map[uuid.UUID][]domain.ReactionSummary)
	if len(postIds) == 0 {
		return result, nil
	}
	rows, err := db.db.Query(expandIn(sqlSelectReactionCounts, placeholders(len(postIds))), idArgs(postIds)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var idStr, emoji string
		var n int
		if err := rows.Scan(&idStr, &emoji, &n); err != nil {
			return result, err
		}
		id, _ := uuid.Parse(idStr)
		result[id] = append(result[id], domain.ReactionSummary{Emoji: emoji, Count: n})
	}
	return result, rows.Err()
}

// ReadViewerInteractions returns which of the given posts the viewer has
// liked and reposted, as membership sets.
func (db *DB) ReadViewerInteractions(viewerId uuid.UUID, postIds []uuid.UUID) (liked, reposted map[uuid.UUID]bool, err error) {
	liked = make(map[uuid.UUID]bool)
	reposted = make(map[uuid.UUID]bool)
	if len(postIds) == 0 {
		return liked, reposted, nil
	}

	in := placeholders(len(postIds))
	args := append([]any{viewerId.String()}, idArgs(postIds)...)

	collect := func(query string, set map[uuid.UUID]bool) error {
		rows, err := db.db.Query(expandIn(query, in), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var idStr string
			if err := rows.Scan(&idStr); err != nil {
				return err
			}
			id, _ := uuid.Parse(idStr)
			set[id] = true
		}
		return rows.Err()
	}

	if err := collect(sqlSelectViewerLikes, liked); err != nil {
		return liked, reposted, err
	}
	if err := collect(sqlSelectViewerReposts, reposted); err != nil {
		return liked, reposted, err
	}
	return liked, reposted, nil
}

// ReadImagesByPosts bulk-fetches attachments for a post-id set.
func (db *DB) ReadImagesByPosts(postIds []uuid.UUID) (map[uuid.UUID][]domain.PostImage, error) {
	result := make(map[uuid.UUID][]domain.PostImage)
	if len(postIds) == 0 {
		return result, nil
	}
	rows, err := db.db.Query(expandIn(sqlSelectImagesByPosts, placeholders(len(postIds))), idArgs(postIds)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var img domain.PostImage
		var idStr, postStr string
		var altText sql.NullString
		if err := rows.Scan(&idStr, &postStr, &img.URL, &altText, &img.CreatedAt); err != nil {
			return result, err
		}
		img.Id, _ = uuid.Parse(idStr)
		img.PostId, _ = uuid.Parse(postStr)
		img.AltText = altText.String
		result[img.PostId] = append(result[img.PostId], img)
	}
	return result, rows.Err()
}

// ReadPreviewsByPosts bulk-fetches link preview cards for a post-id set.
func (db *DB) ReadPreviewsByPosts(postIds []uuid.UUID) (map[uuid.UUID]domain.LinkPreview, error) {
	result := make(map[uuid.UUID]domain.LinkPreview)
	if len(postIds) == 0 {
		return result, nil
	}
	rows, err := db.db.Query(expandIn(sqlSelectPreviewsByPosts, placeholders(len(postIds))), idArgs(postIds)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var preview domain.LinkPreview
		var idStr, postStr string
		var title, description, imageURL sql.NullString
		if err := rows.Scan(&idStr, &postStr, &preview.URL, &title, &description, &imageURL, &preview.CreatedAt); err != nil {
			return result, err
		}
		preview.Id, _ = uuid.Parse(idStr)
		preview.PostId, _ = uuid.Parse(postStr)
		preview.Title = title.String
		preview.Description = description.String
		preview.ImageURL = imageURL.String
		result[preview.PostId] = preview
	}
	return result, rows.Err()
}
