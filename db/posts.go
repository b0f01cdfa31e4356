package db

import (
	"database/sql"
	"time"

	"github.com/deemkeen/mammut/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertPost = `INSERT INTO posts(id, actor_id, content, in_reply_to_uri, local, user_id, uri, created_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSoftDeletePost = `UPDATE posts SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`
	sqlSelectPost     = `SELECT id, actor_id, content, in_reply_to_uri, local, user_id, uri, created_at, deleted_at FROM posts`
	sqlSelectPostById  = sqlSelectPost + ` WHERE id = ?`
	sqlSelectPostByURI = sqlSelectPost + ` WHERE uri = ?`

	sqlInsertPostImage   = `INSERT INTO post_images(id, post_id, url, alt_text, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlInsertLinkPreview = `INSERT INTO link_previews(id, post_id, url, title, description, image_url, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`

	sqlInsertLike      = `INSERT INTO likes(id, actor_id, post_id, uri, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlDeleteLike = `DELETE FROM likes WHERE actor_id = ? AND post_id = ?`
	sqlSelectLike = `SELECT id, actor_id, post_id, uri, created_at FROM likes WHERE actor_id = ? AND post_id = ?`

	sqlInsertReaction = `INSERT INTO reactions(id, actor_id, post_id, emoji, uri, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlDeleteReaction = `DELETE FROM reactions WHERE actor_id = ? AND post_id = ? AND emoji = ?`

	sqlInsertMute     = `INSERT INTO mutes(id, actor_id, muted_id, created_at) VALUES (?, ?, ?, ?)`
	sqlDeleteMute     = `DELETE FROM mutes WHERE actor_id = ? AND muted_id = ?`
	sqlSelectMutedIds = `SELECT muted_id FROM mutes WHERE actor_id = ?`
)

// CreatePost writes the post, its attachments and its feed reference in one
// transaction, together with the creation events. item may be nil for posts
// that are not feed-eligible (e.g. direct replies fetched for thread
// context). A duplicate remote object URI is a benign conflict.
func (db *DB) CreatePost(post *domain.Post, images []domain.PostImage, preview *domain.LinkPreview, item *domain.TimelineItem) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		local := 0
		var userId any
		if post.Local {
			local = 1
			userId = post.UserId.String()
		}
		_, err := tx.Exec(sqlInsertPost,
			post.Id.String(),
			post.ActorId.String(),
			post.Content,
			nullable(post.InReplyToURI),
			local,
			userId,
			nullable(post.URI),
			post.CreatedAt,
			nullableTime(post.DeletedAt),
		)
		if err != nil {
			return convertUnique(err, &domain.ConflictError{Aggregate: domain.AggregatePost, Key: post.URI})
		}

		for _, img := range images {
			if _, err := tx.Exec(sqlInsertPostImage, img.Id.String(), post.Id.String(), img.URL, nullable(img.AltText), img.CreatedAt); err != nil {
				return err
			}
		}
		if preview != nil {
			if _, err := tx.Exec(sqlInsertLinkPreview, preview.Id.String(), post.Id.String(), preview.URL,
				nullable(preview.Title), nullable(preview.Description), nullable(preview.ImageURL), preview.CreatedAt); err != nil {
				return err
			}
		}

		if err := insertEvent(tx, post.CreatedEvent()); err != nil {
			return err
		}

		if item != nil {
			if err := insertTimelineItem(tx, item); err != nil {
				return err
			}
			return insertEvent(tx, item.AddedEvent())
		}
		return nil
	})
}

// SoftDeletePost marks the post deleted, keeping the row so URIs referenced
// by replies stay resolvable. Feed references are tombstoned in the same
// transaction. Deleting an already-deleted post is a no-op.
func (db *DB) SoftDeletePost(post *domain.Post, now time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlSoftDeletePost, now, post.Id.String())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if _, err := tx.Exec(sqlTombstoneTimelineItems, now, post.Id.String()); err != nil {
			return err
		}
		return insertEvent(tx, post.DeletedEvent(now))
	})
}

func (db *DB) ReadPostById(id uuid.UUID) (*domain.Post, error) {
	return db.scanPost(db.db.QueryRow(sqlSelectPostById, id.String()), id.String())
}

func (db *DB) ReadPostByURI(uri string) (*domain.Post, error) {
	return db.scanPost(db.db.QueryRow(sqlSelectPostByURI, uri), uri)
}

// CreateLike records a favorite. Liking the same post twice yields
// AlreadyLiked.
func (db *DB) CreateLike(like *domain.Like) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertLike, like.Id.String(), like.ActorId.String(), like.PostId.String(), nullable(like.URI), like.CreatedAt)
		if err != nil {
			return convertUnique(err, domain.ErrAlreadyLiked(like.PostId.String()))
		}
		return insertEvent(tx, like.CreatedEvent())
	})
}

// DeleteLike removes a favorite by its pair key. No-op when absent.
func (db *DB) DeleteLike(actorId, postId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlDeleteLike, actorId.String(), postId.String())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		like := domain.Like{ActorId: actorId, PostId: postId}
		return insertEvent(tx, like.RemovedEvent())
	})
}

func (db *DB) ReadLike(actorId, postId uuid.UUID) (*domain.Like, error) {
	var like domain.Like
	var idStr, actorStr, postStr string
	var uri sql.NullString
	err := db.db.QueryRow(sqlSelectLike, actorId.String(), postId.String()).
		Scan(&idStr, &actorStr, &postStr, &uri, &like.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Aggregate: domain.AggregateLike, Key: postId.String()}
	}
	if err != nil {
		return nil, err
	}
	like.Id, _ = uuid.Parse(idStr)
	like.ActorId, _ = uuid.Parse(actorStr)
	like.PostId, _ = uuid.Parse(postStr)
	like.URI = uri.String
	return &like, nil
}

// CreateReaction records an emoji reaction, unique per actor/post/emoji.
func (db *DB) CreateReaction(reaction *domain.Reaction) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertReaction, reaction.Id.String(), reaction.ActorId.String(),
			reaction.PostId.String(), reaction.Emoji, nullable(reaction.URI), reaction.CreatedAt)
		if err != nil {
			return convertUnique(err, domain.ErrAlreadyReacted(reaction.PostId.String()))
		}
		return insertEvent(tx, reaction.CreatedEvent())
	})
}

func (db *DB) DeleteReaction(actorId, postId uuid.UUID, emoji string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlDeleteReaction, actorId.String(), postId.String(), emoji)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		reaction := domain.Reaction{ActorId: actorId, PostId: postId, Emoji: emoji}
		return insertEvent(tx, reaction.RemovedEvent())
	})
}

// CreateMute hides an author from the actor's timelines. Muting twice yields
// AlreadyMuted.
func (db *DB) CreateMute(mute *domain.Mute) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertMute, mute.Id.String(), mute.ActorId.String(), mute.MutedId.String(), mute.CreatedAt)
		if err != nil {
			return convertUnique(err, domain.ErrAlreadyMuted(mute.MutedId.String()))
		}
		return insertEvent(tx, mute.CreatedEvent())
	})
}

func (db *DB) DeleteMute(actorId, mutedId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlDeleteMute, actorId.String(), mutedId.String())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		mute := domain.Mute{ActorId: actorId, MutedId: mutedId}
		return insertEvent(tx, mute.RemovedEvent())
	})
}

// ReadMutedSet returns the actor ids muted by the given actor.
func (db *DB) ReadMutedSet(actorId uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := db.db.Query(sqlSelectMutedIds, actorId.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	muted := make(map[uuid.UUID]bool)
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return muted, err
		}
		id, _ := uuid.Parse(idStr)
		muted[id] = true
	}
	return muted, rows.Err()
}

func (db *DB) scanPost(row *sql.Row, key string) (*domain.Post, error) {
	post, err := scanPostRow(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPostNotFound(key)
	}
	if err != nil {
		return nil, err
	}
	return post, nil
}

func scanPostRow(row rowScanner) (*domain.Post, error) {
	var post domain.Post
	var idStr, actorStr string
	var inReplyTo, userId, uri sql.NullString
	var local int
	var deletedAt sql.NullTime
	err := row.Scan(&idStr, &actorStr, &post.Content, &inReplyTo, &local, &userId, &uri, &post.CreatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	post.Id, _ = uuid.Parse(idStr)
	post.ActorId, _ = uuid.Parse(actorStr)
	post.InReplyToURI = inReplyTo.String
	post.Local = local == 1
	if userId.Valid {
		post.UserId, _ = uuid.Parse(userId.String)
	}
	post.URI = uri.String
	if deletedAt.Valid {
		t := deletedAt.Time
		post.DeletedAt = &t
	}
	return &post, nil
}
