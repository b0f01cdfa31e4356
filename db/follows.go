package db

import (
	"database/sql"

	"github.com/deemkeen/mammut/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertFollow = `INSERT INTO follows(id, follower_id, following_id, uri, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlDeleteFollow = `DELETE FROM follows WHERE follower_id = ? AND following_id = ?`
	sqlSelectFollow = `SELECT follower_id, following_id, uri, created_at FROM follows`
	sqlSelectFollowByKey       = sqlSelectFollow + ` WHERE follower_id = ? AND following_id = ?`
	sqlSelectFollowingByActor  = sqlSelectFollow + ` WHERE follower_id = ?`
	sqlSelectFollowersOfActor  = sqlSelectFollow + ` WHERE following_id = ?`

	sqlInsertFollowRequest = `INSERT INTO follow_requests(id, follower_id, following_id, uri, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlDeleteFollowRequest = `DELETE FROM follow_requests WHERE follower_id = ? AND following_id = ?`
	sqlSelectFollowRequest = `SELECT follower_id, following_id, uri, created_at FROM follow_requests WHERE follower_id = ? AND following_id = ?`
)

// CreateFollow writes the existence row and the accepted event. A racing
// duplicate insert collapses into the typed conflict, which callers treat as
// idempotent success.
func (db *DB) CreateFollow(follow *domain.Follow) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollow,
			uuid.New().String(),
			follow.FollowerId.String(),
			follow.FollowingId.String(),
			nullable(follow.URI),
			follow.CreatedAt,
		)
		if err != nil {
			return convertUnique(err, domain.ErrAlreadyFollowing(follow.FollowKey.String()))
		}
		return insertEvent(tx, follow.AcceptedEvent())
	})
}

// DeleteFollow removes the relationship and logs the removal event. Deleting
// an absent pair is a no-op.
func (db *DB) DeleteFollow(key domain.FollowKey) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlDeleteFollow, key.FollowerId.String(), key.FollowingId.String())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		follow := domain.Follow{FollowKey: key}
		return insertEvent(tx, follow.RemovedEvent())
	})
}

// CreateFollowRequest records an outbound follow awaiting its Accept.
// Re-requesting the same pair is a benign conflict (the original request
// stands, the activity may simply be resent).
func (db *DB) CreateFollowRequest(req *domain.FollowRequest) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollowRequest,
			uuid.New().String(),
			req.FollowerId.String(),
			req.FollowingId.String(),
			nullable(req.URI),
			req.CreatedAt,
		)
		if err != nil {
			return convertUnique(err, domain.ErrAlreadyFollowing(req.FollowKey.String()))
		}
		return insertEvent(tx, req.RequestedEvent())
	})
}

// ReadFollowRequest resolves the pending outbound request for a pair.
func (db *DB) ReadFollowRequest(key domain.FollowKey) (*domain.FollowRequest, error) {
	row := db.db.QueryRow(sqlSelectFollowRequest, key.FollowerId.String(), key.FollowingId.String())
	var req domain.FollowRequest
	var followerStr, followingStr string
	var uri sql.NullString
	err := row.Scan(&followerStr, &followingStr, &uri, &req.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrFollowNotFound(key.String())
	}
	if err != nil {
		return nil, err
	}
	req.FollowerId, _ = uuid.Parse(followerStr)
	req.FollowingId, _ = uuid.Parse(followingStr)
	req.URI = uri.String
	return &req, nil
}

// AcceptFollowRequest promotes a pending request into the existence row and
// drops the request, all in one transaction with the accepted event.
func (db *DB) AcceptFollowRequest(follow *domain.Follow) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlDeleteFollowRequest, follow.FollowerId.String(), follow.FollowingId.String()); err != nil {
			return err
		}
		_, err := tx.Exec(sqlInsertFollow,
			uuid.New().String(),
			follow.FollowerId.String(),
			follow.FollowingId.String(),
			nullable(follow.URI),
			follow.CreatedAt,
		)
		if err != nil {
			return convertUnique(err, domain.ErrAlreadyFollowing(follow.FollowKey.String()))
		}
		return insertEvent(tx, follow.AcceptedEvent())
	})
}

// ReadFollow resolves a relationship by its pair key.
func (db *DB) ReadFollow(key domain.FollowKey) (*domain.Follow, error) {
	row := db.db.QueryRow(sqlSelectFollowByKey, key.FollowerId.String(), key.FollowingId.String())
	follow, err := scanFollowRow(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrFollowNotFound(key.String())
	}
	if err != nil {
		return nil, err
	}
	return follow, nil
}

// ReadFollowing returns the ids of everyone the actor follows, the input set
// for the home timeline.
func (db *DB) ReadFollowing(actorId uuid.UUID) ([]uuid.UUID, error) {
	return db.readFollowIds(sqlSelectFollowingByActor, actorId, false)
}

// ReadFollowers returns the ids of everyone following the actor.
func (db *DB) ReadFollowers(actorId uuid.UUID) ([]uuid.UUID, error) {
	return db.readFollowIds(sqlSelectFollowersOfActor, actorId, true)
}

func (db *DB) readFollowIds(query string, actorId uuid.UUID, wantFollower bool) ([]uuid.UUID, error) {
	rows, err := db.db.Query(query, actorId.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		follow, err := scanFollowRow(rows)
		if err != nil {
			return ids, err
		}
		if wantFollower {
			ids = append(ids, follow.FollowerId)
		} else {
			ids = append(ids, follow.FollowingId)
		}
	}
	return ids, rows.Err()
}

func scanFollowRow(row rowScanner) (*domain.Follow, error) {
	var follow domain.Follow
	var followerStr, followingStr string
	var uri sql.NullString
	err := row.Scan(&followerStr, &followingStr, &uri, &follow.CreatedAt)
	if err != nil {
		return nil, err
	}
	follow.FollowerId, _ = uuid.Parse(followerStr)
	follow.FollowingId, _ = uuid.Parse(followingStr)
	follow.URI = uri.String
	return &follow, nil
}
