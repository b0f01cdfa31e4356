package db

import (
	"database/sql"
	"strings"
	"time"

	"github.com/deemkeen/mammut/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertActor = `INSERT INTO actors(id, username, domain, actor_uri, display_name, summary, inbox_uri, outbox_uri, public_key_pem, avatar_url, local, last_fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateActor = `UPDATE actors SET display_name = ?, summary = ?, inbox_uri = ?, outbox_uri = ?, public_key_pem = ?, avatar_url = ?, last_fetched_at = ?
		WHERE actor_uri = ?`
	sqlSelectActor            = `SELECT id, username, domain, actor_uri, display_name, summary, inbox_uri, outbox_uri, public_key_pem, avatar_url, local, last_fetched_at FROM actors`
	sqlSelectActorByURI       = sqlSelectActor + ` WHERE actor_uri = ?`
	sqlSelectActorById        = sqlSelectActor + ` WHERE id = ?`
	sqlSelectActorByUsername  = sqlSelectActor + ` WHERE username = ? AND local = 1`
	sqlDeleteActorById        = `DELETE FROM actors WHERE id = ?`
	EventActorUpserted        = "actor.upserted"
	EventActorRemoved         = "actor.removed"
)

// CreateActor inserts a new identity row. An existing actor URI surfaces as a
// typed conflict; callers that want upsert semantics use UpsertActor.
func (db *DB) CreateActor(actor *domain.Actor) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if err := insertActor(tx, actor); err != nil {
			return convertUnique(err, &domain.ConflictError{Aggregate: domain.AggregateActor, Key: actor.ActorURI})
		}
		return insertEvent(tx, domain.NewEvent(domain.AggregateActor, actor.Id.String(), EventActorUpserted, actor, actor))
	})
}

// UpsertActor writes a remote identity record, updating the cached profile
// fields when the actor URI is already known. The stored id is kept stable
// across refreshes; the passed actor's Id is rewritten to the stored one.
func (db *DB) UpsertActor(actor *domain.Actor) error {
	existing, err := db.ReadActorByURI(actor.ActorURI)
	if err != nil && !domain.IsNotFound(err) {
		return err
	}
	if existing != nil {
		actor.Id = existing.Id
		return db.wrapTransaction(func(tx *sql.Tx) error {
			_, err := tx.Exec(sqlUpdateActor,
				nullable(actor.DisplayName),
				nullable(actor.Summary),
				nullable(actor.InboxURI),
				nullable(actor.OutboxURI),
				nullable(actor.PublicKeyPem),
				nullable(actor.AvatarURL),
				actor.LastFetchedAt,
				actor.ActorURI,
			)
			if err != nil {
				return err
			}
			return insertEvent(tx, domain.NewEvent(domain.AggregateActor, actor.Id.String(), EventActorUpserted, actor, actor))
		})
	}
	return db.CreateActor(actor)
}

// DeleteActor removes an identity row (remote account deletion).
func (db *DB) DeleteActor(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlDeleteActorById, id.String()); err != nil {
			return err
		}
		return insertEvent(tx, domain.NewRemovalEvent(domain.AggregateActor, id.String(), EventActorRemoved,
			map[string]string{"actorId": id.String()}))
	})
}

func (db *DB) ReadActorByURI(uri string) (*domain.Actor, error) {
	return db.scanActor(db.db.QueryRow(sqlSelectActorByURI, uri), uri)
}

func (db *DB) ReadActorById(id uuid.UUID) (*domain.Actor, error) {
	return db.scanActor(db.db.QueryRow(sqlSelectActorById, id.String()), id.String())
}

func (db *DB) ReadActorByUsername(username string) (*domain.Actor, error) {
	return db.scanActor(db.db.QueryRow(sqlSelectActorByUsername, username), username)
}

// ReadActorsByIds bulk-fetches identities for feed assembly.
func (db *DB) ReadActorsByIds(ids []uuid.UUID) (map[uuid.UUID]domain.Actor, error) {
	result := make(map[uuid.UUID]domain.Actor)
	if len(ids) == 0 {
		return result, nil
	}

	query := sqlSelectActor + ` WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := db.db.Query(query, idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		actor, err := scanActorRow(rows)
		if err != nil {
			return result, err
		}
		result[actor.Id] = *actor
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanActor(row *sql.Row, key string) (*domain.Actor, error) {
	actor, err := scanActorRow(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrActorNotFound(key)
	}
	if err != nil {
		return nil, err
	}
	return actor, nil
}

func scanActorRow(row rowScanner) (*domain.Actor, error) {
	var actor domain.Actor
	var idStr string
	var domainName, displayName, summary, inboxURI, outboxURI, publicKeyPem, avatarURL sql.NullString
	var local int
	err := row.Scan(
		&idStr,
		&actor.Username,
		&domainName,
		&actor.ActorURI,
		&displayName,
		&summary,
		&inboxURI,
		&outboxURI,
		&publicKeyPem,
		&avatarURL,
		&local,
		&actor.LastFetchedAt,
	)
	if err != nil {
		return nil, err
	}
	actor.Id, _ = uuid.Parse(idStr)
	actor.Domain = domainName.String
	actor.DisplayName = displayName.String
	actor.Summary = summary.String
	actor.InboxURI = inboxURI.String
	actor.OutboxURI = outboxURI.String
	actor.PublicKeyPem = publicKeyPem.String
	actor.AvatarURL = avatarURL.String
	actor.Local = local == 1
	return &actor, nil
}

func insertActor(tx *sql.Tx, actor *domain.Actor) error {
	local := 0
	if actor.Local {
		local = 1
	}
	if actor.LastFetchedAt.IsZero() {
		actor.LastFetchedAt = time.Now()
	}
	_, err := tx.Exec(sqlInsertActor,
		actor.Id.String(),
		actor.Username,
		nullable(actor.Domain),
		actor.ActorURI,
		nullable(actor.DisplayName),
		nullable(actor.Summary),
		nullable(actor.InboxURI),
		nullable(actor.OutboxURI),
		nullable(actor.PublicKeyPem),
		nullable(actor.AvatarURL),
		local,
		actor.LastFetchedAt,
	)
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func idArgs(ids []uuid.UUID) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	return args
}
