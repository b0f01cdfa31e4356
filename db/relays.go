package db

import (
	"database/sql"
	"fmt"

	"github.com/deemkeen/mammut/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertRelay = `INSERT INTO relays(id, actor_uri, inbox_uri, status, created_at, accepted_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlAcceptRelay = `UPDATE relays SET status = ?, accepted_at = ? WHERE id = ?`
	sqlDeleteRelay = `DELETE FROM relays WHERE id = ?`
	sqlSelectRelay = `SELECT id, actor_uri, inbox_uri, status, created_at, accepted_at FROM relays`
	sqlSelectRelayByURI = sqlSelectRelay + ` WHERE actor_uri = ?`
	sqlSelectRelayById  = sqlSelectRelay + ` WHERE id = ?`
	sqlSelectAllRelays  = sqlSelectRelay + ` ORDER BY created_at ASC`
	sqlCountRelaysByURI = `SELECT COUNT(*) FROM relays WHERE actor_uri = ?`
)

// CreateRelay writes the pending subscription and its creation event. A
// second row for the same actor URI surfaces as RelayAlreadyExists, which the
// subscribe path treats as an idempotent nudge.
func (db *DB) CreateRelay(relay *domain.Relay) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertRelay,
			relay.Id.String(),
			relay.ActorURI,
			relay.InboxURI,
			string(relay.Status),
			relay.CreatedAt,
			nullableTime(relay.AcceptedAt),
		)
		if err != nil {
			return convertUnique(err, domain.ErrRelayAlreadyExists(relay.ActorURI))
		}
		return insertEvent(tx, relay.SubscribedEvent())
	})
}

// AcceptRelay persists the accepted transition together with its delta event.
func (db *DB) AcceptRelay(relay *domain.Relay, ev domain.Event) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlAcceptRelay, string(domain.RelayAccepted), nullableTime(relay.AcceptedAt), relay.Id.String())
		if err != nil {
			return err
		}
		return insertEvent(tx, ev)
	})
}

// DeleteRelay removes the row entirely (unsubscribe is a hard removal) and
// logs the removal event.
func (db *DB) DeleteRelay(relay *domain.Relay) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlDeleteRelay, relay.Id.String()); err != nil {
			return err
		}
		return insertEvent(tx, relay.RemovedEvent())
	})
}

// ReadRelayByActorURI resolves the relay subscribed to the given peer actor.
// The actor URI is unique; finding more than one row is a data-integrity bug
// and panics rather than being masked.
func (db *DB) ReadRelayByActorURI(actorURI string) (*domain.Relay, error) {
	var count int
	if err := db.db.QueryRow(sqlCountRelaysByURI, actorURI).Scan(&count); err != nil {
		return nil, err
	}
	if count > 1 {
		panic(fmt.Sprintf("relay uniqueness violated for actor uri %s: %d rows", actorURI, count))
	}
	return db.scanRelay(db.db.QueryRow(sqlSelectRelayByURI, actorURI), actorURI)
}

func (db *DB) ReadRelayById(id uuid.UUID) (*domain.Relay, error) {
	return db.scanRelay(db.db.QueryRow(sqlSelectRelayById, id.String()), id.String())
}

func (db *DB) ReadAllRelays() ([]domain.Relay, error) {
	rows, err := db.db.Query(sqlSelectAllRelays)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var relays []domain.Relay
	for rows.Next() {
		relay, err := scanRelayRow(rows)
		if err != nil {
			return relays, err
		}
		relays = append(relays, *relay)
	}
	return relays, rows.Err()
}

func (db *DB) scanRelay(row *sql.Row, key string) (*domain.Relay, error) {
	relay, err := scanRelayRow(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRelayNotFound(key)
	}
	if err != nil {
		return nil, err
	}
	return relay, nil
}

func scanRelayRow(row rowScanner) (*domain.Relay, error) {
	var relay domain.Relay
	var idStr, status string
	var acceptedAt sql.NullTime
	err := row.Scan(&idStr, &relay.ActorURI, &relay.InboxURI, &status, &relay.CreatedAt, &acceptedAt)
	if err != nil {
		return nil, err
	}
	relay.Id, _ = uuid.Parse(idStr)
	relay.Status = domain.RelayStatus(status)
	if acceptedAt.Valid {
		t := acceptedAt.Time
		relay.AcceptedAt = &t
	}
	return &relay, nil
}
