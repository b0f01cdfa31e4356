package db

import (
	"database/sql"
	"time"

	"github.com/deemkeen/mammut/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertEvent = `INSERT INTO events(event_id, aggregate_name, aggregate_id, event_name, state, payload, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectEventsByAggregate = `SELECT event_id, aggregate_name, aggregate_id, event_name, state, payload, occurred_at
		FROM events WHERE aggregate_name = ? AND aggregate_id = ? ORDER BY occurred_at ASC`
)

// insertEvent appends one event to the ledger inside the caller's
// transaction. Every store write goes through here alongside its state
// mutation.
func insertEvent(tx *sql.Tx, ev domain.Event) error {
	var state any
	if ev.State != nil {
		state = string(ev.State)
	}
	var payload any
	if ev.Payload != nil {
		payload = string(ev.Payload)
	}
	_, err := tx.Exec(sqlInsertEvent,
		ev.EventID.String(),
		ev.AggregateName,
		ev.AggregateID,
		ev.EventName,
		state,
		payload,
		ev.OccurredAt,
	)
	return err
}

func insertEvents(tx *sql.Tx, events ...domain.Event) error {
	for _, ev := range events {
		if err := insertEvent(tx, ev); err != nil {
			return err
		}
	}
	return nil
}

// ReadEventsByAggregate returns the audit trail for one aggregate, oldest
// first. Serving paths never call this; it exists for audit and debugging.
func (db *DB) ReadEventsByAggregate(aggregateName, aggregateID string) ([]domain.Event, error) {
	rows, err := db.db.Query(sqlSelectEventsByAggregate, aggregateName, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		var idStr string
		var state, payload sql.NullString
		var occurredAt time.Time
		if err := rows.Scan(&idStr, &ev.AggregateName, &ev.AggregateID, &ev.EventName, &state, &payload, &occurredAt); err != nil {
			return events, err
		}
		ev.EventID, _ = uuid.Parse(idStr)
		if state.Valid {
			ev.State = []byte(state.String)
		}
		if payload.Valid {
			ev.Payload = []byte(payload.String)
		}
		ev.OccurredAt = occurredAt
		events = append(events, ev)
	}
	return events, rows.Err()
}
