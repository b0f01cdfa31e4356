package db

import (
	"database/sql"
	"errors"
)

const (
	sqlInsertKeypair = `INSERT INTO keypairs(identity, public_pem, private_pem) VALUES (?, ?, ?)`
	sqlSelectKeypair = `SELECT public_pem, private_pem FROM keypairs WHERE identity = ?`
)

// ReadKeypair loads the PEM keypair stored for an identity, or ("", "", nil)
// when none exists yet.
func (db *DB) ReadKeypair(identity string) (publicPem, privatePem string, err error) {
	err = db.db.QueryRow(sqlSelectKeypair, identity).Scan(&publicPem, &privatePem)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	return publicPem, privatePem, err
}

// SaveKeypair persists a freshly generated keypair for an identity. The
// identity column is the primary key, so a concurrent generator loses the
// race cleanly and must re-read.
func (db *DB) SaveKeypair(identity, publicPem, privatePem string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertKeypair, identity, publicPem, privatePem)
		return err
	})
}
