package db

import (
	"database/sql"
)

// SQLite represents the SQLite database holding the sealed bids, the
// recorded auction snapshots and the settlement winners
type SQLite struct {
	db *sql.DB
}

// NewSQLite returns a new *SQLite database. The db must be opened with
// foreign keys enabled in the DSN (_foreign_keys=on), so the constraint
// applies on every pooled connection.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{
		db: db,
	}
}

// Migrate creates the tables needed for the database
func (r *SQLite) Migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS auctions(
		id BLOB NOT NULL PRIMARY KEY UNIQUE,
		status INTEGER NOT NULL,
		clearingPrice BLOB NOT NULL,
		currencyRaised BLOB NOT NULL,
		insertedDatetime DATETIME
	);
	`
	_, err := r.db.Exec(query)
	if err != nil {
		return err
	}

	query = `
	CREATE TABLE IF NOT EXISTS bids(
		nullifier BLOB NOT NULL PRIMARY KEY UNIQUE,
		commitment BLOB NOT NULL,
		bidder BLOB NOT NULL,
		auctionID BLOB NOT NULL,
		amount BLOB NOT NULL,
		price BLOB NOT NULL,
		salt BLOB NOT NULL,
		bidTimestamp INTEGER NOT NULL,
		revealed INTEGER NOT NULL DEFAULT 0,
		insertedDatetime DATETIME,
		FOREIGN KEY(auctionID) REFERENCES auctions(id)
	);
	`
	_, err = r.db.Exec(query)
	if err != nil {
		return err
	}

	query = `
	CREATE TABLE IF NOT EXISTS winners(
		auctionID BLOB NOT NULL,
		bidder BLOB NOT NULL,
		bidAmount BLOB NOT NULL,
		bidPrice BLOB NOT NULL,
		winningAmount BLOB NOT NULL,
		claimStatus INTEGER NOT NULL,
		insertedDatetime DATETIME,
		PRIMARY KEY(auctionID, bidder),
		FOREIGN KEY(auctionID) REFERENCES auctions(id)
	);
	`
	_, err = r.db.Exec(query)
	if err != nil {
		return err
	}

	return nil
}
