package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/clearmarket/sealbid-node/commitment"
	"github.com/clearmarket/sealbid-node/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrDuplicateBid is used when trying to store a bid whose nullifier is
	// already present in the bids table
	ErrDuplicateBid = errors.New("bid already stored for nullifier")
	// ErrCommitmentMismatch is used when the revealed fields do not
	// reproduce the stored commitment
	ErrCommitmentMismatch = errors.New("revealed fields do not match commitment")
	// ErrBidNotFound is used when no bid exists for the given nullifier
	ErrBidNotFound = errors.New("bid not found")
)

// StoreBid stores the given types.SealedBid. The caller must have already
// registered the bid's nullifier; this method does not consult the
// registry. Storing a second bid under the same nullifier returns
// ErrDuplicateBid.
func (r *SQLite) StoreBid(bid *types.SealedBid) error {
	sqlQuery := `
	INSERT INTO bids(
		nullifier,
		commitment,
		bidder,
		auctionID,
		amount,
		price,
		salt,
		bidTimestamp,
		revealed,
		insertedDatetime
	) values(?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`

	stmt, err := r.db.Prepare(sqlQuery)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck

	_, err = stmt.Exec(bid.Nullifier.Bytes(), bid.Commitment.Bytes(),
		bid.Bidder.Bytes(), bid.AuctionID.Bytes(), bid.Amount.Bytes(),
		bid.Price.Bytes(), bid.Salt.Bytes(), bid.Timestamp, bid.Revealed)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicateBid, bid.Nullifier.Hex())
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("Can not store bid, AuctionID=%s does not exist",
				bid.AuctionID.Hex())
		}
		return err
	}
	return nil
}

// ReadBidsByAuction reads all the stored bids for the given auction, in
// insertion order. Insertion order is the settlement tie-break of last
// resort.
func (r *SQLite) ReadBidsByAuction(auctionID common.Address) ([]types.SealedBid, error) {
	sqlQuery := `
	SELECT nullifier, commitment, bidder, auctionID, amount, price, salt,
	bidTimestamp, revealed FROM bids
	WHERE auctionID = ?
	ORDER BY rowid ASC
	`

	rows, err := r.db.Query(sqlQuery, auctionID.Bytes())
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var bids []types.SealedBid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, *bid)
	}
	return bids, nil
}

// ReadBidsByBidder reads all the stored bids for the given auction placed
// by the given bidder, in insertion order
func (r *SQLite) ReadBidsByBidder(auctionID,
	bidder common.Address) ([]types.SealedBid, error) {
	sqlQuery := `
	SELECT nullifier, commitment, bidder, auctionID, amount, price, salt,
	bidTimestamp, revealed FROM bids
	WHERE auctionID = ? AND bidder = ?
	ORDER BY rowid ASC
	`

	rows, err := r.db.Query(sqlQuery, auctionID.Bytes(), bidder.Bytes())
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var bids []types.SealedBid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, *bid)
	}
	return bids, nil
}

// ReadBidByNullifier reads the stored bid for the given nullifier
func (r *SQLite) ReadBidByNullifier(nullifier common.Hash) (*types.SealedBid, error) {
	sqlQuery := `
	SELECT nullifier, commitment, bidder, auctionID, amount, price, salt,
	bidTimestamp, revealed FROM bids
	WHERE nullifier = ?
	`

	row := r.db.QueryRow(sqlQuery, nullifier.Bytes())
	bid, err := scanBid(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrBidNotFound, nullifier.Hex())
		}
		return nil, err
	}
	return bid, nil
}

// MarkRevealed verifies that the given amount, price and salt reproduce the
// commitment stored under the given nullifier, and flips the bid to
// revealed. Revealing an already-revealed bid is a no-op returning success.
// On verification failure the bid is left untouched and
// ErrCommitmentMismatch is returned.
func (r *SQLite) MarkRevealed(nullifier common.Hash, amount,
	price *uint256.Int, salt common.Hash) error {
	bid, err := r.ReadBidByNullifier(nullifier)
	if err != nil {
		return err
	}
	if bid.Revealed {
		return nil
	}
	if !commitment.Verify(bid.Commitment, bid.Bidder, bid.AuctionID,
		amount, price, salt) {
		return fmt.Errorf("%w: nullifier %s", ErrCommitmentMismatch, nullifier.Hex())
	}

	sqlQuery := `
	UPDATE bids SET revealed=1 WHERE nullifier=?
	`

	stmt, err := r.db.Prepare(sqlQuery)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck

	_, err = stmt.Exec(nullifier.Bytes())
	if err != nil {
		return err
	}
	return nil
}

func scanBid(row rowScanner) (*types.SealedBid, error) {
	var bid types.SealedBid
	var nullifier, comm, bidder, auctionID, amount, price, salt []byte
	err := row.Scan(&nullifier, &comm, &bidder, &auctionID, &amount, &price,
		&salt, &bid.Timestamp, &bid.Revealed)
	if err != nil {
		return nil, err
	}
	bid.Nullifier = common.BytesToHash(nullifier)
	bid.Commitment = common.BytesToHash(comm)
	bid.Bidder = common.BytesToAddress(bidder)
	bid.AuctionID = common.BytesToAddress(auctionID)
	bid.Amount = new(uint256.Int).SetBytes(amount)
	bid.Price = new(uint256.Int).SetBytes(price)
	bid.Salt = common.BytesToHash(salt)
	return &bid, nil
}
