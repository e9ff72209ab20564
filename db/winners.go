package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/clearmarket/sealbid-node/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// StoreWinners stores the winners of the given settlement result. Existing
// winner rows for the auction are replaced, so re-running settlement with
// unchanged inputs leaves the table unchanged.
func (r *SQLite) StoreWinners(result *types.SettlementResult) error {
	sqlQuery := `
	INSERT OR REPLACE INTO winners(
		auctionID,
		bidder,
		bidAmount,
		bidPrice,
		winningAmount,
		claimStatus,
		insertedDatetime
	) values(?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`

	stmt, err := r.db.Prepare(sqlQuery)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck

	for _, w := range result.Winners {
		_, err = stmt.Exec(result.AuctionID.Bytes(), w.Bidder.Bytes(),
			w.BidAmount.Bytes(), w.BidPrice.Bytes(), w.WinningAmount.Bytes(),
			int(w.ClaimStatus))
		if err != nil {
			if err.Error() == "FOREIGN KEY constraint failed" {
				return fmt.Errorf("Can not store winners, AuctionID=%s does not exist",
					result.AuctionID.Hex())
			}
			return err
		}
	}
	return nil
}

// ReadWinnersByAuction reads all the stored winners for the given auction
func (r *SQLite) ReadWinnersByAuction(auctionID common.Address) ([]types.Winner, error) {
	sqlQuery := `
	SELECT bidder, bidAmount, bidPrice, winningAmount, claimStatus FROM winners
	WHERE auctionID = ?
	ORDER BY rowid ASC
	`

	rows, err := r.db.Query(sqlQuery, auctionID.Bytes())
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var winners []types.Winner
	for rows.Next() {
		var w types.Winner
		var bidder, bidAmount, bidPrice, winningAmount []byte
		var claimStatus int
		err = rows.Scan(&bidder, &bidAmount, &bidPrice, &winningAmount,
			&claimStatus)
		if err != nil {
			return nil, err
		}
		w.Bidder = common.BytesToAddress(bidder)
		w.BidAmount = new(uint256.Int).SetBytes(bidAmount)
		w.BidPrice = new(uint256.Int).SetBytes(bidPrice)
		w.WinningAmount = new(uint256.Int).SetBytes(winningAmount)
		w.ClaimStatus = types.ClaimStatus(claimStatus)
		winners = append(winners, w)
	}
	return winners, nil
}

// UpdateClaimStatus sets the claim status of the given winner, as reported
// by the external collaborator performing the on-chain claim
func (r *SQLite) UpdateClaimStatus(auctionID, bidder common.Address,
	status types.ClaimStatus) error {
	sqlQuery := `
	UPDATE winners SET claimStatus=? WHERE auctionID=? AND bidder=?
	`

	stmt, err := r.db.Prepare(sqlQuery)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck

	res, err := stmt.Exec(int(status), auctionID.Bytes(), bidder.Bytes())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no winner for AuctionID=%s Bidder=%s",
			auctionID.Hex(), bidder.Hex())
	}
	return nil
}

// ClaimStatus returns the stored claim status for the given winner. If the
// bidder has no winner row yet, the claim status is PENDING. Implements
// settlement.ClaimStatusProvider.
func (r *SQLite) ClaimStatus(auctionID,
	bidder common.Address) (types.ClaimStatus, error) {
	row := r.db.QueryRow(
		"SELECT claimStatus FROM winners WHERE auctionID = ? AND bidder = ?",
		auctionID.Bytes(), bidder.Bytes())

	var status int
	err := row.Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ClaimStatusPending, nil
		}
		return 0, err
	}
	return types.ClaimStatus(status), nil
}
