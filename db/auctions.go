package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/clearmarket/sealbid-node/settlement"
	"github.com/clearmarket/sealbid-node/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// StoreAuction records a new auction snapshot as reported by the
// chain-state collaborator. When a new auction is stored, it is assumed to
// come from chain state, and its status is set to ACTIVE.
func (r *SQLite) StoreAuction(id common.Address, clearingPrice,
	currencyRaised *uint256.Int) error {
	sqlQuery := `
	INSERT INTO auctions(
		id,
		status,
		clearingPrice,
		currencyRaised,
		insertedDatetime
	) values(?, ?, ?, ?, CURRENT_TIMESTAMP)
	`

	stmt, err := r.db.Prepare(sqlQuery)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck

	if clearingPrice == nil {
		clearingPrice = new(uint256.Int)
	}
	if currencyRaised == nil {
		currencyRaised = new(uint256.Int)
	}

	_, err = stmt.Exec(id.Bytes(), types.AuctionStatusActive,
		clearingPrice.Bytes(), currencyRaised.Bytes())
	if err != nil {
		return err
	}
	return nil
}

// UpdateAuctionStatus sets the given status for the given auction id,
// checking that the lifecycle allows the transition. This method should
// only be called when updating from chain state; this node never decides
// status changes itself.
func (r *SQLite) UpdateAuctionStatus(id common.Address,
	status types.AuctionStatus) error {
	current, err := r.GetAuctionStatus(id)
	if err != nil {
		return err
	}
	if err := settlement.ValidateTransition(current, status); err != nil {
		return err
	}

	sqlQuery := `
	UPDATE auctions SET status=? WHERE id=?
	`

	stmt, err := r.db.Prepare(sqlQuery)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck

	_, err = stmt.Exec(int(status), id.Bytes())
	if err != nil {
		return err
	}
	return nil
}

// UpdateAuctionClearing updates the clearing price and raised amount
// reported by chain state for the given auction id
func (r *SQLite) UpdateAuctionClearing(id common.Address, clearingPrice,
	currencyRaised *uint256.Int) error {
	sqlQuery := `
	UPDATE auctions SET clearingPrice=?, currencyRaised=? WHERE id=?
	`

	stmt, err := r.db.Prepare(sqlQuery)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck

	if clearingPrice == nil {
		clearingPrice = new(uint256.Int)
	}
	if currencyRaised == nil {
		currencyRaised = new(uint256.Int)
	}

	_, err = stmt.Exec(clearingPrice.Bytes(), currencyRaised.Bytes(), id.Bytes())
	if err != nil {
		return err
	}
	return nil
}

// GetAuctionStatus returns the stored types.AuctionStatus for the given id
func (r *SQLite) GetAuctionStatus(id common.Address) (types.AuctionStatus, error) {
	row := r.db.QueryRow("SELECT status FROM auctions WHERE id = ?", id.Bytes())

	var status int
	err := row.Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("AuctionID: %s, does not exist in the db", id.Hex())
		}
		return 0, err
	}
	return types.AuctionStatus(status), nil
}

// ReadAuctionByID reads the types.AuctionSnapshot for the given id
func (r *SQLite) ReadAuctionByID(id common.Address) (*types.AuctionSnapshot, error) {
	row := r.db.QueryRow("SELECT * FROM auctions WHERE id = ?", id.Bytes())

	snapshot, err := scanAuction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("AuctionID: %s, does not exist in the db", id.Hex())
		}
		return nil, err
	}
	return snapshot, nil
}

// ReadAuctions reads all the stored types.AuctionSnapshot
func (r *SQLite) ReadAuctions() ([]types.AuctionSnapshot, error) {
	sqlQuery := `
	SELECT * FROM auctions ORDER BY datetime(insertedDatetime) DESC
	`

	rows, err := r.db.Query(sqlQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var snapshots []types.AuctionSnapshot
	for rows.Next() {
		snapshot, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snapshot)
	}
	return snapshots, nil
}

// ReadAuctionsByStatus reads all the stored auctions which have the given
// status
func (r *SQLite) ReadAuctionsByStatus(status types.AuctionStatus) (
	[]types.AuctionSnapshot, error) {
	sqlQuery := `
	SELECT * FROM auctions WHERE status = ?
	ORDER BY datetime(insertedDatetime) DESC
	`

	rows, err := r.db.Query(sqlQuery, int(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var snapshots []types.AuctionSnapshot
	for rows.Next() {
		snapshot, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snapshot)
	}
	return snapshots, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*types.AuctionSnapshot, error) {
	var snapshot types.AuctionSnapshot
	var id, clearingPrice, currencyRaised []byte
	var status int
	err := row.Scan(&id, &status, &clearingPrice, &currencyRaised,
		&snapshot.InsertedDatetime)
	if err != nil {
		return nil, err
	}
	snapshot.ID = common.BytesToAddress(id)
	snapshot.Status = types.AuctionStatus(status)
	snapshot.ClearingPrice = new(uint256.Int).SetBytes(clearingPrice)
	snapshot.CurrencyRaised = new(uint256.Int).SetBytes(currencyRaised)
	return &snapshot, nil
}
