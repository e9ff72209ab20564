package db

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/clearmarket/sealbid-node/types"
	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/holiman/uint256"
	_ "github.com/mattn/go-sqlite3"
)

var testAuctionID = common.HexToAddress("0x2222222222222222222222222222222222222222")

func newTestSQLite(c *qt.C) *SQLite {
	database, err := sql.Open("sqlite3",
		filepath.Join(c.TempDir(), "testdb.sqlite3")+"?_foreign_keys=on")
	c.Assert(err, qt.IsNil)

	sqlite := NewSQLite(database)
	err = sqlite.Migrate()
	c.Assert(err, qt.IsNil)
	return sqlite
}

func TestStoreAuction(t *testing.T) {
	c := qt.New(t)
	sqlite := newTestSQLite(c)

	err := sqlite.StoreAuction(testAuctionID, uint256.NewInt(15), uint256.NewInt(0))
	c.Assert(err, qt.IsNil)

	status, err := sqlite.GetAuctionStatus(testAuctionID)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.AuctionStatusActive)

	snapshot, err := sqlite.ReadAuctionByID(testAuctionID)
	c.Assert(err, qt.IsNil)
	c.Assert(snapshot.ID, qt.Equals, testAuctionID)
	c.Assert(snapshot.ClearingPrice.Uint64(), qt.Equals, uint64(15))
	c.Assert(snapshot.CurrencyRaised.IsZero(), qt.IsTrue)

	auctions, err := sqlite.ReadAuctions()
	c.Assert(err, qt.IsNil)
	c.Assert(auctions, qt.HasLen, 1)

	// unknown auction
	var other common.Address
	other[0] = 0xff
	_, err = sqlite.GetAuctionStatus(other)
	c.Assert(err, qt.IsNotNil)
}

func TestUpdateAuctionStatus(t *testing.T) {
	c := qt.New(t)
	sqlite := newTestSQLite(c)

	err := sqlite.StoreAuction(testAuctionID, nil, nil)
	c.Assert(err, qt.IsNil)

	// ACTIVE -> SETTLED is not a legal transition
	err = sqlite.UpdateAuctionStatus(testAuctionID, types.AuctionStatusSettled)
	c.Assert(err, qt.IsNotNil)

	err = sqlite.UpdateAuctionStatus(testAuctionID, types.AuctionStatusEnded)
	c.Assert(err, qt.IsNil)
	err = sqlite.UpdateAuctionStatus(testAuctionID, types.AuctionStatusSettled)
	c.Assert(err, qt.IsNil)

	status, err := sqlite.GetAuctionStatus(testAuctionID)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.AuctionStatusSettled)

	ended, err := sqlite.ReadAuctionsByStatus(types.AuctionStatusEnded)
	c.Assert(err, qt.IsNil)
	c.Assert(ended, qt.HasLen, 0)
	settled, err := sqlite.ReadAuctionsByStatus(types.AuctionStatusSettled)
	c.Assert(err, qt.IsNil)
	c.Assert(settled, qt.HasLen, 1)
}

func TestUpdateAuctionClearing(t *testing.T) {
	c := qt.New(t)
	sqlite := newTestSQLite(c)

	err := sqlite.StoreAuction(testAuctionID, nil, nil)
	c.Assert(err, qt.IsNil)

	err = sqlite.UpdateAuctionClearing(testAuctionID, uint256.NewInt(20),
		uint256.NewInt(5000))
	c.Assert(err, qt.IsNil)

	snapshot, err := sqlite.ReadAuctionByID(testAuctionID)
	c.Assert(err, qt.IsNil)
	c.Assert(snapshot.ClearingPrice.Uint64(), qt.Equals, uint64(20))
	c.Assert(snapshot.CurrencyRaised.Uint64(), qt.Equals, uint64(5000))
}
