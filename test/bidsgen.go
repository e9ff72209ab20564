// Package test provides fixture generators shared by the package tests
package test

import (
	"crypto/rand"
	"database/sql"
	"path/filepath"

	"github.com/clearmarket/sealbid-node/commitment"
	sealbiddb "github.com/clearmarket/sealbid-node/db"
	"github.com/clearmarket/sealbid-node/types"
	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/holiman/uint256"
	_ "github.com/mattn/go-sqlite3"
)

// GenBidders returns n random bidder identifiers
func GenBidders(c *qt.C, n int) []common.Address {
	var bidders []common.Address
	for i := 0; i < n; i++ {
		var addr common.Address
		_, err := rand.Read(addr[:])
		c.Assert(err, qt.IsNil)
		bidders = append(bidders, addr)
	}
	return bidders
}

// GenSealedBids seals one bid per bidder for the given auction, with the
// given amounts and prices
func GenSealedBids(c *qt.C, auctionID common.Address, bidders []common.Address,
	amounts, prices []uint64) []*types.SealedBid {
	c.Assert(len(amounts), qt.Equals, len(bidders))
	c.Assert(len(prices), qt.Equals, len(bidders))

	var bids []*types.SealedBid
	for i, bidder := range bidders {
		bid, err := commitment.Seal(bidder, auctionID,
			uint256.NewInt(amounts[i]), uint256.NewInt(prices[i]))
		c.Assert(err, qt.IsNil)
		bids = append(bids, bid)
	}
	return bids
}

// NewSQLite returns a migrated SQLite store in a test temporary directory
func NewSQLite(c *qt.C) *sealbiddb.SQLite {
	database, err := sql.Open("sqlite3",
		filepath.Join(c.TempDir(), "testdb.sqlite3")+"?_foreign_keys=on")
	c.Assert(err, qt.IsNil)

	sqlite := sealbiddb.NewSQLite(database)
	c.Assert(sqlite.Migrate(), qt.IsNil)
	return sqlite
}
