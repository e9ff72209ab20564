package bidsaggregator

import (
	"testing"

	"github.com/clearmarket/sealbid-node/comtree"
	"github.com/clearmarket/sealbid-node/nullifier"
	"github.com/clearmarket/sealbid-node/settlement"
	"github.com/clearmarket/sealbid-node/test"
	"github.com/clearmarket/sealbid-node/types"
	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/holiman/uint256"
	dvotedb "go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/pebbledb"
)

var testAuction = common.HexToAddress("0x2222222222222222222222222222222222222222")

func newTestAggregator(c *qt.C) *BidsAggregator {
	sqlite := test.NewSQLite(c)
	c.Assert(sqlite.StoreAuction(testAuction, nil, nil), qt.IsNil)

	regDB, err := pebbledb.New(dvotedb.Options{Path: c.TempDir()})
	c.Assert(err, qt.IsNil)
	registry, err := nullifier.New(nullifier.Options{DB: regDB})
	c.Assert(err, qt.IsNil)

	builderDB, err := pebbledb.New(dvotedb.Options{Path: c.TempDir()})
	c.Assert(err, qt.IsNil)
	trees, err := comtree.NewBuilder(builderDB, c.TempDir())
	c.Assert(err, qt.IsNil)

	ba, err := New(sqlite, registry, trees)
	c.Assert(err, qt.IsNil)
	return ba
}

func TestSubmitBid(t *testing.T) {
	c := qt.New(t)
	ba := newTestAggregator(c)

	bidders := test.GenBidders(c, 1)
	bid, err := ba.SealBid(bidders[0], testAuction, uint256.NewInt(100),
		uint256.NewInt(10))
	c.Assert(err, qt.IsNil)

	err = ba.SubmitBid(bid)
	c.Assert(err, qt.IsNil)

	// submitting the same bid again is a double-bid attempt
	err = ba.SubmitBid(bid)
	c.Assert(err, qt.ErrorIs, nullifier.ErrDuplicateNullifier)

	// the commitment reached the auction's tree
	info, err := ba.trees.TreeInfo(testAuction)
	c.Assert(err, qt.IsNil)
	c.Assert(info.Size, qt.Equals, uint64(1))
	c.Assert(info.ErrMsg, qt.Equals, "")
}

func TestSubmitBidTampered(t *testing.T) {
	c := qt.New(t)
	ba := newTestAggregator(c)

	bidders := test.GenBidders(c, 1)
	bid, err := ba.SealBid(bidders[0], testAuction, uint256.NewInt(100),
		uint256.NewInt(10))
	c.Assert(err, qt.IsNil)

	// raising the amount after sealing breaks the commitment
	bid.Amount = uint256.NewInt(200)
	err = ba.SubmitBid(bid)
	c.Assert(err, qt.ErrorIs, types.ErrInvalidInput)

	// nothing was registered or stored
	has, err := ba.registry.Contains(bid.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(has, qt.IsFalse)
}

func TestRevealAndSettle(t *testing.T) {
	c := qt.New(t)
	ba := newTestAggregator(c)

	// seal a bid with amount=100, price=10 and a second one with
	// amount=50, price=20
	bidders := test.GenBidders(c, 2)
	bids := test.GenSealedBids(c, testAuction, bidders,
		[]uint64{100, 50}, []uint64{10, 20})

	for _, bid := range bids {
		c.Assert(ba.SubmitBid(bid), qt.IsNil)
	}

	// settlement before the auction ends is rejected
	_, err := ba.Settle(testAuction)
	c.Assert(err, qt.ErrorIs, settlement.ErrNotEnded)

	for _, bid := range bids {
		c.Assert(ba.Reveal(bid.Nullifier, bid.Amount, bid.Price, bid.Salt),
			qt.IsNil)
	}

	err = ba.db.UpdateAuctionStatus(testAuction, types.AuctionStatusEnded)
	c.Assert(err, qt.IsNil)

	result, err := ba.Settle(testAuction)
	c.Assert(err, qt.IsNil)
	c.Assert(result.Winners, qt.HasLen, 2)

	// the price=20 bid ranks first
	c.Assert(result.Winners[0].Bidder, qt.Equals, bidders[1])
	c.Assert(result.Winners[0].BidPrice.Uint64(), qt.Equals, uint64(20))
	c.Assert(result.Winners[1].Bidder, qt.Equals, bidders[0])
	c.Assert(result.Winners[1].BidPrice.Uint64(), qt.Equals, uint64(10))

	// winners were persisted
	winners, err := ba.db.ReadWinnersByAuction(testAuction)
	c.Assert(err, qt.IsNil)
	c.Assert(winners, qt.HasLen, 2)

	// re-running settlement with unchanged inputs is idempotent
	result2, err := ba.Settle(testAuction)
	c.Assert(err, qt.IsNil)
	c.Assert(result2.Winners, qt.DeepEquals, result.Winners)
}

func TestSettleSkipsUnrevealed(t *testing.T) {
	c := qt.New(t)
	ba := newTestAggregator(c)

	bidders := test.GenBidders(c, 3)
	bids := test.GenSealedBids(c, testAuction, bidders,
		[]uint64{100, 200, 300}, []uint64{10, 20, 30})
	for _, bid := range bids {
		c.Assert(ba.SubmitBid(bid), qt.IsNil)
	}

	// only the first bid reveals
	c.Assert(ba.Reveal(bids[0].Nullifier, bids[0].Amount, bids[0].Price,
		bids[0].Salt), qt.IsNil)

	c.Assert(ba.db.UpdateAuctionStatus(testAuction, types.AuctionStatusEnded),
		qt.IsNil)

	result, err := ba.Settle(testAuction)
	c.Assert(err, qt.IsNil)
	c.Assert(result.Winners, qt.HasLen, 1)
	c.Assert(result.Winners[0].Bidder, qt.Equals, bidders[0])
}

func TestConcentration(t *testing.T) {
	c := qt.New(t)
	ba := newTestAggregator(c)

	bidders := test.GenBidders(c, 8)
	bids := test.GenSealedBids(c, testAuction, bidders,
		[]uint64{100, 110, 120, 130, 140, 150, 160, 170},
		[]uint64{10, 11, 12, 13, 14, 15, 16, 17})
	for _, bid := range bids {
		c.Assert(ba.SubmitBid(bid), qt.IsNil)
		c.Assert(ba.Reveal(bid.Nullifier, bid.Amount, bid.Price, bid.Salt),
			qt.IsNil)
	}

	report, err := ba.Concentration(testAuction, types.PatternCompetitive)
	c.Assert(err, qt.IsNil)
	c.Assert(report.BidCount, qt.Equals, 8)
	c.Assert(report.DistinctAmounts, qt.Equals, 8)
	c.Assert(report.DistinctPrices, qt.Equals, 8)
	// eight near-equal bidders: low concentration, best competitive tier
	c.Assert(report.HHI < 1500, qt.IsTrue)
	c.Assert(report.Improvement, qt.Equals, 25)

	// the same metrics under a neutral pattern reward low concentration
	report2, err := ba.Concentration(testAuction, types.PatternNeutral)
	c.Assert(err, qt.IsNil)
	c.Assert(report2.Improvement, qt.Equals, 15)
}
