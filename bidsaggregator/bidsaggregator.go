// Package bidsaggregator receives sealed bids and aggregates them: it
// registers nullifiers, persists the bids, grows the per-auction commitment
// trees, and drives reveal and settlement.
package bidsaggregator

import (
	"fmt"
	"sync"

	"github.com/clearmarket/sealbid-node/commitment"
	"github.com/clearmarket/sealbid-node/comtree"
	"github.com/clearmarket/sealbid-node/db"
	"github.com/clearmarket/sealbid-node/nullifier"
	"github.com/clearmarket/sealbid-node/scorer"
	"github.com/clearmarket/sealbid-node/settlement"
	"github.com/clearmarket/sealbid-node/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.vocdoni.io/dvote/log"
)

// BidsAggregator receives the sealed bids and aggregates them for later
// settlement
type BidsAggregator struct {
	// mu serializes register+store so the nullifier registration and the
	// bid persistence appear as one atomic unit to concurrent callers
	mu       sync.Mutex
	db       *db.SQLite
	registry *nullifier.Registry
	trees    *comtree.Builder
}

// New returns a new BidsAggregator. The commitment tree builder is
// optional; without it SubmitBid only registers and stores.
func New(sqlite *db.SQLite, registry *nullifier.Registry,
	trees *comtree.Builder) (*BidsAggregator, error) {
	if sqlite == nil || registry == nil {
		return nil, fmt.Errorf("bidsaggregator requires a bid store and a" +
			" nullifier registry")
	}
	return &BidsAggregator{
		db:       sqlite,
		registry: registry,
		trees:    trees,
	}, nil
}

// SealBid derives a new sealed bid for the given fields. It has no side
// effects; the caller submits the commitment to chain state and then calls
// SubmitBid once the chain accepts it.
func (ba *BidsAggregator) SealBid(bidder, auctionID common.Address, amount,
	price *uint256.Int) (*types.SealedBid, error) {
	return commitment.Seal(bidder, auctionID, amount, price)
}

// SubmitBid registers the bid's nullifier and durably stores the bid, as
// one atomic unit. The bid's commitment is recomputed from its fields
// before anything is written.
func (ba *BidsAggregator) SubmitBid(bid *types.SealedBid) error {
	if bid == nil {
		return fmt.Errorf("%w: nil bid", types.ErrInvalidInput)
	}
	if !commitment.Verify(bid.Commitment, bid.Bidder, bid.AuctionID,
		bid.Amount, bid.Price, bid.Salt) {
		return fmt.Errorf("%w: commitment does not match bid fields",
			types.ErrInvalidInput)
	}
	nullif, err := commitment.ComputeNullifier(bid.Commitment, bid.Salt,
		bid.Timestamp)
	if err != nil {
		return err
	}
	if nullif != bid.Nullifier {
		return fmt.Errorf("%w: nullifier does not match bid fields",
			types.ErrInvalidInput)
	}

	ba.mu.Lock()
	defer ba.mu.Unlock()

	if err := ba.registry.Register(bid.Nullifier, bid.AuctionID); err != nil {
		return err
	}
	if err := ba.db.StoreBid(bid); err != nil {
		// the nullifier stays registered, which keeps the replay
		// protection intact; the caller decides whether to retry with a
		// fresh seal
		log.Warnw("bid not stored after nullifier registration",
			"err", err, "nullifier", bid.Nullifier.Hex())
		return err
	}

	if ba.trees != nil {
		ba.trees.AddCommitmentsAndStoreError(bid.AuctionID,
			[]common.Hash{bid.Commitment})
	}
	return nil
}

// StoreAuction records a newly observed auction in the bid store
func (ba *BidsAggregator) StoreAuction(auctionID common.Address) error {
	return ba.db.StoreAuction(auctionID, nil, nil)
}

// UpdateAuctionStatus records an auction status change reported by chain
// state, checking that the lifecycle allows the transition
func (ba *BidsAggregator) UpdateAuctionStatus(auctionID common.Address,
	status types.AuctionStatus) error {
	return ba.db.UpdateAuctionStatus(auctionID, status)
}

// Bids returns the stored bids of the given auction in insertion order
func (ba *BidsAggregator) Bids(auctionID common.Address) ([]types.SealedBid, error) {
	return ba.db.ReadBidsByAuction(auctionID)
}

// BidsByBidder returns the stored bids of the given auction placed by the
// given bidder
func (ba *BidsAggregator) BidsByBidder(auctionID,
	bidder common.Address) ([]types.SealedBid, error) {
	return ba.db.ReadBidsByBidder(auctionID, bidder)
}

// CloseTree closes the auction's commitment tree; called when the bidding
// window ends
func (ba *BidsAggregator) CloseTree(auctionID common.Address) error {
	if ba.trees == nil {
		return fmt.Errorf("no commitment tree builder configured")
	}
	return ba.trees.CloseTree(auctionID)
}

// TreeRoot returns the root of the auction's closed commitment tree
func (ba *BidsAggregator) TreeRoot(auctionID common.Address) ([]byte, error) {
	if ba.trees == nil {
		return nil, fmt.Errorf("no commitment tree builder configured")
	}
	return ba.trees.TreeRoot(auctionID)
}

// Reveal discloses the amount, price and salt of the bid stored under the
// given nullifier, flipping it to revealed if they reproduce the stored
// commitment
func (ba *BidsAggregator) Reveal(nullif common.Hash, amount,
	price *uint256.Int, salt common.Hash) error {
	return ba.db.MarkRevealed(nullif, amount, price, salt)
}

// Settle determines the winners for the given auction from its revealed
// bids and the recorded snapshot, stores them, and returns the settlement
// result. The recorded snapshot status must be ENDED.
func (ba *BidsAggregator) Settle(auctionID common.Address) (
	*types.SettlementResult, error) {
	snapshot, err := ba.db.ReadAuctionByID(auctionID)
	if err != nil {
		return nil, err
	}
	bids, err := ba.db.ReadBidsByAuction(auctionID)
	if err != nil {
		return nil, err
	}

	result, err := settlement.Settle(auctionID, bids, snapshot, ba.db)
	if err != nil {
		return nil, err
	}
	if err := ba.db.StoreWinners(result); err != nil {
		return nil, err
	}
	log.Debugf("auction %s settled with %d winners", auctionID.Hex(),
		len(result.Winners))
	return result, nil
}

// ConcentrationReport contains the concentration metrics of an auction's
// revealed bids and the resulting clearing-rate adjustment
type ConcentrationReport struct {
	AuctionID       common.Address `json:"auctionId"`
	Pattern         string         `json:"pattern"`
	BidCount        int            `json:"bidCount"`
	DistinctAmounts int            `json:"distinctAmounts"`
	DistinctPrices  int            `json:"distinctPrices"`
	HHI             int            `json:"hhi"`
	Improvement     int            `json:"improvement"`
}

// Concentration computes the HHI over the auction's revealed bid amounts
// and the rate adjustment for the given bidding pattern
func (ba *BidsAggregator) Concentration(auctionID common.Address,
	pattern types.Pattern) (*ConcentrationReport, error) {
	bids, err := ba.db.ReadBidsByAuction(auctionID)
	if err != nil {
		return nil, err
	}

	var amounts, prices []*uint256.Int
	for _, b := range bids {
		if !b.Revealed {
			continue
		}
		amounts = append(amounts, b.Amount)
		prices = append(prices, b.Price)
	}

	hhi := scorer.ComputeHHI(amounts)
	distinctAmounts := scorer.CountDistinct(amounts)
	distinctPrices := scorer.CountDistinct(prices)
	improvement := scorer.ScoreImprovement(pattern, hhi, distinctAmounts,
		distinctPrices, len(amounts))

	return &ConcentrationReport{
		AuctionID:       auctionID,
		Pattern:         pattern.String(),
		BidCount:        len(amounts),
		DistinctAmounts: distinctAmounts,
		DistinctPrices:  distinctPrices,
		HHI:             hhi,
		Improvement:     improvement,
	}, nil
}
