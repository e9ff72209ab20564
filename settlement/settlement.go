// Package settlement ranks revealed bids into winners and produces the
// settlement result for an auction. The clearing price and the raised
// amount are chain-state authority and are carried through unchanged; this
// package only decides the canonical fill order.
package settlement

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/clearmarket/sealbid-node/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrInvalidTransition is used when the chain-state collaborator
	// reports an auction status change that the lifecycle does not allow
	ErrInvalidTransition = errors.New("invalid auction status transition")
	// ErrNotEnded is used when settlement is attempted on an auction whose
	// status is not ENDED
	ErrNotEnded = errors.New("auction not ended")
)

// ClaimStatusProvider reports the externally observed claim status of a
// winner. A nil provider means every winner starts as PENDING.
type ClaimStatusProvider interface {
	ClaimStatus(auctionID, bidder common.Address) (types.ClaimStatus, error)
}

// ValidateTransition checks whether the auction lifecycle allows moving
// from one status to the other. Legal transitions are ACTIVE→ENDED,
// ENDED→SETTLED and ACTIVE→CANCELLED.
func ValidateTransition(from, to types.AuctionStatus) error {
	switch {
	case from == types.AuctionStatusActive && to == types.AuctionStatusEnded:
		return nil
	case from == types.AuctionStatusEnded && to == types.AuctionStatusSettled:
		return nil
	case from == types.AuctionStatusActive && to == types.AuctionStatusCancelled:
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// DetermineWinners ranks the revealed bids of the given auction into
// winners: price descending, ties broken by amount descending, remaining
// ties by insertion order. Unrevealed bids and bids missing amount or
// price are excluded from the ranking. The returned order is the canonical
// fill order; slicing it against the available supply is the caller's job.
func DetermineWinners(auctionID common.Address, bids []types.SealedBid,
	claims ClaimStatusProvider) ([]types.Winner, error) {
	var revealed []types.SealedBid
	for _, b := range bids {
		if b.Revealed && b.Amount != nil && b.Price != nil {
			revealed = append(revealed, b)
		}
	}

	// stable sort preserves insertion order as the tie-break of last
	// resort
	sort.SliceStable(revealed, func(i, j int) bool {
		if cmp := revealed[i].Price.Cmp(revealed[j].Price); cmp != 0 {
			return cmp > 0
		}
		return revealed[i].Amount.Cmp(revealed[j].Amount) > 0
	})

	var winners []types.Winner
	for _, b := range revealed {
		status := types.ClaimStatusPending
		if claims != nil {
			s, err := claims.ClaimStatus(auctionID, b.Bidder)
			if err != nil {
				return nil, err
			}
			status = s
		}
		winners = append(winners, types.Winner{
			Bidder:        b.Bidder,
			BidAmount:     b.Amount.Clone(),
			BidPrice:      b.Price.Clone(),
			WinningAmount: b.Amount.Clone(),
			ClaimStatus:   status,
		})
	}
	return winners, nil
}

// Settle produces the SettlementResult for the given auction. The snapshot
// status must be ENDED; the clearing price and raised amount are carried
// through from the snapshot unchanged. Settle is deterministic for
// identical bids and snapshot, except for the SettledAt stamp.
func Settle(auctionID common.Address, bids []types.SealedBid,
	snapshot *types.AuctionSnapshot,
	claims ClaimStatusProvider) (*types.SettlementResult, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("%w: no snapshot for auction %s",
			ErrNotEnded, auctionID.Hex())
	}
	if snapshot.Status != types.AuctionStatusEnded {
		return nil, fmt.Errorf("%w: auction %s status is %s",
			ErrNotEnded, auctionID.Hex(), snapshot.Status)
	}

	winners, err := DetermineWinners(auctionID, bids, claims)
	if err != nil {
		return nil, err
	}

	totalCleared := new(uint256.Int)
	if snapshot.CurrencyRaised != nil {
		totalCleared.Set(snapshot.CurrencyRaised)
	}
	clearingPrice := new(uint256.Int)
	if snapshot.ClearingPrice != nil {
		clearingPrice.Set(snapshot.ClearingPrice)
	}

	return &types.SettlementResult{
		AuctionID:     auctionID,
		Winners:       winners,
		TotalCleared:  totalCleared,
		ClearingPrice: clearingPrice,
		SettledAt:     time.Now(),
	}, nil
}
