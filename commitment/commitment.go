// Package commitment derives the binding, hiding commitments and the
// associated nullifiers for sealed bids. The hash function is Poseidon, so
// that the same material can later be consumed by a zk circuit without
// re-hashing; all inputs are reduced into field elements of the Poseidon
// field before hashing.
package commitment

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/clearmarket/sealbid-node/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/iden3/go-iden3-crypto/constants"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/vocdoni/arbo"
)

// fieldElem reduces the given bytes into an element of the Poseidon hash
// field
func fieldElem(b []byte) *big.Int {
	return new(big.Int).Mod(arbo.BytesToBigInt(b), constants.Q)
}

// uint256FieldElem reduces the given unsigned 256-bit integer into an
// element of the Poseidon hash field
func uint256FieldElem(v *uint256.Int) *big.Int {
	return new(big.Int).Mod(v.ToBig(), constants.Q)
}

// Compute returns the commitment for the given bid fields:
// Poseidon(bidder, auction, amount, price, salt)
func Compute(bidder, auctionID common.Address, amount, price *uint256.Int,
	salt common.Hash) (common.Hash, error) {
	h, err := poseidon.Hash([]*big.Int{
		fieldElem(bidder.Bytes()),
		fieldElem(auctionID.Bytes()),
		uint256FieldElem(amount),
		uint256FieldElem(price),
		fieldElem(salt.Bytes()),
	})
	if err != nil {
		return common.Hash{}, err
	}
	return common.BigToHash(h), nil
}

// ComputeNullifier returns the nullifier for the given commitment:
// Poseidon(commitment, salt, timestamp)
func ComputeNullifier(commitment, salt common.Hash, timestamp int64) (common.Hash, error) {
	h, err := poseidon.Hash([]*big.Int{
		commitment.Big(),
		fieldElem(salt.Bytes()),
		big.NewInt(timestamp),
	})
	if err != nil {
		return common.Hash{}, err
	}
	return common.BigToHash(h), nil
}

// Seal builds a new SealedBid for the given bid fields, drawing a fresh
// 32-byte salt from the system CSPRNG. Two calls with identical inputs
// produce different commitments and nullifiers. Seal has no side effects;
// persisting the bid is the store's job.
func Seal(bidder, auctionID common.Address, amount,
	price *uint256.Int) (*types.SealedBid, error) {
	if amount == nil || price == nil {
		return nil, fmt.Errorf("%w: amount and price must be set", types.ErrInvalidInput)
	}
	var zero common.Address
	if bidder == zero || auctionID == zero {
		return nil, fmt.Errorf("%w: bidder and auction identifiers must be set",
			types.ErrInvalidInput)
	}

	var salt common.Hash
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	timestamp := time.Now().Unix()

	comm, err := Compute(bidder, auctionID, amount, price, salt)
	if err != nil {
		return nil, err
	}
	nullifier, err := ComputeNullifier(comm, salt, timestamp)
	if err != nil {
		return nil, err
	}

	return &types.SealedBid{
		Bidder:     bidder,
		AuctionID:  auctionID,
		Amount:     amount.Clone(),
		Price:      price.Clone(),
		Salt:       salt,
		Commitment: comm,
		Nullifier:  nullifier,
		Timestamp:  timestamp,
		Revealed:   false,
	}, nil
}

// Verify recomputes the commitment from the revealed fields and compares it
// with the given commitment. Returns false on any mismatch.
func Verify(commitment common.Hash, bidder, auctionID common.Address,
	amount, price *uint256.Int, salt common.Hash) bool {
	if amount == nil || price == nil {
		return false
	}
	computed, err := Compute(bidder, auctionID, amount, price, salt)
	if err != nil {
		return false
	}
	return computed == commitment
}
