package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrInvalidInput is used when the caller provides malformed identifiers or
// out-of-range numeric fields
var ErrInvalidInput = errors.New("invalid input")

// AuctionStatus represents the lifecycle status of an auction, as reported
// by the chain-state collaborator
type AuctionStatus uint8

const (
	// AuctionStatusActive is the status of an auction accepting commitments
	AuctionStatusActive AuctionStatus = 0
	// AuctionStatusEnded is the status of an auction whose bidding window
	// has closed and which is ready for settlement
	AuctionStatusEnded AuctionStatus = 1
	// AuctionStatusSettled is the status of an auction whose winners have
	// been determined
	AuctionStatusSettled AuctionStatus = 2
	// AuctionStatusCancelled is the status of an auction cancelled while
	// still active
	AuctionStatusCancelled AuctionStatus = 3
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionStatusActive:
		return "ACTIVE"
	case AuctionStatusEnded:
		return "ENDED"
	case AuctionStatusSettled:
		return "SETTLED"
	case AuctionStatusCancelled:
		return "CANCELLED"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
}

// AuctionStatusFromString parses the string representation of an
// AuctionStatus
func AuctionStatusFromString(s string) (AuctionStatus, error) {
	switch strings.ToUpper(s) {
	case "ACTIVE":
		return AuctionStatusActive, nil
	case "ENDED":
		return AuctionStatusEnded, nil
	case "SETTLED":
		return AuctionStatusSettled, nil
	case "CANCELLED":
		return AuctionStatusCancelled, nil
	}
	return 0, fmt.Errorf("%w: unknown auction status %q", ErrInvalidInput, s)
}

// Pattern classifies the bidding behaviour observed for an auction. The
// classification is done by the caller; this node only consumes it for
// scoring.
type Pattern uint8

const (
	// PatternNeutral is the default pattern when no specific behaviour is
	// observed
	PatternNeutral Pattern = 0
	// PatternMonopoly indicates a single bidder dominating the auction
	PatternMonopoly Pattern = 1
	// PatternCompetitive indicates multiple independent bidders
	PatternCompetitive Pattern = 2
	// PatternCrossChain indicates bidders arriving through bridged funds
	PatternCrossChain Pattern = 3
)

func (p Pattern) String() string {
	switch p {
	case PatternNeutral:
		return "NEUTRAL"
	case PatternMonopoly:
		return "MONOPOLY"
	case PatternCompetitive:
		return "COMPETITIVE"
	case PatternCrossChain:
		return "CROSS_CHAIN"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(p))
}

// PatternFromString parses the string representation of a Pattern
func PatternFromString(s string) (Pattern, error) {
	switch strings.ToUpper(s) {
	case "NEUTRAL":
		return PatternNeutral, nil
	case "MONOPOLY":
		return PatternMonopoly, nil
	case "COMPETITIVE":
		return PatternCompetitive, nil
	case "CROSS_CHAIN":
		return PatternCrossChain, nil
	}
	return 0, fmt.Errorf("%w: unknown pattern %q", ErrInvalidInput, s)
}

// ClaimStatus represents the claim state of a settlement Winner
type ClaimStatus uint8

const (
	// ClaimStatusPending is the initial claim status of a Winner
	ClaimStatusPending ClaimStatus = 0
	// ClaimStatusClaimed indicates the winner has claimed their fill
	ClaimStatusClaimed ClaimStatus = 1
	// ClaimStatusFailed indicates the claim transaction failed
	ClaimStatusFailed ClaimStatus = 2
)

func (s ClaimStatus) String() string {
	switch s {
	case ClaimStatusPending:
		return "PENDING"
	case ClaimStatusClaimed:
		return "CLAIMED"
	case ClaimStatusFailed:
		return "FAILED"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
}

// SealedBid represents a bid whose amount and price are hidden behind a
// Poseidon commitment until reveal time. The node stores the full bid
// locally; only the commitment is ever submitted to the chain-state
// collaborator.
type SealedBid struct {
	Bidder     common.Address
	AuctionID  common.Address
	Amount     *uint256.Int
	Price      *uint256.Int
	Salt       common.Hash
	Commitment common.Hash
	Nullifier  common.Hash
	Timestamp  int64
	Revealed   bool
}

// NullifierEntry contains the data stored in the nullifier registry for a
// registered nullifier
type NullifierEntry struct {
	Nullifier common.Hash
	AuctionID common.Address
	Timestamp int64
}

// AuctionSnapshot contains the auction state as reported by the chain-state
// collaborator. This node records snapshots but never derives them; the
// clearing price and currency raised are chain-state authority.
type AuctionSnapshot struct {
	ID               common.Address
	Status           AuctionStatus
	ClearingPrice    *uint256.Int
	CurrencyRaised   *uint256.Int
	InsertedDatetime time.Time
}

// Winner represents a ranked bid in a settlement result
type Winner struct {
	Bidder        common.Address
	BidAmount     *uint256.Int
	BidPrice      *uint256.Int
	WinningAmount *uint256.Int
	ClaimStatus   ClaimStatus
}

// SettlementResult contains the outcome of settling an auction: the ranked
// winners plus the clearing values carried through from the snapshot
type SettlementResult struct {
	AuctionID     common.Address
	Winners       []Winner
	TotalCleared  *uint256.Int
	ClearingPrice *uint256.Int
	SettledAt     time.Time
}

// HexToAddress converts the given hex representation of a 20-byte
// identifier (bidder or auction), accepting an optional 0x prefix and
// normalizing case
func HexToAddress(h string) (common.Address, error) {
	h = strings.TrimPrefix(h, "0x")
	b, err := hex.DecodeString(strings.ToLower(h))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(b) != common.AddressLength {
		return common.Address{},
			fmt.Errorf("%w: unexpected identifier length: %d", ErrInvalidInput, len(b))
	}
	return common.BytesToAddress(b), nil
}

// HexToHash converts the given hex representation of a 32-byte value
// (commitment, nullifier or salt)
func HexToHash(h string) (common.Hash, error) {
	h = strings.TrimPrefix(h, "0x")
	b, err := hex.DecodeString(strings.ToLower(h))
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{},
			fmt.Errorf("%w: unexpected hash length: %d", ErrInvalidInput, len(b))
	}
	return common.BytesToHash(b), nil
}

// ParseUint256 parses the given decimal string into an unsigned 256-bit
// integer
func ParseUint256(s string) (*uint256.Int, error) {
	bi, ok := new(big.Int).SetString(s, 10)
	if !ok || bi.Sign() < 0 {
		return nil, fmt.Errorf("%w: can not parse %q as uint256", ErrInvalidInput, s)
	}
	v, overflow := uint256.FromBig(bi)
	if overflow {
		return nil, fmt.Errorf("%w: %q overflows uint256", ErrInvalidInput, s)
	}
	return v, nil
}
