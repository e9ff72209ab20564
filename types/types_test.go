package types

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestHexToAddress(t *testing.T) {
	c := qt.New(t)

	addr, err := HexToAddress("0x1111111111111111111111111111111111111111")
	c.Assert(err, qt.IsNil)
	c.Assert(addr.Hex(), qt.Equals, "0x1111111111111111111111111111111111111111")

	// without 0x prefix
	addr2, err := HexToAddress("1111111111111111111111111111111111111111")
	c.Assert(err, qt.IsNil)
	c.Assert(addr2, qt.Equals, addr)

	// mixed case normalizes to the same identifier
	addr3, err := HexToAddress("0x11111111111111111111111111111111111111AA")
	c.Assert(err, qt.IsNil)
	addr4, err := HexToAddress("0x11111111111111111111111111111111111111aa")
	c.Assert(err, qt.IsNil)
	c.Assert(addr3, qt.Equals, addr4)

	// wrong length
	_, err = HexToAddress("0x1111")
	c.Assert(err, qt.ErrorIs, ErrInvalidInput)

	// not hex
	_, err = HexToAddress("0xzz11111111111111111111111111111111111111")
	c.Assert(err, qt.ErrorIs, ErrInvalidInput)
}

func TestParseUint256(t *testing.T) {
	c := qt.New(t)

	v, err := ParseUint256("1000000")
	c.Assert(err, qt.IsNil)
	c.Assert(v.Uint64(), qt.Equals, uint64(1000000))

	// 2^256-1 is the maximum representable value
	max := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	_, err = ParseUint256(max)
	c.Assert(err, qt.IsNil)

	// 2^256 overflows
	over := "115792089237316195423570985008687907853269984665640564039457584007913129639936"
	_, err = ParseUint256(over)
	c.Assert(err, qt.ErrorIs, ErrInvalidInput)

	_, err = ParseUint256("-1")
	c.Assert(err, qt.ErrorIs, ErrInvalidInput)

	_, err = ParseUint256("not-a-number")
	c.Assert(err, qt.ErrorIs, ErrInvalidInput)
}

func TestPatternFromString(t *testing.T) {
	c := qt.New(t)

	p, err := PatternFromString("competitive")
	c.Assert(err, qt.IsNil)
	c.Assert(p, qt.Equals, PatternCompetitive)

	p, err = PatternFromString("CROSS_CHAIN")
	c.Assert(err, qt.IsNil)
	c.Assert(p, qt.Equals, PatternCrossChain)

	_, err = PatternFromString("sideways")
	c.Assert(err, qt.ErrorIs, ErrInvalidInput)
}

func TestStatusString(t *testing.T) {
	c := qt.New(t)
	c.Assert(AuctionStatusActive.String(), qt.Equals, "ACTIVE")
	c.Assert(AuctionStatusEnded.String(), qt.Equals, "ENDED")
	c.Assert(AuctionStatusSettled.String(), qt.Equals, "SETTLED")
	c.Assert(AuctionStatusCancelled.String(), qt.Equals, "CANCELLED")
	c.Assert(ClaimStatusPending.String(), qt.Equals, "PENDING")
}
