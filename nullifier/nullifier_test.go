package nullifier

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/pebbledb"
)

var (
	testAuction1 = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testAuction2 = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func newTestRegistry(c *qt.C) *Registry {
	opts := db.Options{Path: c.TempDir()}
	database, err := pebbledb.New(opts)
	c.Assert(err, qt.IsNil)

	r, err := New(Options{DB: database})
	c.Assert(err, qt.IsNil)
	return r
}

func testNullifier(b byte) common.Hash {
	var n common.Hash
	n[31] = b
	return n
}

func TestRegisterAndContains(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(c)

	n := testNullifier(0x01)

	has, err := r.Contains(n)
	c.Assert(err, qt.IsNil)
	c.Assert(has, qt.IsFalse)

	err = r.Register(n, testAuction1)
	c.Assert(err, qt.IsNil)

	has, err = r.Contains(n)
	c.Assert(err, qt.IsNil)
	c.Assert(has, qt.IsTrue)

	entry, err := r.Entry(n)
	c.Assert(err, qt.IsNil)
	c.Assert(entry.AuctionID, qt.Equals, testAuction1)
	c.Assert(entry.Timestamp, qt.Not(qt.Equals), int64(0))
}

func TestRegisterDuplicate(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(c)

	n := testNullifier(0x01)

	err := r.Register(n, testAuction1)
	c.Assert(err, qt.IsNil)

	// same auction
	err = r.Register(n, testAuction1)
	c.Assert(err, qt.ErrorIs, ErrDuplicateNullifier)

	// the registry is global: a nullifier can not be reused in another
	// auction either
	err = r.Register(n, testAuction2)
	c.Assert(err, qt.ErrorIs, ErrDuplicateNullifier)
}

func TestClear(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(c)

	c.Assert(r.Register(testNullifier(0x01), testAuction1), qt.IsNil)
	c.Assert(r.Register(testNullifier(0x02), testAuction1), qt.IsNil)
	c.Assert(r.Register(testNullifier(0x03), testAuction2), qt.IsNil)

	err := r.Clear(testAuction1)
	c.Assert(err, qt.IsNil)

	// auction1 entries are gone, auction2 entries stay
	has, err := r.Contains(testNullifier(0x01))
	c.Assert(err, qt.IsNil)
	c.Assert(has, qt.IsFalse)
	has, err = r.Contains(testNullifier(0x02))
	c.Assert(err, qt.IsNil)
	c.Assert(has, qt.IsFalse)
	has, err = r.Contains(testNullifier(0x03))
	c.Assert(err, qt.IsNil)
	c.Assert(has, qt.IsTrue)

	// cleared nullifiers can be registered again
	err = r.Register(testNullifier(0x01), testAuction2)
	c.Assert(err, qt.IsNil)
}

func TestMembershipSurvivesReopen(t *testing.T) {
	c := qt.New(t)

	dir := c.TempDir()
	database, err := pebbledb.New(db.Options{Path: dir})
	c.Assert(err, qt.IsNil)

	r, err := New(Options{DB: database})
	c.Assert(err, qt.IsNil)
	c.Assert(r.Register(testNullifier(0x01), testAuction1), qt.IsNil)
	c.Assert(database.Close(), qt.IsNil)

	// reopen the same database path, as after a process restart
	database2, err := pebbledb.New(db.Options{Path: dir})
	c.Assert(err, qt.IsNil)
	r2, err := New(Options{DB: database2})
	c.Assert(err, qt.IsNil)

	err = r2.Register(testNullifier(0x01), testAuction1)
	c.Assert(err, qt.ErrorIs, ErrDuplicateNullifier)
}
