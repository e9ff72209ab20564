// Package nullifier implements the process-wide registry of used
// nullifiers. Membership is global across auctions: a nullifier registered
// for one auction can not be reused in another, which prevents replaying a
// commitment cross-auction.
package nullifier

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clearmarket/sealbid-node/types"
	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/dvote/db"
)

// ErrDuplicateNullifier is used when trying to register a nullifier that is
// already in the registry, which signals a double-bid attempt
var ErrDuplicateNullifier = errors.New("nullifier already registered")

// entrySize is the length of a stored registry value: auction identifier
// followed by the registration unix time
const entrySize = common.AddressLength + 8

// Registry contains the used nullifiers, backed by a durable key-value
// database. Every membership read goes to the database, so the registry
// serves a correct view right after a process restart without an explicit
// reload step.
type Registry struct {
	mu sync.Mutex
	db db.Database
}

// Options is used to pass the parameters to load a new Registry
type Options struct {
	// DB defines the database that will be used for the registry
	DB db.Database
}

// New loads the nullifier registry
func New(opts Options) (*Registry, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("registry requires a database")
	}
	return &Registry{db: opts.DB}, nil
}

// Register durably records the given nullifier for the given auction. If
// the nullifier already exists in the registry (for any auction), it
// returns ErrDuplicateNullifier. The check and the write are atomic with
// respect to concurrent Register calls.
func (r *Registry) Register(nullifier common.Hash, auctionID common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wTx := r.db.WriteTx()
	defer wTx.Discard()

	_, err := wTx.Get(nullifier.Bytes())
	if err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicateNullifier, nullifier.Hex())
	}
	if err != db.ErrKeyNotFound {
		return err
	}

	v := make([]byte, entrySize)
	copy(v, auctionID.Bytes())
	binary.BigEndian.PutUint64(v[common.AddressLength:], uint64(time.Now().Unix()))
	if err := wTx.Set(nullifier.Bytes(), v); err != nil {
		return err
	}
	return wTx.Commit()
}

// Contains returns true if the given nullifier is in the registry. It has
// no side effects.
func (r *Registry) Contains(nullifier common.Hash) (bool, error) {
	rTx := r.db.ReadTx()
	defer rTx.Discard()

	_, err := rTx.Get(nullifier.Bytes())
	if err == db.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Entry returns the stored NullifierEntry for the given nullifier
func (r *Registry) Entry(nullifier common.Hash) (*types.NullifierEntry, error) {
	rTx := r.db.ReadTx()
	defer rTx.Discard()

	v, err := rTx.Get(nullifier.Bytes())
	if err != nil {
		return nil, err
	}
	if len(v) != entrySize {
		return nil, fmt.Errorf("unexpected registry entry length: %d", len(v))
	}
	return &types.NullifierEntry{
		Nullifier: nullifier,
		AuctionID: common.BytesToAddress(v[:common.AddressLength]),
		Timestamp: int64(binary.BigEndian.Uint64(v[common.AddressLength:])),
	}, nil
}

// Clear removes all the entries recorded under the given auction. It is
// intended for auction teardown and testing, never for normal settlement.
func (r *Registry) Clear(auctionID common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var keys [][]byte
	err := r.db.Iterate(nil, func(k, v []byte) bool {
		if len(v) == entrySize &&
			common.BytesToAddress(v[:common.AddressLength]) == auctionID {
			key := make([]byte, len(k))
			copy(key, k)
			keys = append(keys, key)
		}
		return true
	})
	if err != nil {
		return err
	}

	wTx := r.db.WriteTx()
	defer wTx.Discard()
	for _, k := range keys {
		if err := wTx.Delete(k); err != nil {
			return err
		}
	}
	return wTx.Commit()
}
