package comtree

import (
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/pebbledb"
	"go.vocdoni.io/dvote/log"
)

// Builder manages the commitment Trees of multiple auctions, each one
// backed by its own sub-database under subDBsPath
type Builder struct {
	subDBsPath string
	db         db.Database

	// trees contains the loaded commitment trees, keyed by auction id
	trees map[common.Address]*Tree
}

var dbKeyAuctionPrefix = []byte("auction:")

// NewBuilder loads the Builder
func NewBuilder(database db.Database, subDBsPath string) (*Builder, error) {
	return &Builder{
		subDBsPath: subDBsPath,
		db:         database,
		trees:      make(map[common.Address]*Tree),
	}, nil
}

// loadTreeIfNotYet will load the commitment Tree of the given auction in
// memory if it is not loaded yet
func (b *Builder) loadTreeIfNotYet(auctionID common.Address) error {
	if _, ok := b.trees[auctionID]; !ok {
		optsDB := db.Options{Path: filepath.Join(b.subDBsPath, auctionID.Hex())}
		database, err := pebbledb.New(optsDB)
		if err != nil {
			return err
		}
		t, err := New(Options{DB: database})
		if err != nil {
			return err
		}
		b.trees[auctionID] = t

		// remember the auction so its tree can be found after restart
		wTx := b.db.WriteTx()
		defer wTx.Discard()
		key := append(dbKeyAuctionPrefix, auctionID.Bytes()...)
		if err := wTx.Set(key, []byte{1}); err != nil {
			return err
		}
		if err := wTx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// KnownAuctions returns the auction ids for which a commitment tree has
// been created
func (b *Builder) KnownAuctions() ([]common.Address, error) {
	var auctions []common.Address
	err := b.db.Iterate(dbKeyAuctionPrefix, func(k, v []byte) bool {
		auctions = append(auctions, common.BytesToAddress(k))
		return true
	})
	return auctions, err
}

// AddCommitments adds the batch of given commitments to the Tree of the
// given auction
func (b *Builder) AddCommitments(auctionID common.Address,
	commitments []common.Hash) error {
	if err := b.loadTreeIfNotYet(auctionID); err != nil {
		return err
	}
	return b.trees[auctionID].AddCommitments(commitments)
}

// AddCommitmentsAndStoreError adds the commitments to the auction's Tree,
// storing the error message into the Tree db if the operation fails. It is
// intended to be called in background.
func (b *Builder) AddCommitmentsAndStoreError(auctionID common.Address,
	commitments []common.Hash) {
	if err := b.AddCommitments(auctionID, commitments); err != nil {
		log.Warnw("AddCommitments error", "err", err, "auction", auctionID.Hex())
		if t, ok := b.trees[auctionID]; ok {
			if err := t.SetErrMsg(err.Error()); err != nil {
				log.Warnw("SetErrMsg error", "err", err)
			}
		}
	}
}

// CloseTree closes the commitment Tree of the given auction
func (b *Builder) CloseTree(auctionID common.Address) error {
	if err := b.loadTreeIfNotYet(auctionID); err != nil {
		return err
	}
	return b.trees[auctionID].Close()
}

// TreeRoot returns the root of the auction's commitment Tree if the Tree is
// closed
func (b *Builder) TreeRoot(auctionID common.Address) ([]byte, error) {
	if err := b.loadTreeIfNotYet(auctionID); err != nil {
		return nil, err
	}
	return b.trees[auctionID].Root()
}

// TreeInfo returns metadata about the auction's commitment Tree
func (b *Builder) TreeInfo(auctionID common.Address) (*Info, error) {
	if err := b.loadTreeIfNotYet(auctionID); err != nil {
		return nil, err
	}
	return b.trees[auctionID].Info()
}

// GetProof returns the leaf index and the MerkleProof compressed for the
// given commitment in the auction's Tree
func (b *Builder) GetProof(auctionID common.Address,
	commitment common.Hash) (uint64, []byte, error) {
	if err := b.loadTreeIfNotYet(auctionID); err != nil {
		return 0, nil, err
	}
	return b.trees[auctionID].GetProof(commitment)
}
