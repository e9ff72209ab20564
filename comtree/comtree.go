// Package comtree maintains the per-auction MerkleTree of bid commitments.
// The tree is built with the Poseidon hash function, so its roots and
// proofs are consumable by the external zero-knowledge collaborator; this
// package never generates or verifies proofs of knowledge itself.
package comtree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/clearmarket/sealbid-node/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/arbo"
	"go.vocdoni.io/dvote/db"
)

var (
	dbKeyNextIndex  = []byte("nextIndex")
	dbKeyTreeClosed = []byte("treeClosed")
	dbKeyErrMsg     = []byte("errmsg")
)

var (
	// ErrTreeNotClosed is used when trying to do some action that needs the
	// tree to be closed (the auction ended)
	ErrTreeNotClosed = errors.New("commitment tree not closed yet")
	// ErrTreeClosed is used when trying to add commitments to a tree that
	// is already closed
	ErrTreeClosed = errors.New("commitment tree closed, can not add more commitments")
	// ErrMaxNLeafsReached is used when trying to add a number of new
	// commitments which would exceed the maximum number of leaves
	ErrMaxNLeafsReached = fmt.Errorf("MaxNLeafs (%d) reached", types.MaxNLeafs)
)

// Info contains metadata about a commitment Tree
type Info struct {
	// ErrMsg contains the stored error message for the last operation that
	// gave error
	ErrMsg string `json:"errMsg,omitempty"`
	Size   uint64 `json:"size"`
	Closed bool   `json:"closed"`
	Root   []byte `json:"root,omitempty"`
}

// Tree contains the MerkleTree with the bid commitments of one auction
type Tree struct {
	tree *arbo.Tree
	db   db.Database
}

// Options is used to pass the parameters to load a new Tree
type Options struct {
	// DB defines the database that will be used for the tree
	DB db.Database
}

// New loads the commitment tree
func New(opts Options) (*Tree, error) {
	arboConfig := arbo.Config{
		Database:     opts.DB,
		MaxLevels:    types.MaxLevels,
		HashFunction: arbo.HashFunctionPoseidon,
	}

	wTx := opts.DB.WriteTx()
	defer wTx.Discard()

	tree, err := arbo.NewTreeWithTx(wTx, arboConfig)
	if err != nil {
		return nil, err
	}

	t := &Tree{
		tree: tree,
		db:   opts.DB,
	}

	// if nextIndex is not set in the db, initialize it to 0
	_, err = t.getNextIndex(wTx)
	if err != nil {
		err = t.setNextIndex(wTx, 0)
		if err != nil {
			return nil, err
		}
	}

	// if the closed flag is not set yet, the tree starts open
	_, err = wTx.Get(dbKeyTreeClosed)
	if err == db.ErrKeyNotFound {
		if err := wTx.Set(dbKeyTreeClosed, []byte{0}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err := wTx.Commit(); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Tree) setNextIndex(wTx db.WriteTx, nextIndex uint64) error {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, nextIndex)
	return wTx.Set(dbKeyNextIndex, b)
}

func (t *Tree) getNextIndex(rTx db.ReadTx) (uint64, error) {
	b, err := rTx.Get(dbKeyNextIndex)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Size returns the number of commitments added to the Tree
func (t *Tree) Size() (uint64, error) {
	rTx := t.db.ReadTx()
	defer rTx.Discard()
	return t.getNextIndex(rTx)
}

// SetErrMsg stores the given error message into the Tree db
func (t *Tree) SetErrMsg(msg string) error {
	wTx := t.db.WriteTx()
	defer wTx.Discard()

	if err := wTx.Set(dbKeyErrMsg, []byte(msg)); err != nil {
		return err
	}
	return wTx.Commit()
}

// GetErrMsg returns the stored error message of the Tree
func (t *Tree) GetErrMsg() (string, error) {
	rTx := t.db.ReadTx()
	defer rTx.Discard()

	b, err := rTx.Get(dbKeyErrMsg)
	if err == db.ErrKeyNotFound {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return string(b), nil
}

// Close closes the tree; no more commitments can be added afterwards. It is
// called when the auction's bidding window ends.
func (t *Tree) Close() error {
	isClosed, err := t.IsClosed()
	if err != nil {
		return err
	}
	if isClosed {
		return fmt.Errorf("commitment tree already closed")
	}
	wTx := t.db.WriteTx()
	defer wTx.Discard()
	if err := wTx.Set(dbKeyTreeClosed, []byte{1}); err != nil {
		return err
	}
	return wTx.Commit()
}

// IsClosed returns true if the tree is closed, and false if the tree still
// accepts commitments
func (t *Tree) IsClosed() (bool, error) {
	rTx := t.db.ReadTx()
	defer rTx.Discard()

	b, err := rTx.Get(dbKeyTreeClosed)
	if err != nil {
		return false, err
	}
	return bytes.Equal(b, []byte{1}), nil
}

// Root returns the tree root if the Tree is closed
func (t *Tree) Root() ([]byte, error) {
	isClosed, err := t.IsClosed()
	if err != nil {
		return nil, err
	}
	if !isClosed {
		return nil, ErrTreeNotClosed
	}
	return t.tree.Root()
}

// IntermediateRoot returns the tree root even if the Tree is not closed.
// WARNING: It should be used only for testing purposes.
func (t *Tree) IntermediateRoot() ([]byte, error) {
	return t.tree.Root()
}

// Info returns metadata about the Tree
func (t *Tree) Info() (*Info, error) {
	size, err := t.Size()
	if err != nil {
		return nil, err
	}

	errMsg, err := t.GetErrMsg()
	if err != nil {
		return nil, err
	}

	isClosed, err := t.IsClosed()
	if err != nil {
		return nil, err
	}

	root := types.EmptyRoot
	if isClosed {
		root, err = t.Root()
		if err != nil {
			return nil, err
		}
	}

	return &Info{
		ErrMsg: errMsg,
		Size:   size,
		Closed: isClosed,
		Root:   root,
	}, nil
}

// commitmentLeaf returns the given commitment in the byte format expected
// by the MerkleTree leaves
func commitmentLeaf(commitment common.Hash) []byte {
	return arbo.BigIntToBytes(common.HashLength, commitment.Big())
}

// AddCommitments adds the batch of given commitments, assigning incremental
// indexes to each one
func (t *Tree) AddCommitments(commitments []common.Hash) error {
	isClosed, err := t.IsClosed()
	if err != nil {
		return err
	}
	if isClosed {
		return ErrTreeClosed
	}
	wTx := t.db.WriteTx()
	defer wTx.Discard()

	nextIndex, err := t.getNextIndex(wTx)
	if err != nil {
		return err
	}

	if nextIndex+uint64(len(commitments)) > types.MaxNLeafs {
		return fmt.Errorf("%s, current index: %d, trying to add %d commitments",
			ErrMaxNLeafsReached, nextIndex, len(commitments))
	}

	var indexes [][]byte
	var leaves [][]byte
	for i := 0; i < len(commitments); i++ {
		index := nextIndex + uint64(i)
		indexBytes := types.Uint64ToIndex(index)
		indexes = append(indexes, indexBytes)
		leaves = append(leaves, commitmentLeaf(commitments[i]))

		// store the mapping between commitment->index
		if err := wTx.Set(commitments[i].Bytes(), indexBytes); err != nil {
			return err
		}
	}

	invalids, err := t.tree.AddBatchWithTx(wTx, indexes, leaves)
	if err != nil {
		return err
	}
	if len(invalids) != 0 {
		return fmt.Errorf("Can not add %d commitments", len(invalids))
	}

	if err = t.setNextIndex(wTx, nextIndex+uint64(len(commitments))); err != nil {
		return err
	}

	return wTx.Commit()
}

// GetProof returns the leaf index and the MerkleProof compressed for the
// given commitment
func (t *Tree) GetProof(commitment common.Hash) (uint64, []byte, error) {
	isClosed, err := t.IsClosed()
	if err != nil {
		return 0, nil, err
	}
	if !isClosed {
		// while the auction is active the tree is still being updated;
		// proofs are generated once the tree is closed for the final root
		return 0, nil, ErrTreeNotClosed
	}

	rTx := t.db.ReadTx()
	defer rTx.Discard()

	indexBytes, err := rTx.Get(commitment.Bytes())
	if err != nil {
		return 0, nil, err
	}
	index := types.IndexToUint64(indexBytes)

	_, leafV, s, existence, err := t.tree.GenProof(indexBytes)
	if err != nil {
		return 0, nil, err
	}
	if !existence {
		return 0, nil,
			fmt.Errorf("commitment does not exist in the tree (%s)", commitment.Hex())
	}
	if !bytes.Equal(leafV, commitmentLeaf(commitment)) {
		return 0, nil, fmt.Errorf("leafV!=commitment: %x!=%s", leafV, commitment.Hex())
	}
	return index, s, nil
}

// CheckProof checks a given MerkleProof of the given commitment (& index)
// for the given root
func CheckProof(root, proof []byte, index uint64, commitment common.Hash) (bool, error) {
	indexBytes := types.Uint64ToIndex(index)
	return arbo.CheckProof(arbo.HashFunctionPoseidon, indexBytes,
		commitmentLeaf(commitment), root, proof)
}
