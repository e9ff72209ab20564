package types

import (
	"math"
	"math/big"

	"github.com/vocdoni/arbo"
)

var (
	// MaxLevels indicates the maximum number of levels in the commitment
	// MerkleTree
	MaxLevels int = 64
	// MaxNLeafs indicates the maximum number of leaves in the commitment
	// MerkleTree
	MaxNLeafs uint64 = uint64(math.MaxUint64)
	// MaxKeyLen indicates the maximum key (index) length in the commitment
	// MerkleTree
	MaxKeyLen int = int(math.Ceil(float64(MaxLevels) / float64(8))) //nolint:gomnd
	// EmptyRoot is a byte array of 0s, with the length of the hash
	// function output length used in the commitment MerkleTree
	EmptyRoot = make([]byte, arbo.HashFunctionPoseidon.Len())
)

// Uint64ToIndex returns the given index in the byte format expected by the
// commitment MerkleTree keys
func Uint64ToIndex(index uint64) []byte {
	return arbo.BigIntToBytes(MaxKeyLen, new(big.Int).SetUint64(index))
}

// IndexToUint64 parses a commitment MerkleTree key back into its index
func IndexToUint64(b []byte) uint64 {
	return arbo.BytesToBigInt(b).Uint64()
}
