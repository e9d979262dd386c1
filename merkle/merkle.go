package merkle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrRootMismatch is returned when a computed root differs from the
	// root committed on chain. It signals either a bug in the leaf
	// reconstruction or upstream data corruption, never something to paper
	// over.
	ErrRootMismatch = errors.New("root mismatch")

	// ErrEmptyLeaves is returned when building a tree without leaves
	ErrEmptyLeaves = errors.New("empty leaf set")

	// ErrIndexOutOfRange is returned when requesting a proof for a leaf
	// index the tree doesn't have
	ErrIndexOutOfRange = errors.New("leaf index out of range")
)

// Tree is an in-memory Merkle tree over an ordered set of transfer ids.
// The leaf order is the order the transfers were committed on chain and is
// never re-sorted. Uneven levels are padded with the default hash
// keccak256(0x00...00), matching the contract implementation.
type Tree struct {
	// layers[0] are the (padded) leaves, layers[len-1] is the root
	layers [][]common.Hash
	nLeaves int
}

func keccak(data ...[]byte) common.Hash {
	hasher := sha3.NewLegacyKeccak256()
	for _, d := range data {
		hasher.Write(d)
	}
	var h common.Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

func defaultHash() common.Hash {
	var zero [32]byte
	return keccak(zero[:])
}

// NewTree builds the tree from the ordered leaf set.
func NewTree(leaves []common.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyLeaves
	}

	// pad to the next power of two with the default hash
	n := 1
	for n < len(leaves) {
		n *= 2
	}
	padded := make([]common.Hash, n)
	copy(padded, leaves)
	fill := defaultHash()
	for i := len(leaves); i < n; i++ {
		padded[i] = fill
	}

	layers := [][]common.Hash{padded}
	for len(layers[len(layers)-1]) > 1 {
		prev := layers[len(layers)-1]
		next := make([]common.Hash, len(prev)/2)
		for i := 0; i < len(prev); i += 2 {
			next[i/2] = keccak(prev[i][:], prev[i+1][:])
		}
		layers = append(layers, next)
	}

	return &Tree{layers: layers, nLeaves: len(leaves)}, nil
}

// Root returns the root hash of the tree.
func (t *Tree) Root() common.Hash {
	return t.layers[len(t.layers)-1][0]
}

// Proof returns the sibling hashes for the leaf at index, bottom-up.
func (t *Tree) Proof(index int) ([]common.Hash, error) {
	if index < 0 || index >= t.nLeaves {
		return nil, ErrIndexOutOfRange
	}
	siblings := make([]common.Hash, 0, len(t.layers)-1)
	for h := 0; h < len(t.layers)-1; h++ {
		layer := t.layers[h]
		sibling := index ^ 1
		siblings = append(siblings, layer[sibling])
		index /= 2
	}
	return siblings, nil
}

// VerifyProof recomputes the root from a leaf and its siblings and checks it
// against expectedRoot.
func VerifyProof(leaf common.Hash, index int, siblings []common.Hash, expectedRoot common.Hash) error {
	computed := leaf
	for _, sibling := range siblings {
		if index%2 == 0 {
			computed = keccak(computed[:], sibling[:])
		} else {
			computed = keccak(sibling[:], computed[:])
		}
		index /= 2
	}
	return VerifyRoot(computed, expectedRoot)
}

// VerifyRoot compares two roots byte for byte. Any difference is a hard
// error, per the accounting integrity policy.
func VerifyRoot(computed, expected common.Hash) error {
	if computed != expected {
		return fmt.Errorf("%w: computed %s, expected %s", ErrRootMismatch, computed.Hex(), expected.Hex())
	}
	return nil
}

// RootOf is a convenience that builds the tree and returns its root.
func RootOf(leaves []common.Hash) (common.Hash, error) {
	t, err := NewTree(leaves)
	if err != nil {
		return common.Hash{}, err
	}
	return t.Root(), nil
}
