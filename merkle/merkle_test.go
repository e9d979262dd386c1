package merkle

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func testLeaves(n int) []common.Hash {
	leaves := make([]common.Hash, n)
	for i := range leaves {
		leaves[i] = common.HexToHash(fmt.Sprintf("0x%064x", i+1))
	}
	return leaves
}

func TestEmptyLeaves(t *testing.T) {
	_, err := NewTree(nil)
	require.ErrorIs(t, err, ErrEmptyLeaves)
}

func TestRootIsStable(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 31, 33} {
		leaves := testLeaves(n)
		t1, err := NewTree(leaves)
		require.NoError(t, err)
		t2, err := NewTree(leaves)
		require.NoError(t, err)
		require.Equal(t, t1.Root(), t2.Root(), "n=%d", n)
		require.NoError(t, VerifyRoot(t1.Root(), t2.Root()))
	}
}

func TestLeafMutationChangesRoot(t *testing.T) {
	leaves := testLeaves(8)
	original, err := RootOf(leaves)
	require.NoError(t, err)

	for i := range leaves {
		mutated := make([]common.Hash, len(leaves))
		copy(mutated, leaves)
		mutated[i] = common.HexToHash("0xdeadbeef")
		root, err := RootOf(mutated)
		require.NoError(t, err)
		require.NotEqual(t, original, root, "mutating leaf %d must change the root", i)
		require.ErrorIs(t, VerifyRoot(root, original), ErrRootMismatch)
	}
}

func TestOrderMatters(t *testing.T) {
	leaves := testLeaves(4)
	swapped := []common.Hash{leaves[1], leaves[0], leaves[2], leaves[3]}
	r1, err := RootOf(leaves)
	require.NoError(t, err)
	r2, err := RootOf(swapped)
	require.NoError(t, err)
	require.NotEqual(t, r1, r2)
}

func TestProofs(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8, 13} {
		leaves := testLeaves(n)
		tree, err := NewTree(leaves)
		require.NoError(t, err)
		for i, leaf := range leaves {
			siblings, err := tree.Proof(i)
			require.NoError(t, err)
			require.NoError(t, VerifyProof(leaf, i, siblings, tree.Root()), "n=%d i=%d", n, i)

			// proof must not verify against a different leaf
			if n > 1 {
				other := leaves[(i+1)%n]
				require.ErrorIs(t,
					VerifyProof(other, i, siblings, tree.Root()),
					ErrRootMismatch,
				)
			}
		}

		_, err = tree.Proof(n)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
	}
}

func TestPaddingUsesDefaultHash(t *testing.T) {
	// a 3 leaf tree equals a 4 leaf tree whose last leaf is keccak256(0x00..32)
	leaves := testLeaves(3)
	padded := append(testLeaves(3), defaultHash())
	r1, err := RootOf(leaves)
	require.NoError(t, err)
	r2, err := RootOf(padded)
	require.NoError(t, err)
	require.Equal(t, r2, r1)
}
