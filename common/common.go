package common

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iden3/go-iden3-crypto/keccak256"
)

// Uint64ToBytes converts a uint64 to a byte slice
func Uint64ToBytes(num uint64) []byte {
	const uint64ByteSize = 8

	bytes := make([]byte, uint64ByteSize)
	binary.BigEndian.PutUint64(bytes, num)

	return bytes
}

// BytesToUint64 converts a byte slice to a uint64
func BytesToUint64(bytes []byte) uint64 {
	return binary.BigEndian.Uint64(bytes)
}

// Uint32ToBytes converts a uint32 to a byte slice in big-endian order
func Uint32ToBytes(num uint32) []byte {
	const uint32ByteSize = 4

	key := make([]byte, uint32ByteSize)
	binary.BigEndian.PutUint32(key, num)

	return key
}

// BytesToUint32 converts a byte slice to a uint32
func BytesToUint32(bytes []byte) uint32 {
	return binary.BigEndian.Uint32(bytes)
}

// TransferID computes the deterministic id of a transfer from its fields.
// It must match the hash the bridge contract emits on TransferSent.
func TransferID(
	destinationChainID uint64,
	recipient common.Address,
	amount *big.Int,
	transferNonce common.Hash,
	bonderFee *big.Int,
) common.Hash {
	chainID := make([]byte, 32) //nolint:gomnd
	new(big.Int).SetUint64(destinationChainID).FillBytes(chainID)

	var amountBuf, feeBuf [32]byte
	if amount == nil {
		amount = big.NewInt(0)
	}
	if bonderFee == nil {
		bonderFee = big.NewInt(0)
	}

	recipientPadded := make([]byte, 32) //nolint:gomnd
	copy(recipientPadded[12:], recipient[:])

	return common.BytesToHash(keccak256.Hash(
		chainID,
		recipientPadded,
		amount.FillBytes(amountBuf[:]),
		transferNonce[:],
		bonderFee.FillBytes(feeBuf[:]),
	))
}

// TransferRootID computes the id of a transfer root bond from the root hash
// and the committed total amount, matching the contract side derivation.
func TransferRootID(rootHash common.Hash, totalAmount *big.Int) common.Hash {
	var amountBuf [32]byte
	if totalAmount == nil {
		totalAmount = big.NewInt(0)
	}

	return common.BytesToHash(keccak256.Hash(
		rootHash[:],
		totalAmount.FillBytes(amountBuf[:]),
	))
}
