package common

import (
	"math/big"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestUint64Conversion(t *testing.T) {
	for _, num := range []uint64{0, 1, 255, 256, 1<<32 - 1, 1 << 32, 1<<64 - 1} {
		b := Uint64ToBytes(num)
		require.Len(t, b, 8)
		require.Equal(t, num, BytesToUint64(b))
	}
}

func TestUint32Conversion(t *testing.T) {
	for _, num := range []uint32{0, 1, 255, 1<<32 - 1} {
		b := Uint32ToBytes(num)
		require.Len(t, b, 4)
		require.Equal(t, num, BytesToUint32(b))
	}
}

func TestTransferIDDeterminism(t *testing.T) {
	recipient := ethCommon.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")
	nonce := ethCommon.HexToHash("0x01")
	amount := big.NewInt(1000)
	fee := big.NewInt(5)

	id1 := TransferID(10, recipient, amount, nonce, fee)
	id2 := TransferID(10, recipient, amount, nonce, fee)
	require.Equal(t, id1, id2)

	// any field change must change the id
	require.NotEqual(t, id1, TransferID(11, recipient, amount, nonce, fee))
	require.NotEqual(t, id1, TransferID(10, recipient, big.NewInt(1001), nonce, fee))
	require.NotEqual(t, id1, TransferID(10, recipient, amount, ethCommon.HexToHash("0x02"), fee))
}

func TestTransferRootID(t *testing.T) {
	root := ethCommon.HexToHash("0xbeef")
	id1 := TransferRootID(root, big.NewInt(1000))
	id2 := TransferRootID(root, big.NewInt(1001))
	require.NotEqual(t, id1, id2)
	require.Equal(t, id1, TransferRootID(root, big.NewInt(1000)))

	// nil amount treated as zero
	require.Equal(t, TransferRootID(root, big.NewInt(0)), TransferRootID(root, nil))
}
