package bridge

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SettleBondedWithdrawalsCall is the decoded input of a
// settleBondedWithdrawals transaction. TransferIDs keeps the on-chain
// argument order, which is the Merkle leaf order of the settled root.
type SettleBondedWithdrawalsCall struct {
	Bonder      common.Address
	TransferIDs []common.Hash
	TotalAmount *big.Int
}

// DecodeSettleBondedWithdrawals decodes the calldata of a
// settleBondedWithdrawals transaction. It fails if the selector does not
// match or the arguments do not unpack.
func DecodeSettleBondedWithdrawals(data []byte) (*SettleBondedWithdrawalsCall, error) {
	method := parsedABI.Methods["settleBondedWithdrawals"]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return nil, fmt.Errorf("calldata is not a settleBondedWithdrawals call")
	}
	vals, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpacking settleBondedWithdrawals calldata: %w", err)
	}
	rawIDs := vals[1].([][32]byte)
	ids := make([]common.Hash, len(rawIDs))
	for i, id := range rawIDs {
		ids[i] = common.Hash(id)
	}
	return &SettleBondedWithdrawalsCall{
		Bonder:      vals[0].(common.Address),
		TransferIDs: ids,
		TotalAmount: vals[2].(*big.Int),
	}, nil
}

// PackSettleBondedWithdrawals builds the calldata for a
// settleBondedWithdrawals transaction.
func PackSettleBondedWithdrawals(bonder common.Address, transferIDs []common.Hash, totalAmount *big.Int) ([]byte, error) {
	ids := make([][32]byte, len(transferIDs))
	for i, id := range transferIDs {
		ids[i] = id
	}
	return parsedABI.Pack("settleBondedWithdrawals", bonder, ids, totalAmount)
}

// ChallengeTransferRootBondCall is the decoded input of a
// challengeTransferRootBond transaction.
type ChallengeTransferRootBondCall struct {
	RootHash           common.Hash
	OriginalAmount     *big.Int
	DestinationChainID uint64
}

// DecodeChallengeTransferRootBond decodes the calldata of a
// challengeTransferRootBond transaction.
func DecodeChallengeTransferRootBond(data []byte) (*ChallengeTransferRootBondCall, error) {
	method := parsedABI.Methods["challengeTransferRootBond"]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return nil, fmt.Errorf("calldata is not a challengeTransferRootBond call")
	}
	vals, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpacking challengeTransferRootBond calldata: %w", err)
	}
	return &ChallengeTransferRootBondCall{
		RootHash:           common.Hash(vals[0].([32]byte)),
		OriginalAmount:     vals[1].(*big.Int),
		DestinationChainID: vals[2].(*big.Int).Uint64(),
	}, nil
}

// PackChallengeTransferRootBond builds the calldata for a
// challengeTransferRootBond transaction on the origin chain bridge.
func PackChallengeTransferRootBond(rootHash common.Hash, originalAmount *big.Int, destinationChainID uint64) ([]byte, error) {
	return parsedABI.Pack("challengeTransferRootBond", rootHash, originalAmount, new(big.Int).SetUint64(destinationChainID))
}

// PackResolveChallenge builds the calldata for a resolveChallenge
// transaction once the challenge period has elapsed.
func PackResolveChallenge(rootHash common.Hash, originalAmount *big.Int, destinationChainID uint64) ([]byte, error) {
	return parsedABI.Pack("resolveChallenge", rootHash, originalAmount, new(big.Int).SetUint64(destinationChainID))
}
