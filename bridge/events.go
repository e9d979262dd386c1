package bridge

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Topic0 signatures for the bridge events, used to build log filters and
// to dispatch decoded logs.
var (
	TransferSentSig               = parsedABI.Events["TransferSent"].ID
	TransfersCommittedSig         = parsedABI.Events["TransfersCommitted"].ID
	WithdrawalBondedSig           = parsedABI.Events["WithdrawalBonded"].ID
	WithdrawalBondSettledSig      = parsedABI.Events["WithdrawalBondSettled"].ID
	MultipleWithdrawalsSettledSig = parsedABI.Events["MultipleWithdrawalsSettled"].ID
	WithdrewSig                   = parsedABI.Events["Withdrew"].ID
	TransferRootSetSig            = parsedABI.Events["TransferRootSet"].ID
	TransferRootConfirmedSig      = parsedABI.Events["TransferRootConfirmed"].ID
	TransferRootBondedSig         = parsedABI.Events["TransferRootBonded"].ID
	TransferBondChallengedSig     = parsedABI.Events["TransferBondChallenged"].ID
)

type TransferSent struct {
	TransferID    common.Hash
	ChainID       *big.Int
	Recipient     common.Address
	Amount        *big.Int
	TransferNonce common.Hash
	BonderFee     *big.Int
	Index         *big.Int
	AmountOutMin  *big.Int
	Deadline      *big.Int
}

type TransfersCommitted struct {
	DestinationChainID *big.Int
	RootHash           common.Hash
	TotalAmount        *big.Int
	RootCommittedAt    *big.Int
}

type WithdrawalBonded struct {
	TransferID common.Hash
	Amount     *big.Int
}

type WithdrawalBondSettled struct {
	Bonder     common.Address
	TransferID common.Hash
	RootHash   common.Hash
}

type MultipleWithdrawalsSettled struct {
	Bonder            common.Address
	RootHash          common.Hash
	TotalBondsSettled *big.Int
}

type Withdrew struct {
	TransferID    common.Hash
	Recipient     common.Address
	Amount        *big.Int
	TransferNonce common.Hash
}

type TransferRootSet struct {
	RootHash    common.Hash
	TotalAmount *big.Int
}

type TransferRootConfirmed struct {
	OriginChainID      *big.Int
	DestinationChainID *big.Int
	RootHash           common.Hash
	TotalAmount        *big.Int
}

type TransferRootBonded struct {
	Root   common.Hash
	Amount *big.Int
}

type TransferBondChallenged struct {
	TransferRootID common.Hash
	RootHash       common.Hash
	OriginalAmount *big.Int
}

func ParseTransferSent(l types.Log) (*TransferSent, error) {
	e := &TransferSent{}
	return e, unpackLog(e, "TransferSent", l)
}

func ParseTransfersCommitted(l types.Log) (*TransfersCommitted, error) {
	e := &TransfersCommitted{}
	return e, unpackLog(e, "TransfersCommitted", l)
}

func ParseWithdrawalBonded(l types.Log) (*WithdrawalBonded, error) {
	e := &WithdrawalBonded{}
	return e, unpackLog(e, "WithdrawalBonded", l)
}

func ParseWithdrawalBondSettled(l types.Log) (*WithdrawalBondSettled, error) {
	e := &WithdrawalBondSettled{}
	return e, unpackLog(e, "WithdrawalBondSettled", l)
}

func ParseMultipleWithdrawalsSettled(l types.Log) (*MultipleWithdrawalsSettled, error) {
	e := &MultipleWithdrawalsSettled{}
	return e, unpackLog(e, "MultipleWithdrawalsSettled", l)
}

func ParseWithdrew(l types.Log) (*Withdrew, error) {
	e := &Withdrew{}
	return e, unpackLog(e, "Withdrew", l)
}

func ParseTransferRootSet(l types.Log) (*TransferRootSet, error) {
	e := &TransferRootSet{}
	return e, unpackLog(e, "TransferRootSet", l)
}

func ParseTransferRootConfirmed(l types.Log) (*TransferRootConfirmed, error) {
	e := &TransferRootConfirmed{}
	return e, unpackLog(e, "TransferRootConfirmed", l)
}

func ParseTransferRootBonded(l types.Log) (*TransferRootBonded, error) {
	e := &TransferRootBonded{}
	return e, unpackLog(e, "TransferRootBonded", l)
}

func ParseTransferBondChallenged(l types.Log) (*TransferBondChallenged, error) {
	e := &TransferBondChallenged{}
	return e, unpackLog(e, "TransferBondChallenged", l)
}

func unpackLog(out interface{}, event string, l types.Log) error {
	ev, ok := parsedABI.Events[event]
	if !ok {
		return fmt.Errorf("unknown event %s", event)
	}
	if len(l.Topics) == 0 || l.Topics[0] != ev.ID {
		return fmt.Errorf("log is not a %s event", event)
	}
	if len(l.Data) > 0 {
		if err := parsedABI.UnpackIntoInterface(out, event, l.Data); err != nil {
			return err
		}
	}
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return abi.ParseTopics(out, indexed, l.Topics[1:])
}
