package etherman

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/rpc"
)

// EthClienter is the capability surface the watchers need from a chain RPC
// node. ethclient.Client satisfies it; tests inject fakes.
type EthClienter interface {
	ethereum.LogFilterer
	ethereum.BlockNumberReader
	ethereum.ChainReader
	ethereum.TransactionReader
	bind.ContractBackend
}

// BlockNumberFinality is the tag of the block the syncers are allowed to
// consider final ("LatestBlock", "SafeBlock", "FinalizedBlock", ...)
type BlockNumberFinality string

const (
	LatestBlock    = BlockNumberFinality("LatestBlock")
	SafeBlock      = BlockNumberFinality("SafeBlock")
	PendingBlock   = BlockNumberFinality("PendingBlock")
	FinalizedBlock = BlockNumberFinality("FinalizedBlock")
	EarliestBlock  = BlockNumberFinality("EarliestBlock")
)

// ToBlockNum converts the finality tag to the big.Int value expected by
// HeaderByNumber and friends.
func (b BlockNumberFinality) ToBlockNum() (*big.Int, error) {
	switch BlockNumberFinality(strings.TrimSpace(string(b))) {
	case LatestBlock:
		return big.NewInt(int64(rpc.LatestBlockNumber)), nil
	case SafeBlock:
		return big.NewInt(int64(rpc.SafeBlockNumber)), nil
	case PendingBlock:
		return big.NewInt(int64(rpc.PendingBlockNumber)), nil
	case FinalizedBlock:
		return big.NewInt(int64(rpc.FinalizedBlockNumber)), nil
	case EarliestBlock:
		return big.NewInt(int64(rpc.EarliestBlockNumber)), nil
	default:
		return nil, fmt.Errorf("invalid finality keyword: %q", string(b))
	}
}
