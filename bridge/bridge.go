package bridge

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const defaultCallTimeout = 15 * time.Second

// TransferRoot mirrors the on-chain transfer root accounting struct.
// AmountWithdrawn is authoritative: it accumulates both settlements and
// direct withdrawals against the root.
type TransferRoot struct {
	Total           *big.Int
	AmountWithdrawn *big.Int
	CreatedAt       *big.Int
}

// TransferBond mirrors the on-chain bond record for a bonded transfer root.
type TransferBond struct {
	Bonder             common.Address
	CreatedAt          *big.Int
	TotalAmount        *big.Int
	ChallengeStartTime *big.Int
	Challenger         common.Address
	ChallengeResolved  bool
}

// Contract is a typed view over a deployed bridge contract. Every read runs
// under callTimeout so a stalled node never hangs the caller.
type Contract struct {
	address     common.Address
	contract    *bind.BoundContract
	callTimeout time.Duration
}

// NewContract binds the bridge at address. A zero callTimeout means the
// default of 15s.
func NewContract(address common.Address, backend bind.ContractBackend, callTimeout time.Duration) *Contract {
	if callTimeout == 0 {
		callTimeout = defaultCallTimeout
	}
	return &Contract{
		address:     address,
		contract:    bind.NewBoundContract(address, parsedABI, backend, backend, backend),
		callTimeout: callTimeout,
	}
}

func (c *Contract) Address() common.Address {
	return c.address
}

func (c *Contract) call(ctx context.Context, out *[]interface{}, method string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.contract.Call(&bind.CallOpts{Context: ctx}, out, method, args...)
}

// GetTransferRoot returns the root accounting struct for (rootHash, totalAmount).
// The contract keys roots by transferRootId, so a root that was never set at
// this destination comes back zeroed rather than as an error.
func (c *Contract) GetTransferRoot(ctx context.Context, rootHash common.Hash, totalAmount *big.Int) (TransferRoot, error) {
	var out []interface{}
	err := c.call(ctx, &out, "getTransferRoot", rootHash, totalAmount)
	if err != nil {
		return TransferRoot{}, err
	}
	root := *abi.ConvertType(out[0], new(TransferRoot)).(*TransferRoot)
	return root, nil
}

// GetBondedWithdrawalAmount returns the outstanding bonded amount a bonder
// holds for a transfer. Zero means the bond was settled or never existed.
func (c *Contract) GetBondedWithdrawalAmount(ctx context.Context, bonder common.Address, transferID common.Hash) (*big.Int, error) {
	var out []interface{}
	err := c.call(ctx, &out, "getBondedWithdrawalAmount", bonder, transferID)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *Contract) IsTransferIDSpent(ctx context.Context, transferID common.Hash) (bool, error) {
	var out []interface{}
	err := c.call(ctx, &out, "isTransferIdSpent", transferID)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// GetTransferBond returns the bond record for a transfer root id on the
// origin chain bridge.
func (c *Contract) GetTransferBond(ctx context.Context, transferRootID common.Hash) (TransferBond, error) {
	var out []interface{}
	err := c.call(ctx, &out, "transferBonds", transferRootID)
	if err != nil {
		return TransferBond{}, err
	}
	bond := TransferBond{
		Bonder:             *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		CreatedAt:          *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		TotalAmount:        *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		ChallengeStartTime: *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
		Challenger:         *abi.ConvertType(out[4], new(common.Address)).(*common.Address),
		ChallengeResolved:  *abi.ConvertType(out[5], new(bool)).(*bool),
	}
	return bond, nil
}

// GetTransferRootCommittedAt returns the commit timestamp the source chain
// recorded for the root, or zero if the root was never committed.
func (c *Contract) GetTransferRootCommittedAt(ctx context.Context, destChainID uint64, transferRootID common.Hash) (uint64, error) {
	var out []interface{}
	err := c.call(ctx, &out, "transferRootCommittedAt", new(big.Int).SetUint64(destChainID), transferRootID)
	if err != nil {
		return 0, err
	}
	committedAt := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return committedAt.Uint64(), nil
}
