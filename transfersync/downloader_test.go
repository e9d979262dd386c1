package transfersync

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hopnetwork/reconciler/bridge"
	"github.com/hopnetwork/reconciler/log"
	"github.com/hopnetwork/reconciler/sync"
	"github.com/stretchr/testify/require"
)

// fakeTxClient only answers TransactionByHash; everything else panics via
// the embedded nil interface.
type fakeTxClient struct {
	EthClienter
	txs  map[common.Hash]*types.Transaction
	ctxs []context.Context
}

func (f *fakeTxClient) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	f.ctxs = append(f.ctxs, ctx)
	tx, ok := f.txs[txHash]
	if !ok {
		return nil, false, context.DeadlineExceeded
	}
	return tx, false, nil
}

func nonIndexedEventArgs(t *testing.T, event string) abi.Arguments {
	t.Helper()
	var args abi.Arguments
	for _, in := range bridge.ABI().Events[event].Inputs {
		if !in.Indexed {
			args = append(args, in)
		}
	}
	return args
}

func signedTx(t *testing.T, key *ecdsa.PrivateKey, chainID *big.Int, data []byte) *types.Transaction {
	t.Helper()
	to := common.HexToAddress("0xb8901acB")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    0,
		GasPrice: big.NewInt(1),
		Gas:      21000,
		To:       &to,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	require.NoError(t, err)
	return signed
}

func TestBonderRecoveredFromBondTransaction(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	bonder := crypto.PubkeyToAddress(key.PublicKey)

	txHash := common.HexToHash("0xdead01")
	client := &fakeTxClient{txs: map[common.Hash]*types.Transaction{
		txHash: signedTx(t, key, big.NewInt(5), []byte{0x01}),
	}}

	appender, err := buildAppender(client, log.WithFields("test", t.Name()), 0)
	require.NoError(t, err)

	amountData, err := nonIndexedEventArgs(t, "WithdrawalBonded").Pack(big.NewInt(400))
	require.NoError(t, err)
	l := types.Log{
		Topics: []common.Hash{bridge.WithdrawalBondedSig, common.HexToHash("0x0a")},
		Data:   amountData,
		TxHash: txHash,
	}

	block := &sync.EVMBlock{}
	require.NoError(t, appender[bridge.WithdrawalBondedSig](context.Background(), block, l))
	require.Len(t, block.Events, 1)

	event := block.Events[0].(Event)
	require.NotNil(t, event.WithdrawalBonded)
	require.Equal(t, bonder, event.Bonder)
	require.Equal(t, big.NewInt(400), event.WithdrawalBonded.Amount)
}

func TestBonderLookupFailureKeepsBondEvent(t *testing.T) {
	client := &fakeTxClient{txs: map[common.Hash]*types.Transaction{}}
	appender, err := buildAppender(client, log.WithFields("test", t.Name()), 0)
	require.NoError(t, err)

	amountData, err := nonIndexedEventArgs(t, "WithdrawalBonded").Pack(big.NewInt(400))
	require.NoError(t, err)
	l := types.Log{
		Topics: []common.Hash{bridge.WithdrawalBondedSig, common.HexToHash("0x0a")},
		Data:   amountData,
		TxHash: common.HexToHash("0xdead02"),
	}

	block := &sync.EVMBlock{}
	require.NoError(t, appender[bridge.WithdrawalBondedSig](context.Background(), block, l))
	require.Len(t, block.Events, 1)
	require.Equal(t, common.Address{}, block.Events[0].(Event).Bonder)
}

func TestCalldataLookupsCarryDeadline(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	data, err := bridge.PackSettleBondedWithdrawals(
		common.HexToAddress("0x1111"),
		[]common.Hash{common.HexToHash("0x0a"), common.HexToHash("0x0b")},
		big.NewInt(700),
	)
	require.NoError(t, err)

	txHash := common.HexToHash("0xdead03")
	client := &fakeTxClient{txs: map[common.Hash]*types.Transaction{
		txHash: signedTx(t, key, big.NewInt(5), data),
	}}

	appender, err := buildAppender(client, log.WithFields("test", t.Name()), 0)
	require.NoError(t, err)

	settledData, err := nonIndexedEventArgs(t, "MultipleWithdrawalsSettled").Pack(big.NewInt(700))
	require.NoError(t, err)
	l := types.Log{
		Topics: []common.Hash{
			bridge.MultipleWithdrawalsSettledSig,
			common.BytesToHash(common.HexToAddress("0x1111").Bytes()),
			common.HexToHash("0x2222"),
		},
		Data:   settledData,
		TxHash: txHash,
	}

	type ctxKey struct{}
	parent := context.WithValue(context.Background(), ctxKey{}, "caller")
	block := &sync.EVMBlock{}
	require.NoError(t, appender[bridge.MultipleWithdrawalsSettledSig](parent, block, l))

	require.Len(t, block.Events, 1)
	require.Len(t, block.Events[0].(Event).SettledTransferIDs, 2)

	// The transaction lookup must run under a deadline derived from the
	// caller's context, never a fresh background one.
	require.NotEmpty(t, client.ctxs)
	deadline, ok := client.ctxs[0].Deadline()
	require.True(t, ok, "transaction lookups must carry an explicit timeout")
	require.WithinDuration(t, time.Now().Add(sync.DefaultRPCTimeout), deadline, time.Second)
	require.Equal(t, "caller", client.ctxs[0].Value(ctxKey{}))
}
