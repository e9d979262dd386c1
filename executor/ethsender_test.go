package executor

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hopnetwork/reconciler/sync"
	"github.com/stretchr/testify/require"
)

type fakeEthereumClient struct {
	sent []*types.Transaction
	ctxs []context.Context
}

func (f *fakeEthereumClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.ctxs = append(f.ctxs, ctx)
	return 7, nil
}

func (f *fakeEthereumClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	f.ctxs = append(f.ctxs, ctx)
	return big.NewInt(1000), nil
}

func (f *fakeEthereumClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.ctxs = append(f.ctxs, ctx)
	return 50000, nil
}

func (f *fakeEthereumClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.ctxs = append(f.ctxs, ctx)
	f.sent = append(f.sent, tx)
	return nil
}

func newTestSender(t *testing.T, client EthereumClient) (*EthSender, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := NewEthSender(
		map[uint64]EthereumClient{1: client},
		map[string]*ecdsa.PrivateKey{"default": key},
		0,
	)
	return sender, key
}

func TestSendSignsAndSubmits(t *testing.T) {
	client := &fakeEthereumClient{}
	sender, key := newTestSender(t, client)

	txHash, err := sender.Send(context.Background(), testAction("a1"))
	require.NoError(t, err)
	require.Len(t, client.sent, 1)

	tx := client.sent[0]
	require.Equal(t, txHash, tx.Hash())
	require.Equal(t, uint64(7), tx.Nonce())
	require.Equal(t, uint64(50000*12/10), tx.Gas())
	require.Equal(t, []byte{0x01, 0x02}, tx.Data())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), tx)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), from)
}

func TestSendRejectsUnknownChainAndGroup(t *testing.T) {
	sender, _ := newTestSender(t, &fakeEthereumClient{})

	badChain := testAction("a1")
	badChain.ChainID = 999
	_, err := sender.Send(context.Background(), badChain)
	require.ErrorContains(t, err, "no client for chain")

	badGroup := testAction("a2")
	badGroup.SignerGroup = "unknown"
	_, err = sender.Send(context.Background(), badGroup)
	require.ErrorContains(t, err, "no key for signer group")
}

func TestSendCallsCarryDeadline(t *testing.T) {
	client := &fakeEthereumClient{}
	sender, _ := newTestSender(t, client)

	type ctxKey struct{}
	parent := context.WithValue(context.Background(), ctxKey{}, "caller")
	_, err := sender.Send(parent, testAction("a1"))
	require.NoError(t, err)
	require.Len(t, client.ctxs, 4)

	for _, ctx := range client.ctxs {
		deadline, ok := ctx.Deadline()
		require.True(t, ok, "client calls must carry an explicit timeout")
		require.WithinDuration(t, time.Now().Add(sync.DefaultRPCTimeout), deadline, time.Second)
		require.Equal(t, "caller", ctx.Value(ctxKey{}))
	}
}
