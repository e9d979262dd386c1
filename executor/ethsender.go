package executor

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	cfgTypes "github.com/hopnetwork/reconciler/config/types"
	"github.com/hopnetwork/reconciler/log"
	"github.com/hopnetwork/reconciler/sync"
)

// EthereumClient is the subset of an RPC client the sender needs.
type EthereumClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// EthSender signs and submits actions. Each signer group has its own key,
// the executor serializes actions of a group so the nonce never races.
type EthSender struct {
	clients    map[uint64]EthereumClient
	keys       map[string]*ecdsa.PrivateKey
	rpcTimeout time.Duration
	log        *log.Logger
}

func NewEthSender(clients map[uint64]EthereumClient, keys map[string]*ecdsa.PrivateKey, rpcTimeout time.Duration) *EthSender {
	if rpcTimeout == 0 {
		rpcTimeout = sync.DefaultRPCTimeout
	}
	return &EthSender{
		clients:    clients,
		keys:       keys,
		rpcTimeout: rpcTimeout,
		log:        log.WithFields("module", "executor"),
	}
}

func (s *EthSender) Send(ctx context.Context, action *Action) (common.Hash, error) {
	client, ok := s.clients[action.ChainID]
	if !ok {
		return common.Hash{}, fmt.Errorf("no client for chain %d", action.ChainID)
	}
	key, ok := s.keys[action.SignerGroup]
	if !ok {
		return common.Hash{}, fmt.Errorf("no key for signer group %s", action.SignerGroup)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	// The whole submission runs under a deadline so a stalled node cannot
	// hang the signer group's worker.
	ctx, cancel := context.WithTimeout(ctx, s.rpcTimeout)
	defer cancel()

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("getting nonce for %s: %w", from, err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("getting gas price: %w", err)
	}
	to := action.To
	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &to,
		Data: action.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimating gas for action %s: %w", action.ID, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas * 12 / 10, //nolint:mnd
		To:       &to,
		Data:     action.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(new(big.Int).SetUint64(action.ChainID)), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("signing action %s: %w", action.ID, err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("sending action %s: %w", action.ID, err)
	}
	s.log.Infof("action %s sent as tx %s from %s (chain %d)", action.ID, signed.Hash(), from, action.ChainID)
	return signed.Hash(), nil
}

// NewKeyFromKeystore loads a private key from an encrypted key store file.
func NewKeyFromKeystore(cfg cfgTypes.KeystoreFileConfig) (*ecdsa.PrivateKey, error) {
	if cfg.Path == "" && cfg.Password == "" {
		return nil, nil
	}
	keystoreEncrypted, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("reading key store %s: %w", cfg.Path, err)
	}
	key, err := keystore.DecryptKey(keystoreEncrypted, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("decrypting key store %s: %w", cfg.Path, err)
	}
	return key.PrivateKey, nil
}
