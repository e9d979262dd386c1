package config

import (
	"strings"
	"testing"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const testChains = `
OriginChainID = 1

[[Chains]]
ChainID = 1
RPCURL = "http://localhost:8545"
DBPath = "/tmp/test/chain1.sqlite"
BridgeAddr = "0xb8901acB165ed027E32754E0FFe830802919727f"
BlockFinality = "FinalizedBlock"
InitialBlockNum = 1000
SyncBlockChunkSize = 100
RetryAfterErrorPeriod = "1s"
MaxRetryAttemptsAfterError = -1
WaitForNewBlocksPeriod = "3s"

[[Chains]]
ChainID = 42161
RPCURL = "http://localhost:8546"
DBPath = "/tmp/test/chain42161.sqlite"
BridgeAddr = "0x0e0E3d2C5c292161999474247956EF542caBF8dd"
BlockFinality = "LatestBlock"
SyncBlockChunkSize = 500
RetryAfterErrorPeriod = "1s"
MaxRetryAttemptsAfterError = 5
WaitForNewBlocksPeriod = "1s"
`

func TestLoadDefaultsAndChains(t *testing.T) {
	cfg, err := LoadFiles([]FileData{{Name: "chains", Content: testChains}}, "")
	require.NoError(t, err)

	// Values from the chains file.
	require.Len(t, cfg.Chains, 2)
	require.Equal(t, uint64(1), cfg.Chains[0].ChainID)
	require.Equal(t, ethCommon.HexToAddress("0xb8901acB165ed027E32754E0FFe830802919727f"), cfg.Chains[0].BridgeAddr)
	require.Equal(t, uint64(1000), cfg.Chains[0].InitialBlockNum)
	require.Equal(t, 3*time.Second, cfg.Chains[0].WaitForNewBlocksPeriod.Duration)
	require.Equal(t, uint64(42161), cfg.Chains[1].ChainID)

	// Defaults fill the rest.
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, 168*time.Hour, cfg.Reconciler.Window.Duration)
	require.Equal(t, time.Hour, cfg.Reconciler.MinRootAge.Duration)
	require.Equal(t, 5*time.Minute, cfg.Watcher.CheckInterval.Duration)
	require.False(t, cfg.Executor.Enabled)
	require.Equal(t, 3, cfg.Executor.MaxAttempts)
	require.Equal(t, "/tmp/reconciler/executor.sqlite", cfg.Executor.DBPath)
}

func TestLoadOverridesDefaults(t *testing.T) {
	override := `
[Reconciler]
Window = "24h"
`
	cfg, err := LoadFiles([]FileData{
		{Name: "chains", Content: testChains},
		{Name: "override", Content: override},
	}, "")
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, cfg.Reconciler.Window.Duration)
	// Sibling defaults survive the override.
	require.Equal(t, time.Hour, cfg.Reconciler.MinRootAge.Duration)
}

func TestLoadRejectsDuplicatedChain(t *testing.T) {
	dup := strings.ReplaceAll(testChains, "ChainID = 42161", "ChainID = 1")
	_, err := LoadFiles([]FileData{{Name: "chains", Content: dup}}, "")
	require.ErrorContains(t, err, "duplicated chain")
}

func TestLoadRejectsUnknownOrigin(t *testing.T) {
	bad := strings.ReplaceAll(testChains, "OriginChainID = 1", "OriginChainID = 5")
	_, err := LoadFiles([]FileData{{Name: "chains", Content: bad}}, "")
	require.ErrorContains(t, err, "OriginChainID")
}

func TestLoadRejectsMissingChains(t *testing.T) {
	_, err := LoadFiles(nil, "")
	require.ErrorContains(t, err, "no chains configured")
}

func TestChainLookup(t *testing.T) {
	cfg, err := LoadFiles([]FileData{{Name: "chains", Content: testChains}}, "")
	require.NoError(t, err)

	chain, ok := cfg.Chain(42161)
	require.True(t, ok)
	require.Equal(t, "http://localhost:8546", chain.RPCURL)

	_, ok = cfg.Chain(999)
	require.False(t, ok)
}

func TestSaveConfigToString(t *testing.T) {
	cfg, err := LoadFiles([]FileData{{Name: "chains", Content: testChains}}, "")
	require.NoError(t, err)

	rendered, err := SaveConfigToString(*cfg)
	require.NoError(t, err)
	require.Contains(t, rendered, "OriginChainID = 1")
}