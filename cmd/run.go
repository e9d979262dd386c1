package cmd

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hopnetwork/reconciler/bridge"
	hopCommon "github.com/hopnetwork/reconciler/common"
	"github.com/hopnetwork/reconciler/config"
	"github.com/hopnetwork/reconciler/etherman"
	"github.com/hopnetwork/reconciler/executor"
	"github.com/hopnetwork/reconciler/log"
	"github.com/hopnetwork/reconciler/merkle"
	"github.com/hopnetwork/reconciler/notifier"
	"github.com/hopnetwork/reconciler/reconciler"
	"github.com/hopnetwork/reconciler/transfersync"
	"github.com/hopnetwork/reconciler/version"
	"github.com/hopnetwork/reconciler/watcher"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// chainSet is everything run and report build per configured chain.
type chainSet struct {
	clients map[uint64]*ethclient.Client
	syncers map[uint64]*transfersync.TransferSync
	bridges map[uint64]*bridge.Contract
}

func RunCmd(cliCtx *cli.Context) error {
	c, err := config.Load(cliCtx)
	if err != nil {
		return err
	}
	log.Init(c.Log)
	if c.Log.Environment == log.EnvironmentDevelopment {
		version.PrintVersion(os.Stdout)
	}
	components := cliCtx.StringSlice(config.FlagComponents)
	log.Infof("starting %s, components: %v", cliCtx.App.Name, components)
	if c.Token != "" {
		log.Infof("watching the %s bridge deployment on %d chains", c.Token, len(c.Chains))
	}

	ctx, cancel := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	chains, err := createChains(ctx, c)
	if err != nil {
		return err
	}
	engine := createEngine(c, chains)

	g, ctx := errgroup.WithContext(ctx)
	if isNeeded(components, hopCommon.TRANSFER_SYNC) {
		for _, syncer := range chains.syncers {
			syncer := syncer
			g.Go(func() error { return syncer.Start(ctx) })
		}
	}

	var enqueuer watcher.ActionEnqueuer
	if isNeeded(components, hopCommon.EXECUTOR) && c.Executor.Enabled {
		exec, err := createExecutor(c, chains)
		if err != nil {
			return err
		}
		enqueuer = exec
		g.Go(func() error { return exec.Start(ctx) })
	}

	if isNeeded(components, hopCommon.WATCHER) {
		scheduler, err := createWatcher(c, chains, engine, enqueuer)
		if err != nil {
			return err
		}
		g.Go(func() error { return scheduler.Start(ctx) })
	}

	return g.Wait()
}

func isNeeded(components []string, component string) bool {
	for _, c := range components {
		if c == component {
			return true
		}
	}
	return false
}

func createChains(ctx context.Context, c *config.Config) (*chainSet, error) {
	chains := &chainSet{
		clients: make(map[uint64]*ethclient.Client, len(c.Chains)),
		syncers: make(map[uint64]*transfersync.TransferSync, len(c.Chains)),
		bridges: make(map[uint64]*bridge.Contract, len(c.Chains)),
	}
	for _, chain := range c.Chains {
		client, err := ethclient.Dial(chain.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to chain %d at %s: %w", chain.ChainID, chain.RPCURL, err)
		}
		syncer, err := transfersync.New(
			ctx,
			chain.DBPath,
			chain.ChainID,
			chain.BridgeAddr,
			chain.SyncBlockChunkSize,
			etherman.BlockNumberFinality(chain.BlockFinality),
			client,
			chain.InitialBlockNum,
			chain.WaitForNewBlocksPeriod.Duration,
			chain.RetryAfterErrorPeriod.Duration,
			chain.MaxRetryAttemptsAfterError,
			chain.RPCTimeout.Duration,
		)
		if err != nil {
			return nil, fmt.Errorf("creating syncer for chain %d: %w", chain.ChainID, err)
		}
		chains.clients[chain.ChainID] = client
		chains.syncers[chain.ChainID] = syncer
		chains.bridges[chain.ChainID] = bridge.NewContract(chain.BridgeAddr, client, chain.RPCTimeout.Duration)
	}
	return chains, nil
}

func createEngine(c *config.Config, chains *chainSet) *reconciler.Engine {
	engineChains := make(map[uint64]reconciler.Chain, len(chains.syncers))
	for chainID, syncer := range chains.syncers {
		engineChains[chainID] = reconciler.Chain{
			Source:      syncer,
			Destination: syncer,
			Bridge:      chains.bridges[chainID],
		}
	}
	return reconciler.NewEngine(engineChains, c.Reconciler.MinRootAge.Duration)
}

func createExecutor(c *config.Config, chains *chainSet) (*executor.Executor, error) {
	keys := make(map[string]*ecdsa.PrivateKey, len(c.Executor.Signers))
	for _, signer := range c.Executor.Signers {
		key, err := executor.NewKeyFromKeystore(signer.Keystore)
		if err != nil {
			return nil, err
		}
		if key == nil {
			return nil, fmt.Errorf("signer group %s has no keystore configured", signer.Group)
		}
		keys[signer.Group] = key
	}
	clients := make(map[uint64]executor.EthereumClient, len(chains.clients))
	for chainID, client := range chains.clients {
		clients[chainID] = client
	}
	sender := executor.NewEthSender(clients, keys, c.Executor.RPCTimeout.Duration)
	preconditions := map[string]executor.Precondition{
		"challenge": challengePrecondition(chains.bridges[c.OriginChainID]),
		"settle":    settlePrecondition(chains.bridges),
	}
	return executor.New(
		c.Executor.DBPath,
		sender,
		preconditions,
		c.Executor.SignerGroups(),
		c.Executor.MaxAttempts,
		c.Executor.RetryDelay.Duration,
		c.Executor.WaitOnEmptyQueue.Duration,
	)
}

// challengePrecondition drops a queued challenge when the bond turned out to
// be legitimate, is already challenged, or does not exist for the claimed
// destination chain.
func challengePrecondition(originBridge *bridge.Contract) executor.Precondition {
	return func(ctx context.Context, action *executor.Action) (bool, error) {
		call, err := bridge.DecodeChallengeTransferRootBond(action.Data)
		if err != nil {
			return false, err
		}
		rootID := hopCommon.TransferRootID(call.RootHash, call.OriginalAmount)
		committedAt, err := originBridge.GetTransferRootCommittedAt(ctx, call.DestinationChainID, rootID)
		if err != nil {
			return false, err
		}
		if committedAt != 0 {
			// The commit arrived, the bond is legitimate.
			return false, nil
		}
		bond, err := originBridge.GetTransferBond(ctx, rootID)
		if err != nil {
			return false, err
		}
		if bond.CreatedAt == nil || bond.CreatedAt.Sign() == 0 {
			// No bond under this (root, amount, chain) tuple. The bond claims
			// a different destination, another queued candidate covers it.
			return false, nil
		}
		if bond.ChallengeStartTime != nil && bond.ChallengeStartTime.Sign() != 0 {
			return false, nil
		}
		return true, nil
	}
}

// settlePrecondition drops a queued settlement once the on-chain accounting
// shows the root fully withdrawn. A root not set at the destination yet is
// an error so the action stays queued until it becomes settleable.
func settlePrecondition(bridges map[uint64]*bridge.Contract) executor.Precondition {
	return func(ctx context.Context, action *executor.Action) (bool, error) {
		destBridge, ok := bridges[action.ChainID]
		if !ok {
			return false, fmt.Errorf("no bridge for chain %d", action.ChainID)
		}
		call, err := bridge.DecodeSettleBondedWithdrawals(action.Data)
		if err != nil {
			return false, err
		}
		rootHash, err := merkle.RootOf(call.TransferIDs)
		if err != nil {
			return false, err
		}
		root, err := destBridge.GetTransferRoot(ctx, rootHash, call.TotalAmount)
		if err != nil {
			return false, err
		}
		if root.CreatedAt == nil || root.CreatedAt.Sign() == 0 {
			return false, fmt.Errorf("root %s not set at destination %d yet", rootHash, action.ChainID)
		}
		if root.AmountWithdrawn != nil && root.AmountWithdrawn.Cmp(root.Total) >= 0 {
			return false, nil
		}
		return true, nil
	}
}

func createWatcher(
	c *config.Config,
	chains *chainSet,
	engine *reconciler.Engine,
	enqueuer watcher.ActionEnqueuer,
) (*watcher.Scheduler, error) {
	originChain, ok := c.Chain(c.OriginChainID)
	if !ok {
		return nil, fmt.Errorf("origin chain %d is not configured", c.OriginChainID)
	}
	origin := chains.syncers[c.OriginChainID]

	chainIDs := make([]uint64, 0, len(c.Chains))
	rootLookups := make(map[uint64]watcher.RootLookup, len(c.Chains))
	windows := make(map[uint64]watcher.SourceWindowReader, len(c.Chains))
	states := make(map[uint64]watcher.DestinationStateReader, len(c.Chains))
	targets := make(map[uint64]watcher.SettlementTarget, len(c.Chains))
	for _, chain := range c.Chains {
		syncer := chains.syncers[chain.ChainID]
		chainIDs = append(chainIDs, chain.ChainID)
		rootLookups[chain.ChainID] = syncer
		windows[chain.ChainID] = syncer
		states[chain.ChainID] = syncer
		targets[chain.ChainID] = watcher.SettlementTarget{
			BridgeAddr: chain.BridgeAddr,
			State:      syncer,
		}
	}
	if !c.Watcher.EnqueueActions {
		enqueuer = nil
	}

	checks := []watcher.Check{
		&watcher.ChallengeCheck{
			Origin:        origin,
			Sources:       rootLookups,
			Enqueuer:      enqueuer,
			OriginChainID: c.OriginChainID,
			OriginBridge:  originChain.BridgeAddr,
			Lookback:      c.Watcher.ChallengeLookback.Duration,
			MinAge:        c.Watcher.ChallengeMinAge.Duration,
		},
		&watcher.SettlementCheck{
			Engine:       engine,
			Sources:      rootLookups,
			Destinations: targets,
			Enqueuer:     enqueuer,
			Lookback:     c.Watcher.SettlementLookback.Duration,
		},
		&watcher.BondTimelinessCheck{
			Sources:      windows,
			Destinations: states,
			Lookback:     c.Watcher.BondLookback.Duration,
			MinAge:       c.Watcher.BondMinAge.Duration,
		},
		&watcher.UnbondedRootCheck{
			Origin:   origin,
			Sources:  windows,
			Lookback: c.Watcher.RootLookback.Duration,
			MinAge:   c.Watcher.RootMinAge.Duration,
		},
		&watcher.CommitThresholdCheck{
			Sources:             windows,
			ChainIDs:            chainIDs,
			MaxPendingTransfers: c.Watcher.MaxPendingTransfers,
			MaxPendingAge:       c.Watcher.MaxPendingAge.Duration,
		},
	}

	var n notifier.Notifier
	if c.Notifier.WebhookURL != "" {
		n = notifier.NewWebhook(c.Notifier.WebhookURL, c.Notifier.Timeout.Duration)
	} else {
		n = notifier.NewLogNotifier()
	}
	return watcher.NewScheduler(checks, n, c.Watcher.CheckInterval.Duration), nil
}
