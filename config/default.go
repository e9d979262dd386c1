package config

// DefaultVars are not config fields, they exist to avoid repetition in the
// config files. They can be overridden from the config file or from the
// environment (RECONCILER_PathRWData=...).
const DefaultVars = `
PathRWData = "/tmp/reconciler"

`

// DefaultValues is the default configuration.
const DefaultValues = `
# Token labels the bridge deployment this instance watches (one deployment
# per token). Informational, shows up in logs
Token = ""

# OriginChainID identifies the chain that carries the root lifecycle
# (bonds, confirmations, challenges). It must be one of the configured chains
OriginChainID = 1

[Log]
  Environment = "development" # "production" or "development"
  Level = "info"
  Outputs = ["stderr"]

[Reconciler]
  # How far back committed roots are reconciled
  Window = "168h"
  # Roots younger than this are never flagged incomplete, settlement
  # normally lags the commit
  MinRootAge = "1h"

[Watcher]
  CheckInterval = "5m"
  EnqueueActions = false
  ChallengeLookback = "720h"
  ChallengeMinAge = "1h"
  SettlementLookback = "168h"
  BondLookback = "48h"
  BondMinAge = "2h"
  RootLookback = "168h"
  RootMinAge = "6h"
  MaxPendingTransfers = 100
  MaxPendingAge = "4h"

[Executor]
  Enabled = false
  DBPath = "{{PathRWData}}/executor.sqlite"
  MaxAttempts = 3
  RetryDelay = "15s"
  RPCTimeout = "15s"
  WaitOnEmptyQueue = "10s"

[Notifier]
  WebhookURL = ""
  Timeout = "10s"
`
