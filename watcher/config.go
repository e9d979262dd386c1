package watcher

import (
	"github.com/hopnetwork/reconciler/config/types"
)

// Config is the configuration of the watcher scheduler and its checks.
type Config struct {
	// CheckInterval is the period between two passes over all checks
	CheckInterval types.Duration `mapstructure:"CheckInterval"`
	// EnqueueActions enables queueing remediation transactions (challenges,
	// settlements) for the findings that support it. With it disabled the
	// watcher only alerts
	EnqueueActions bool `mapstructure:"EnqueueActions"`

	// ChallengeLookback bounds how far back origin chain bonds are inspected
	ChallengeLookback types.Duration `mapstructure:"ChallengeLookback"`
	// ChallengeMinAge is how long a bond can stay uncommitted before it is
	// considered fraudulent. It must leave the source syncers time to observe
	// the commit
	ChallengeMinAge types.Duration `mapstructure:"ChallengeMinAge"`

	// SettlementLookback is the reconciliation window of the settlement check
	SettlementLookback types.Duration `mapstructure:"SettlementLookback"`

	// BondLookback bounds how far back sent transfers are inspected
	BondLookback types.Duration `mapstructure:"BondLookback"`
	// BondMinAge is how long a transfer can stay neither bonded nor withdrawn
	// before it is flagged
	BondMinAge types.Duration `mapstructure:"BondMinAge"`

	// RootLookback bounds how far back committed roots are inspected
	RootLookback types.Duration `mapstructure:"RootLookback"`
	// RootMinAge is how long a committed root can stay neither bonded nor
	// confirmed on the origin chain before it is flagged
	RootMinAge types.Duration `mapstructure:"RootMinAge"`

	// MaxPendingTransfers is the number of transfers pending commit on a
	// route that triggers the commit overdue alert. Zero disables the count
	// threshold
	MaxPendingTransfers int `mapstructure:"MaxPendingTransfers"`
	// MaxPendingAge is the age of the oldest transfer pending commit that
	// triggers the commit overdue alert. Zero disables the age threshold
	MaxPendingAge types.Duration `mapstructure:"MaxPendingAge"`
}
