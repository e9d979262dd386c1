package reconciler

import (
	"github.com/hopnetwork/reconciler/config/types"
)

// Config is the configuration of the reconciliation engine.
type Config struct {
	// Window is how far back from now committed roots are reconciled
	Window types.Duration `mapstructure:"Window"`
	// MinRootAge is the minimum age a committed root must have before it can
	// be flagged as incomplete. Younger roots are still within the normal
	// propagation and settlement delay
	MinRootAge types.Duration `mapstructure:"MinRootAge"`
}
