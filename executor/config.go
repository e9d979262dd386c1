package executor

import (
	"github.com/hopnetwork/reconciler/config/types"
)

// SignerConfig binds a signer group to the key that signs its transactions.
// Actions of the same group are processed one at a time so the nonce of the
// key never races.
type SignerConfig struct {
	// Group is the signer group name ("challenger", "settler")
	Group string `mapstructure:"Group"`
	// Keystore is the key store file of the signing key
	Keystore types.KeystoreFileConfig `mapstructure:"Keystore"`
}

// Config is the configuration of the action executor.
type Config struct {
	// Enabled starts the executor workers. With it disabled actions can
	// still be queued but nothing submits them
	Enabled bool `mapstructure:"Enabled"`
	// DBPath path of the DB
	DBPath string `mapstructure:"DBPath"`
	// MaxAttempts is how many times a submission is attempted before the
	// action is marked failed
	MaxAttempts int `mapstructure:"MaxAttempts"`
	// RetryDelay is the initial wait between submission attempts, grown
	// exponentially on each failure
	RetryDelay types.Duration `mapstructure:"RetryDelay"`
	// RPCTimeout bounds every single call to the RPC node. Zero means the
	// default of 15s
	RPCTimeout types.Duration `mapstructure:"RPCTimeout"`
	// WaitOnEmptyQueue is the poll period of a worker when its queue is empty
	WaitOnEmptyQueue types.Duration `mapstructure:"WaitOnEmptyQueue"`
	// Signers are the signer groups and their keys
	Signers []SignerConfig `mapstructure:"Signers"`
}

// SignerGroups returns the group names in config order.
func (c Config) SignerGroups() []string {
	groups := make([]string, 0, len(c.Signers))
	for _, s := range c.Signers {
		groups = append(groups, s.Group)
	}
	return groups
}
