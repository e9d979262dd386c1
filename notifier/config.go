package notifier

import (
	"github.com/hopnetwork/reconciler/config/types"
)

// Config is the configuration of alert delivery.
type Config struct {
	// WebhookURL receives every alert as a JSON POST. Empty means alerts are
	// only logged
	WebhookURL string `mapstructure:"WebhookURL"`
	// Timeout is the HTTP timeout of a webhook delivery
	Timeout types.Duration `mapstructure:"Timeout"`
}
