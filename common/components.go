package common

const (
	// WATCHER name to identify the watcher-scheduler component
	WATCHER = "watcher"
	// EXECUTOR name to identify the action-executor component
	EXECUTOR = "executor"
	// TRANSFER_SYNC name to identify the per chain event syncers
	TRANSFER_SYNC = "transfer-sync" //nolint:stylecheck
)
