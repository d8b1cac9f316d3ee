// Package plugin provides an extensible plugin system for Turnstile.
// Plugins can hook into gateway lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, gw interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Key lifecycle hooks
// ──────────────────────────────────────────────────

// OnKeyAdded is called when a new API key is provisioned.
type OnKeyAdded interface {
	Plugin
	OnKeyAdded(ctx context.Context, token string) error
}

// OnKeyRemoved is called when an API key is revoked.
type OnKeyRemoved interface {
	Plugin
	OnKeyRemoved(ctx context.Context, token string) error
}

// ──────────────────────────────────────────────────
// Accounting hooks
// ──────────────────────────────────────────────────

// OnCallRecorded is called after a proxied call is counted against a key.
type OnCallRecorded interface {
	Plugin
	OnCallRecorded(ctx context.Context, token, method string) error
}

// OnCallDenied is called when a request is refused before routing:
// unknown token, missing method, or privileged method.
type OnCallDenied interface {
	Plugin
	OnCallDenied(ctx context.Context, token, method, reason string) error
}

// ──────────────────────────────────────────────────
// Checkpoint hooks
// ──────────────────────────────────────────────────

// OnAccountsLoaded is called after the startup reconciliation from
// durable storage.
type OnAccountsLoaded interface {
	Plugin
	OnAccountsLoaded(ctx context.Context, count int) error
}

// OnCheckpointFlushed is called after each checkpoint pass, scheduled or
// final. failed counts the accounts whose upsert was rejected.
type OnCheckpointFlushed interface {
	Plugin
	OnCheckpointFlushed(ctx context.Context, accounts, failed int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Router liveness hooks
// ──────────────────────────────────────────────────

// OnNodeOnline is called when the external router reports a node back up.
type OnNodeOnline interface {
	Plugin
	OnNodeOnline(ctx context.Context, url string) error
}

// OnNodeOffline is called when the external router reports a node down.
type OnNodeOffline interface {
	Plugin
	OnNodeOffline(ctx context.Context, url string) error
}

// OnAllNodesOffline is called when no backend node is alive.
type OnAllNodesOffline interface {
	Plugin
	OnAllNodesOffline(ctx context.Context) error
}

// OnRouterOnline is called once the external router reports ready.
type OnRouterOnline interface {
	Plugin
	OnRouterOnline(ctx context.Context) error
}
