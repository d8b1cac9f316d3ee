package extension

import (
	"time"

	turnstile "github.com/xraph/turnstile"
	"github.com/xraph/turnstile/plugin"
	"github.com/xraph/turnstile/router"
	"github.com/xraph/turnstile/store"
)

// Option configures the Turnstile Forge extension.
type Option func(*Extension)

// WithStore sets the store for the gateway.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithRouter sets the upstream router for the gateway.
func WithRouter(r router.Router) Option {
	return func(e *Extension) {
		e.router = r
	}
}

// WithGatewayOption passes a turnstile.Option through to the underlying
// gateway.
func WithGatewayOption(opt turnstile.Option) Option {
	return func(e *Extension) {
		e.gatewayOpts = append(e.gatewayOpts, opt)
	}
}

// WithPlugin registers a gateway plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.gatewayOpts = append(e.gatewayOpts, turnstile.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithNodes sets the backend node URLs.
func WithNodes(nodes ...string) Option {
	return func(e *Extension) { e.config.Nodes = nodes }
}

// WithFlushInterval sets the checkpoint interval.
func WithFlushInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.FlushInterval = d }
}

// WithPrivilegedPrefix sets the refused method prefix.
func WithPrivilegedPrefix(prefix string) Option {
	return func(e *Extension) { e.config.PrivilegedPrefix = prefix }
}

// WithAdminSecret sets the shared secret for admin operations.
func WithAdminSecret(secret string) Option {
	return func(e *Extension) { e.config.AdminSecret = secret }
}

// WithFailFast aborts startup when the initial load fails.
func WithFailFast() Option {
	return func(e *Extension) { e.config.FailFast = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
