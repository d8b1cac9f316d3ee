package extension

import "time"

// Config holds the Turnstile extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.turnstile" or "turnstile"
// keys).
type Config struct {
	// Nodes are the backend node URLs the gateway forwards to. Used to
	// build the default upstream router when none is provided
	// programmatically.
	Nodes []string `json:"nodes" mapstructure:"nodes" yaml:"nodes"`

	// FlushInterval is how often the ledger is checkpointed to durable
	// storage (default: 15m).
	FlushInterval time.Duration `json:"flush_interval" mapstructure:"flush_interval" yaml:"flush_interval"`

	// PrivilegedPrefix marks methods the gateway refuses to forward
	// (default: "engine_").
	PrivilegedPrefix string `json:"privileged_prefix" mapstructure:"privileged_prefix" yaml:"privileged_prefix"`

	// AdminSecret is the shared secret for admin operations. Empty
	// leaves the admin surface disabled.
	AdminSecret string `json:"admin_secret" mapstructure:"admin_secret" yaml:"admin_secret"`

	// FailFast aborts startup when the initial load from durable
	// storage fails, instead of degrading to an empty ledger.
	FailFast bool `json:"fail_fast" mapstructure:"fail_fast" yaml:"fail_fast"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		FlushInterval:    15 * time.Minute,
		PrivilegedPrefix: "engine_",
	}
}
