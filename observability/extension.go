// Package observability provides a metrics extension for Turnstile that
// records lifecycle event counts via a caller-supplied MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/turnstile/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnKeyAdded          = (*MetricsExtension)(nil)
	_ plugin.OnKeyRemoved        = (*MetricsExtension)(nil)
	_ plugin.OnCallRecorded      = (*MetricsExtension)(nil)
	_ plugin.OnCallDenied        = (*MetricsExtension)(nil)
	_ plugin.OnAccountsLoaded    = (*MetricsExtension)(nil)
	_ plugin.OnCheckpointFlushed = (*MetricsExtension)(nil)
	_ plugin.OnNodeOnline        = (*MetricsExtension)(nil)
	_ plugin.OnNodeOffline       = (*MetricsExtension)(nil)
	_ plugin.OnAllNodesOffline   = (*MetricsExtension)(nil)
	_ plugin.OnRouterOnline      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Turnstile plugin to automatically track gateway metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Key metrics
	KeysAdded   Counter
	KeysRemoved Counter

	// Call metrics
	CallsRecorded Counter
	CallsDenied   Counter

	// Checkpoint metrics
	AccountsLoaded     Counter
	CheckpointAccounts Histogram
	CheckpointFailures Counter
	CheckpointLatency  Histogram

	// Router metrics
	NodesOnline     Counter
	NodesOffline    Counter
	AllNodesOffline Counter
	RouterOnline    Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Key metrics
		KeysAdded:   factory.Counter("turnstile.key.added"),
		KeysRemoved: factory.Counter("turnstile.key.removed"),

		// Call metrics
		CallsRecorded: factory.Counter("turnstile.call.recorded"),
		CallsDenied:   factory.Counter("turnstile.call.denied"),

		// Checkpoint metrics
		AccountsLoaded:     factory.Counter("turnstile.checkpoint.loaded"),
		CheckpointAccounts: factory.Histogram("turnstile.checkpoint.accounts"),
		CheckpointFailures: factory.Counter("turnstile.checkpoint.failures"),
		CheckpointLatency:  factory.Histogram("turnstile.checkpoint.latency_ms"),

		// Router metrics
		NodesOnline:     factory.Counter("turnstile.node.online"),
		NodesOffline:    factory.Counter("turnstile.node.offline"),
		AllNodesOffline: factory.Counter("turnstile.node.all_offline"),
		RouterOnline:    factory.Counter("turnstile.router.online"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Key lifecycle hooks
// ──────────────────────────────────────────────────

// OnKeyAdded implements plugin.OnKeyAdded.
func (m *MetricsExtension) OnKeyAdded(_ context.Context, _ string) error {
	m.KeysAdded.Inc()
	return nil
}

// OnKeyRemoved implements plugin.OnKeyRemoved.
func (m *MetricsExtension) OnKeyRemoved(_ context.Context, _ string) error {
	m.KeysRemoved.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Call hooks
// ──────────────────────────────────────────────────

// OnCallRecorded implements plugin.OnCallRecorded.
func (m *MetricsExtension) OnCallRecorded(_ context.Context, _, _ string) error {
	m.CallsRecorded.Inc()
	return nil
}

// OnCallDenied implements plugin.OnCallDenied.
func (m *MetricsExtension) OnCallDenied(_ context.Context, _, _, _ string) error {
	m.CallsDenied.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Checkpoint hooks
// ──────────────────────────────────────────────────

// OnAccountsLoaded implements plugin.OnAccountsLoaded.
func (m *MetricsExtension) OnAccountsLoaded(_ context.Context, count int) error {
	m.AccountsLoaded.Add(float64(count))
	return nil
}

// OnCheckpointFlushed implements plugin.OnCheckpointFlushed.
func (m *MetricsExtension) OnCheckpointFlushed(_ context.Context, accounts, failed int, elapsed time.Duration) error {
	m.CheckpointAccounts.Observe(float64(accounts))
	if failed > 0 {
		m.CheckpointFailures.Add(float64(failed))
	}
	m.CheckpointLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Router liveness hooks
// ──────────────────────────────────────────────────

// OnNodeOnline implements plugin.OnNodeOnline.
func (m *MetricsExtension) OnNodeOnline(_ context.Context, _ string) error {
	m.NodesOnline.Inc()
	return nil
}

// OnNodeOffline implements plugin.OnNodeOffline.
func (m *MetricsExtension) OnNodeOffline(_ context.Context, _ string) error {
	m.NodesOffline.Inc()
	return nil
}

// OnAllNodesOffline implements plugin.OnAllNodesOffline.
func (m *MetricsExtension) OnAllNodesOffline(_ context.Context) error {
	m.AllNodesOffline.Inc()
	return nil
}

// OnRouterOnline implements plugin.OnRouterOnline.
func (m *MetricsExtension) OnRouterOnline(_ context.Context) error {
	m.RouterOnline.Inc()
	return nil
}
