// Package audithook bridges Turnstile lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import a
// concrete audit backend directly. Callers inject a RecorderFunc adapter
// that bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/turnstile/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnKeyAdded          = (*Extension)(nil)
	_ plugin.OnKeyRemoved        = (*Extension)(nil)
	_ plugin.OnCallDenied        = (*Extension)(nil)
	_ plugin.OnAccountsLoaded    = (*Extension)(nil)
	_ plugin.OnCheckpointFlushed = (*Extension)(nil)
	_ plugin.OnNodeOnline        = (*Extension)(nil)
	_ plugin.OnNodeOffline       = (*Extension)(nil)
	_ plugin.OnAllNodesOffline   = (*Extension)(nil)
	_ plugin.OnRouterOnline      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so that the audit_hook package does not depend on
// any particular audit module — callers inject the concrete backend at
// wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Turnstile lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Key lifecycle hooks
// ──────────────────────────────────────────────────

// OnKeyAdded implements plugin.OnKeyAdded.
func (e *Extension) OnKeyAdded(ctx context.Context, token string) error {
	return e.record(ctx, ActionKeyAdded, SeverityInfo, OutcomeSuccess,
		ResourceKey, token, CategoryAdmin, nil,
		"token", token,
	)
}

// OnKeyRemoved implements plugin.OnKeyRemoved.
func (e *Extension) OnKeyRemoved(ctx context.Context, token string) error {
	return e.record(ctx, ActionKeyRemoved, SeverityWarning, OutcomeSuccess,
		ResourceKey, token, CategoryAdmin, nil,
		"token", token,
	)
}

// ──────────────────────────────────────────────────
// Call hooks
// ──────────────────────────────────────────────────

// OnCallDenied implements plugin.OnCallDenied.
// Recorded calls are not audited to keep the trail proportional to
// unusual activity rather than traffic volume.
func (e *Extension) OnCallDenied(ctx context.Context, token, method, reason string) error {
	return e.record(ctx, ActionCallDenied, SeverityWarning, OutcomeFailure,
		ResourceCall, token, CategoryAccess, nil,
		"token", token,
		"method", method,
		"deny_reason", reason,
	)
}

// ──────────────────────────────────────────────────
// Checkpoint hooks
// ──────────────────────────────────────────────────

// OnAccountsLoaded implements plugin.OnAccountsLoaded.
func (e *Extension) OnAccountsLoaded(ctx context.Context, count int) error {
	return e.record(ctx, ActionAccountsLoaded, SeverityInfo, OutcomeSuccess,
		ResourceCheckpoint, "", CategoryAccounting, nil,
		"accounts", count,
	)
}

// OnCheckpointFlushed implements plugin.OnCheckpointFlushed.
func (e *Extension) OnCheckpointFlushed(ctx context.Context, accounts, failed int, elapsed time.Duration) error {
	outcome := OutcomeSuccess
	severity := SeverityInfo
	if failed > 0 {
		outcome = OutcomePartial
		severity = SeverityWarning
	}
	return e.record(ctx, ActionCheckpointFlushed, severity, outcome,
		ResourceCheckpoint, "", CategoryAccounting, nil,
		"accounts", accounts,
		"failed", failed,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Router liveness hooks
// ──────────────────────────────────────────────────

// OnNodeOnline implements plugin.OnNodeOnline.
func (e *Extension) OnNodeOnline(ctx context.Context, url string) error {
	return e.record(ctx, ActionNodeOnline, SeverityInfo, OutcomeSuccess,
		ResourceNode, url, CategoryRouting, nil,
		"node", url,
	)
}

// OnNodeOffline implements plugin.OnNodeOffline.
func (e *Extension) OnNodeOffline(ctx context.Context, url string) error {
	return e.record(ctx, ActionNodeOffline, SeverityWarning, OutcomeFailure,
		ResourceNode, url, CategoryRouting, nil,
		"node", url,
	)
}

// OnAllNodesOffline implements plugin.OnAllNodesOffline.
func (e *Extension) OnAllNodesOffline(ctx context.Context) error {
	return e.record(ctx, ActionAllNodesOffline, SeverityCritical, OutcomeFailure,
		ResourceRouter, "", CategoryRouting, nil,
		"event", "all_nodes_offline",
	)
}

// OnRouterOnline implements plugin.OnRouterOnline.
func (e *Extension) OnRouterOnline(ctx context.Context) error {
	return e.record(ctx, ActionRouterOnline, SeverityInfo, OutcomeSuccess,
		ResourceRouter, "", CategoryRouting, nil,
		"event", "router_online",
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
