package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onKeyAdded          []OnKeyAdded
	onKeyRemoved        []OnKeyRemoved
	onCallRecorded      []OnCallRecorded
	onCallDenied        []OnCallDenied
	onAccountsLoaded    []OnAccountsLoaded
	onCheckpointFlushed []OnCheckpointFlushed
	onNodeOnline        []OnNodeOnline
	onNodeOffline       []OnNodeOffline
	onAllNodesOffline   []OnAllNodesOffline
	onRouterOnline      []OnRouterOnline
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger = logger
	return r
}

// Register adds a plugin and caches the hook interfaces it implements.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnKeyAdded); ok {
		r.onKeyAdded = append(r.onKeyAdded, v)
	}
	if v, ok := p.(OnKeyRemoved); ok {
		r.onKeyRemoved = append(r.onKeyRemoved, v)
	}
	if v, ok := p.(OnCallRecorded); ok {
		r.onCallRecorded = append(r.onCallRecorded, v)
	}
	if v, ok := p.(OnCallDenied); ok {
		r.onCallDenied = append(r.onCallDenied, v)
	}
	if v, ok := p.(OnAccountsLoaded); ok {
		r.onAccountsLoaded = append(r.onAccountsLoaded, v)
	}
	if v, ok := p.(OnCheckpointFlushed); ok {
		r.onCheckpointFlushed = append(r.onCheckpointFlushed, v)
	}
	if v, ok := p.(OnNodeOnline); ok {
		r.onNodeOnline = append(r.onNodeOnline, v)
	}
	if v, ok := p.(OnNodeOffline); ok {
		r.onNodeOffline = append(r.onNodeOffline, v)
	}
	if v, ok := p.(OnAllNodesOffline); ok {
		r.onAllNodesOffline = append(r.onAllNodesOffline, v)
	}
	if v, ok := p.(OnRouterOnline); ok {
		r.onRouterOnline = append(r.onRouterOnline, v)
	}

	return nil
}

// Plugins returns the registered plugins.
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, gw interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, gw)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitKeyAdded emits a key provisioned event.
func (r *Registry) EmitKeyAdded(ctx context.Context, token string) {
	r.mu.RLock()
	plugins := r.onKeyAdded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnKeyAdded(ctx, token)
		}); err != nil {
			r.logger.Warn("plugin OnKeyAdded failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitKeyRemoved emits a key revoked event.
func (r *Registry) EmitKeyRemoved(ctx context.Context, token string) {
	r.mu.RLock()
	plugins := r.onKeyRemoved
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnKeyRemoved(ctx, token)
		}); err != nil {
			r.logger.Warn("plugin OnKeyRemoved failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitCallRecorded emits a call accounted event.
func (r *Registry) EmitCallRecorded(ctx context.Context, token, method string) {
	r.mu.RLock()
	plugins := r.onCallRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCallRecorded(ctx, token, method)
		}); err != nil {
			r.logger.Warn("plugin OnCallRecorded failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitCallDenied emits a request refused event.
func (r *Registry) EmitCallDenied(ctx context.Context, token, method, reason string) {
	r.mu.RLock()
	plugins := r.onCallDenied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCallDenied(ctx, token, method, reason)
		}); err != nil {
			r.logger.Warn("plugin OnCallDenied failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitAccountsLoaded emits the startup reconciliation event.
func (r *Registry) EmitAccountsLoaded(ctx context.Context, count int) {
	r.mu.RLock()
	plugins := r.onAccountsLoaded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAccountsLoaded(ctx, count)
		}); err != nil {
			r.logger.Warn("plugin OnAccountsLoaded failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitCheckpointFlushed emits a checkpoint pass event.
func (r *Registry) EmitCheckpointFlushed(ctx context.Context, accounts, failed int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onCheckpointFlushed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCheckpointFlushed(ctx, accounts, failed, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnCheckpointFlushed failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitNodeOnline emits a node back up event.
func (r *Registry) EmitNodeOnline(ctx context.Context, url string) {
	r.mu.RLock()
	plugins := r.onNodeOnline
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnNodeOnline(ctx, url)
		}); err != nil {
			r.logger.Warn("plugin OnNodeOnline failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitNodeOffline emits a node down event.
func (r *Registry) EmitNodeOffline(ctx context.Context, url string) {
	r.mu.RLock()
	plugins := r.onNodeOffline
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnNodeOffline(ctx, url)
		}); err != nil {
			r.logger.Warn("plugin OnNodeOffline failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitAllNodesOffline emits an all-nodes-down event.
func (r *Registry) EmitAllNodesOffline(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onAllNodesOffline
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAllNodesOffline(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnAllNodesOffline failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitRouterOnline emits a router ready event.
func (r *Registry) EmitRouterOnline(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onRouterOnline
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRouterOnline(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnRouterOnline failed", "plugin", p.Name(), "error", err)
		}
	}
}

// callWithTimeout runs fn, bounding a misbehaving plugin.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
