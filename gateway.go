package turnstile

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xraph/turnstile/account"
	"github.com/xraph/turnstile/plugin"
	"github.com/xraph/turnstile/router"
	"github.com/xraph/turnstile/store"
)

// DefaultFlushInterval is how often the ledger is checkpointed to durable
// storage.
const DefaultFlushInterval = 15 * time.Minute

// DefaultPrivilegedPrefix marks methods reserved for the node operator.
// Requests naming such a method are refused before routing.
const DefaultPrivilegedPrefix = "engine_"

// StartupPolicy controls what happens when the initial load from durable
// storage fails.
type StartupPolicy int

const (
	// PolicyDegrade logs the failure and serves with an empty ledger.
	// Every existing key is refused until the store recovers and the
	// process restarts.
	PolicyDegrade StartupPolicy = iota

	// PolicyFailFast aborts Start on a load failure.
	PolicyFailFast
)

// Denial reasons reported to OnCallDenied plugins.
const (
	DenyUnauthorized     = "unauthorized"
	DenyMethodRequired   = "method_required"
	DenyMethodPrivileged = "method_privileged"
)

// Status is a point-in-time liveness report.
type Status struct {
	Alive   int `json:"alive"`
	Dead    int `json:"dead"`
	Clients int `json:"clients"`
}

// Gateway is the main request-routing engine. It authorizes calls against
// the in-memory ledger, forwards them through the router, and checkpoints
// usage to durable storage in the background.
type Gateway struct {
	store   store.Store
	router  router.Router
	ledger  *account.Ledger
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   Clock

	// Background worker
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Lifecycle
	mu      sync.Mutex
	started bool
	stopped bool

	// Configuration
	flushInterval    time.Duration
	privilegedPrefix string
	adminSecret      string
	startupPolicy    StartupPolicy
	skipMigrate      bool
}

// New creates a new Gateway instance.
func New(s store.Store, r router.Router, opts ...Option) *Gateway {
	g := &Gateway{
		store:            s,
		router:           r,
		ledger:           account.NewLedger(),
		plugins:          plugin.NewRegistry(),
		logger:           slog.Default(),
		clock:            SystemClock(),
		stopChan:         make(chan struct{}),
		flushInterval:    DefaultFlushInterval,
		privilegedPrefix: DefaultPrivilegedPrefix,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Option configures a Gateway instance.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
		g.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(g *Gateway) {
		_ = g.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithFlushInterval sets the checkpoint interval.
func WithFlushInterval(d time.Duration) Option {
	return func(g *Gateway) {
		g.flushInterval = d
	}
}

// WithPrivilegedPrefix sets the refused method prefix.
func WithPrivilegedPrefix(prefix string) Option {
	return func(g *Gateway) {
		g.privilegedPrefix = prefix
	}
}

// WithAdminSecret sets the shared secret for admin operations. An empty
// secret leaves the admin surface disabled.
func WithAdminSecret(secret string) Option {
	return func(g *Gateway) {
		g.adminSecret = secret
	}
}

// WithStartupPolicy sets the behavior when the initial load fails.
func WithStartupPolicy(p StartupPolicy) Option {
	return func(g *Gateway) {
		g.startupPolicy = p
	}
}

// WithSkipMigrate skips schema migration at Start, for deployments that
// manage the schema out of band.
func WithSkipMigrate() Option {
	return func(g *Gateway) {
		g.skipMigrate = true
	}
}

// WithClock sets the clock used by the checkpoint scheduler.
func WithClock(c Clock) Option {
	return func(g *Gateway) {
		g.clock = c
	}
}

// Start migrates the store, loads the ledger, brings up the router, and
// begins the checkpoint worker.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return ErrAlreadyStarted
	}
	g.started = true
	g.mu.Unlock()

	if err := g.loadLedger(ctx); err != nil {
		g.abortStart()
		return err
	}

	// Wire liveness events into the plugin registry when the router
	// supports it.
	if w, ok := g.router.(interface{ SetEvents(router.Events) }); ok {
		w.SetEvents(nodeEvents{g})
	}
	if err := g.router.Setup(ctx); err != nil {
		g.abortStart()
		return err
	}

	// Initialize plugins
	g.plugins.EmitInit(ctx, g)

	// Start checkpoint worker
	g.wg.Add(1)
	go g.checkpointWorker()

	g.logger.Info("gateway started",
		"clients", g.ledger.Len(),
		"flush_interval", g.flushInterval,
		"privileged_prefix", g.privilegedPrefix,
	)

	return nil
}

// abortStart rolls the lifecycle flag back so a failed Start can be
// retried.
func (g *Gateway) abortStart() {
	g.mu.Lock()
	g.started = false
	g.mu.Unlock()
}

// loadLedger migrates the schema and reconciles the ledger from durable
// storage, honoring the startup policy on failure.
func (g *Gateway) loadLedger(ctx context.Context) error {
	var err error
	if !g.skipMigrate {
		err = g.store.Migrate(ctx)
	}
	if err == nil {
		var accounts []*account.Account
		accounts, err = g.store.LoadAll(ctx)
		if err == nil {
			g.ledger.Load(accounts)
			g.plugins.EmitAccountsLoaded(ctx, len(accounts))
			return nil
		}
	}

	if g.startupPolicy == PolicyFailFast {
		return err
	}
	g.logger.Error("could not load accounts from store, serving with empty ledger", "error", err)
	return nil
}

// Stop shuts the gateway down: the checkpoint worker runs one final flush,
// then the router and store are closed. Callers stop accepting requests
// before calling Stop.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	if !g.started {
		g.mu.Unlock()
		return ErrNotStarted
	}
	if g.stopped {
		g.mu.Unlock()
		return nil
	}
	g.stopped = true
	g.mu.Unlock()

	close(g.stopChan)
	g.wg.Wait()

	ctx := context.Background()
	if err := g.router.Stop(ctx); err != nil {
		g.logger.Warn("router stop failed", "error", err)
	}
	g.plugins.EmitShutdown(ctx)

	return g.store.Close()
}

// ──────────────────────────────────────────────────
// Request path
// ──────────────────────────────────────────────────

// Proxy authorizes and forwards a single call.
//
// The token must name a known account, the method must be present, and
// the method must not carry the privileged prefix; violations return the
// corresponding sentinel without touching the router. A call that clears
// authorization is counted against the account whether or not routing
// succeeds.
func (g *Gateway) Proxy(ctx context.Context, token, method string, body []byte) (*router.Response, error) {
	if _, ok := g.ledger.Lookup(token); !ok {
		g.plugins.EmitCallDenied(ctx, token, method, DenyUnauthorized)
		return nil, ErrUnauthorized
	}
	if method == "" {
		g.plugins.EmitCallDenied(ctx, token, method, DenyMethodRequired)
		return nil, ErrMethodRequired
	}
	if strings.HasPrefix(method, g.privilegedPrefix) {
		g.plugins.EmitCallDenied(ctx, token, method, DenyMethodPrivileged)
		return nil, ErrMethodForbidden
	}

	resp, routeErr := g.router.Route(ctx, &router.Request{Method: method, Body: body})

	// The attempt is counted regardless of the routing outcome.
	if err := g.ledger.RecordCall(token, method); err != nil {
		// Key removed between authorization and recording.
		g.logger.Warn("call not recorded", "token", token, "method", method, "error", err)
	} else {
		g.plugins.EmitCallRecorded(ctx, token, method)
	}

	return resp, routeErr
}

// ──────────────────────────────────────────────────
// Admin operations
// ──────────────────────────────────────────────────

// AddKey provisions a new API key. An empty key generates one. The key is
// written to durable storage before it becomes authorized, so a process
// crash cannot strand a live key with no durable row.
func (g *Gateway) AddKey(ctx context.Context, key string) (string, error) {
	if key == "" {
		key = account.GenerateToken()
	}

	if _, exists := g.ledger.Lookup(key); exists {
		return "", ErrKeyExists
	}

	if err := g.store.Insert(ctx, account.New(key)); err != nil {
		return "", err
	}
	if _, err := g.ledger.Create(key); err != nil {
		if errors.Is(err, account.ErrExists) {
			return "", ErrKeyExists
		}
		return "", err
	}

	g.plugins.EmitKeyAdded(ctx, key)
	g.logger.Info("key added", "token", key)
	return key, nil
}

// RemoveKey revokes an API key. Requires the admin secret.
func (g *Gateway) RemoveKey(ctx context.Context, secret, key string) error {
	if err := g.checkAdmin(secret); err != nil {
		return err
	}

	if _, exists := g.ledger.Lookup(key); !exists {
		return ErrKeyNotFound
	}

	if err := g.store.Delete(ctx, key); err != nil {
		return err
	}
	if err := g.ledger.Remove(key); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrKeyNotFound
		}
		return err
	}

	g.plugins.EmitKeyRemoved(ctx, key)
	g.logger.Info("key removed", "token", key)
	return nil
}

// Stats returns the per-method call counts for a key. Requires the admin
// secret.
func (g *Gateway) Stats(secret, key string) (map[string]int64, error) {
	if err := g.checkAdmin(secret); err != nil {
		return nil, err
	}

	stats, ok := g.ledger.Stats(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return stats, nil
}

// Status reports router liveness and the number of provisioned keys.
// It needs no secret.
func (g *Gateway) Status() Status {
	return Status{
		Alive:   g.router.AliveCount(),
		Dead:    g.router.DeadCount(),
		Clients: g.ledger.Len(),
	}
}

// Flush runs a checkpoint pass immediately, outside the schedule.
func (g *Gateway) Flush(ctx context.Context) error {
	failed := g.flush(ctx)
	if failed > 0 {
		return ErrStoreUnavailable
	}
	return nil
}

// checkAdmin validates the shared admin secret. An empty configured
// secret means the admin surface is disabled entirely.
func (g *Gateway) checkAdmin(secret string) error {
	if g.adminSecret == "" {
		return ErrAdminForbidden
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(g.adminSecret)) != 1 {
		return ErrAdminForbidden
	}
	return nil
}

// ──────────────────────────────────────────────────
// Checkpoint worker
// ──────────────────────────────────────────────────

func (g *Gateway) checkpointWorker() {
	defer g.wg.Done()

	ticker := g.clock.NewTicker(g.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			g.flush(context.Background())
		case <-g.stopChan:
			// Final flush; no calls arrive after stop.
			g.flush(context.Background())
			return
		}
	}
}

// flush upserts a snapshot of every account. A failed upsert is logged
// and skipped; the next cycle retries it. Returns the failure count.
func (g *Gateway) flush(ctx context.Context) int {
	snapshot := g.ledger.Snapshot()
	start := g.clock.Now()

	failed := 0
	for _, a := range snapshot {
		if err := g.store.Upsert(ctx, a); err != nil {
			g.logger.Warn("checkpoint upsert failed", "token", a.Token, "error", err)
			failed++
		}
	}

	elapsed := g.clock.Now().Sub(start)
	g.plugins.EmitCheckpointFlushed(ctx, len(snapshot), failed, elapsed)
	g.logger.Info("checkpoint flushed",
		"accounts", len(snapshot),
		"failed", failed,
		"elapsed", elapsed,
	)
	return failed
}

// ──────────────────────────────────────────────────
// Router event bridge
// ──────────────────────────────────────────────────

// nodeEvents forwards router liveness notifications to the plugin
// registry.
type nodeEvents struct {
	g *Gateway
}

var _ router.Events = nodeEvents{}

func (e nodeEvents) NodeOnline(url string) {
	e.g.plugins.EmitNodeOnline(context.Background(), url)
}

func (e nodeEvents) NodeOffline(url string) {
	e.g.plugins.EmitNodeOffline(context.Background(), url)
}

func (e nodeEvents) AllNodesOffline() {
	e.g.plugins.EmitAllNodesOffline(context.Background())
}

func (e nodeEvents) RouterOnline() {
	e.g.plugins.EmitRouterOnline(context.Background())
}
