// Package turnstile provides a token-authorizing request gateway with
// per-client usage accounting for Go applications.
//
// Turnstile is designed as a library, not a service. Import it directly
// into your Go application, or run the bundled turnstiled daemon. It
// provides:
//
//   - In-memory token authorization on the hot path, no store round-trip
//   - Per-key, per-method call accounting
//   - Periodic checkpointing of usage to durable storage
//   - Pluggable stores (PostgreSQL, SQLite, MongoDB, in-memory)
//   - A minimal upstream router with node liveness tracking
//   - Lifecycle plugins for audit trails and metrics
//
// # Quick Start
//
// Create a gateway with your preferred store and router:
//
//	import (
//	    "github.com/xraph/turnstile"
//	    "github.com/xraph/turnstile/router"
//	    "github.com/xraph/turnstile/store/postgres"
//	)
//
//	st := postgres.New(db)
//	up, err := router.NewUpstream([]string{"http://localhost:8545"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	gw := turnstile.New(st, up,
//	    turnstile.WithAdminSecret(secret),
//	)
//
//	// Start the gateway (loads the ledger, begins checkpointing)
//	if err := gw.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer gw.Stop()
//
// # Core Concepts
//
// Every client holds an opaque API key. A request authenticates by
// naming its key; the gateway checks it against the in-memory ledger,
// refuses privileged methods, forwards the call upstream, and counts it:
//
//	resp, err := gw.Proxy(ctx, token, method, body)
//
// A well-formed, authorized call is counted even when the upstream
// forward fails: the account pays for the attempt, not the outcome.
//
// Usage lives in memory and is checkpointed to the store on a fixed
// interval (15 minutes by default) and once more at shutdown. Counts
// produced between the last checkpoint and a crash are lost; the ledger
// never double-counts.
//
// # Keys
//
// Generated keys use TypeID for globally unique, type-safe identifiers:
//
//	key_01h2xcejqtf2nbrexx3vqjhp41
//
// Operator-supplied keys are accepted as opaque strings.
//
// # Integration
//
// Turnstile integrates with the Forgery ecosystem:
//
//   - Forge: run the gateway as an application extension
//   - Grove: durable stores over PostgreSQL, SQLite, and MongoDB
//   - Plugins: audit trail and metrics hooks for every lifecycle event
package turnstile

// Version is the release version reported by the HTTP surface.
const Version = "1.0.0"
