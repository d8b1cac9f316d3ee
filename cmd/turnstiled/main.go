// turnstiled runs the Turnstile gateway as a standalone daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/httpapi"
	"github.com/xraph/turnstile/router"
	"github.com/xraph/turnstile/store/memory"
)

type flags struct {
	listen           string
	nodes            []string
	adminSecret      string
	flushInterval    time.Duration
	privilegedPrefix string
	failFast         bool
	logLevel         string
}

var f flags

var rootCmd = &cobra.Command{
	Use:   "turnstiled",
	Short: "Token-authorizing request gateway with usage accounting",
	Long: `turnstiled fronts a pool of backend nodes with per-client token
authorization and per-method usage accounting.

Clients address the gateway as POST /<token> with a JSON body naming a
"method". Known tokens are forwarded to the first live backend node and
the call is counted against the token; unknown tokens, bodies without a
method, and privileged methods are refused.

Usage counters live in memory and are checkpointed to the store on a
fixed interval and once more at shutdown.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&f.listen, "listen", ":8000", "address to serve the HTTP surface on")
	rootCmd.Flags().StringSliceVar(&f.nodes, "nodes", nil, "backend node URLs to forward to (at least one)")
	rootCmd.Flags().StringVar(&f.adminSecret, "admin-secret", os.Getenv("TURNSTILE_ADMIN_SECRET"), "shared secret for admin operations (empty disables them)")
	rootCmd.Flags().DurationVar(&f.flushInterval, "flush-interval", turnstile.DefaultFlushInterval, "how often usage is checkpointed to the store")
	rootCmd.Flags().StringVar(&f.privilegedPrefix, "privileged-prefix", turnstile.DefaultPrivilegedPrefix, "method prefix the gateway refuses to forward")
	rootCmd.Flags().BoolVar(&f.failFast, "fail-fast", false, "abort startup if the store cannot be loaded")
	rootCmd.Flags().StringVar(&f.logLevel, "log-level", "info", "log level: debug|info|warn|error")

	_ = rootCmd.MarkFlagRequired("nodes") //nolint:errcheck // flag is registered above
}

func run(cmd *cobra.Command, _ []string) error {
	logger := newLogger(f.logLevel)
	slog.SetDefault(logger)

	up, err := router.NewUpstream(f.nodes, router.WithUpstreamLogger(logger))
	if err != nil {
		return err
	}

	opts := []turnstile.Option{
		turnstile.WithLogger(logger),
		turnstile.WithAdminSecret(f.adminSecret),
		turnstile.WithFlushInterval(f.flushInterval),
		turnstile.WithPrivilegedPrefix(f.privilegedPrefix),
	}
	if f.failFast {
		opts = append(opts, turnstile.WithStartupPolicy(turnstile.PolicyFailFast))
	}

	// The daemon ships with the in-memory store; durable grove-backed
	// stores are wired by embedding applications, which own the database
	// handle.
	gw := turnstile.New(memory.New(), up, opts...)

	if err := gw.Start(cmd.Context()); err != nil {
		return err
	}

	api := httpapi.New(gw, httpapi.WithLogger(logger))

	errCh := make(chan error, 1)
	go func() {
		errCh <- api.Start(f.listen)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
	}

	// Stop accepting requests first; the gateway's final flush follows.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := api.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
	return gw.Stop()
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
