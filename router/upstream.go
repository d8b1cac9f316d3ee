package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ErrNoLiveNodes is returned by Route when every backend node is down.
var ErrNoLiveNodes = errors.New("router: no live nodes")

// node tracks a single backend endpoint.
type node struct {
	url   string
	alive bool
}

// Upstream is a minimal Router over a static node list. It forwards each
// request to the first live node, demoting nodes whose forward fails and
// retrying dead nodes once the live ones are exhausted. There is no
// background health checker; liveness state moves only with traffic.
type Upstream struct {
	mu     sync.RWMutex
	nodes  []*node
	client *http.Client
	events Events
	logger *slog.Logger
}

var _ Router = (*Upstream)(nil)

// UpstreamOption configures an Upstream.
type UpstreamOption func(*Upstream)

// WithClient sets the HTTP client used for forwarding.
func WithClient(c *http.Client) UpstreamOption {
	return func(u *Upstream) { u.client = c }
}

// WithEvents sets the liveness event sink.
func WithEvents(e Events) UpstreamOption {
	return func(u *Upstream) { u.events = e }
}

// WithUpstreamLogger sets the logger.
func WithUpstreamLogger(logger *slog.Logger) UpstreamOption {
	return func(u *Upstream) { u.logger = logger }
}

// SetEvents attaches the liveness event sink. Call it before Setup.
func (u *Upstream) SetEvents(e Events) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.events = e
}

// NewUpstream creates an Upstream over the given node URLs.
func NewUpstream(urls []string, opts ...UpstreamOption) (*Upstream, error) {
	if len(urls) == 0 {
		return nil, errors.New("router: at least one node is required")
	}

	u := &Upstream{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, raw := range urls {
		u.nodes = append(u.nodes, &node{url: raw})
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Setup probes each node once and marks the reachable ones alive.
// Nodes that fail the probe start dead and are retried by traffic.
func (u *Upstream) Setup(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	anyAlive := false
	for _, n := range u.nodes {
		if err := u.probe(ctx, n.url); err != nil {
			u.logger.Warn("node unreachable at setup", "node", n.url, "error", err)
			continue
		}
		n.alive = true
		anyAlive = true
	}

	if u.events != nil {
		u.events.RouterOnline()
		if !anyAlive {
			u.events.AllNodesOffline()
		}
	}
	return nil
}

// Stop drains the upstream. Outstanding forwards finish on their own
// request contexts.
func (u *Upstream) Stop(_ context.Context) error {
	u.client.CloseIdleConnections()
	return nil
}

// Route forwards req to the first live node. A node whose forward fails
// is marked dead and the next node is tried. Dead nodes are attempted
// after the live ones, so a recovered backend is promoted by the first
// request that reaches it.
func (u *Upstream) Route(ctx context.Context, req *Request) (*Response, error) {
	for _, n := range u.candidates() {
		resp, err := u.forward(ctx, n.url, req)
		if err == nil {
			u.markAlive(n)
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		u.logger.Warn("forward failed", "node", n.url, "method", req.Method, "error", err)
		u.markDead(n)
	}
	return nil, ErrNoLiveNodes
}

// AliveCount reports the number of live nodes.
func (u *Upstream) AliveCount() int {
	u.mu.RLock()
	defer u.mu.RUnlock()

	count := 0
	for _, n := range u.nodes {
		if n.alive {
			count++
		}
	}
	return count
}

// DeadCount reports the number of dead nodes.
func (u *Upstream) DeadCount() int {
	u.mu.RLock()
	defer u.mu.RUnlock()

	count := 0
	for _, n := range u.nodes {
		if !n.alive {
			count++
		}
	}
	return count
}

// probe issues a minimal POST to check reachability.
func (u *Upstream) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(`{}`)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// forward sends the request body to a node and reads its full response.
func (u *Upstream) forward(ctx context.Context, url string, r *Request) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("router: read response from %s: %w", url, err)
	}

	return &Response{Status: resp.StatusCode, Body: body}, nil
}

// candidates returns every node, live ones first, preserving the
// configured order within each group.
func (u *Upstream) candidates() []*node {
	u.mu.RLock()
	defer u.mu.RUnlock()

	out := make([]*node, 0, len(u.nodes))
	for _, n := range u.nodes {
		if n.alive {
			out = append(out, n)
		}
	}
	for _, n := range u.nodes {
		if !n.alive {
			out = append(out, n)
		}
	}
	return out
}

func (u *Upstream) markAlive(n *node) {
	u.mu.Lock()
	changed := !n.alive
	n.alive = true
	u.mu.Unlock()

	if changed {
		u.logger.Info("node online", "node", n.url)
		if u.events != nil {
			u.events.NodeOnline(n.url)
		}
	}
}

func (u *Upstream) markDead(n *node) {
	u.mu.Lock()
	changed := n.alive
	n.alive = false
	noneLeft := true
	for _, other := range u.nodes {
		if other.alive {
			noneLeft = false
			break
		}
	}
	u.mu.Unlock()

	if changed {
		u.logger.Warn("node offline", "node", n.url)
		if u.events != nil {
			u.events.NodeOffline(n.url)
			if noneLeft {
				u.events.AllNodesOffline()
			}
		}
	}
}
