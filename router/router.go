// Package router defines the boundary between Turnstile and the backend
// node pool it forwards traffic to. Turnstile consults the router for
// liveness and hands it well-formed requests; node selection and health
// checking live behind the Router interface.
package router

import "context"

// Request is a call handed to the router after authorization. Method is
// the already-extracted method name; Body is the raw request payload,
// forwarded untouched.
type Request struct {
	Method string
	Body   []byte
}

// Response is the backend's answer, relayed to the caller verbatim.
type Response struct {
	Status int
	Body   []byte
}

// Events receives liveness notifications from a Router. All methods may
// be called concurrently; implementations must not block.
type Events interface {
	NodeOnline(url string)
	NodeOffline(url string)
	AllNodesOffline()
	RouterOnline()
}

// Router forwards requests to a pool of backend nodes.
type Router interface {
	// Setup prepares the router for traffic and starts liveness tracking.
	Setup(ctx context.Context) error

	// Stop drains the router. No Route calls may follow.
	Stop(ctx context.Context) error

	// Route forwards a request to a live node and relays its response.
	Route(ctx context.Context, req *Request) (*Response, error)

	// AliveCount reports the number of nodes currently serving.
	AliveCount() int

	// DeadCount reports the number of nodes currently down.
	DeadCount() int
}
