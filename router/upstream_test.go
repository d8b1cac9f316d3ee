package router

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordedEvents struct {
	mu         sync.Mutex
	online     []string
	offline    []string
	allOffline int
	routerUp   int
}

func (e *recordedEvents) NodeOnline(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.online = append(e.online, url)
}

func (e *recordedEvents) NodeOffline(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offline = append(e.offline, url)
}

func (e *recordedEvents) AllNodesOffline() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allOffline++
}

func (e *recordedEvents) RouterOnline() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routerUp++
}

func backend(t *testing.T, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUpstreamRequiresNodes(t *testing.T) {
	if _, err := NewUpstream(nil); err == nil {
		t.Fatal("expected error for empty node list")
	}
}

func TestUpstreamForward(t *testing.T) {
	srv := backend(t, `{"result":"0x1"}`)

	events := &recordedEvents{}
	u, err := NewUpstream([]string{srv.URL}, WithEvents(events))
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer u.Stop(context.Background())

	if u.AliveCount() != 1 || u.DeadCount() != 0 {
		t.Fatalf("alive = %d, dead = %d", u.AliveCount(), u.DeadCount())
	}
	if events.routerUp != 1 {
		t.Errorf("routerUp = %d, want 1", events.routerUp)
	}

	resp, err := u.Route(context.Background(), &Request{Method: "eth_call", Body: []byte(`{}`)})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != 200 || string(resp.Body) != `{"result":"0x1"}` {
		t.Errorf("resp = %d %q", resp.Status, resp.Body)
	}
}

func TestUpstreamFailover(t *testing.T) {
	good := backend(t, `{"result":"0x1"}`)

	// A server that is already closed refuses connections.
	bad := httptest.NewServer(http.NotFoundHandler())
	badURL := bad.URL
	bad.Close()

	events := &recordedEvents{}
	u, err := NewUpstream([]string{badURL, good.URL}, WithEvents(events))
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer u.Stop(context.Background())

	if u.AliveCount() != 1 || u.DeadCount() != 1 {
		t.Fatalf("alive = %d, dead = %d", u.AliveCount(), u.DeadCount())
	}

	resp, err := u.Route(context.Background(), &Request{Method: "eth_call", Body: []byte(`{}`)})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != 200 {
		t.Errorf("status = %d", resp.Status)
	}
}

func TestUpstreamDemotesFailingNode(t *testing.T) {
	flaky := httptest.NewServer(http.NotFoundHandler())
	good := backend(t, `{"result":"0x1"}`)

	events := &recordedEvents{}
	u, err := NewUpstream([]string{flaky.URL, good.URL}, WithEvents(events))
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer u.Stop(context.Background())

	// Both probe alive; kill the first mid-traffic.
	flaky.Close()

	resp, err := u.Route(context.Background(), &Request{Method: "eth_call", Body: []byte(`{}`)})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != 200 {
		t.Errorf("status = %d", resp.Status)
	}
	if u.DeadCount() != 1 {
		t.Errorf("dead = %d, want 1", u.DeadCount())
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.offline) != 1 || events.offline[0] != flaky.URL {
		t.Errorf("offline events = %v", events.offline)
	}
}

// reviveBackend starts a backend on a previously used address, as if the
// original server came back after an outage.
func reviveBackend(t *testing.T, addr, body string) *httptest.Server {
	t.Helper()

	var l net.Listener
	var err error
	for i := 0; i < 50; i++ {
		l, err = net.Listen("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("relisten on %s: %v", addr, err)
	}

	srv := &httptest.Server{
		Listener: l,
		Config: &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		})},
	}
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}

func TestUpstreamRevivesDeadNode(t *testing.T) {
	srv := backend(t, `{"result":"0x1"}`)
	addr := strings.TrimPrefix(srv.URL, "http://")

	events := &recordedEvents{}
	u, err := NewUpstream([]string{srv.URL}, WithEvents(events))
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer u.Stop(context.Background())

	// Outage: the only node goes down and traffic demotes it.
	srv.Close()
	if _, err := u.Route(context.Background(), &Request{Method: "eth_call", Body: []byte(`{}`)}); !errors.Is(err, ErrNoLiveNodes) {
		t.Fatalf("err = %v, want ErrNoLiveNodes", err)
	}
	if u.AliveCount() != 0 || u.DeadCount() != 1 {
		t.Fatalf("alive = %d, dead = %d", u.AliveCount(), u.DeadCount())
	}

	// The backend comes back on the same address. The next request
	// reaches the dead node and promotes it.
	reviveBackend(t, addr, `{"result":"0x2"}`)

	resp, err := u.Route(context.Background(), &Request{Method: "eth_call", Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("route after recovery = %v", err)
	}
	if resp.Status != 200 || string(resp.Body) != `{"result":"0x2"}` {
		t.Errorf("resp = %d %q", resp.Status, resp.Body)
	}
	if u.AliveCount() != 1 || u.DeadCount() != 0 {
		t.Errorf("alive = %d, dead = %d", u.AliveCount(), u.DeadCount())
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.online) != 1 || events.online[0] != srv.URL {
		t.Errorf("online events = %v", events.online)
	}
}

func TestUpstreamAllNodesDown(t *testing.T) {
	bad := httptest.NewServer(http.NotFoundHandler())
	badURL := bad.URL
	bad.Close()

	events := &recordedEvents{}
	u, err := NewUpstream([]string{badURL}, WithEvents(events))
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer u.Stop(context.Background())

	if _, err := u.Route(context.Background(), &Request{Method: "eth_call"}); !errors.Is(err, ErrNoLiveNodes) {
		t.Errorf("err = %v, want ErrNoLiveNodes", err)
	}
	if events.allOffline != 1 {
		t.Errorf("allOffline = %d, want 1", events.allOffline)
	}
}
