package turnstile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/account"
	"github.com/xraph/turnstile/router"
	"github.com/xraph/turnstile/store"
	"github.com/xraph/turnstile/store/memory"
)

// stubRouter counts routed calls and can be told to fail.
type stubRouter struct {
	mu     sync.Mutex
	routed []string
	fail   bool
	alive  int
	dead   int
}

func newStubRouter() *stubRouter { return &stubRouter{alive: 1} }

func (r *stubRouter) Setup(context.Context) error { return nil }
func (r *stubRouter) Stop(context.Context) error  { return nil }

func (r *stubRouter) Route(_ context.Context, req *router.Request) (*router.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fail {
		return nil, router.ErrNoLiveNodes
	}
	r.routed = append(r.routed, req.Method)
	return &router.Response{Status: 200, Body: []byte(`{}`)}, nil
}

func (r *stubRouter) AliveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alive
}

func (r *stubRouter) DeadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dead
}

func (r *stubRouter) routedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.routed)
}

// fakeClock drives the checkpoint worker from the test.
type fakeClock struct {
	ch chan time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{ch: make(chan time.Time)} }

func (c *fakeClock) Now() time.Time { return time.Unix(0, 0) }

func (c *fakeClock) NewTicker(time.Duration) turnstile.Ticker { return fakeTicker{c.ch} }

// tick releases one checkpoint cycle and returns once the worker has
// picked it up.
func (c *fakeClock) tick() { c.ch <- time.Unix(0, 0) }

type fakeTicker struct{ ch chan time.Time }

func (t fakeTicker) C() <-chan time.Time { return t.ch }
func (t fakeTicker) Stop()               {}

// persistStore keeps data readable after Close, simulating durable
// storage surviving a process restart.
type persistStore struct {
	mem *memory.Store
}

var _ store.Store = (*persistStore)(nil)

func newPersistStore() *persistStore { return &persistStore{mem: memory.New()} }

func (s *persistStore) LoadAll(ctx context.Context) ([]*account.Account, error) {
	return s.mem.LoadAll(ctx)
}
func (s *persistStore) Upsert(ctx context.Context, a *account.Account) error {
	return s.mem.Upsert(ctx, a)
}
func (s *persistStore) Insert(ctx context.Context, a *account.Account) error {
	return s.mem.Insert(ctx, a)
}
func (s *persistStore) Delete(ctx context.Context, token string) error {
	return s.mem.Delete(ctx, token)
}
func (s *persistStore) Migrate(context.Context) error { return nil }
func (s *persistStore) Ping(context.Context) error    { return nil }
func (s *persistStore) Close() error                  { return nil }

// failStore cannot be loaded.
type failStore struct{ persistStore }

func (s *failStore) LoadAll(context.Context) ([]*account.Account, error) {
	return nil, turnstile.ErrStoreUnavailable
}

// recoverStore fails LoadAll until healed.
type recoverStore struct {
	persistStore
	mu     sync.Mutex
	healed bool
}

func (s *recoverStore) heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healed = true
}

func (s *recoverStore) LoadAll(ctx context.Context) ([]*account.Account, error) {
	s.mu.Lock()
	healed := s.healed
	s.mu.Unlock()

	if !healed {
		return nil, turnstile.ErrStoreUnavailable
	}
	return s.persistStore.LoadAll(ctx)
}

// rejectStore refuses upserts for one token and accepts the rest.
type rejectStore struct {
	persistStore
	reject string
}

func (s *rejectStore) Upsert(ctx context.Context, a *account.Account) error {
	if a.Token == s.reject {
		return turnstile.ErrStoreUnavailable
	}
	return s.persistStore.Upsert(ctx, a)
}

func startGateway(t *testing.T, st store.Store, rt router.Router, opts ...turnstile.Option) *turnstile.Gateway {
	t.Helper()

	gw := turnstile.New(st, rt, opts...)
	if err := gw.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return gw
}

func TestProxyProtocol(t *testing.T) {
	ctx := context.Background()
	rt := newStubRouter()
	gw := startGateway(t, newPersistStore(), rt, turnstile.WithAdminSecret("s3cret"))
	defer gw.Stop()

	if _, err := gw.AddKey(ctx, "abc"); err != nil {
		t.Fatal(err)
	}

	t.Run("UnknownToken", func(t *testing.T) {
		_, err := gw.Proxy(ctx, "nope", "eth_call", []byte(`{}`))
		if !errors.Is(err, turnstile.ErrUnauthorized) {
			t.Errorf("err = %v, want ErrUnauthorized", err)
		}
		if rt.routedCount() != 0 {
			t.Error("unauthorized call was routed")
		}
	})

	t.Run("MissingMethod", func(t *testing.T) {
		_, err := gw.Proxy(ctx, "abc", "", []byte(`{}`))
		if !errors.Is(err, turnstile.ErrMethodRequired) {
			t.Errorf("err = %v, want ErrMethodRequired", err)
		}
		if rt.routedCount() != 0 {
			t.Error("method-less call was routed")
		}
	})

	t.Run("PrivilegedMethod", func(t *testing.T) {
		_, err := gw.Proxy(ctx, "abc", "engine_newPayload", []byte(`{}`))
		if !errors.Is(err, turnstile.ErrMethodForbidden) {
			t.Errorf("err = %v, want ErrMethodForbidden", err)
		}
		if rt.routedCount() != 0 {
			t.Error("privileged call was routed")
		}
		stats, err := gw.Stats("s3cret", "abc")
		if err != nil {
			t.Fatal(err)
		}
		if len(stats) != 0 {
			t.Errorf("refused calls were counted: %v", stats)
		}
	})

	t.Run("Forwarded", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			resp, err := gw.Proxy(ctx, "abc", "eth_call", []byte(`{"method":"eth_call"}`))
			if err != nil {
				t.Fatal(err)
			}
			if resp.Status != 200 {
				t.Errorf("status = %d, want 200", resp.Status)
			}
		}
		if rt.routedCount() != 2 {
			t.Errorf("routed = %d, want 2", rt.routedCount())
		}
		stats, err := gw.Stats("s3cret", "abc")
		if err != nil {
			t.Fatal(err)
		}
		if stats["eth_call"] != 2 {
			t.Errorf("stats[eth_call] = %d, want 2", stats["eth_call"])
		}
	})

	t.Run("CountedOnRouteFailure", func(t *testing.T) {
		rt.mu.Lock()
		rt.fail = true
		rt.mu.Unlock()

		_, err := gw.Proxy(ctx, "abc", "eth_call", []byte(`{"method":"eth_call"}`))
		if err == nil {
			t.Fatal("expected routing error")
		}

		stats, err := gw.Stats("s3cret", "abc")
		if err != nil {
			t.Fatal(err)
		}
		if stats["eth_call"] != 3 {
			t.Errorf("stats[eth_call] = %d, want 3 (attempt billed)", stats["eth_call"])
		}
	})
}

func TestAdminOperations(t *testing.T) {
	ctx := context.Background()
	st := newPersistStore()
	gw := startGateway(t, st, newStubRouter(), turnstile.WithAdminSecret("s3cret"))
	defer gw.Stop()

	t.Run("AddKey", func(t *testing.T) {
		key, err := gw.AddKey(ctx, "abc")
		if err != nil {
			t.Fatal(err)
		}
		if key != "abc" {
			t.Errorf("key = %q, want %q", key, "abc")
		}

		// The durable row exists immediately, zeroed.
		rows, err := st.LoadAll(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 1 || rows[0].Token != "abc" || rows[0].CallAmount != 0 {
			t.Errorf("durable rows = %+v", rows)
		}
	})

	t.Run("AddKeyDuplicate", func(t *testing.T) {
		if _, err := gw.AddKey(ctx, "abc"); !errors.Is(err, turnstile.ErrKeyExists) {
			t.Errorf("err = %v, want ErrKeyExists", err)
		}
	})

	t.Run("AddKeyGenerated", func(t *testing.T) {
		key, err := gw.AddKey(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		if key == "" {
			t.Error("generated key is empty")
		}
	})

	t.Run("RemoveKeyWrongSecret", func(t *testing.T) {
		if err := gw.RemoveKey(ctx, "wrong", "abc"); !errors.Is(err, turnstile.ErrAdminForbidden) {
			t.Errorf("err = %v, want ErrAdminForbidden", err)
		}
		// Nothing was removed.
		if _, err := gw.Stats("s3cret", "abc"); err != nil {
			t.Errorf("key disappeared after forbidden remove: %v", err)
		}
	})

	t.Run("RemoveKey", func(t *testing.T) {
		if err := gw.RemoveKey(ctx, "s3cret", "abc"); err != nil {
			t.Fatal(err)
		}
		if _, err := gw.Stats("s3cret", "abc"); !errors.Is(err, turnstile.ErrKeyNotFound) {
			t.Errorf("stats after remove = %v, want ErrKeyNotFound", err)
		}
		if err := gw.RemoveKey(ctx, "s3cret", "abc"); !errors.Is(err, turnstile.ErrKeyNotFound) {
			t.Errorf("second remove = %v, want ErrKeyNotFound", err)
		}
	})

	t.Run("StatsUnknownKey", func(t *testing.T) {
		if _, err := gw.Stats("s3cret", "nope"); !errors.Is(err, turnstile.ErrKeyNotFound) {
			t.Errorf("err = %v, want ErrKeyNotFound", err)
		}
	})

	t.Run("Status", func(t *testing.T) {
		st := gw.Status()
		if st.Alive != 1 || st.Dead != 0 {
			t.Errorf("status = %+v", st)
		}
	})
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	ctx := context.Background()
	gw := startGateway(t, newPersistStore(), newStubRouter())
	defer gw.Stop()

	if _, err := gw.AddKey(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	if err := gw.RemoveKey(ctx, "", "abc"); !errors.Is(err, turnstile.ErrAdminForbidden) {
		t.Errorf("remove with empty secret config = %v, want ErrAdminForbidden", err)
	}
	if _, err := gw.Stats("", "abc"); !errors.Is(err, turnstile.ErrAdminForbidden) {
		t.Errorf("stats with empty secret config = %v, want ErrAdminForbidden", err)
	}
}

func TestStartupPolicies(t *testing.T) {
	t.Run("FailFast", func(t *testing.T) {
		gw := turnstile.New(&failStore{}, newStubRouter(),
			turnstile.WithStartupPolicy(turnstile.PolicyFailFast),
		)
		if err := gw.Start(context.Background()); err == nil {
			t.Fatal("expected start failure")
		}
	})

	t.Run("FailFastRetry", func(t *testing.T) {
		st := &recoverStore{persistStore: *newPersistStore()}
		gw := turnstile.New(st, newStubRouter(),
			turnstile.WithStartupPolicy(turnstile.PolicyFailFast),
		)
		if err := gw.Start(context.Background()); err == nil {
			t.Fatal("expected start failure")
		}

		// A failed start leaves the gateway startable again.
		st.heal()
		if err := gw.Start(context.Background()); err != nil {
			t.Fatalf("start after store recovery = %v", err)
		}
		defer gw.Stop()
	})

	t.Run("Degrade", func(t *testing.T) {
		gw := startGateway(t, &failStore{}, newStubRouter())
		defer gw.Stop()

		// Serving with an empty ledger: every token is refused.
		_, err := gw.Proxy(context.Background(), "abc", "eth_call", nil)
		if !errors.Is(err, turnstile.ErrUnauthorized) {
			t.Errorf("err = %v, want ErrUnauthorized", err)
		}
	})
}

func TestStartupLoad(t *testing.T) {
	ctx := context.Background()
	st := newPersistStore()

	seeded := account.New("abc")
	seeded.CallAmount = 7
	seeded.CallsByMethod["eth_call"] = 7
	if err := st.Upsert(ctx, seeded); err != nil {
		t.Fatal(err)
	}

	gw := startGateway(t, st, newStubRouter(), turnstile.WithAdminSecret("s3cret"))
	defer gw.Stop()

	stats, err := gw.Stats("s3cret", "abc")
	if err != nil {
		t.Fatal(err)
	}
	if stats["eth_call"] != 7 {
		t.Errorf("stats[eth_call] = %d, want 7", stats["eth_call"])
	}
}

func TestScheduledFlush(t *testing.T) {
	ctx := context.Background()
	st := newPersistStore()
	clock := newFakeClock()
	gw := startGateway(t, st, newStubRouter(), turnstile.WithClock(clock))
	defer gw.Stop()

	if _, err := gw.AddKey(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	if _, err := gw.Proxy(ctx, "abc", "eth_call", []byte(`{"method":"eth_call"}`)); err != nil {
		t.Fatal(err)
	}

	clock.tick()

	// The flush runs after the tick is consumed; poll the store.
	deadline := time.Now().Add(5 * time.Second)
	for {
		rows, err := st.LoadAll(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) == 1 && rows[0].CallAmount == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("flush did not reach the store: %+v", rows)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFlushPartialFailure(t *testing.T) {
	ctx := context.Background()
	st := &rejectStore{persistStore: *newPersistStore(), reject: "bad"}
	gw := startGateway(t, st, newStubRouter())
	defer gw.Stop()

	for _, key := range []string{"good", "bad"} {
		if _, err := gw.AddKey(ctx, key); err != nil {
			t.Fatal(err)
		}
		if _, err := gw.Proxy(ctx, key, "eth_call", []byte(`{"method":"eth_call"}`)); err != nil {
			t.Fatal(err)
		}
	}

	if err := gw.Flush(ctx); !errors.Is(err, turnstile.ErrStoreUnavailable) {
		t.Fatalf("flush = %v, want ErrStoreUnavailable", err)
	}

	// The failing account is skipped; the rest of the batch still lands.
	rows, err := st.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	byToken := make(map[string]*account.Account, len(rows))
	for _, r := range rows {
		byToken[r.Token] = r
	}
	if got := byToken["good"]; got == nil || got.CallAmount != 1 {
		t.Errorf("good row = %+v, want 1 recorded call", got)
	}
	if got := byToken["bad"]; got == nil || got.CallAmount != 0 {
		t.Errorf("bad row = %+v, want the zeroed insert only", got)
	}
}

// Scenario: usage survives shutdown and restart via the final flush.
func TestFinalFlushAndRestart(t *testing.T) {
	ctx := context.Background()
	st := newPersistStore()

	gw := startGateway(t, st, newStubRouter())
	if _, err := gw.AddKey(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := gw.Proxy(ctx, "abc", "eth_call", []byte(`{"method":"eth_call"}`)); err != nil {
			t.Fatal(err)
		}
	}
	if err := gw.Stop(); err != nil {
		t.Fatal(err)
	}

	// "Restart" against the same durable state.
	gw2 := startGateway(t, st, newStubRouter(), turnstile.WithAdminSecret("s3cret"))
	defer gw2.Stop()

	stats, err := gw2.Stats("s3cret", "abc")
	if err != nil {
		t.Fatal(err)
	}
	if stats["eth_call"] != 2 {
		t.Errorf("stats[eth_call] after restart = %d, want 2", stats["eth_call"])
	}
}

func TestLifecycle(t *testing.T) {
	gw := startGateway(t, newPersistStore(), newStubRouter())

	if err := gw.Start(context.Background()); !errors.Is(err, turnstile.ErrAlreadyStarted) {
		t.Errorf("second start = %v, want ErrAlreadyStarted", err)
	}
	if err := gw.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Stop(); err != nil {
		t.Errorf("second stop = %v, want nil", err)
	}

	unstarted := turnstile.New(newPersistStore(), newStubRouter())
	if err := unstarted.Stop(); !errors.Is(err, turnstile.ErrNotStarted) {
		t.Errorf("stop before start = %v, want ErrNotStarted", err)
	}
}
