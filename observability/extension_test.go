package observability

import (
	"context"
	"testing"
	"time"
)

type fakeCounter struct{ n float64 }

func (c *fakeCounter) Inc()          { c.n++ }
func (c *fakeCounter) Add(v float64) { c.n += v }

type fakeHistogram struct{ samples []float64 }

func (h *fakeHistogram) Observe(v float64) { h.samples = append(h.samples, v) }

type fakeFactory struct {
	counters   map[string]*fakeCounter
	histograms map[string]*fakeHistogram
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		counters:   make(map[string]*fakeCounter),
		histograms: make(map[string]*fakeHistogram),
	}
}

func (f *fakeFactory) Counter(name string) Counter {
	c := &fakeCounter{}
	f.counters[name] = c
	return c
}

func (f *fakeFactory) Histogram(name string) Histogram {
	h := &fakeHistogram{}
	f.histograms[name] = h
	return h
}

func TestMetricsExtension(t *testing.T) {
	ctx := context.Background()
	factory := newFakeFactory()
	m := NewMetricsExtension(factory)

	_ = m.OnKeyAdded(ctx, "abc")
	_ = m.OnKeyRemoved(ctx, "abc")
	_ = m.OnCallRecorded(ctx, "abc", "eth_call")
	_ = m.OnCallDenied(ctx, "abc", "eth_call", "unauthorized")
	_ = m.OnAccountsLoaded(ctx, 3)
	_ = m.OnCheckpointFlushed(ctx, 3, 1, 250*time.Millisecond)
	_ = m.OnNodeOnline(ctx, "http://node")
	_ = m.OnNodeOffline(ctx, "http://node")
	_ = m.OnAllNodesOffline(ctx)
	_ = m.OnRouterOnline(ctx)

	want := map[string]float64{
		"turnstile.key.added":           1,
		"turnstile.key.removed":         1,
		"turnstile.call.recorded":       1,
		"turnstile.call.denied":         1,
		"turnstile.checkpoint.loaded":   3,
		"turnstile.checkpoint.failures": 1,
		"turnstile.node.online":         1,
		"turnstile.node.offline":        1,
		"turnstile.node.all_offline":    1,
		"turnstile.router.online":       1,
	}
	for name, n := range want {
		c, ok := factory.counters[name]
		if !ok {
			t.Errorf("counter %s was never registered", name)
			continue
		}
		if c.n != n {
			t.Errorf("%s = %v, want %v", name, c.n, n)
		}
	}

	// Every registered counter maps to a hook that drives it.
	for name, c := range factory.counters {
		if c.n == 0 {
			t.Errorf("counter %s registered but never incremented", name)
		}
	}

	if h := factory.histograms["turnstile.checkpoint.accounts"]; len(h.samples) != 1 || h.samples[0] != 3 {
		t.Errorf("checkpoint.accounts samples = %v", h.samples)
	}
	if h := factory.histograms["turnstile.checkpoint.latency_ms"]; len(h.samples) != 1 || h.samples[0] != 250 {
		t.Errorf("checkpoint.latency_ms samples = %v", h.samples)
	}
}
