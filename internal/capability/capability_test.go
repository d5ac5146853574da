package capability

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pitabwire/marketdesk/internal/config"
	"github.com/pitabwire/marketdesk/internal/observability"
	"github.com/pitabwire/marketdesk/model"
)

func testRctx(roles ...string) *model.RequestContext {
	return &model.RequestContext{SubjectID: "admin-1", Roles: roles}
}

// --- StaticPolicyEvaluator tests ---

func TestStaticPolicyEvaluator_ResolveCapabilities(t *testing.T) {
	e, err := NewStaticPolicyEvaluator("testdata/policies.yaml")
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator() error = %v", err)
	}

	tests := []struct {
		name  string
		rctx  *model.RequestContext
		allow []string
		deny  []string
	}{
		{"viewer", testRctx("catalog_viewer"),
			[]string{"categories:view", "products:view"}, []string{"categories:delete", "companies:view"}},
		{"editor wildcard", testRctx("catalog_editor"),
			[]string{"categories:delete", "products:toggle"}, []string{"salons:view"}},
		{"combined roles", testRctx("catalog_viewer", "catalog_editor"),
			[]string{"categories:create"}, []string{"workers:view"}},
		{"super admin", testRctx("super_admin"),
			[]string{"companies:toggle", "anything:at:all"}, nil},
		{"unknown role", testRctx("nonexistent"),
			nil, []string{"categories:view"}},
		{"subject grant", &model.RequestContext{SubjectID: "admin-42"},
			[]string{"companies:toggle"}, []string{"companies:delete"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps, err := e.ResolveCapabilities(tt.rctx)
			if err != nil {
				t.Fatal(err)
			}
			for _, c := range tt.allow {
				if !caps.Has(c) {
					t.Errorf("%s should be granted", c)
				}
			}
			for _, c := range tt.deny {
				if caps.Has(c) {
					t.Errorf("%s should not be granted", c)
				}
			}
		})
	}
}

func TestStaticPolicyEvaluator_Evaluate(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator("testdata/policies.yaml")
	ok, err := e.Evaluate(testRctx("catalog_viewer"), "categories:view")
	if err != nil || !ok {
		t.Errorf("Evaluate() = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestStaticPolicyEvaluator_missingFile(t *testing.T) {
	if _, err := NewStaticPolicyEvaluator("testdata/nope.yaml"); err == nil {
		t.Error("missing policy file should fail")
	}
}

func TestStaticPolicyEvaluator_Sync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.yaml")
	write := func(s string) {
		if err := os.WriteFile(path, []byte(s), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("roles:\n  r: [categories:view]\n")
	e, err := NewStaticPolicyEvaluator(path)
	if err != nil {
		t.Fatal(err)
	}

	write("roles:\n  r: [products:view]\n")
	if err := e.Sync(); err != nil {
		t.Fatal(err)
	}
	caps, _ := e.ResolveCapabilities(testRctx("r"))
	if caps.Has("categories:view") || !caps.Has("products:view") {
		t.Errorf("caps after Sync = %v", caps)
	}

	write("roles: [")
	if err := e.Sync(); err == nil {
		t.Error("Sync() should fail on invalid YAML")
	}
}

// --- Resolver tests ---

type countingEvaluator struct {
	calls int
	caps  model.CapabilitySet
	err   error
}

func (c *countingEvaluator) ResolveCapabilities(*model.RequestContext) (model.CapabilitySet, error) {
	c.calls++
	return c.caps, c.err
}

func (c *countingEvaluator) Sync() error { return nil }

func newTestResolver(ev model.PolicyEvaluator, ttl time.Duration, maxEntries int) (*Resolver, *observability.Metrics, *time.Time) {
	m := observability.InitMetrics(prometheus.NewRegistry())
	r := NewResolver(ev, config.CacheConfig{TTL: ttl, MaxEntries: maxEntries}, m)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	return r, m, &now
}

func TestResolver_caches(t *testing.T) {
	ev := &countingEvaluator{caps: model.CapabilitySet{"categories:view": true}}
	r, m, _ := newTestResolver(ev, time.Minute, 0)

	for i := 0; i < 3; i++ {
		caps, err := r.Resolve(testRctx("viewer"))
		if err != nil || !caps.Has("categories:view") {
			t.Fatalf("Resolve() = (%v, %v)", caps, err)
		}
	}
	if ev.calls != 1 {
		t.Errorf("evaluator calls = %d, want 1", ev.calls)
	}
	if got := testutil.ToFloat64(m.CapabilityCacheHitsTotal); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CapabilityCacheMissesTotal); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
}

func TestResolver_rolesPartOfKey(t *testing.T) {
	ev := &countingEvaluator{caps: model.CapabilitySet{}}
	r, _, _ := newTestResolver(ev, time.Minute, 0)

	r.Resolve(testRctx("a", "b"))
	r.Resolve(testRctx("b", "a"))
	r.Resolve(testRctx("a"))
	if ev.calls != 2 {
		t.Errorf("evaluator calls = %d, want 2 (role order must not matter)", ev.calls)
	}
}

func TestResolver_expiry(t *testing.T) {
	ev := &countingEvaluator{caps: model.CapabilitySet{}}
	r, _, now := newTestResolver(ev, time.Minute, 0)

	r.Resolve(testRctx("a"))
	*now = now.Add(2 * time.Minute)
	r.Resolve(testRctx("a"))
	if ev.calls != 2 {
		t.Errorf("evaluator calls = %d, want 2 after expiry", ev.calls)
	}
}

func TestResolver_maxEntries(t *testing.T) {
	ev := &countingEvaluator{caps: model.CapabilitySet{}}
	r, _, now := newTestResolver(ev, time.Minute, 2)

	for _, subject := range []string{"s1", "s2", "s3"} {
		r.Resolve(&model.RequestContext{SubjectID: subject})
		*now = now.Add(time.Second)
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}

	// s1 expired first and was evicted.
	calls := ev.calls
	r.Resolve(&model.RequestContext{SubjectID: "s3"})
	if ev.calls != calls {
		t.Error("s3 should still be cached")
	}
	r.Resolve(&model.RequestContext{SubjectID: "s1"})
	if ev.calls != calls+1 {
		t.Error("s1 should have been evicted")
	}
}

func TestResolver_Invalidate(t *testing.T) {
	ev := &countingEvaluator{caps: model.CapabilitySet{}}
	r, _, _ := newTestResolver(ev, time.Minute, 0)

	r.Resolve(testRctx("a"))
	r.Resolve(&model.RequestContext{SubjectID: "admin-2"})
	r.Invalidate("admin-1")
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	r.Flush()
	if r.Len() != 0 {
		t.Errorf("Len() = %d after Flush, want 0", r.Len())
	}
}

func TestResolver_error(t *testing.T) {
	ev := &countingEvaluator{err: errors.New("policy down")}
	r, _, _ := newTestResolver(ev, time.Minute, 0)

	if _, err := r.Resolve(testRctx("a")); err == nil {
		t.Fatal("Resolve() should propagate evaluator errors")
	}
	if r.Len() != 0 {
		t.Error("errors must not be cached")
	}
}

func TestResolver_zeroTTLDisablesCache(t *testing.T) {
	ev := &countingEvaluator{caps: model.CapabilitySet{}}
	r, _, _ := newTestResolver(ev, 0, 0)
	r.Resolve(testRctx("a"))
	r.Resolve(testRctx("a"))
	if ev.calls != 2 {
		t.Errorf("evaluator calls = %d, want 2", ev.calls)
	}
}
