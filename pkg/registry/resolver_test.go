package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"testing"

	"playbench/pkg/cache"
)

// fakeFetcher serves a fixed set of published crate names.
type fakeFetcher struct {
	published map[string]bool
	failWith  error
	calls     atomic.Int64
}

func (f *fakeFetcher) FetchCrate(ctx context.Context, crate string, refresh bool) (*CrateInfo, error) {
	f.calls.Add(1)
	if f.failWith != nil {
		return nil, f.failWith
	}
	if !f.published[crate] {
		return nil, fmt.Errorf("%w: crate %s", ErrNotFound, crate)
	}
	return &CrateInfo{Name: crate, Version: "1.0.0"}, nil
}

func newTestResolver(f Fetcher) *Resolver {
	return NewResolver(f, cache.NewMemoryCache(), nil)
}

func TestResolveExact(t *testing.T) {
	r := newTestResolver(&fakeFetcher{published: map[string]bool{"serde_json": true}})

	got := r.Resolve(context.Background(), "serde_json")
	want := Resolved{Identifier: "serde_json", RegistryName: "serde_json", Resolution: Exact}
	if got != want {
		t.Errorf("Resolve = %+v, want %+v", got, want)
	}
}

func TestResolveHyphenFallback(t *testing.T) {
	r := newTestResolver(&fakeFetcher{published: map[string]bool{"actix-web": true}})

	got := r.Resolve(context.Background(), "actix_web")
	want := Resolved{Identifier: "actix_web", RegistryName: "actix-web", Resolution: HyphenFallback}
	if got != want {
		t.Errorf("Resolve = %+v, want %+v", got, want)
	}
}

func TestResolveUnresolved(t *testing.T) {
	r := newTestResolver(&fakeFetcher{published: map[string]bool{}})

	got := r.Resolve(context.Background(), "no_such_crate")
	want := Resolved{Identifier: "no_such_crate", RegistryName: "no_such_crate", Resolution: Unresolved}
	if got != want {
		t.Errorf("Resolve = %+v, want %+v", got, want)
	}
}

// A registry outage degrades to Unresolved; it never aborts the pass.
func TestResolveNetworkErrorDegrades(t *testing.T) {
	r := newTestResolver(&fakeFetcher{failWith: fmt.Errorf("%w: boom", ErrNetwork)})

	got := r.Resolve(context.Background(), "serde")
	if got.Resolution != Unresolved {
		t.Errorf("Resolution = %v, want Unresolved", got.Resolution)
	}
	if got.RegistryName != "serde" {
		t.Errorf("RegistryName = %q, want literal pass-through", got.RegistryName)
	}
}

func TestResolveCaches(t *testing.T) {
	f := &fakeFetcher{published: map[string]bool{"rand": true}}
	r := newTestResolver(f)
	ctx := context.Background()

	r.Resolve(ctx, "rand")
	callsAfterFirst := f.calls.Load()
	r.Resolve(ctx, "rand")

	if f.calls.Load() != callsAfterFirst {
		t.Errorf("second Resolve hit the registry; want cache hit")
	}
}

func TestResolveDoesNotCacheUnresolved(t *testing.T) {
	f := &fakeFetcher{failWith: fmt.Errorf("%w: down", ErrNetwork)}
	r := newTestResolver(f)
	ctx := context.Background()

	if got := r.Resolve(ctx, "serde"); got.Resolution != Unresolved {
		t.Fatalf("Resolution = %v, want Unresolved", got.Resolution)
	}

	// Registry is back; the next resolve must retry, not replay the failure.
	f.failWith = nil
	f.published = map[string]bool{"serde": true}
	if got := r.Resolve(ctx, "serde"); got.Resolution != Exact {
		t.Errorf("Resolution after recovery = %v, want Exact", got.Resolution)
	}
}

func TestRefreshBypassesCache(t *testing.T) {
	f := &fakeFetcher{published: map[string]bool{"rand": true}}
	r := newTestResolver(f)
	ctx := context.Background()

	r.Resolve(ctx, "rand")
	before := f.calls.Load()
	r.Refresh(ctx, "rand")

	if f.calls.Load() == before {
		t.Error("Refresh did not hit the registry")
	}
}

func TestResolveAllPreservesOrder(t *testing.T) {
	r := newTestResolver(&fakeFetcher{published: map[string]bool{
		"serde": true, "rand": true, "actix-web": true,
	}})

	got := r.ResolveAll(context.Background(), []string{"serde", "actix_web", "missing", "rand"})
	want := []Resolved{
		{Identifier: "serde", RegistryName: "serde", Resolution: Exact},
		{Identifier: "actix_web", RegistryName: "actix-web", Resolution: HyphenFallback},
		{Identifier: "missing", RegistryName: "missing", Resolution: Unresolved},
		{Identifier: "rand", RegistryName: "rand", Resolution: Exact},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveAll = %+v, want %+v", got, want)
	}
}

func TestResolveAllEmpty(t *testing.T) {
	r := newTestResolver(&fakeFetcher{})
	if got := r.ResolveAll(context.Background(), nil); len(got) != 0 {
		t.Errorf("ResolveAll(nil) = %v, want empty", got)
	}
}

func TestResolutionString(t *testing.T) {
	cases := map[Resolution]string{
		Exact:          "exact",
		HyphenFallback: "hyphen-fallback",
		Unresolved:     "unresolved",
	}
	for res, want := range cases {
		if got := res.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", res, got, want)
		}
	}
}

// Sanity check that sentinel wrapping composes with errors.Is.
func TestSentinelErrors(t *testing.T) {
	err := fmt.Errorf("%w: crate foo", ErrNotFound)
	if !errors.Is(err, ErrNotFound) {
		t.Error("wrapped ErrNotFound not matched by errors.Is")
	}
}
