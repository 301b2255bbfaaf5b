package registry

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"playbench/pkg/cache"
)

// resolveWorkers bounds the fan-out of concurrent registry lookups.
const resolveWorkers = 8

// resolveTimeout bounds a single identifier lookup, fallback included.
const resolveTimeout = 15 * time.Second

// Resolution describes how an identifier was matched to a registry name.
type Resolution int

const (
	// Exact means the identifier is itself a published crate name.
	Exact Resolution = iota
	// HyphenFallback means only the hyphenated variant of the identifier
	// is published (crate-name on the registry, crate_name in source).
	HyphenFallback
	// Unresolved means neither variant was found, or the registry was
	// unreachable. The identifier is passed through literally so the build
	// tool can surface its own diagnostic.
	Unresolved
)

// String returns the resolution name for logs and API responses.
func (r Resolution) String() string {
	switch r {
	case Exact:
		return "exact"
	case HyphenFallback:
		return "hyphen-fallback"
	default:
		return "unresolved"
	}
}

// Resolved maps a source identifier to its most likely published crate name.
type Resolved struct {
	Identifier   string     `json:"identifier"`
	RegistryName string     `json:"registry_name"`
	Resolution   Resolution `json:"resolution"`
}

// Fetcher retrieves crate metadata from a registry.
// *CratesClient is the production implementation.
type Fetcher interface {
	FetchCrate(ctx context.Context, crate string, refresh bool) (*CrateInfo, error)
}

// Resolver normalizes extracted identifiers into published crate names.
//
// Results are cached in the injected backend keyed by identifier; the cache
// is shared process-wide (and, with a redis backend, across processes) and
// is only invalidated by an explicit refresh. Concurrent resolutions of the
// same identifier race benignly: last writer wins.
type Resolver struct {
	fetcher Fetcher
	cache   cache.Cache
	logger  *log.Logger
}

// NewResolver creates a Resolver using fetcher for registry queries and
// backend as the process-wide resolution cache. The cache must be safe for
// concurrent use; pass cache.NewNullCache() to disable caching and
// log.Default() when no specific logger is wanted.
func NewResolver(fetcher Fetcher, backend cache.Cache, logger *log.Logger) *Resolver {
	if backend == nil {
		backend = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{fetcher: fetcher, cache: backend, logger: logger}
}

// Resolve maps one identifier to a registry name.
//
// Policy: cache first; on miss, query the registry for the literal name;
// on not-found, retry with underscores replaced by hyphens; cache whichever
// succeeded. Registry failures (network error, timeout) degrade to
// Unresolved and are never returned as errors.
func (r *Resolver) Resolve(ctx context.Context, identifier string) Resolved {
	return r.resolve(ctx, identifier, false)
}

// Refresh re-resolves an identifier, bypassing and overwriting the cache.
func (r *Resolver) Refresh(ctx context.Context, identifier string) Resolved {
	return r.resolve(ctx, identifier, true)
}

func (r *Resolver) resolve(ctx context.Context, identifier string, refresh bool) Resolved {
	key := "resolve:" + identifier

	if !refresh {
		if data, hit, _ := r.cache.Get(ctx, key); hit {
			var cached Resolved
			if json.Unmarshal(data, &cached) == nil {
				return cached
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	res := r.lookup(ctx, identifier, refresh)

	// Unresolved results are not cached: a transient network failure should
	// not pin an identifier to Unresolved until an explicit refresh.
	if res.Resolution != Unresolved {
		if data, err := json.Marshal(res); err == nil {
			_ = r.cache.Set(ctx, key, data, 0)
		}
	}
	return res
}

func (r *Resolver) lookup(ctx context.Context, identifier string, refresh bool) Resolved {
	info, err := r.fetcher.FetchCrate(ctx, identifier, refresh)
	if err == nil {
		return Resolved{Identifier: identifier, RegistryName: info.Name, Resolution: Exact}
	}
	if !errors.Is(err, ErrNotFound) {
		r.logger.Debug("registry lookup failed", "identifier", identifier, "err", err)
		return Resolved{Identifier: identifier, RegistryName: identifier, Resolution: Unresolved}
	}

	hyphenated := strings.ReplaceAll(identifier, "_", "-")
	if hyphenated != identifier {
		info, err = r.fetcher.FetchCrate(ctx, hyphenated, refresh)
		if err == nil {
			return Resolved{Identifier: identifier, RegistryName: info.Name, Resolution: HyphenFallback}
		}
		if !errors.Is(err, ErrNotFound) {
			r.logger.Debug("registry lookup failed", "identifier", hyphenated, "err", err)
			return Resolved{Identifier: identifier, RegistryName: identifier, Resolution: Unresolved}
		}
	}

	return Resolved{Identifier: identifier, RegistryName: identifier, Resolution: Unresolved}
}

// ResolveAll resolves identifiers concurrently on a bounded worker pool and
// returns results in input order. It never fails: individual lookups degrade
// to Unresolved per the Resolve policy.
func (r *Resolver) ResolveAll(ctx context.Context, identifiers []string) []Resolved {
	out := make([]Resolved, len(identifiers))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range min(resolveWorkers, max(len(identifiers), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = r.Resolve(ctx, identifiers[i])
			}
		}()
	}

	for i := range identifiers {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return out
}
