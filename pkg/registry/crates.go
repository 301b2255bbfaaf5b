package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"playbench/pkg/cache"
)

// DefaultBaseURL is the crates.io API root.
const DefaultBaseURL = "https://crates.io/api/v1"

// CrateInfo holds metadata for a Rust crate from crates.io.
//
// The Version field contains the max_version (latest stable or highest
// version). Dependencies include only "normal" (non-dev, non-optional)
// dependencies of that version.
//
// This struct is safe for concurrent reads after construction.
type CrateInfo struct {
	Name         string   // Canonical crate name (e.g., "serde-json")
	Version      string   // Latest version (e.g., "1.0.193")
	Dependencies []string // Normal dependency crate names (nil or empty if none)
	Description  string   // Crate description (may be empty)
	License      string   // License identifier(s) (may be empty or "MIT OR Apache-2.0")
	Downloads    int      // Total download count across all versions
}

// CratesClient provides access to the crates.io package registry API.
// It handles HTTP requests with caching and automatic retries.
//
// All methods are safe for concurrent use by multiple goroutines.
//
// Note: crates.io requires a User-Agent header; this client sets one automatically.
type CratesClient struct {
	*Client
	baseURL string
}

// NewCratesClient creates a crates.io client with the given cache backend.
//
// Parameters:
//   - backend: Cache backend for HTTP response caching (use cache.NewNullCache() for no caching)
//   - cacheTTL: How long responses are cached (typical: 1-24 hours)
//
// The client includes a User-Agent header as required by crates.io API policy.
// The returned CratesClient is safe for concurrent use.
func NewCratesClient(backend cache.Cache, cacheTTL time.Duration) *CratesClient {
	headers := map[string]string{
		"User-Agent": "playbench/1.0",
	}
	return &CratesClient{
		Client:  NewClient(backend, "crates:", cacheTTL, headers),
		baseURL: DefaultBaseURL,
	}
}

// SetBaseURL overrides the API root. Used by tests and alternate registries.
func (c *CratesClient) SetBaseURL(url string) { c.baseURL = url }

// FetchCrate retrieves metadata for a Rust crate from crates.io.
//
// The crate parameter is case-sensitive and must match the published crate
// name exactly; use [Resolver] to map source identifiers to published names.
//
// If refresh is true, the cache is bypassed and a fresh API call is made.
//
// Dependency fetching failures are silently ignored; Dependencies will be
// empty/nil if the secondary API call fails. This is not considered an error.
//
// Returns:
//   - CrateInfo populated with metadata on success
//   - [ErrNotFound] if the crate doesn't exist
//   - [ErrNetwork] for HTTP failures (timeout, 5xx, etc.)
//   - Other errors for JSON decoding failures
func (c *CratesClient) FetchCrate(ctx context.Context, crate string, refresh bool) (*CrateInfo, error) {
	var info CrateInfo
	err := c.Cached(ctx, crate, refresh, &info, func() error {
		return c.fetch(ctx, crate, &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *CratesClient) fetch(ctx context.Context, crate string, info *CrateInfo) error {
	var data crateResponse
	if err := c.Get(ctx, fmt.Sprintf("%s/crates/%s", c.baseURL, crate), &data); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: crate %s", err, crate)
		}
		return err
	}

	deps, _ := c.fetchDeps(ctx, crate, data.Crate.MaxVersion)

	*info = CrateInfo{
		Name:         data.Crate.Name,
		Version:      data.Crate.MaxVersion,
		Description:  data.Crate.Description,
		License:      data.Crate.License,
		Downloads:    data.Crate.Downloads,
		Dependencies: deps,
	}
	return nil
}

func (c *CratesClient) fetchDeps(ctx context.Context, crate, version string) ([]string, error) {
	url := fmt.Sprintf("%s/crates/%s/%s/dependencies", c.baseURL, crate, version)

	var data depsResponse
	if err := c.Get(ctx, url, &data); err != nil {
		return nil, err
	}

	var deps []string
	for _, d := range data.Dependencies {
		if d.Kind == "normal" && !d.Optional {
			deps = append(deps, d.CrateID)
		}
	}
	return deps, nil
}

type crateResponse struct {
	Crate struct {
		Name        string `json:"name"`
		MaxVersion  string `json:"max_version"`
		Description string `json:"description"`
		License     string `json:"license"`
		Downloads   int    `json:"downloads"`
	} `json:"crate"`
}

type depsResponse struct {
	Dependencies []struct {
		CrateID  string `json:"crate_id"`
		Kind     string `json:"kind"`
		Optional bool   `json:"optional"`
	} `json:"dependencies"`
}
