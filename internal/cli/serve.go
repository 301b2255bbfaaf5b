package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"playbench/internal/api"
	"playbench/pkg/cache"
	"playbench/pkg/registry"
	"playbench/pkg/runner"
)

// serveOpts holds the command-line flags for the serve command.
type serveOpts struct {
	addr    string // listen address
	redis   string // redis address for a shared resolution cache
	noCache bool
}

// serveCommand creates the serve command exposing the pipeline over HTTP.
func (c *CLI) serveCommand() *cobra.Command {
	opts := serveOpts{addr: "127.0.0.1:7878"}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the build pipeline as a local HTTP API",
		Long: `Serve the build pipeline as a local HTTP API for editor integrations.

Endpoints:
  POST   /v1/builds              build and run a snippet
  GET    /v1/builds/{id}         session status
  GET    /v1/builds/{id}/output  styled terminal lines
  DELETE /v1/builds/{id}         cancel a session

With --redis, the crate resolution cache is shared across processes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", opts.addr, "listen address")
	cmd.Flags().StringVar(&opts.redis, "redis", "", "redis address for a shared resolution cache")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the resolution cache")

	return cmd
}

func (c *CLI) serve(ctx context.Context, opts serveOpts) error {
	backend, err := c.serveCache(ctx, opts)
	if err != nil {
		return err
	}
	defer backend.Close()

	client := registry.NewCratesClient(backend, defaultCacheTTL)
	server := api.NewServer(api.Config{
		Resolver: registry.NewResolver(client, backend, c.Logger),
		Runner:   runner.New(c.Logger),
		Command:  runner.Command{CargoFlags: []string{"--color=always"}},
		Logger:   c.Logger,
	})
	defer server.Shutdown()

	httpServer := &http.Server{
		Addr:              opts.addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	c.Logger.Info("listening", "addr", opts.addr)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

// serveCache picks the cache backend for serve mode: redis when requested,
// the file cache otherwise.
func (c *CLI) serveCache(ctx context.Context, opts serveOpts) (cache.Cache, error) {
	if opts.redis != "" {
		return cache.NewRedisCache(ctx, cache.RedisConfig{Addr: opts.redis})
	}
	return newCache(opts.noCache)
}
