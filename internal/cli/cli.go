// Package cli implements the playbench command-line interface.
//
// This package provides commands for building and running throwaway Rust
// snippets with inferred dependencies, inspecting what would be inferred,
// managing the resolution cache, and serving the pipeline over HTTP. The
// CLI is built using cobra and supports verbose logging via the
// charmbracelet/log library.
//
// # Commands
//
// The main commands are:
//   - run: Build and run a snippet with live console output
//   - deps: Show inferred dependencies and the synthesized manifest
//   - cache: Manage the resolution cache
//   - serve: Expose the pipeline as a local HTTP API
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context to allow structured progress tracking.
package cli

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"playbench/pkg/buildinfo"
	"playbench/pkg/cache"
	"playbench/pkg/registry"
)

// appName is the application name used for directories and display.
const appName = "playbench"

// defaultCacheTTL is how long crates.io responses stay cached.
const defaultCacheTTL = 24 * time.Hour

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Playbench builds and runs throwaway Rust snippets",
		Long:         `Playbench is a scratchpad for Rust: it infers the crates a snippet uses, resolves them against crates.io, synthesizes a Cargo.toml, and runs the result with live colored console output.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.runCommand())
	root.AddCommand(c.depsCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// newRegistry builds the registry stack: crates.io client and resolver
// sharing one cache backend.
func (c *CLI) newRegistry(noCache bool) (*registry.CratesClient, *registry.Resolver, error) {
	backend, err := newCache(noCache)
	if err != nil {
		return nil, nil, err
	}
	client := registry.NewCratesClient(backend, defaultCacheTTL)
	return client, registry.NewResolver(client, backend, c.Logger), nil
}

func newCache(noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// cacheDir returns the cache directory using XDG standard (~/.cache/playbench/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// readSource reads the snippet from a file argument, or stdin when the
// argument is "-".
func readSource(arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(arg)
	return string(data), err
}
