package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/goccy/go-graphviz"
	"github.com/spf13/cobra"

	"playbench/pkg/errors"
	"playbench/pkg/infer"
	"playbench/pkg/manifest"
	"playbench/pkg/registry"
)

// depsOpts holds the command-line flags for the deps command.
type depsOpts struct {
	noCache  bool
	refresh  bool
	jsonOut  bool
	manifest bool   // print the synthesized Cargo.toml instead of a table
	render   string // output SVG path for the dependency graph
}

// depsCommand creates the deps command for inspecting inference without
// building anything.
func (c *CLI) depsCommand() *cobra.Command {
	var opts depsOpts

	cmd := &cobra.Command{
		Use:   "deps [file | -]",
		Short: "Show the crates a snippet would pull in",
		Long: `Show the dependencies inferred from a snippet and how each one resolved
against crates.io, without building anything.

Examples:
  playbench deps snippet.rs
  playbench deps snippet.rs --manifest
  playbench deps snippet.rs --render graph.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.showDeps(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the resolution cache")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "re-resolve crate names, bypassing the cache")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "emit resolutions as JSON")
	cmd.Flags().BoolVar(&opts.manifest, "manifest", false, "print the synthesized Cargo.toml")
	cmd.Flags().StringVar(&opts.render, "render", "", "render the crate dependency graph to an SVG file")

	return cmd
}

func (c *CLI) showDeps(ctx context.Context, file string, opts depsOpts) error {
	source, err := readSource(file)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "read source")
	}

	scanned := infer.Scan(source)
	overrides := &manifest.Overrides{}
	if err := overrides.AddDirectives(scanned.Directives); err != nil {
		return err
	}
	ids := candidateIDs(scanned.Candidates, overrides)

	client, resolver, err := c.newRegistry(opts.noCache)
	if err != nil {
		return err
	}

	var resolved []registry.Resolved
	if len(ids) > 0 {
		spin := newSpinnerWithContext(ctx, fmt.Sprintf("resolving %d crates", len(ids)))
		spin.Start()
		if opts.refresh {
			resolved = make([]registry.Resolved, len(ids))
			for i, id := range ids {
				resolved[i] = resolver.Refresh(ctx, id)
			}
		} else {
			resolved = resolver.ResolveAll(ctx, ids)
		}
		spin.Stop()
	}

	switch {
	case opts.jsonOut:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resolved)
	case opts.manifest:
		effective, err := manifest.Synthesize(resolved, overrides, manifest.Options{})
		if err != nil {
			return err
		}
		fmt.Print(effective)
		return nil
	}

	if len(resolved) == 0 && overrides.Empty() {
		printInfo("No external crates referenced")
		return nil
	}
	for _, dep := range resolved {
		switch dep.Resolution {
		case registry.Exact:
			printKeyValue(dep.Identifier, dep.RegistryName)
		case registry.HyphenFallback:
			printKeyValue(dep.Identifier, dep.RegistryName+" "+StyleDim.Render("(hyphenated)"))
		default:
			printKeyValue(dep.Identifier, StyleWarning.Render("unresolved"))
		}
	}
	for _, name := range overrides.Names() {
		printKeyValue(name, StyleDim.Render("(manual override)"))
	}

	if opts.render != "" {
		return c.renderGraph(ctx, client, resolved, opts.render, opts.refresh)
	}
	return nil
}

// renderGraph draws the snippet's direct crates and their own registry
// dependencies one level deep, and writes the graph as SVG.
func (c *CLI) renderGraph(ctx context.Context, client *registry.CratesClient, resolved []registry.Resolved, path string, refresh bool) error {
	dot := &bytes.Buffer{}
	dot.WriteString("digraph G {\n")
	dot.WriteString("  rankdir=TB;\n")
	dot.WriteString("  bgcolor=\"transparent\";\n")
	dot.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	dot.WriteString("\n")
	dot.WriteString("  \"snippet\" [style=\"rounded,filled,bold\", fillcolor=lightgrey];\n")

	for _, dep := range resolved {
		if dep.Resolution == registry.Unresolved {
			fmt.Fprintf(dot, "  %q [style=\"rounded,filled,dashed\"];\n", dep.RegistryName)
			fmt.Fprintf(dot, "  \"snippet\" -> %q;\n", dep.RegistryName)
			continue
		}
		fmt.Fprintf(dot, "  \"snippet\" -> %q;\n", dep.RegistryName)

		info, err := client.FetchCrate(ctx, dep.RegistryName, refresh)
		if err != nil {
			loggerFromContext(ctx).Warnf("skipping dependencies of %s: %v", dep.RegistryName, err)
			continue
		}
		for _, transitive := range info.Dependencies {
			fmt.Fprintf(dot, "  %q -> %q;\n", dep.RegistryName, transitive)
		}
	}
	dot.WriteString("}\n")

	svg, err := renderSVG(ctx, dot.String())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, svg, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "write graph")
	}
	printSuccess("Rendered dependency graph")
	printDetail("File: %s", path)
	return nil
}

// renderSVG renders a DOT graph to SVG using Graphviz.
func renderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
