package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"playbench/pkg/errors"
	"playbench/pkg/infer"
	"playbench/pkg/manifest"
	"playbench/pkg/registry"
	"playbench/pkg/runner"
	"playbench/pkg/term"
)

// runOpts holds the command-line flags for the run command.
type runOpts struct {
	release    bool   // build with optimizations
	channel    string // toolchain channel (stable, beta, nightly, version)
	subcommand string // cargo subcommand (run, build, check, test)
	backtrace  bool   // set RUST_BACKTRACE=1
	noCache    bool   // disable the resolution cache
	refresh    bool   // bypass cached resolutions
	manifest   string // extra override fragment file
	name       string // generated package name
	edition    string // Rust edition for the generated package
	tui        bool   // live full-screen console
	keep       bool   // keep the scratch project directory
}

// runCommand creates the run command, the main entry point of the tool.
func (c *CLI) runCommand() *cobra.Command {
	opts := runOpts{subcommand: runner.SubcommandRun}

	cmd := &cobra.Command{
		Use:   "run [file | -] [-- program args]",
		Short: "Build and run a Rust snippet with inferred dependencies",
		Long: `Build and run a throwaway Rust snippet.

Crate dependencies are inferred from use declarations, resolved against
crates.io, and written into a generated Cargo.toml. Leading "//# name = ..."
comment lines override the inferred entry for that name.

Examples:
  playbench run snippet.rs
  playbench run snippet.rs --release -- --input data.csv
  echo 'fn main() { println!("hi") }' | playbench run -
  playbench run snippet.rs --channel nightly --subcommand check`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var programArgs []string
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				programArgs = args[dash:]
				args = args[:dash]
			}
			if len(args) != 1 {
				return errors.New(errors.ErrCodeInvalidInput, "expected exactly one source file (or - for stdin)")
			}
			return c.runSnippet(cmd.Context(), args[0], programArgs, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.release, "release", false, "build with optimizations")
	cmd.Flags().StringVar(&opts.channel, "channel", "", "toolchain channel (stable, beta, nightly, or a version)")
	cmd.Flags().StringVar(&opts.subcommand, "subcommand", opts.subcommand, "cargo subcommand (run, build, check, test)")
	cmd.Flags().BoolVar(&opts.backtrace, "backtrace", false, "run with RUST_BACKTRACE=1")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the resolution cache")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "re-resolve crate names, bypassing the cache")
	cmd.Flags().StringVarP(&opts.manifest, "manifest", "m", "", "file with extra [dependencies] overrides")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "generated package name")
	cmd.Flags().StringVar(&opts.edition, "edition", "", "Rust edition for the generated package")
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "show a live full-screen console")
	cmd.Flags().BoolVar(&opts.keep, "keep", false, "keep the scratch project directory")

	return cmd
}

func (c *CLI) runSnippet(ctx context.Context, file string, programArgs []string, opts runOpts) error {
	logger := loggerFromContext(ctx)

	source, err := readSource(file)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "read source")
	}

	effective, resolved, err := c.synthesize(ctx, source, opts)
	if err != nil {
		return err
	}
	for _, dep := range resolved {
		switch dep.Resolution {
		case registry.HyphenFallback:
			printDetail("%s → %s", dep.Identifier, dep.RegistryName)
		case registry.Unresolved:
			printWarning("could not resolve %q, passing it through", dep.Identifier)
		}
	}

	project, err := runner.Materialize(effective, source)
	if err != nil {
		return err
	}
	if !opts.keep {
		defer project.Remove()
	}
	logger.Debug("project materialized", "dir", project.Dir)

	cmd := runner.Command{
		Channel:     opts.channel,
		Subcommand:  opts.subcommand,
		CargoFlags:  []string{"--color=always"},
		Release:     opts.release,
		ProgramArgs: programArgs,
		Backtrace:   opts.backtrace,
	}

	console := runner.NewConsole(runner.New(logger))
	session, err := console.Start(ctx, project, cmd)
	if err != nil {
		return err
	}

	if opts.tui {
		err = watchSession(ctx, session)
	} else {
		err = streamSession(ctx, session)
	}
	if err != nil {
		return err
	}

	switch session.State() {
	case runner.StateSuccess:
		printSuccess("finished")
		return nil
	case runner.StateCancelled:
		printWarning("cancelled")
		return context.Canceled
	default:
		return errors.New(errors.ErrCodeBuildFailed, "build failed with exit code %d", session.ExitCode())
	}
}

// synthesize runs the inference half of the pipeline: scan, resolve,
// merge overrides, emit the effective manifest.
func (c *CLI) synthesize(ctx context.Context, source string, opts runOpts) (string, []registry.Resolved, error) {
	logger := loggerFromContext(ctx)

	scanned := infer.Scan(source)
	overrides := &manifest.Overrides{}
	if err := overrides.AddDirectives(scanned.Directives); err != nil {
		return "", nil, err
	}
	if opts.manifest != "" {
		fragment, err := os.ReadFile(opts.manifest)
		if err != nil {
			return "", nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "read override manifest")
		}
		if err := overrides.AddFragment(string(fragment)); err != nil {
			return "", nil, err
		}
	}

	ids := candidateIDs(scanned.Candidates, overrides)
	logger.Debug("inference complete", "candidates", ids, "overrides", overrides.Names())

	var resolved []registry.Resolved
	if len(ids) > 0 {
		_, resolver, err := c.newRegistry(opts.noCache)
		if err != nil {
			return "", nil, err
		}

		spin := newSpinnerWithContext(ctx, fmt.Sprintf("resolving %d crates", len(ids)))
		spin.Start()
		track := newProgress(logger)
		if opts.refresh {
			resolved = make([]registry.Resolved, len(ids))
			for i, id := range ids {
				resolved[i] = resolver.Refresh(ctx, id)
			}
		} else {
			resolved = resolver.ResolveAll(ctx, ids)
		}
		spin.Stop()
		track.done(fmt.Sprintf("Resolved %d crates", len(ids)))
	}

	effective, err := manifest.Synthesize(resolved, overrides, manifest.Options{Name: opts.name, Edition: opts.edition})
	if err != nil {
		return "", nil, err
	}
	return effective, resolved, nil
}

// candidateIDs drops candidates the user already overrode by name.
func candidateIDs(candidates []infer.Candidate, overrides *manifest.Overrides) []string {
	var ids []string
candidates:
	for _, cand := range candidates {
		for _, name := range overrides.Names() {
			if infer.NamesEqual(cand.Identifier, name) {
				continue candidates
			}
		}
		ids = append(ids, cand.Identifier)
	}
	return ids
}

// linePrinter streams completed lines exactly once, tracking them by their
// ordinal in the whole output rather than by snapshot index, so buffer
// eviction cannot shift which lines have already been printed.
type linePrinter struct {
	w       io.Writer
	printed int // ordinal of the next unprinted line
}

// flush prints every line not yet printed. With holdCurrent the last line of
// the snapshot is kept back since progress redraws may still rewrite it.
func (p *linePrinter) flush(buf *term.Buffer, holdCurrent bool) {
	snapshot, total := buf.SnapshotTotal()
	upTo := len(snapshot)
	if holdCurrent && upTo > 0 {
		upTo--
	}
	first := p.printed - (total - len(snapshot))
	if first < 0 {
		// Lines evicted before a flush are gone for good.
		first = 0
	}
	for i := first; i < upTo; i++ {
		fmt.Fprintln(p.w, renderLine(snapshot[i]))
	}
	p.printed = total - len(snapshot) + upTo
}

// streamSession prints completed terminal lines as they appear. The current
// line is held back until the session ends since progress redraws may still
// rewrite it.
func streamSession(ctx context.Context, session *runner.Session) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	p := &linePrinter{w: os.Stdout}
	for {
		select {
		case <-ctx.Done():
			session.Cancel()
			<-session.Done()
			p.flush(session.Buffer(), false)
			return nil
		case <-session.Done():
			p.flush(session.Buffer(), false)
			return nil
		case <-ticker.C:
			p.flush(session.Buffer(), true)
		}
	}
}

// watchSession runs the full-screen live console until the build ends or
// the user quits, then prints the final output.
func watchSession(ctx context.Context, session *runner.Session) error {
	program := tea.NewProgram(newConsoleModel(session), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	session.Cancel() // no-op unless the user quit mid-build
	<-session.Done()
	fmt.Print(renderLines(session.Buffer().Snapshot()))
	return nil
}
