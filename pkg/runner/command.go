// Package runner drives the external build tool: it materializes a project
// on disk, spawns cargo against it, and supervises the process while its
// combined output is streamed into a terminal buffer.
package runner

// Subcommand names accepted by Command.
const (
	SubcommandRun   = "run"
	SubcommandBuild = "build"
	SubcommandCheck = "check"
	SubcommandTest  = "test"
)

// Command describes a cargo invocation. The zero value runs
// `cargo run` on the default toolchain.
type Command struct {
	// Program is the build tool binary, "cargo" when empty.
	Program string
	// Channel selects a toolchain ("stable", "nightly", "1.80.0").
	Channel string
	// Subcommand is the cargo subcommand, SubcommandRun when empty.
	Subcommand string
	// CargoFlags are passed to cargo itself, before the subcommand
	// ("--quiet", "--color=always").
	CargoFlags []string
	// SubcommandFlags are passed to the subcommand.
	SubcommandFlags []string
	// Release builds with optimizations.
	Release bool
	// ProgramArgs are forwarded to the compiled program after "--".
	ProgramArgs []string
	// Backtrace sets RUST_BACKTRACE=1 in the child environment.
	Backtrace bool
}

// Path returns the binary to execute.
func (c Command) Path() string {
	if c.Program == "" {
		return "cargo"
	}
	return c.Program
}

// Args assembles the argument list in the order cargo requires: toolchain
// selector, cargo flags, subcommand, subcommand flags, release flag, then
// program arguments behind the "--" separator.
func (c Command) Args() []string {
	var args []string
	if c.Channel != "" {
		args = append(args, "+"+c.Channel)
	}
	args = append(args, c.CargoFlags...)
	sub := c.Subcommand
	if sub == "" {
		sub = SubcommandRun
	}
	args = append(args, sub)
	args = append(args, c.SubcommandFlags...)
	if c.Release {
		args = append(args, "--release")
	}
	if len(c.ProgramArgs) > 0 {
		args = append(args, "--")
		args = append(args, c.ProgramArgs...)
	}
	return args
}

// Env returns extra environment entries for the child process.
func (c Command) Env() []string {
	var env []string
	if c.Backtrace {
		env = append(env, "RUST_BACKTRACE=1")
	}
	return env
}
