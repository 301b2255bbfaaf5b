// Package manifest synthesizes the effective Cargo.toml for a build from
// resolved dependencies and user-supplied overrides.
//
// Merge rule: an override entry always wins completely over an inferred
// dependency of the same name (version, features, everything); inferred
// entries are emitted with version "*" (latest). Output is deterministic
// for deterministic inputs so rebuilds stay diff-free.
package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"playbench/pkg/errors"
	"playbench/pkg/infer"
	"playbench/pkg/registry"
)

// Options controls the generated [package] stanza.
type Options struct {
	Name    string // package name; defaults to "playbench"
	Edition string // Rust edition; defaults to "2021"
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Name == "" {
		out.Name = "playbench"
	}
	if out.Edition == "" {
		out.Edition = "2021"
	}
	return out
}

// Overrides collects user-authored dependency entries. The text of each
// entry is opaque to the synthesizer beyond the names it declares; it is
// reproduced verbatim in the effective manifest and never dropped.
type Overrides struct {
	blocks []string // raw TOML blocks, in insertion order
	names  []string // dependency names declared across all blocks
}

// Names returns the dependency names declared by all override entries.
func (o *Overrides) Names() []string { return o.names }

// Empty reports whether no overrides were added.
func (o *Overrides) Empty() bool { return len(o.blocks) == 0 }

// has reports whether name collides with an override entry, treating
// '-' and '_' as equal per the registry naming convention.
func (o *Overrides) has(name string) bool {
	for _, n := range o.names {
		if infer.NamesEqual(n, name) {
			return true
		}
	}
	return false
}

// AddFragment adds a raw manifest override fragment. The fragment is either
// bare dependency entries (`serde = { version = "1" }`) or a full
// `[dependencies]` table; other sections are rejected. The fragment must be
// valid TOML.
func (o *Overrides) AddFragment(raw string) error {
	body := raw
	if section, ok := dependenciesSection(raw); ok {
		body = section
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	names, err := entryNames(body)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "invalid override fragment")
	}

	o.blocks = append(o.blocks, body)
	o.names = append(o.names, names...)
	return nil
}

// AddDirectives adds `//# ` source header directives as override entries.
func (o *Overrides) AddDirectives(directives []infer.Directive) error {
	for _, d := range directives {
		if _, err := entryNames(d.Text); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidManifest, err, "invalid directive %q", d.Text)
		}
		o.blocks = append(o.blocks, d.Text)
		o.names = append(o.names, d.Name)
	}
	return nil
}

// Synthesize produces the effective Cargo.toml text.
//
// Every registry name appears at most once: inferred entries colliding with
// an override are dropped entirely, and inferred entries that normalize to
// the same registry name are deduplicated. Unresolved dependencies are
// emitted literally so cargo can surface its own diagnostic.
func Synthesize(resolved []registry.Resolved, overrides *Overrides, opts Options) (string, error) {
	opts = (&opts).withDefaults()
	if overrides == nil {
		overrides = &Overrides{}
	}

	inferred := make([]string, 0, len(resolved))
	seen := make(map[string]bool)
	for _, r := range resolved {
		name := r.RegistryName
		norm := strings.ReplaceAll(name, "_", "-")
		if seen[norm] || overrides.has(name) {
			continue
		}
		seen[norm] = true
		inferred = append(inferred, name)
	}
	sort.Strings(inferred)

	var b strings.Builder
	fmt.Fprintf(&b, "[package]\nname = %q\nversion = \"0.0.0\"\nedition = %q\n", opts.Name, opts.Edition)
	b.WriteString("\n[dependencies]\n")

	for _, name := range inferred {
		fmt.Fprintf(&b, "%s = \"*\"\n", name)
	}

	// Long-form [dependencies.x] tables must come after every bare entry,
	// or the table header would capture the entries that follow it.
	var tabled []string
	for _, block := range overrides.blocks {
		bare, tail := splitBlock(block)
		if strings.TrimSpace(bare) != "" {
			b.WriteString(bare)
			if !strings.HasSuffix(bare, "\n") {
				b.WriteByte('\n')
			}
		}
		if tail != "" {
			tabled = append(tabled, tail)
		}
	}
	for _, tail := range tabled {
		b.WriteString(tail)
		if !strings.HasSuffix(tail, "\n") {
			b.WriteByte('\n')
		}
	}

	out := b.String()
	// The merged document must itself parse; a bad override surfaces here
	// rather than as a cryptic cargo failure.
	var doc map[string]toml.Primitive
	if err := toml.Unmarshal([]byte(out), &doc); err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidManifest, err, "synthesized manifest is not valid TOML")
	}
	return out, nil
}

// dependenciesSection extracts the body of a [dependencies] table from a
// fragment, if the fragment carries one. Content outside the table is
// ignored; nested [dependencies.x] headers stay part of the body.
func dependenciesSection(raw string) (string, bool) {
	var b strings.Builder
	in := false
	found := false
	for line := range strings.Lines(raw) {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "[dependencies]":
			in = true
			found = true
		case strings.HasPrefix(trimmed, "[dependencies."):
			in = true
			found = true
			b.WriteString(line)
		case strings.HasPrefix(trimmed, "["):
			in = false
		case in:
			b.WriteString(line)
		}
	}
	return b.String(), found
}

// splitBlock separates a block's bare entries from the portion starting at
// its first [dependencies.x] header. Either part may be empty.
func splitBlock(block string) (bare, tabled string) {
	var head, tail strings.Builder
	in := false
	for line := range strings.Lines(block) {
		if strings.HasPrefix(strings.TrimSpace(line), "[") {
			in = true
		}
		if in {
			tail.WriteString(line)
		} else {
			head.WriteString(line)
		}
	}
	return strings.TrimRight(head.String(), "\n"), strings.TrimRight(tail.String(), "\n")
}

// entryNames parses body as a TOML dependency table and returns its keys.
// A [dependencies.x] header inside a fragment parses as a table nested
// under "dependencies"; its keys are the dependency names.
func entryNames(body string) ([]string, error) {
	var entries map[string]any
	if err := toml.Unmarshal([]byte(body), &entries); err != nil {
		return nil, err
	}
	if sub, ok := entries["dependencies"].(map[string]any); ok {
		delete(entries, "dependencies")
		for name, v := range sub {
			entries[name] = v
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no dependency entries found")
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
