// Package infer extracts external crate dependencies from Rust source text.
//
// Extraction is lexical, not a full parse: the scanner walks the source line
// by line, tracking comment and string state, and collects the first path
// segment of every `use` declaration and `extern crate` item. A syntax error
// in one region never prevents extraction from unaffected regions, which
// matters because the source is usually mid-edit when a build is triggered.
//
// Identifiers that name built-in namespaces (std, core, alloc, crate, self,
// super) or locally declared modules are excluded, since those can never be
// external crates.
package infer

import (
	"sort"
	"strings"
)

// reservedSegments are path roots that can never refer to an external crate.
var reservedSegments = map[string]bool{
	"std":   true,
	"core":  true,
	"alloc": true,
	"crate": true,
	"self":  true,
	"super": true,
}

// Candidate is a crate identifier extracted from an import declaration,
// not yet verified against the registry.
type Candidate struct {
	Identifier string // first path segment, e.g. "serde_json"
	Offset     int    // byte offset where the identifier was first seen
}

// Directive is a manifest override taken from a leading `//# ` comment line,
// e.g. `//# serde = { version = "1", features = ["derive"] }`.
type Directive struct {
	Name string // dependency name left of '='
	Text string // the full TOML fragment, without the comment marker
}

// Result holds everything the scanner learned from one source snapshot.
type Result struct {
	Candidates []Candidate
	Directives []Directive
}

// Scan extracts dependency candidates and manifest directives from source.
// It is a pure function of the text and never fails; unparseable regions
// contribute nothing.
func Scan(source string) Result {
	s := &scanner{
		source: source,
		seen:   make(map[string]int),
		mods:   make(map[string]bool),
	}
	s.run()

	candidates := make([]Candidate, 0, len(s.seen))
	for ident, off := range s.seen {
		if s.mods[ident] {
			continue
		}
		candidates = append(candidates, Candidate{Identifier: ident, Offset: off})
	}
	// Insertion order is irrelevant for membership, but stable output keeps
	// manifests and logs deterministic.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Identifier < candidates[j].Identifier
	})

	return Result{Candidates: candidates, Directives: Directives(source)}
}

// Extract returns only the dependency candidates of Scan.
func Extract(source string) []Candidate {
	return Scan(source).Candidates
}

// Directives parses the leading `//# ` override lines of source.
// Processing stops at the first line that is neither a directive nor blank.
func Directives(source string) []Directive {
	var out []Directive
	for line := range strings.Lines(source) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		frag, ok := strings.CutPrefix(trimmed, "//# ")
		if !ok {
			break
		}
		frag = strings.TrimSpace(frag)
		name, _, found := strings.Cut(frag, "=")
		if !found {
			continue
		}
		out = append(out, Directive{Name: strings.TrimSpace(name), Text: frag})
	}
	return out
}

// NamesEqual compares crate names treating '-' and '_' as the same character,
// the registry's naming convention.
func NamesEqual(a, b string) bool {
	norm := func(r rune) rune {
		if r == '-' {
			return '_'
		}
		return r
	}
	return strings.Map(norm, a) == strings.Map(norm, b)
}

// scanner walks the source once, line by line, with just enough token state
// to skip comments and string literals.
type scanner struct {
	source string
	seen   map[string]int  // identifier -> first byte offset
	mods   map[string]bool // locally declared module names

	inBlockComment bool

	// A use declaration may span lines; stmt accumulates its text between
	// the `use` keyword and the terminating semicolon. stmtOffs maps byte
	// indexes of the accumulated text back to source offsets, so each root
	// identifier can be recorded at its own position.
	inUse    bool
	stmt     strings.Builder
	stmtOffs []stmtSegment
}

// stmtSegment marks where one appended token starts, both in the
// accumulated statement and in the source.
type stmtSegment struct {
	stmtPos int
	srcPos  int
}

// pushStmt appends one token of a use statement, remembering its source
// offset.
func (s *scanner) pushStmt(text string, srcPos int) {
	s.stmtOffs = append(s.stmtOffs, stmtSegment{stmtPos: s.stmt.Len(), srcPos: srcPos})
	s.stmt.WriteString(text)
}

// srcOffset maps a byte index of the accumulated statement back to the
// source offset it came from.
func (s *scanner) srcOffset(stmtPos int) int {
	off := 0
	for _, seg := range s.stmtOffs {
		if seg.stmtPos > stmtPos {
			break
		}
		off = seg.srcPos + (stmtPos - seg.stmtPos)
	}
	return off
}

func (s *scanner) run() {
	offset := 0
	for line := range strings.Lines(s.source) {
		s.scanLine(line, offset)
		offset += len(line)
	}
	// An unterminated use statement at EOF is still worth a best-effort
	// parse; the user may simply not have typed the semicolon yet.
	if s.inUse {
		s.finishUse()
	}
}

// scanLine processes one line of source, emitting into seen/mods.
func (s *scanner) scanLine(line string, offset int) {
	code := s.stripComments(line)
	fields := tokenize(code)

	for i := 0; i < len(fields); i++ {
		tok := fields[i]

		if s.inUse {
			if end := strings.IndexByte(tok.text, ';'); end >= 0 {
				s.pushStmt(tok.text[:end], offset+tok.pos)
				s.finishUse()
				continue
			}
			s.pushStmt(tok.text, offset+tok.pos)
			s.stmt.WriteByte(' ')
			continue
		}

		switch tok.text {
		case "use":
			s.inUse = true
			s.stmt.Reset()
			s.stmtOffs = s.stmtOffs[:0]
		case "mod":
			// `mod name;` declares an external file module, `mod name {`
			// an inline one; both shadow a crate of the same name.
			if i+1 < len(fields) {
				if name, ok := identPrefix(fields[i+1].text); ok {
					s.mods[name] = true
				}
			}
		case "extern":
			if i+2 < len(fields) && fields[i+1].text == "crate" {
				if name, ok := identPrefix(fields[i+2].text); ok {
					s.record(name, offset+fields[i+2].pos)
				}
				i += 2
			}
		}
	}
}

// finishUse parses the accumulated use tree and records its root segments.
func (s *scanner) finishUse() {
	tree := s.stmt.String()
	s.stmt.Reset()
	s.inUse = false
	s.recordTree(tree, 0)
}

// recordTree handles a use tree: either a plain path (`a::b::C as D`) or a
// brace group (`{a::b, c}`) whose top-level entries are recursed into.
// pos is the tree's byte index within the accumulated statement; each root
// is recorded at its own source offset.
func (s *scanner) recordTree(tree string, pos int) {
	trimmed := strings.TrimLeft(tree, " \t")
	pos += len(tree) - len(trimmed)
	tree = strings.TrimRight(trimmed, " \t")
	if t, ok := strings.CutPrefix(tree, "::"); ok {
		tree = t
		pos += 2
	}
	if tree == "" {
		return
	}

	if strings.HasPrefix(tree, "{") {
		inner := tree[1:]
		if end := strings.LastIndexByte(inner, '}'); end >= 0 {
			inner = inner[:end]
		}
		itemPos := pos + 1
		for _, item := range splitTopLevel(inner) {
			s.recordTree(item, itemPos)
			itemPos += len(item) + 1
		}
		return
	}

	root := tree
	if i := strings.Index(root, "::"); i >= 0 {
		root = root[:i]
	}
	if name, ok := identPrefix(root); ok {
		s.record(name, s.srcOffset(pos))
	}
}

func (s *scanner) record(name string, offset int) {
	if reservedSegments[name] {
		return
	}
	if _, dup := s.seen[name]; dup {
		return
	}
	s.seen[name] = offset
}

// stripComments removes line comments and tracks block comment state across
// lines. String literals are respected so `"// not a comment"` survives.
func (s *scanner) stripComments(line string) string {
	var b strings.Builder
	inString := false
	for i := 0; i < len(line); i++ {
		if s.inBlockComment {
			if line[i] == '*' && i+1 < len(line) && line[i+1] == '/' {
				s.inBlockComment = false
				i++
			}
			continue
		}
		c := line[i]
		if inString {
			if c == '\\' {
				// Keep escapes opaque so \" doesn't end the literal.
				b.WriteByte(c)
				if i+1 < len(line) {
					i++
					b.WriteByte(line[i])
				}
				continue
			}
			if c == '"' {
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return b.String()
		case c == '/' && i+1 < len(line) && line[i+1] == '*':
			s.inBlockComment = true
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// token is a whitespace-delimited field with its byte position in the line.
type token struct {
	text string
	pos  int
}

func tokenize(line string) []token {
	var out []token
	i := 0
	for i < len(line) {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		start := i
		for i < len(line) && !isSpace(line[i]) {
			i++
		}
		if i > start {
			out = append(out, token{text: line[start:i], pos: start})
		}
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// identPrefix returns the leading Rust identifier of tok, if any.
// Raw identifiers (`r#match`) are unwrapped.
func identPrefix(tok string) (string, bool) {
	tok = strings.TrimPrefix(tok, "r#")
	end := 0
	for end < len(tok) && isIdentByte(tok[end], end == 0) {
		end++
	}
	if end == 0 {
		return "", false
	}
	return tok[:end], true
}

func isIdentByte(c byte, first bool) bool {
	if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}
	return !first && c >= '0' && c <= '9'
}

// splitTopLevel splits a brace-group body on commas that are not nested
// inside inner braces.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}
