// Package term holds the bounded display buffer that build output is
// rendered into.
//
// A Buffer is a scrolling log of styled lines with fixed capacity: when
// full, the oldest line is evicted. The current (last) line can be redrawn
// in place, which is how build tools animate progress bars without
// scrolling. Writers mutate the buffer through Apply/Append; renderers poll
// Snapshot, which is cheap and safe to call concurrently with the writer.
package term

import (
	"strings"
	"sync"

	"playbench/pkg/ansi"
)

// DefaultCapacity is the line capacity used when none is specified.
const DefaultCapacity = 5000

// Run is an immutable stretch of text under one style.
type Run struct {
	Text  string
	Style ansi.Style
}

// Line is an ordered sequence of styled runs.
// Lines handed out by Snapshot are independent copies.
type Line struct {
	Runs []Run
}

// Text returns the line's content with styling stripped.
func (l Line) Text() string {
	var b strings.Builder
	for _, r := range l.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// Buffer is a bounded ring of terminal lines.
type Buffer struct {
	mu    sync.Mutex
	lines []Line
	start int // ring index of the oldest line
	count int
	total int // lines ever started, including evicted ones

	// pendingLine defers materializing the line after a newline until text
	// arrives, so a trailing "\n" doesn't surface as an empty line.
	pendingLine bool
	// pendingOverwrite marks that a carriage return was seen: the next
	// append clears the current line first. Deferred rather than immediate
	// so "\r\n" endings don't erase completed lines.
	pendingOverwrite bool
}

// NewBuffer creates a buffer holding at most capacity lines.
// A capacity below one falls back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{lines: make([]Line, capacity)}
}

// Apply routes one parser event into the buffer.
func (b *Buffer) Apply(ev ansi.Event) {
	switch ev.Kind {
	case ansi.EventText:
		b.Append(ev.Style, ev.Text)
	case ansi.EventNewline:
		b.NewLine()
	case ansi.EventCarriageReturn:
		b.CarriageReturn()
	case ansi.EventEraseLine:
		b.EraseLine()
	}
}

// Append adds text to the current line under the given style.
// Adjacent appends with an equal style coalesce into one run, so chunk
// boundaries in the byte stream never show up in snapshots.
func (b *Buffer) Append(style ansi.Style, text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	line := b.current()
	if b.pendingOverwrite {
		line.Runs = nil
		b.pendingOverwrite = false
	}
	if n := len(line.Runs); n > 0 && line.Runs[n-1].Style == style {
		line.Runs[n-1].Text += text
		return
	}
	line.Runs = append(line.Runs, Run{Text: text, Style: style})
}

// NewLine completes the current line; the next append starts a fresh one,
// evicting the oldest line if the buffer is at capacity.
func (b *Buffer) NewLine() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current() // materialize, so "\n\n" yields an empty line between
	b.pendingOverwrite = false
	b.pendingLine = true
}

// CarriageReturn arms an in-place overwrite of the current line.
func (b *Buffer) CarriageReturn() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pendingOverwrite = true
}

// EraseLine clears the current line's runs in place, leaving earlier
// completed lines untouched.
func (b *Buffer) EraseLine() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current().Runs = nil
}

// Snapshot returns an ordered copy of the buffer's lines, oldest first.
// The copy shares no mutable state with the buffer.
func (b *Buffer) Snapshot() []Line {
	lines, _ := b.SnapshotTotal()
	return lines
}

// SnapshotTotal returns the snapshot together with the total number of lines
// ever started, taken under one lock. The ordinal of lines[i] within the
// whole output is total - len(lines) + i, which stays valid across eviction.
func (b *Buffer) SnapshotTotal() ([]Line, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Line, b.count)
	for i := 0; i < b.count; i++ {
		src := b.lines[(b.start+i)%len(b.lines)]
		runs := make([]Run, len(src.Runs))
		copy(runs, src.Runs)
		out[i] = Line{Runs: runs}
	}
	return out, b.total
}

// Len returns the number of lines currently held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the fixed line capacity.
func (b *Buffer) Cap() int { return len(b.lines) }

// current returns the line under the cursor, materializing it if the buffer
// is empty or a newline is pending. Callers must hold b.mu.
func (b *Buffer) current() *Line {
	if b.count == 0 || b.pendingLine {
		b.push()
		b.pendingLine = false
	}
	return &b.lines[(b.start+b.count-1)%len(b.lines)]
}

// push appends an empty line, evicting the oldest if at capacity.
// The evicted line is always the oldest, never the one being written.
func (b *Buffer) push() {
	if b.count == len(b.lines) {
		b.lines[b.start] = Line{}
		b.start = (b.start + 1) % len(b.lines)
		b.count--
	}
	idx := (b.start + b.count) % len(b.lines)
	b.lines[idx] = Line{}
	b.count++
	b.total++
}
