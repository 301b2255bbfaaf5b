package term

import (
	"fmt"
	"reflect"
	"testing"

	"playbench/pkg/ansi"
)

// feed runs raw bytes through a fresh parser into the buffer, the same path
// a build session's reader uses.
func feed(b *Buffer, input string) {
	p := ansi.NewParser()
	for _, ev := range p.Feed([]byte(input)) {
		b.Apply(ev)
	}
}

func lineTexts(b *Buffer) []string {
	var out []string
	for _, l := range b.Snapshot() {
		out = append(out, l.Text())
	}
	return out
}

func TestProgressOverwrite(t *testing.T) {
	b := NewBuffer(100)
	feed(b, "50%\r60%\r70%\n")

	want := []string{"70%"}
	if got := lineTexts(b); !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestCRLFDoesNotEraseLines(t *testing.T) {
	b := NewBuffer(100)
	feed(b, "hello\r\nworld\r\n")

	want := []string{"hello", "world"}
	if got := lineTexts(b); !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestStyledRuns(t *testing.T) {
	b := NewBuffer(100)
	feed(b, "\x1b[31mERROR\x1b[0m: failed\n")

	lines := b.Snapshot()
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	want := []Run{
		{Text: "ERROR", Style: ansi.Style{Fg: ansi.BasicOf(ansi.Red)}},
		{Text: ": failed"},
	}
	if !reflect.DeepEqual(lines[0].Runs, want) {
		t.Errorf("runs = %v, want %v", lines[0].Runs, want)
	}
}

func TestCoalescesSameStyleAppends(t *testing.T) {
	b := NewBuffer(100)

	// Chunk boundaries split a run into multiple appends.
	b.Append(ansi.Style{}, "compil")
	b.Append(ansi.Style{}, "ing foo")
	b.Append(ansi.Style{Bold: true}, " v1.0")

	lines := b.Snapshot()
	if len(lines) != 1 || len(lines[0].Runs) != 2 {
		t.Fatalf("lines = %v, want one line with two runs", lines)
	}
	if lines[0].Runs[0].Text != "compiling foo" {
		t.Errorf("run text = %q, want %q", lines[0].Runs[0].Text, "compiling foo")
	}
}

func TestEraseLineClearsOnlyCurrent(t *testing.T) {
	b := NewBuffer(100)
	feed(b, "done\nbuilding...")
	b.EraseLine()
	b.Append(ansi.Style{}, "finished")

	want := []string{"done", "finished"}
	if got := lineTexts(b); !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestBlankLinesPreserved(t *testing.T) {
	b := NewBuffer(100)
	feed(b, "a\n\nb\n")

	want := []string{"a", "", "b"}
	if got := lineTexts(b); !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestTrailingNewlineLeavesNoEmptyLine(t *testing.T) {
	b := NewBuffer(100)
	feed(b, "only\n")

	if got := lineTexts(b); !reflect.DeepEqual(got, []string{"only"}) {
		t.Errorf("lines = %v, want [only]", got)
	}
}

func TestSnapshotTotalCountsEvictedLines(t *testing.T) {
	b := NewBuffer(2)
	feed(b, "a\nb\nc\n")

	lines, total := b.SnapshotTotal()
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	want := []string{"b", "c"}
	got := []string{lines[0].Text(), lines[1].Text()}
	if len(lines) != 2 || !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestEvictsOldestAtCapacity(t *testing.T) {
	b := NewBuffer(3)
	for i := 1; i <= 5; i++ {
		feed(b, fmt.Sprintf("line %d\n", i))
	}

	want := []string{"line 3", "line 4", "line 5"}
	if got := lineTexts(b); !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
	if b.Len() != 3 || b.Cap() != 3 {
		t.Errorf("len/cap = %d/%d, want 3/3", b.Len(), b.Cap())
	}
}

func TestCurrentLineSurvivesEviction(t *testing.T) {
	b := NewBuffer(2)
	feed(b, "a\nb\nc\nin prog")
	b.Append(ansi.Style{}, "ress")

	want := []string{"c", "in progress"}
	if got := lineTexts(b); !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestOverwriteAfterEviction(t *testing.T) {
	b := NewBuffer(2)
	feed(b, "a\nb\n10%\r20%")

	want := []string{"b", "20%"}
	if got := lineTexts(b); !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	b := NewBuffer(100)
	feed(b, "stable\npartial")

	snap := b.Snapshot()
	b.Append(ansi.Style{}, " grows")
	snap[1].Runs[0].Text = "mutated"

	if snap[0].Text() != "stable" || snap[1].Text() != "mutated" {
		t.Fatalf("snapshot unexpectedly shared: %v", snap)
	}
	want := []string{"stable", "partial grows"}
	if got := lineTexts(b); !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestConcurrentSnapshotWhileWriting(t *testing.T) {
	b := NewBuffer(64)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			b.Append(ansi.Style{}, "x")
			if i%10 == 0 {
				b.NewLine()
			}
		}
	}()
	for i := 0; i < 200; i++ {
		b.Snapshot()
	}
	<-done

	if b.Len() == 0 {
		t.Error("buffer empty after writes")
	}
}
