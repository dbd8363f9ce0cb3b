package stream

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func testProcessor() *Processor {
	tick := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := NewProcessor()
	p.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}

	return p
}

func TestIngestSmallWriteIsOneChunk(t *testing.T) {
	p := testProcessor()

	chunks := p.Ingest("hello\n", Stdout, "b-1")
	if len(chunks) != 1 {
		t.Fatalf("Ingest() chunks = %d, want 1", len(chunks))
	}
	if chunks[0].Data != "hello\n" || chunks[0].BlockID != "b-1" || chunks[0].Stream != Stdout {
		t.Fatalf("Ingest() chunk = %+v", chunks[0])
	}
}

func TestIngestEmptyWrite(t *testing.T) {
	if chunks := testProcessor().Ingest("", Stdout, "b-1"); chunks != nil {
		t.Fatalf("Ingest(empty) = %#v, want nil", chunks)
	}
}

func TestIngestSplitsLargeWrites(t *testing.T) {
	p := testProcessor()
	raw := strings.Repeat("x", 4096*2+100)

	chunks := p.Ingest(raw, Stdout, "b-1")
	if len(chunks) != 3 {
		t.Fatalf("Ingest() chunks = %d, want 3", len(chunks))
	}

	var rebuilt strings.Builder
	for i, c := range chunks {
		if i < 2 && len(c.Data) != 4096 {
			t.Errorf("chunk %d len = %d, want 4096", i, len(c.Data))
		}
		rebuilt.WriteString(c.Data)
	}

	if chunks[2].Data != strings.Repeat("x", 100) {
		t.Errorf("final chunk len = %d, want 100", len(chunks[2].Data))
	}
	if rebuilt.String() != raw {
		t.Error("concatenated chunks do not rebuild the input")
	}
}

func TestIngestTimestampsNonDecreasing(t *testing.T) {
	p := testProcessor()

	chunks := p.Ingest(strings.Repeat("y", 4096*3), Stdout, "b-1")
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Timestamp.Before(chunks[i-1].Timestamp) {
			t.Fatalf("chunk %d timestamp precedes chunk %d", i, i-1)
		}
	}
}

func TestIngestBinaryCollapsesToPlaceholder(t *testing.T) {
	p := testProcessor()
	raw := strings.Repeat("\x00\x01", 50)

	chunks := p.Ingest(raw, Stdout, "b-1")
	if len(chunks) != 1 {
		t.Fatalf("Ingest(binary) chunks = %d, want 1", len(chunks))
	}
	if want := "[Binary output - 100 bytes]"; chunks[0].Data != want {
		t.Fatalf("placeholder = %q, want %q", chunks[0].Data, want)
	}
}

func TestIsBinary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"plain text", "ls -la\noutput here\n", false},
		{"tabs and backspaces allowed", "a\tb\bc\r\n", false},
		{"colored output", "\x1b[31mred text that is long enough\x1b[0m\n", false},
		{"null heavy", strings.Repeat("\x00", 20) + "abc", true},
		{"sparse control chars", strings.Repeat("a", 99) + "\x00", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBinary(tt.in); got != tt.want {
				t.Errorf("IsBinary(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBinaryPlaceholderUnits(t *testing.T) {
	if got := BinaryPlaceholder(512); got != "[Binary output - 512 bytes]" {
		t.Errorf("BinaryPlaceholder(512) = %q", got)
	}
	if got := BinaryPlaceholder(4096); got != "[Binary output - 4 KB]" {
		t.Errorf("BinaryPlaceholder(4096) = %q", got)
	}
}

func TestBufferPassThroughWhenInactive(t *testing.T) {
	b := NewBuffer()
	in := []Chunk{{BlockID: "b-1", Data: "x"}}

	out := b.Add(in)
	if len(out) != 1 || out[0].Data != "x" {
		t.Fatalf("Add() = %#v, want pass-through", out)
	}
	if b.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", b.Pending())
	}
}

func TestBufferAccumulatesAndFlushes(t *testing.T) {
	b := NewBuffer()
	b.Start()

	if out := b.Add([]Chunk{{Data: "one"}, {Data: "two"}}); out != nil {
		t.Fatalf("Add() while buffering = %#v, want nil", out)
	}
	if out := b.Add([]Chunk{{Data: "three"}}); out != nil {
		t.Fatalf("Add() while buffering = %#v, want nil", out)
	}

	drained := b.Flush()
	if len(drained) != 3 {
		t.Fatalf("Flush() = %d chunks, want 3", len(drained))
	}
	for i, want := range []string{"one", "two", "three"} {
		if drained[i].Data != want {
			t.Errorf("Flush()[%d] = %q, want %q", i, drained[i].Data, want)
		}
	}

	if again := b.Flush(); len(again) != 0 {
		t.Fatalf("second Flush() = %d chunks, want 0", len(again))
	}
}

func TestBufferStopDiscardsQueue(t *testing.T) {
	b := NewBuffer()
	b.Start()
	b.Add([]Chunk{{Data: "pending"}})
	b.Stop()

	if b.Active() {
		t.Error("Active() = true after Stop")
	}
	if drained := b.Flush(); len(drained) != 0 {
		t.Fatalf("Flush() after Stop = %d chunks, want 0", len(drained))
	}
}

func TestApplyLimitsUnderCeilingUnchanged(t *testing.T) {
	in := "line one\nline two\n"
	if got := ApplyLimits(in); got != in {
		t.Fatalf("ApplyLimits() changed short output: %q", got)
	}
}

func TestApplyLimitsCollapsesLongOutput(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 12000; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}

	got := ApplyLimits(b.String())
	lines := strings.Split(got, "\n")

	if lines[0] != "line 0" {
		t.Errorf("first line = %q, want %q", lines[0], "line 0")
	}
	if lines[4999] != "line 4999" {
		t.Errorf("line 5000 = %q, want %q", lines[4999], "line 4999")
	}

	marker := lines[5000]
	if !strings.Contains(marker, "lines truncated") {
		t.Fatalf("marker line = %q, want truncation marker", marker)
	}
	if !strings.Contains(marker, "2001") {
		// 12000 content lines + 1 trailing empty = 12001; 12001 - 10000 kept = 2001 dropped.
		t.Errorf("marker = %q, want 2001 dropped lines", marker)
	}

	if lines[5001] != "line 7001" {
		t.Errorf("first tail line = %q, want %q", lines[5001], "line 7001")
	}
	if lines[len(lines)-2] != "line 11999" {
		t.Errorf("last content line = %q", lines[len(lines)-2])
	}
}

func TestApplyLimitsHardByteCap(t *testing.T) {
	in := strings.Repeat("z", MaxOutputBytes+1)

	got := ApplyLimits(in)
	if len(got) != MaxOutputBytes {
		t.Fatalf("ApplyLimits() len = %d, want %d", len(got), MaxOutputBytes)
	}
}
