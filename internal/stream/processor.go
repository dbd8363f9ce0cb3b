// Package stream shapes raw PTY output before it reaches consumers:
// it chunks large writes, replaces binary payloads with placeholders,
// batches chunks behind a flush buffer, and enforces per-block output
// ceilings.
package stream

import (
	"fmt"
	"time"
)

// Kind identifies which stream a chunk came from.
type Kind string

// Stream kinds. A PTY merges the child's stdout and stderr, so Stderr
// only appears when the backend can tell them apart.
const (
	Stdout Kind = "stdout"
	Stderr Kind = "stderr"
)

// Chunk is one ordered slice of a block's output. Chunks are ephemeral:
// they exist to carry data from the PTY callback to the block, where
// they are concatenated in arrival order.
type Chunk struct {
	BlockID   string
	Data      string
	Stream    Kind
	Timestamp time.Time
}

const (
	// maxChunkRunes caps a single chunk's size in characters.
	maxChunkRunes = 4096

	// binaryControlRatio is the fraction of disallowed control
	// characters above which a payload is treated as binary.
	binaryControlRatio = 0.10
)

// Processor turns raw output into chunks. The zero value is not usable;
// construct with NewProcessor.
type Processor struct {
	now func() time.Time
}

// NewProcessor returns a Processor using the real clock.
func NewProcessor() *Processor {
	return &Processor{now: time.Now}
}

// Ingest converts one raw write into ordered chunks for blockID. Binary
// payloads collapse into a single placeholder chunk; anything longer
// than 4096 characters is split, preserving order.
func (p *Processor) Ingest(raw string, kind Kind, blockID string) []Chunk {
	if raw == "" {
		return nil
	}

	if IsBinary(raw) {
		return []Chunk{{
			BlockID:   blockID,
			Data:      BinaryPlaceholder(len(raw)),
			Stream:    kind,
			Timestamp: p.now(),
		}}
	}

	runes := []rune(raw)
	chunks := make([]Chunk, 0, (len(runes)+maxChunkRunes-1)/maxChunkRunes)

	for start := 0; start < len(runes); start += maxChunkRunes {
		end := start + maxChunkRunes
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, Chunk{
			BlockID:   blockID,
			Data:      string(runes[start:end]),
			Stream:    kind,
			Timestamp: p.now(),
		})
	}

	return chunks
}

// IsBinary reports whether text looks like raw binary: more than 10% of
// its characters are control characters other than newline, carriage
// return, tab, and backspace.
func IsBinary(text string) bool {
	if text == "" {
		return false
	}

	total, control := 0, 0

	for _, r := range text {
		total++

		// Escape bytes are styling, not binary: colored output must
		// survive this check on its way to the SGR parser.
		if r >= 0x20 || r == '\n' || r == '\r' || r == '\t' || r == '\b' || r == 0x1b {
			continue
		}

		control++
	}

	return float64(control) > binaryControlRatio*float64(total)
}

// BinaryPlaceholder is the text substituted for a binary payload.
func BinaryPlaceholder(sizeBytes int) string {
	if sizeBytes > 1024 {
		return fmt.Sprintf("[Binary output - %d KB]", sizeBytes/1024)
	}

	return fmt.Sprintf("[Binary output - %d bytes]", sizeBytes)
}
