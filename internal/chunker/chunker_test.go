package chunker

import (
	"strings"
	"testing"
)

func TestChunkShortText(t *testing.T) {
	chunks := Chunk("short diff output", DefaultOptions())
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "short diff output" {
		t.Errorf("unexpected chunk content %q", chunks[0])
	}
}

func TestChunkEmpty(t *testing.T) {
	if chunks := Chunk("", DefaultOptions()); chunks != nil {
		t.Errorf("expected nil for empty text, got %v", chunks)
	}
	if chunks := Chunk("   \n\n  ", DefaultOptions()); chunks != nil {
		t.Errorf("expected nil for whitespace text, got %v", chunks)
	}
}

func TestChunkRespectsMaxSize(t *testing.T) {
	opts := Options{TargetSize: 100, MaxSize: 150}

	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("--- a line of test runner output that repeats ---\n")
	}

	chunks := Chunk(b.String(), opts)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > opts.MaxSize {
			t.Errorf("chunk %d exceeds max size: %d > %d", i, len(c), opts.MaxSize)
		}
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk %d is blank", i)
		}
	}
}

func TestChunkMergesSmallBlocks(t *testing.T) {
	opts := Options{TargetSize: 50, MaxSize: 80}
	text := "aa\n\nbb\n\ncc\n\n" + strings.Repeat("d", 70)

	chunks := Chunk(text, opts)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	// The three small blocks fit one target-sized chunk together.
	if chunks[0] != "aa\n\nbb\n\ncc" {
		t.Errorf("expected merged first chunk, got %q", chunks[0])
	}
}
