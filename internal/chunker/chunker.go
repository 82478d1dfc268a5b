// Package chunker splits long texts (diffs, test output) into bounded
// pieces before they are embedded for similarity recall.
package chunker

import (
	"strings"
)

const (
	DefaultTargetSize = 800
	DefaultMaxSize    = 1200
)

// Options configures chunking behavior.
type Options struct {
	TargetSize int
	MaxSize    int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MaxSize:    DefaultMaxSize,
	}
}

// Chunk splits text into pieces no longer than opts.MaxSize. Short text
// returns a single chunk. Splits prefer blank-line boundaries and fall back
// to line boundaries for oversized blocks.
func Chunk(text string, opts Options) []string {
	if opts.TargetSize == 0 {
		opts = DefaultOptions()
	}

	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}
	if len(text) <= opts.MaxSize {
		return []string{text}
	}

	return merge(splitBlocks(text), opts)
}

// splitBlocks splits text on blank lines.
func splitBlocks(text string) []string {
	var blocks []string
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		if b := strings.TrimSpace(strings.Join(current, "\n")); b != "" {
			blocks = append(blocks, b)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	return blocks
}

// merge combines adjacent small blocks up to the target size and hard-splits
// blocks that exceed the maximum on their own.
func merge(blocks []string, opts Options) []string {
	var chunks []string
	var accum string

	flush := func() {
		if accum == "" {
			return
		}
		if len(accum) > opts.MaxSize {
			chunks = append(chunks, hardSplit(accum, opts)...)
		} else {
			chunks = append(chunks, accum)
		}
		accum = ""
	}

	for _, b := range blocks {
		if accum == "" {
			accum = b
			continue
		}
		if len(accum)+len(b)+2 <= opts.TargetSize {
			accum += "\n\n" + b
		} else {
			flush()
			accum = b
		}
	}
	flush()

	return chunks
}

// hardSplit breaks text that exceeds the maximum on line boundaries.
func hardSplit(text string, opts Options) []string {
	var chunks []string
	var current []string
	curLen := 0

	flush := func() {
		if c := strings.TrimSpace(strings.Join(current, "\n")); c != "" {
			chunks = append(chunks, c)
		}
		current = nil
		curLen = 0
	}

	for _, line := range strings.Split(text, "\n") {
		if curLen+len(line) > opts.TargetSize && len(current) > 0 {
			flush()
		}
		current = append(current, line)
		curLen += len(line) + 1
	}
	flush()

	return chunks
}
