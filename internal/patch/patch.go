// Package patch generates and applies reversible single-file edits.
//
// A Patch carries the full before and after text plus a unified-diff
// rendering. Applying forward writes Updated; reverting writes Original
// directly, so a rollback never depends on inverting a diff.
package patch

import (
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Patch is a named, reversible change to one file.
type Patch struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Original string `json:"original"`
	Updated  string `json:"updated"`
	Diff     string `json:"diff"`
}

// New builds a patch for path, rendering the diff with the given number of
// context lines.
func New(path, original, updated string, contextLines int) *Patch {
	return &Patch{
		ID:       ulid.Make().String(),
		Path:     path,
		Original: original,
		Updated:  updated,
		Diff:     Generate(original, updated, path, contextLines),
	}
}

// Size returns the encoded size of the diff in bytes.
func (p *Patch) Size() int { return len(p.Diff) }

// IsNoop reports whether the patch leaves the file unchanged.
func (p *Patch) IsNoop() bool { return p.Original == p.Updated }

// Creates reports whether the patch creates a previously absent file.
func (p *Patch) Creates() bool { return p.Original == "" && p.Updated != "" }

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

// lineOp is one whole line of the diff, terminator included. The final line
// of a file may lack its terminator.
type lineOp struct {
	kind opKind
	text string
}

// Generate renders a deterministic unified diff between two full-file
// contents. Applying the result to original reproduces updated byte for
// byte, including trailing-newline state. Identical inputs yield "".
func Generate(original, updated, filename string, contextLines int) string {
	if original == updated {
		return ""
	}

	ops := diffLines(original, updated)
	hunks := groupHunks(ops, contextLines)
	if len(hunks) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("--- " + filename + "\n")
	b.WriteString("+++ " + filename + "\n")
	for _, h := range hunks {
		h.render(&b)
	}
	return b.String()
}

// diffLines computes line-level operations using the sergi/go-diff
// line-mode reduction, keeping each line's terminator so reassembly is
// byte-exact.
func diffLines(original, updated string) []lineOp {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	a, b, lineArray := dmp.DiffLinesToChars(original, updated)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var ops []lineOp
	for _, d := range diffs {
		var kind opKind
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			kind = opDelete
		case diffmatchpatch.DiffInsert:
			kind = opInsert
		default:
			kind = opEqual
		}
		for _, line := range splitLines(d.Text) {
			ops = append(ops, lineOp{kind: kind, text: line})
		}
	}
	return ops
}

// splitLines splits s into lines, each keeping its trailing newline. The
// last line has no terminator when s does not end in one.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i+1])
		s = s[i+1:]
		if s == "" {
			break
		}
	}
	return lines
}

type hunk struct {
	oldStart int // 1-based; 0 when oldLines == 0
	oldLines int
	newStart int // 1-based; 0 when newLines == 0
	newLines int
	ops      []lineOp
}

// groupHunks collects changed lines plus surrounding context into hunks,
// splitting wherever the gap of unchanged lines exceeds twice the context
// width.
func groupHunks(ops []lineOp, contextLines int) []hunk {
	// Positions of each op in the old and new texts (lines consumed before it).
	oldAt := make([]int, len(ops))
	newAt := make([]int, len(ops))
	oldPos, newPos := 0, 0
	for i, op := range ops {
		oldAt[i] = oldPos
		newAt[i] = newPos
		if op.kind != opInsert {
			oldPos++
		}
		if op.kind != opDelete {
			newPos++
		}
	}

	var changes []int
	for i, op := range ops {
		if op.kind != opEqual {
			changes = append(changes, i)
		}
	}
	if len(changes) == 0 {
		return nil
	}

	var hunks []hunk
	groupStart := changes[0]
	prev := changes[0]
	flush := func(first, last int) {
		lo := first - contextLines
		if lo < 0 {
			lo = 0
		}
		hi := last + contextLines
		if hi > len(ops)-1 {
			hi = len(ops) - 1
		}
		h := hunk{ops: ops[lo : hi+1]}
		for _, op := range h.ops {
			if op.kind != opInsert {
				h.oldLines++
			}
			if op.kind != opDelete {
				h.newLines++
			}
		}
		if h.oldLines > 0 {
			h.oldStart = oldAt[lo] + 1
		} else {
			h.oldStart = oldAt[lo]
		}
		if h.newLines > 0 {
			h.newStart = newAt[lo] + 1
		} else {
			h.newStart = newAt[lo]
		}
		hunks = append(hunks, h)
	}
	for _, c := range changes[1:] {
		if c-prev-1 > 2*contextLines {
			flush(groupStart, prev)
			groupStart = c
		}
		prev = c
	}
	flush(groupStart, prev)
	return hunks
}

const noNewlineMarker = "\\ No newline at end of file"

func (h hunk) render(b *strings.Builder) {
	b.WriteString("@@ -")
	writeRange(b, h.oldStart, h.oldLines)
	b.WriteString(" +")
	writeRange(b, h.newStart, h.newLines)
	b.WriteString(" @@\n")
	for _, op := range h.ops {
		switch op.kind {
		case opDelete:
			b.WriteByte('-')
		case opInsert:
			b.WriteByte('+')
		default:
			b.WriteByte(' ')
		}
		if strings.HasSuffix(op.text, "\n") {
			b.WriteString(op.text)
		} else {
			b.WriteString(op.text)
			b.WriteString("\n" + noNewlineMarker + "\n")
		}
	}
}

func writeRange(b *strings.Builder, start, count int) {
	b.WriteString(strconv.Itoa(start))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(count))
}
