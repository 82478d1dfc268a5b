package patch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FormatError reports a diff that could not be parsed.
type FormatError struct {
	Msg  string
	Line int // 1-based line in the diff text, 0 when unknown
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed diff at line %d: %s", e.Line, e.Msg)
	}
	return "malformed diff: " + e.Msg
}

// ApplyError reports a parseable diff whose context does not match the
// target text, typically because the file drifted from the diff's base.
type ApplyError struct {
	Msg  string
	Line int // 1-based line in the target file, 0 when unknown
}

func (e *ApplyError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("patch does not apply at line %d: %s", e.Line, e.Msg)
	}
	return "patch does not apply: " + e.Msg
}

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Apply applies a unified diff to original and returns the updated text.
// It is a pure function: on any error original is untouched and no partial
// result is returned. An empty diff is the identity.
func Apply(original, diffText string) (string, error) {
	if strings.TrimSpace(diffText) == "" {
		return original, nil
	}

	hunks, err := parseDiff(diffText)
	if err != nil {
		return "", err
	}

	origLines := splitLines(original)
	var out []string
	pos := 0 // next unconsumed line of original, 0-based

	for _, h := range hunks {
		target := h.oldStart
		if h.oldLines > 0 {
			target = h.oldStart - 1
		}
		if target < pos {
			return "", &ApplyError{Msg: "hunks overlap or are out of order", Line: h.oldStart}
		}
		if target > len(origLines) {
			return "", &ApplyError{Msg: "hunk starts beyond end of file", Line: h.oldStart}
		}
		out = append(out, origLines[pos:target]...)
		pos = target

		for _, op := range h.ops {
			switch op.kind {
			case opInsert:
				out = append(out, op.text)
			default: // context or delete: must match original
				if pos >= len(origLines) {
					return "", &ApplyError{Msg: "expected content past end of file", Line: pos + 1}
				}
				if origLines[pos] != op.text {
					return "", &ApplyError{
						Msg:  fmt.Sprintf("expected %q, found %q", op.text, origLines[pos]),
						Line: pos + 1,
					}
				}
				if op.kind == opEqual {
					out = append(out, op.text)
				}
				pos++
			}
		}
	}

	out = append(out, origLines[pos:]...)
	return strings.Join(out, ""), nil
}

// parseDiff parses unified-diff text into hunks. File headers (---/+++) are
// accepted and ignored; the patch already knows its target path.
func parseDiff(diffText string) ([]hunk, error) {
	lines := splitLines(diffText)
	var hunks []hunk
	var cur *hunk
	sawHeader := false

	appendOp := func(kind opKind, text string) {
		cur.ops = append(cur.ops, lineOp{kind: kind, text: text})
	}

	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSuffix(raw, "\n")

		switch {
		case strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ "):
			if cur != nil {
				return nil, &FormatError{Msg: "file header inside hunk", Line: lineNo}
			}
			sawHeader = true

		case strings.HasPrefix(line, "@@"):
			m := hunkHeaderRe.FindStringSubmatch(line)
			if m == nil {
				return nil, &FormatError{Msg: "invalid hunk header " + strconv.Quote(line), Line: lineNo}
			}
			if cur != nil {
				hunks = append(hunks, *cur)
			}
			cur = &hunk{
				oldStart: atoiDefault(m[1]),
				oldLines: atoiDefault1(m[2]),
				newStart: atoiDefault(m[3]),
				newLines: atoiDefault1(m[4]),
			}

		case cur == nil:
			if line == "" {
				continue
			}
			return nil, &FormatError{Msg: "content before first hunk header", Line: lineNo}

		case strings.HasPrefix(raw, "\\"):
			// "No newline at end of file": strip the terminator recorded
			// for the preceding op.
			if len(cur.ops) == 0 {
				return nil, &FormatError{Msg: "dangling no-newline marker", Line: lineNo}
			}
			last := &cur.ops[len(cur.ops)-1]
			last.text = strings.TrimSuffix(last.text, "\n")

		case strings.HasPrefix(raw, " "):
			appendOp(opEqual, raw[1:])
		case strings.HasPrefix(raw, "-"):
			appendOp(opDelete, raw[1:])
		case strings.HasPrefix(raw, "+"):
			appendOp(opInsert, raw[1:])
		case line == "":
			// Tolerate a trailing blank line from transport.
			if i != len(lines)-1 {
				appendOp(opEqual, raw)
			}
		default:
			return nil, &FormatError{Msg: "unexpected line " + strconv.Quote(line), Line: lineNo}
		}
	}

	if cur != nil {
		hunks = append(hunks, *cur)
	}
	if len(hunks) == 0 {
		if sawHeader {
			return nil, nil
		}
		return nil, &FormatError{Msg: "no hunks found"}
	}

	for _, h := range hunks {
		if err := h.validateCounts(); err != nil {
			return nil, err
		}
	}
	return hunks, nil
}

// validateCounts cross-checks hunk body against the header ranges.
func (h hunk) validateCounts() error {
	oldN, newN := 0, 0
	for _, op := range h.ops {
		if op.kind != opInsert {
			oldN++
		}
		if op.kind != opDelete {
			newN++
		}
	}
	if oldN != h.oldLines || newN != h.newLines {
		return &FormatError{
			Msg: fmt.Sprintf("hunk body has %d/%d lines, header claims %d/%d",
				oldN, newN, h.oldLines, h.newLines),
		}
	}
	return nil
}

func atoiDefault(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// atoiDefault1 parses an optional hunk count, defaulting to 1 per the
// unified format.
func atoiDefault1(s string) int {
	if s == "" {
		return 1
	}
	n, _ := strconv.Atoi(s)
	return n
}
