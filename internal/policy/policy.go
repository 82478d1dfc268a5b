// Package policy decides which paths and patch sizes the agent may touch.
//
// Decisions are content-independent and fail closed: anything that cannot
// be resolved is not allowed. A path must lie under an allowed root AND
// avoid every disallowed pattern; the veto dominates.
package policy

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rcliao/selfedit/internal/config"
	"github.com/rcliao/selfedit/internal/patch"
)

// Decision is the result of evaluating a candidate path or patch.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// Engine evaluates paths and patches against a fixed rule set. Construct
// one per configuration; it holds no mutable state.
type Engine struct {
	allowedRoots  []string
	disallowed    []*regexp.Regexp
	patterns      []string
	maxPatchBytes int
}

// NewEngine builds an engine from config. Allowed roots are resolved to
// canonical absolute form once, here.
func NewEngine(cfg *config.Config) (*Engine, error) {
	e := &Engine{maxPatchBytes: cfg.MaxPatchBytes}

	for _, root := range cfg.AllowedRoots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve allowed root %q: %w", root, err)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		e.allowedRoots = append(e.allowedRoots, abs)
	}
	if len(e.allowedRoots) == 0 {
		return nil, fmt.Errorf("at least one allowed root is required")
	}

	for _, p := range cfg.DisallowedPatterns {
		re, err := compileGlob(p)
		if err != nil {
			return nil, fmt.Errorf("disallowed pattern %q: %w", p, err)
		}
		e.disallowed = append(e.disallowed, re)
		e.patterns = append(e.patterns, p)
	}

	return e, nil
}

// CheckPath decides whether path may be read or written. Resolution
// failures deny rather than propagate.
func (e *Engine) CheckPath(path string) Decision {
	abs, err := filepath.Abs(path)
	if err != nil {
		return deny("cannot resolve path: %v", err)
	}
	// Resolve the deepest existing ancestor so symlinked parents cannot
	// smuggle a path outside the allowed roots. The file itself may not
	// exist yet (a patch can create it).
	if resolved, err := resolveExisting(abs); err != nil {
		return deny("cannot resolve path: %v", err)
	} else {
		abs = resolved
	}

	inRoot := false
	for _, root := range e.allowedRoots {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			inRoot = true
			break
		}
	}
	if !inRoot {
		return deny("path %s is outside all allowed roots", abs)
	}

	for i, re := range e.disallowed {
		if re.MatchString(abs) {
			return deny("path %s matches disallowed pattern %s", abs, e.patterns[i])
		}
	}
	return allow()
}

// IsPathAllowed is a convenience wrapper around CheckPath.
func (e *Engine) IsPathAllowed(path string) bool {
	return e.CheckPath(path).Allowed
}

// CheckPatch gates a candidate patch: its path must be writable and its
// encoded diff within the size ceiling. The ceiling is a circuit breaker
// against runaway edits, not a correctness check.
func (e *Engine) CheckPatch(p *patch.Patch) Decision {
	if d := e.CheckPath(p.Path); !d.Allowed {
		return d
	}
	if p.Size() > e.maxPatchBytes {
		return deny("patch is %d bytes, ceiling is %d", p.Size(), e.maxPatchBytes)
	}
	return allow()
}

// MaxPatchBytes returns the configured size ceiling.
func (e *Engine) MaxPatchBytes() int { return e.maxPatchBytes }

// resolveExisting canonicalizes abs by resolving symlinks in its deepest
// existing ancestor, reattaching any non-existent suffix.
func resolveExisting(abs string) (string, error) {
	dir := abs
	var suffix []string
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(append([]string{resolved}, suffix...)...), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", err
		}
		suffix = append([]string{filepath.Base(dir)}, suffix...)
		dir = parent
	}
}

// compileGlob translates a shell-style glob into a regexp where both '*'
// and '?' cross path separators, matching the pattern semantics the
// disallow list is written in ("*/.git/*" vetoes .git anywhere).
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
