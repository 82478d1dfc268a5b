package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rcliao/selfedit/internal/config"
	"github.com/rcliao/selfedit/internal/patch"
)

func newTestEngine(t *testing.T, root string) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.AllowedRoots = []string{root}
	e, err := NewEngine(&cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestCheckPathInsideRoot(t *testing.T) {
	root := t.TempDir()
	e := newTestEngine(t, root)

	d := e.CheckPath(filepath.Join(root, "src", "main.go"))
	if !d.Allowed {
		t.Errorf("expected in-tree path allowed, got %q", d.Reason)
	}
}

func TestCheckPathOutsideRoot(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	e := newTestEngine(t, root)

	d := e.CheckPath(filepath.Join(other, "main.go"))
	if d.Allowed {
		t.Error("expected out-of-tree path denied")
	}
	if d.Reason == "" {
		t.Error("expected a denial reason")
	}
}

func TestDisallowDominatesAllow(t *testing.T) {
	root := t.TempDir()
	e := newTestEngine(t, root)

	// Inside the allowed root, but under a vetoed directory.
	paths := []string{
		filepath.Join(root, ".git", "config"),
		filepath.Join(root, "node_modules", "pkg", "index.js"),
		filepath.Join(root, "sub", ".venv", "lib", "x.py"),
		filepath.Join(root, "vendor", "modules.txt"),
	}
	for _, p := range paths {
		if d := e.CheckPath(p); d.Allowed {
			t.Errorf("expected %s denied despite allowed root", p)
		}
	}
}

func TestCheckPathSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	e := newTestEngine(t, root)

	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	d := e.CheckPath(filepath.Join(link, "f.go"))
	if d.Allowed {
		t.Error("expected symlink escaping the root to be denied")
	}
}

func TestCheckPathNonexistentFileAllowed(t *testing.T) {
	root := t.TempDir()
	e := newTestEngine(t, root)

	// Patches may create files; the path just has to resolve in-tree.
	d := e.CheckPath(filepath.Join(root, "brand", "new", "file.go"))
	if !d.Allowed {
		t.Errorf("expected nonexistent in-tree path allowed, got %q", d.Reason)
	}
}

func TestCheckPatchSizeCeiling(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.AllowedRoots = []string{root}
	cfg.MaxPatchBytes = 10_000
	e, err := NewEngine(&cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	// An ~11,000 byte diff against a 10,000 byte ceiling must be rejected.
	big := strings.Repeat("x", 11_000)
	p := patch.New(filepath.Join(root, "f.txt"), "", big+"\n", 3)
	if p.Size() <= 10_000 {
		t.Fatalf("test patch too small to exercise ceiling: %d bytes", p.Size())
	}

	d := e.CheckPatch(p)
	if d.Allowed {
		t.Error("expected oversized patch rejected")
	}
	if !strings.Contains(d.Reason, "ceiling") {
		t.Errorf("expected size reason, got %q", d.Reason)
	}

	small := patch.New(filepath.Join(root, "f.txt"), "", "hello\n", 3)
	if d := e.CheckPatch(small); !d.Allowed {
		t.Errorf("expected small patch allowed, got %q", d.Reason)
	}
}

func TestCheckPatchDisallowedPath(t *testing.T) {
	root := t.TempDir()
	e := newTestEngine(t, root)

	p := patch.New(filepath.Join(root, ".git", "hooks", "pre-commit"), "", "#!/bin/sh\n", 3)
	if d := e.CheckPatch(p); d.Allowed {
		t.Error("expected patch on vetoed path rejected")
	}
}

func TestIsPathAllowed(t *testing.T) {
	root := t.TempDir()
	e := newTestEngine(t, root)

	if !e.IsPathAllowed(filepath.Join(root, "ok.go")) {
		t.Error("expected in-tree path allowed")
	}
	if e.IsPathAllowed("/definitely/not/in/tree") {
		t.Error("expected out-of-tree path denied")
	}
}
