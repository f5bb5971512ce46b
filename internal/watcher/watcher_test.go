package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"workspace-terminal/internal/session"
)

func startWatcher(t *testing.T, root string, store *session.Store) <-chan []session.Session {
	t.Helper()

	resets := make(chan []session.Session, 8)
	w := New(root, store, func(sessions []session.Session) {
		resets <- sessions
	}, nil)
	w.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})

	select {
	case <-w.Ready():
	case err := <-errCh:
		t.Fatalf("watcher stopped early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher not ready")
	}
	return resets
}

func waitReset(t *testing.T, resets <-chan []session.Session) []session.Session {
	t.Helper()
	select {
	case sessions := <-resets:
		return sessions
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for session reset")
		return nil
	}
}

func TestWatcher_ResetsSessionWhenDirectoryRemoved(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}

	store := session.NewStore(root, session.Options{})
	store.Set("s1", sub)
	store.Get("s2")

	resets := startWatcher(t, root, store)

	if err := os.RemoveAll(sub); err != nil {
		t.Fatal(err)
	}

	sessions := waitReset(t, resets)
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Fatalf("expected s1 reset, got %+v", sessions)
	}
	if sessions[0].Cwd != root {
		t.Errorf("expected cwd %s, got %s", root, sessions[0].Cwd)
	}
	if got := store.Get("s1"); got != root {
		t.Errorf("expected store to hold root, got %s", got)
	}
}

func TestWatcher_ResetsSessionInRenamedDirectory(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	store := session.NewStore(root, session.Options{})
	store.Set("s1", nested)

	resets := startWatcher(t, root, store)

	if err := os.Rename(filepath.Join(root, "a"), filepath.Join(root, "moved")); err != nil {
		t.Fatal(err)
	}

	sessions := waitReset(t, resets)
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Fatalf("expected s1 reset, got %+v", sessions)
	}
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	store := session.NewStore(root, session.Options{})
	resets := startWatcher(t, root, store)

	created := filepath.Join(root, "created", "inner")
	if err := os.MkdirAll(created, 0755); err != nil {
		t.Fatal(err)
	}
	store.Set("s1", created)

	if err := os.RemoveAll(filepath.Join(root, "created")); err != nil {
		t.Fatal(err)
	}

	sessions := waitReset(t, resets)
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Fatalf("expected s1 reset, got %+v", sessions)
	}
}

func TestWatcher_IgnoresFileRemoval(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "notes.txt")
	os.WriteFile(file, []byte("x"), 0644)

	store := session.NewStore(root, session.Options{})
	store.Get("s1")
	resets := startWatcher(t, root, store)

	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}

	select {
	case sessions := <-resets:
		t.Errorf("expected no reset, got %+v", sessions)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_RunFailsForMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")
	w := New(root, session.NewStore(root, session.Options{}), nil, nil)

	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestBuildFileTree_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	tree := BuildFileTree(dir, 3)
	if len(tree) != 0 {
		t.Errorf("expected empty tree, got %d nodes", len(tree))
	}
}

func TestBuildFileTree_WithFiles(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0644)
	os.MkdirAll(filepath.Join(dir, "sub"), 0755)
	os.WriteFile(filepath.Join(dir, "sub", "helper.go"), []byte("package sub"), 0644)

	tree := BuildFileTree(dir, 3)
	if len(tree) != 2 { // "sub" dir + "main.go" file
		t.Fatalf("expected 2 nodes, got %d", len(tree))
	}

	// Dirs come first.
	if !tree[0].IsDir || tree[0].Name != "sub" {
		t.Errorf("expected first node to be 'sub' dir, got %s (isDir=%v)", tree[0].Name, tree[0].IsDir)
	}
	if tree[1].IsDir || tree[1].Name != "main.go" || tree[1].Size != int64(len("package main")) {
		t.Errorf("unexpected second node %+v", tree[1])
	}
	if len(tree[0].Children) != 1 || tree[0].Children[0].Path != filepath.Join("sub", "helper.go") {
		t.Errorf("unexpected children %+v", tree[0].Children)
	}
}

func TestBuildFileTree_ExcludesHiddenAndVendored(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "main.go"), []byte("test"), 0644)
	os.WriteFile(filepath.Join(dir, ".env"), []byte("SECRET"), 0644)
	os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0755)
	os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0755)

	tree := BuildFileTree(dir, 3)
	if len(tree) != 1 { // Only main.go
		t.Errorf("expected 1 node, got %d", len(tree))
	}
}

func TestBuildFileTree_MaxDepth(t *testing.T) {
	dir := t.TempDir()
	// Create 4 levels deep.
	deep := filepath.Join(dir, "a", "b", "c", "d")
	os.MkdirAll(deep, 0755)
	os.WriteFile(filepath.Join(deep, "deep.txt"), []byte("deep"), 0644)

	tree := BuildFileTree(dir, 3)
	if len(tree) != 1 {
		t.Fatalf("expected 1 top-level node, got %d", len(tree))
	}

	node := tree[0]
	if node.Name != "a" {
		t.Fatalf("expected 'a', got %s", node.Name)
	}
	if len(node.Children) != 1 || node.Children[0].Name != "b" {
		t.Fatalf("expected 'b' child")
	}
	b := node.Children[0]
	if len(b.Children) != 1 || b.Children[0].Name != "c" {
		t.Fatalf("expected 'c' child")
	}
	if c := b.Children[0]; len(c.Children) != 0 {
		t.Errorf("expected no children at depth 3, got %d", len(c.Children))
	}
}

func TestBuildFileTree_MissingDir(t *testing.T) {
	if tree := BuildFileTree(filepath.Join(t.TempDir(), "nope"), 3); tree != nil {
		t.Errorf("expected nil tree, got %+v", tree)
	}
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{".git", true},
		{".env", true},
		{"main.go", false},
		{"", false},
	}

	for _, tt := range tests {
		got := isHidden(tt.name)
		if got != tt.want {
			t.Errorf("isHidden(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
