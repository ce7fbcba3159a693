package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/airdcpp-web/dcppcore/share"
)

type zeroHashStore struct{}

func (zeroHashStore) Lookup(pathLower string, mtime time.Time, size int64) (share.TTH, bool) {
	return share.TTH{}, false
}
func (zeroHashStore) Enqueue(realPath string, size int64) {}

type fakeHasher struct{}

func (fakeHasher) Hash(ctx context.Context, realPath string) (share.TTH, error) {
	return share.Hash([]byte(realPath)), nil
}

func newTestTreeWithRoot(t *testing.T, realPath string) *share.Tree {
	t.Helper()
	tree := share.NewTree()
	root := share.NewShareRoot(realPath, "Music")
	root.Profiles["default"] = true
	tree.AddRoot(root)
	return tree
}

func TestWorkerRefreshPathSplicesTree(t *testing.T) {
	root := writeSampleTree(t)
	tree := newTestTreeWithRoot(t, root)

	w := &Worker{
		Queue:   NewQueue(),
		Tree:    tree,
		Builder: &ShareBuilder{Hashes: zeroHashStore{}},
		Hasher:  fakeHasher{},
	}

	if err := w.refreshPath(context.Background(), root); err != nil {
		t.Fatalf("refreshPath: %v", err)
	}

	dir, file, err := tree.Resolve("/Music/readme.txt", "default")
	if err != nil || file == nil {
		t.Fatalf("expected readme.txt to resolve after splice, dir=%v file=%v err=%v", dir, file, err)
	}
	if file.TTH.IsZero() {
		t.Fatal("expected the hasher to have filled in a non-zero TTH")
	}
}

func TestWorkerRefreshAllRebuildsEveryRoot(t *testing.T) {
	rootA := writeSampleTree(t)
	rootB := writeSampleTree(t)

	tree := share.NewTree()
	a := share.NewShareRoot(rootA, "A")
	a.Profiles["default"] = true
	b := share.NewShareRoot(rootB, "B")
	b.Profiles["default"] = true
	tree.AddRoot(a)
	tree.AddRoot(b)

	w := &Worker{
		Queue:               NewQueue(),
		Tree:                tree,
		Builder:             &ShareBuilder{Hashes: zeroHashStore{}},
		Hasher:              fakeHasher{},
		MaxConcurrentHashes: 2,
	}

	if err := w.refreshAll(context.Background(), &Task{Kind: RefreshAll}); err != nil {
		t.Fatalf("refreshAll: %v", err)
	}

	if _, _, err := tree.Resolve("/A/readme.txt", "default"); err != nil {
		t.Fatalf("expected root A to resolve after rebuild: %v", err)
	}
	if _, _, err := tree.Resolve("/B/Albums/song.flac", "default"); err != nil {
		t.Fatalf("expected root B to resolve after rebuild: %v", err)
	}
}

func TestWorkerRunDrainsBlockingTask(t *testing.T) {
	root := writeSampleTree(t)
	tree := newTestTreeWithRoot(t, root)
	q := NewQueue()

	w := &Worker{
		Queue:   q,
		Tree:    tree,
		Builder: &ShareBuilder{Hashes: zeroHashStore{}},
		Hasher:  fakeHasher{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	done := make(chan error, 1)
	task := &Task{Kind: RefreshDirs, Paths: []string{root}, Priority: PriorityBlocking, done: done}
	q.Enqueue(task)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocking task failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the worker to drain the blocking task")
	}

	if _, _, err := tree.Resolve("/Music/readme.txt", "default"); err != nil {
		t.Fatalf("expected the worker to have spliced the refreshed subtree: %v", err)
	}
}
