package refresh

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/airdcpp-web/dcppcore/share"
)

// Hasher performs the actual TTH computation for a file the ShareBuilder
// queued; it is supplied by the hashing component rather than owned here.
type Hasher interface {
	Hash(ctx context.Context, realPath string) (share.TTH, error)
}

// Worker drains a Queue with a single goroutine, building and splicing
// each task's subtree into tree. Concurrent per-file hashing consults
// within one task are bounded with errgroup; concurrent regeneration
// requests for the same real path are collapsed with singleflight so a
// burst of REFRESH_DIRS calls for the same mount only walks it once.
type Worker struct {
	Queue   *Queue
	Tree    *share.Tree
	Builder *ShareBuilder
	Hasher  Hasher

	// MaxConcurrentHashes bounds the errgroup pool used while a task's
	// queued files are hashed; zero means unbounded.
	MaxConcurrentHashes int

	group singleflight.Group
}

// Run drains the queue until ctx is cancelled. Intended to run on its own
// goroutine, one per process (spec's single refresh worker thread).
func (w *Worker) Run(ctx context.Context) {
	for {
		task, ok := w.Queue.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-w.Queue.Wait():
				continue
			}
		}
		err := w.runTask(ctx, task)
		task.Done(err)
	}
}

func (w *Worker) runTask(ctx context.Context, task *Task) error {
	if task.Kind == RefreshAll {
		return w.refreshAll(ctx, task)
	}

	for _, realPath := range task.Paths {
		_, err, _ := w.group.Do(realPath, func() (interface{}, error) {
			return nil, w.refreshPath(ctx, realPath)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// refreshPath builds one mount's subtree and splices it in, extending
// (never resetting) the Bloom filter.
func (w *Worker) refreshPath(ctx context.Context, realPath string) error {
	existing, _ := w.Tree.TopDirectory(realPath)

	root, ok := w.rootFor(realPath)
	if !ok {
		return nil // mount was removed before the task ran
	}

	result, err := w.Builder.Build(realPath, root.VirtualName.Orig, existing)
	if err != nil {
		return err
	}
	result.Dir.Root = root

	if err := w.hashPending(ctx, result); err != nil {
		return err
	}

	w.Tree.Splice(realPath, result.Dir)
	return nil
}

// refreshAll rebuilds every mounted root from scratch and resets the
// Bloom filter once, at the end, rather than per root.
func (w *Worker) refreshAll(ctx context.Context, task *Task) error {
	roots := w.Tree.Roots()
	fresh := make(map[string]*share.Directory, len(roots))
	freshRoots := make(map[string]*share.ShareRoot, len(roots))

	g, gctx := errgroup.WithContext(ctx)
	if w.MaxConcurrentHashes > 0 {
		g.SetLimit(w.MaxConcurrentHashes)
	}
	var mu sync.Mutex

	for _, root := range roots {
		root := root
		g.Go(func() error {
			result, err := w.Builder.Build(root.RealPath, root.VirtualName.Orig, nil)
			if err != nil {
				return err
			}
			result.Dir.Root = root
			if err := w.hashPending(gctx, result); err != nil {
				return err
			}
			mu.Lock()
			fresh[root.RealPath] = result.Dir
			freshRoots[root.RealPath] = root
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w.Tree.Rebuild(freshRoots, fresh)
	return nil
}

// hashPending walks the fresh subtree's files, hashing any whose TTH the
// builder left zero (a cache miss in the hash store), bounded by
// MaxConcurrentHashes.
func (w *Worker) hashPending(ctx context.Context, result *BuildResult) error {
	if w.Hasher == nil || result.Dir == nil {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if w.MaxConcurrentHashes > 0 {
		g.SetLimit(w.MaxConcurrentHashes)
	}

	var walk func(*share.Directory)
	walk = func(d *share.Directory) {
		for _, f := range d.Files {
			if !f.TTH.IsZero() {
				continue
			}
			f := f
			g.Go(func() error {
				tth, err := w.Hasher.Hash(gctx, f.RealPath())
				if err != nil {
					return err
				}
				f.TTH = tth
				return nil
			})
		}
		for _, sub := range d.Dirs {
			walk(sub)
		}
	}
	walk(result.Dir)

	return g.Wait()
}

func (w *Worker) rootFor(realPath string) (*share.ShareRoot, bool) {
	for _, r := range w.Tree.Roots() {
		if r.RealPath == realPath {
			return r, true
		}
	}
	return nil, false
}
