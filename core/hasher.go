package core

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/airdcpp-web/dcppcore/share"
	"github.com/airdcpp-web/dcppcore/tiger"
)

// hashStore is the superset of refresh.HashStore that every backing store
// in this package also satisfies: persistence of a freshly computed hash,
// and a way to close the underlying database at teardown.
type hashStore interface {
	Lookup(pathLower string, mtime time.Time, size int64) (share.TTH, bool)
	Enqueue(realPath string, size int64)
	Store(realPath string, mtime time.Time, size int64, tth share.TTH) error
	Close() error
}

// fileHasher computes a file's TTH by streaming it through
// tiger.TreeHasher, consulting and then updating store so a later refresh
// of the same unmodified file is a cache hit.
type fileHasher struct {
	store hashStore
}

// Hash implements refresh.Hasher.
func (h *fileHasher) Hash(ctx context.Context, realPath string) (share.TTH, error) {
	info, err := os.Stat(realPath)
	if err != nil {
		return share.TTH{}, err
	}
	lower := strings.ToLower(realPath)
	if cached, ok := h.store.Lookup(lower, info.ModTime(), info.Size()); ok {
		return cached, nil
	}

	f, err := os.Open(realPath)
	if err != nil {
		return share.TTH{}, err
	}
	defer f.Close()

	th := tiger.NewTreeHasher()
	if _, err := copyWithContext(ctx, th, f); err != nil {
		return share.TTH{}, err
	}
	tth := share.TTH(th.Sum())

	if err := h.store.Store(realPath, info.ModTime(), info.Size(), tth); err != nil {
		return share.TTH{}, err
	}
	return tth, nil
}

// copyWithContext is io.Copy that also aborts promptly when ctx is
// cancelled, so a large-file hash doesn't keep running well past a
// refresh shutdown request.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 256*1024)
	var total int64
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}
