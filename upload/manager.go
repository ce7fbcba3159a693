package upload

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/airdcpp-web/dcppcore/identity"
	"github.com/airdcpp-web/dcppcore/internal/dcerr"
	"github.com/airdcpp-web/dcppcore/share"
)

// Kind is the ADC transfer type a GET names, mirroring Transfer::names.
type Kind int

const (
	KindFile Kind = iota
	KindFileList
	KindPartialList
	KindTTHList
	KindTree
)

// Source is the peer-connection side of one GET: enough to classify the
// request, stream bytes back, and report errors, without the upload
// package needing to know about ADC command framing or TLS. hub/connect
// and transport supply the concrete implementation at wiring time.
type Source interface {
	CID() identity.CID
	IsMCN() bool
	SupportsMinislots() bool
	IsOp() bool
	SendError(code int, msg string)
	// Start is called exactly once, after the request has been resolved
	// and classified but before the first Write, with the number of
	// bytes that will actually be transmitted (-1 if that count could
	// not be determined ahead of streaming). A peer-connection
	// implementation uses this to emit the ADC SND reply header before
	// any payload bytes go out.
	Start(totalBytes int64)
	// Write streams len(b) bytes of the payload starting at the upload's
	// current offset; callers call it repeatedly until the transfer
	// finishes or returns an error.
	Write(b []byte) (int, error)
}

// PartialLookup resolves a TTH that isn't in the share tree against the
// download queue's partially-downloaded files (partial sharing), per
// USE_PARTIAL_SHARING.
type PartialLookup interface {
	// TargetForTTH returns the local path of a file (complete or
	// in-progress) matching h, if one is queued.
	TargetForTTH(h share.TTH) (path string, ok bool)
	// ChunkDownloaded reports whether [start, start+length) of h is
	// already on disk, and the path to read it from.
	ChunkDownloaded(h share.TTH, start, length, totalSize int64) (path string, ok bool)
}

// Request is one parsed GET.
type Request struct {
	Kind Kind
	Path string // ADC virtual path, or "TTH/<hash>" for a by-hash request
	StartPos int64
	Bytes    int64 // -1 means "to end of file"
	Profile  string
	// Resumable marks a chunked transfer the peer may continue with
	// another GET over the same logical connection; a finished
	// Resumable upload lingers in the delay pool instead of releasing
	// its slot immediately.
	Resumable bool
}

// running is one in-flight upload.
type running struct {
	cid       identity.CID
	path      string
	class     Class
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// Manager runs the GET request lifecycle: validate, resolve, classify,
// stream, track, release. Grounded on UploadManager::prepareFile +
// UploadManager::getUploadType (classification and stream selection) and
// on download.go's handler-resolves-a-ref-to-a-stream shape generalized
// to ADC's GET/byte-range semantics.
type Manager struct {
	tree      *share.Tree
	scheduler *Scheduler
	partial   PartialLookup
	notifier  *Notifier
	pool      *Pool
	ourCID    string
	openFile  func(ctx context.Context, path string) (io.ReadSeekCloser, error)

	mu      sync.Mutex
	uploads map[string]*running // keyed by a synthetic token, not path: one path can have many concurrent uploads
}

// NewManager wires a Manager against a share tree, a slot scheduler, and
// a partial-sharing resolver (may be nil if partial sharing is
// disabled). openFile is the filesystem read function, injected so tests
// can substitute an in-memory filesystem.
func NewManager(tree *share.Tree, scheduler *Scheduler, partial PartialLookup, ourCID string, openFile func(ctx context.Context, path string) (io.ReadSeekCloser, error)) *Manager {
	return &Manager{
		tree:      tree,
		scheduler: scheduler,
		partial:   partial,
		ourCID:    ourCID,
		openFile:  openFile,
		uploads:   make(map[string]*running),
		notifier:  NewNotifier(),
		pool:      NewPool(),
	}
}

// Notifier returns the manager's queued-user notifier, so callers can
// enqueue a waiting user and register the dial-back hook.
func (m *Manager) Notifier() *Notifier { return m.notifier }

// DelayPool returns the manager's delay pool, consulted by Run's
// per-second tick and by a reconnecting peer's Resume lookup.
func (m *Manager) DelayPool() *Pool { return m.pool }

// resolved is what step 2 (resolve) produces for step 3 (classify) and
// step 4 (stream).
type resolved struct {
	realPath        string
	size            int64
	miniSlot        bool
	fullListRequest bool // TYPE_FULL_LIST: never eligible for a SMALL slot
	partialSharing  bool
	// stream opens the payload for reading once the upload has been
	// classified and tracked. It takes the upload's cancellable context
	// so a blocked open or read can be interrupted by AbortUpload.
	stream func(ctx context.Context) (io.ReadSeeker, error)
}

// HandleGet runs the full lifecycle for one request from src. It blocks
// until the transfer completes, is queued (returning dcerr
// RefreshRejected is not used here; a queued request returns nil after
// calling src.SendError with the usual "try again" signal via maxedOut
// semantics folded into Source.SendError), or fails.
func (m *Manager) HandleGet(parent context.Context, src Source, req Request) error {
	res, err := m.resolve(req)
	if err != nil {
		src.SendError(adcFileNotAvailable, err.Error())
		return err
	}

	class, ok := m.scheduler.Classify(m.slotRequestFor(src, res), res.size, res.fullListRequest)
	if !ok {
		m.notifier.Enqueue(src.CID())
		src.SendError(adcSlotsFull, "No slots available")
		return nil
	}

	m.scheduler.MarkUploading(src.CID())
	m.notifier.Remove(src.CID())
	token := src.CID().String() + "/" + req.Path + "/" + time.Now().UTC().Format(time.RFC3339Nano)
	runCtx, cancel := context.WithCancel(parent)
	r := &running{cid: src.CID(), path: res.realPath, class: class, startedAt: time.Now(), cancel: cancel, done: make(chan struct{})}
	m.mu.Lock()
	m.uploads[token] = r
	m.mu.Unlock()

	var finishErr error
	defer func() {
		m.mu.Lock()
		delete(m.uploads, token)
		m.mu.Unlock()
		close(r.done)

		if req.Resumable && finishErr == nil {
			// linger in the delay pool instead of releasing the slot
			// immediately: the peer may re-GET the remainder of this
			// file over the same connection within delayLingerTicks.
			m.pool.Add(token, src.CID(), res.realPath, class, cancel)
			return
		}
		cancel()
		m.scheduler.Release(src.CID(), class)
		m.scheduler.MarkIdle(src.CID())
	}()

	stream, err := res.stream(runCtx)
	if err != nil {
		src.SendError(adcFileNotAvailable, err.Error())
		finishErr = err
		return err
	}
	defer closeIfCloser(stream)

	sendLen := sendLenFor(stream, req)
	src.Start(sendLen)

	if req.StartPos > 0 {
		if _, err := stream.Seek(req.StartPos, io.SeekStart); err != nil {
			finishErr = err
			return err
		}
	}

	finishErr = m.pump(runCtx, src, stream, req.Bytes)
	return finishErr
}

// sendLenFor determines how many bytes this transfer will actually put on
// the wire, seeking to the stream's end and back so it works uniformly
// for both file-backed and in-memory resolved streams; -1 means the
// length couldn't be determined (the seek itself failed).
func sendLenFor(stream io.ReadSeeker, req Request) int64 {
	total, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return -1
	}
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return -1
	}
	remaining := total - req.StartPos
	if remaining < 0 {
		remaining = 0
	}
	if req.Bytes >= 0 && req.Bytes < remaining {
		return req.Bytes
	}
	return remaining
}

// pump copies up to limit bytes (or to EOF if limit < 0) from stream to
// src, in transport-sized chunks, checking ctx between writes so a
// cancelled request (e.g. abortUpload) stops promptly.
func (m *Manager) pump(ctx context.Context, src Source, stream io.Reader, limit int64) error {
	buf := make([]byte, 64*1024)
	var sent int64
	for limit < 0 || sent < limit {
		n := len(buf)
		if limit >= 0 {
			if remaining := limit - sent; remaining < int64(n) {
				n = int(remaining)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		read, rerr := stream.Read(buf[:n])
		if read > 0 {
			if _, werr := src.Write(buf[:read]); werr != nil {
				return werr
			}
			sent += int64(read)
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
	return nil
}

func closeIfCloser(r io.ReadSeeker) {
	if c, ok := r.(io.Closer); ok {
		c.Close()
	}
}

// resolve implements prepareFile's two-stage lookup: the share tree
// first, falling back to partial sharing only on a share miss (matching
// the original's try/catch ShareException structure).
func (m *Manager) resolve(req Request) (resolved, error) {
	switch req.Kind {
	case KindFileList:
		return m.resolveFileList(req)
	case KindPartialList:
		return resolved{miniSlot: true, stream: func(ctx context.Context) (io.ReadSeeker, error) {
			data, err := m.tree.PartialList(req.Path, req.Profile, m.ourCID, true)
			if err != nil {
				return nil, err
			}
			return newByteStream(data), nil
		}}, nil
	case KindTTHList:
		return resolved{stream: func(ctx context.Context) (io.ReadSeeker, error) {
			data, err := m.tree.TTHList(req.Path, req.Profile)
			if err != nil {
				return nil, err
			}
			return newByteStream(data), nil
		}}, nil
	}

	if strings.HasPrefix(req.Path, "TTH/") {
		return m.resolveByTTH(req)
	}

	_, file, err := m.tree.Resolve(req.Path, req.Profile)
	if err != nil || file == nil {
		return m.fallbackPartial(req)
	}

	return resolved{
		realPath: file.RealPath(),
		size:     file.Size,
		miniSlot: file.Size <= smallFileThreshold,
		stream: func(ctx context.Context) (io.ReadSeeker, error) {
			f, err := m.openFile(ctx, file.RealPath())
			return f, err
		},
	}, nil
}

func (m *Manager) resolveFileList(req Request) (resolved, error) {
	profile := m.tree.AddProfile(req.Profile, req.Profile)
	var path string
	listPath, err := m.tree.FullList(profile, m.ourCID, func(p string, data []byte) error {
		path = p
		return writeFullList(p, data)
	}, req.Path)
	if err != nil {
		return resolved{}, err
	}
	path = listPath // also set on a cache hit, when the callback is not called
	return resolved{
		realPath:        path,
		miniSlot:        false,
		fullListRequest: true,
		stream:          func(ctx context.Context) (io.ReadSeeker, error) { return m.openFile(ctx, path) },
	}, nil
}

// writeFullList is overridden in tests; the real implementation
// (bytestream.go's defaultWriteFullList) is the only part of this
// package that touches os directly.
var writeFullList = defaultWriteFullList

func (m *Manager) resolveByTTH(req Request) (resolved, error) {
	h, err := share.ParseTTH(strings.TrimPrefix(req.Path, "TTH/"))
	if err != nil {
		return resolved{}, err
	}
	if files := m.tree.FilesByTTH(h); len(files) > 0 {
		f := files[0]
		return resolved{
			realPath: f.RealPath(),
			size:     f.Size,
			miniSlot: f.Size <= smallFileThreshold,
			stream:   func(ctx context.Context) (io.ReadSeeker, error) { return m.openFile(ctx, f.RealPath()) },
		}, nil
	}
	if m.partial == nil {
		return resolved{}, dcerr.New(dcerr.FileNotAvailable, "upload.resolveByTTH")
	}
	if req.Kind == KindTree {
		path, ok := m.partial.TargetForTTH(h)
		if !ok {
			return resolved{}, dcerr.New(dcerr.FileNotAvailable, "upload.resolveByTTH")
		}
		return resolved{realPath: path, miniSlot: true, partialSharing: true, stream: func(ctx context.Context) (io.ReadSeeker, error) { return m.openFile(ctx, path) }}, nil
	}
	path, ok := m.partial.ChunkDownloaded(h, req.StartPos, req.Bytes, -1)
	if !ok {
		return resolved{}, dcerr.New(dcerr.FileNotAvailable, "upload.resolveByTTH")
	}
	return resolved{realPath: path, partialSharing: true, stream: func(ctx context.Context) (io.ReadSeeker, error) { return m.openFile(ctx, path) }}, nil
}

func (m *Manager) fallbackPartial(req Request) (resolved, error) {
	if m.partial == nil || !strings.HasPrefix(req.Path, "TTH/") {
		return resolved{}, dcerr.New(dcerr.FileNotAvailable, "upload.resolve")
	}
	return m.resolveByTTH(req)
}

const (
	adcFileNotAvailable = 51
	adcSlotsFull        = 53
)

// slotRequestFor adapts a Source and its resolved file into the
// SlotRequest Scheduler.Classify expects, consulting the notifier for
// the "this peer was already promised a slot" and "nobody else is
// waiting" checks checkslots makes under the same lock as the slot
// counters.
func (m *Manager) slotRequestFor(src Source, res resolved) SlotRequest {
	return SlotRequest{
		CID:               src.CID(),
		IsMCN:             src.IsMCN(),
		MiniSlot:          res.miniSlot,
		SupportsMinislots: src.SupportsMinislots(),
		IsOp:              src.IsOp(),
		PartialSharing:    res.partialSharing,
		QueueEmpty:        m.notifier.Empty(),
		IsNotifiedUser:    m.notifier.IsNotified(src.CID()),
	}
}
