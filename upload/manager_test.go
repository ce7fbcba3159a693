package upload

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/airdcpp-web/dcppcore/identity"
	"github.com/airdcpp-web/dcppcore/share"
)

type fakeSource struct {
	cid       identity.CID
	mcn       bool
	minislots bool
	op        bool
	written   bytes.Buffer
	errCode   int
	errMsg    string
	startSize int64
	started   bool
}

func (f *fakeSource) CID() identity.CID          { return f.cid }
func (f *fakeSource) IsMCN() bool                { return f.mcn }
func (f *fakeSource) SupportsMinislots() bool    { return f.minislots }
func (f *fakeSource) IsOp() bool                 { return f.op }
func (f *fakeSource) SendError(code int, msg string) { f.errCode, f.errMsg = code, msg }
func (f *fakeSource) Start(totalBytes int64)         { f.started, f.startSize = true, totalBytes }
func (f *fakeSource) Write(b []byte) (int, error)    { return f.written.Write(b) }

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

func buildUploadTree(t *testing.T) *share.Tree {
	t.Helper()
	tree := share.NewTree()
	root := share.NewShareRoot("/mnt/share", "Share")
	root.Profiles["default"] = true
	top := tree.AddRoot(root)
	f := &share.File{Name: share.NewDualString("song.flac"), Size: 1 << 20, Parent: top, TTH: share.Hash([]byte("hello"))}
	top.Files["song.flac"] = f
	tree.Splice(root.RealPath, top)
	return tree
}

func newTestManager(t *testing.T, data []byte) (*Manager, *Scheduler) {
	t.Helper()
	tree := buildUploadTree(t)
	sched := NewScheduler(Limits{MaxSlots: 1})
	openFile := func(ctx context.Context, path string) (io.ReadSeekCloser, error) {
		return memFile{bytes.NewReader(data)}, nil
	}
	return NewManager(tree, sched, nil, "ourcid", openFile), sched
}

func TestHandleGetStreamsWholeFile(t *testing.T) {
	data := []byte("hello")
	m, _ := newTestManager(t, data)
	src := &fakeSource{cid: cidOf(1)}

	req := Request{Kind: KindFile, Path: "/Share/song.flac", Bytes: -1, Profile: "default"}
	if err := m.HandleGet(context.Background(), src, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.written.String() != "hello" {
		t.Fatalf("expected the whole file streamed, got %q", src.written.String())
	}
}

func TestHandleGetRespectsByteLimit(t *testing.T) {
	data := []byte("hello world")
	m, _ := newTestManager(t, data)
	src := &fakeSource{cid: cidOf(1)}

	req := Request{Kind: KindFile, Path: "/Share/song.flac", Bytes: 5, Profile: "default"}
	if err := m.HandleGet(context.Background(), src, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.written.String() != "hello" {
		t.Fatalf("expected only 5 bytes streamed, got %q", src.written.String())
	}
}

func TestHandleGetReleasesSlotOnCompletion(t *testing.T) {
	m, sched := newTestManager(t, []byte("hi"))
	src := &fakeSource{cid: cidOf(1)}
	sched.Reserve(src.cid)

	req := Request{Kind: KindFile, Path: "/Share/song.flac", Bytes: -1, Profile: "default"}
	if err := m.HandleGet(context.Background(), src, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sched.FreeSlots() != 1 {
		t.Fatalf("expected the slot released after completion, free=%d", sched.FreeSlots())
	}
}

func TestHandleGetUnknownPathSendsFileNotAvailable(t *testing.T) {
	m, _ := newTestManager(t, nil)
	src := &fakeSource{cid: cidOf(1)}

	req := Request{Kind: KindFile, Path: "/Share/missing.flac", Bytes: -1, Profile: "default"}
	if err := m.HandleGet(context.Background(), src, req); err == nil {
		t.Fatal("expected an error for a missing file")
	}
	if src.errCode != adcFileNotAvailable {
		t.Fatalf("expected a FileNotAvailable error code, got %d", src.errCode)
	}
}

func TestHandleGetByTTHResolves(t *testing.T) {
	data := []byte("hello")
	m, _ := newTestManager(t, data)
	src := &fakeSource{cid: cidOf(1)}

	want := share.Hash([]byte("hello"))
	req := Request{Kind: KindFile, Path: "TTH/" + want.String(), Bytes: -1, Profile: "default"}
	if err := m.HandleGet(context.Background(), src, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.written.String() != "hello" {
		t.Fatalf("expected the TTH lookup to stream the matching file, got %q", src.written.String())
	}
}

func TestHandleGetResumableLingersInDelayPool(t *testing.T) {
	m, sched := newTestManager(t, []byte("hi"))
	src := &fakeSource{cid: cidOf(1)}
	sched.Reserve(src.cid)

	req := Request{Kind: KindFile, Path: "/Share/song.flac", Bytes: -1, Profile: "default", Resumable: true}
	if err := m.HandleGet(context.Background(), src, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sched.FreeSlots() != 0 {
		t.Fatalf("expected the slot still charged while lingering in the delay pool, free=%d", sched.FreeSlots())
	}
	if m.DelayPool().Len() != 1 {
		t.Fatalf("expected one lingering upload in the delay pool, got %d", m.DelayPool().Len())
	}
}

// blockingReader never returns data until its context is cancelled,
// standing in for a slow peer connection so AbortUpload has something
// real to cancel before the transfer finishes on its own.
type blockingReader struct {
	ctx context.Context
}

func (r blockingReader) Read([]byte) (int, error) {
	<-r.ctx.Done()
	return 0, r.ctx.Err()
}
func (blockingReader) Seek(offset int64, whence int) (int64, error) { return 0, nil }
func (blockingReader) Close() error                                  { return nil }

func TestAbortUploadCancelsRunningTransfer(t *testing.T) {
	tree := buildUploadTree(t)
	sched := NewScheduler(Limits{MaxSlots: 1})
	sched.Reserve(cidOf(1))

	started := make(chan struct{})
	openFile := func(ctx context.Context, path string) (io.ReadSeekCloser, error) {
		close(started)
		return blockingReader{ctx: ctx}, nil
	}
	m := NewManager(tree, sched, nil, "ourcid", openFile)
	src := &fakeSource{cid: cidOf(1)}

	done := make(chan error, 1)
	go func() {
		req := Request{Kind: KindFile, Path: "/Share/song.flac", Bytes: -1, Profile: "default"}
		done <- m.HandleGet(context.Background(), src, req)
	}()

	<-started
	m.AbortUpload("/mnt/share/song.flac", true)

	// AbortUpload's wait loop only returns once the upload is no longer
	// tracked, which happens in HandleGet's deferred cleanup strictly
	// before it sends on done; the bound here is just a safety net against
	// a genuine hang, not the thing under test.
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected the aborted transfer to return a cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatal("expected HandleGet to have returned by the time AbortUpload's wait completes")
	}
}
