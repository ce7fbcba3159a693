package upload

import (
	"bytes"
	"io"
	"os"
)

// byteStream adapts an in-memory []byte (a rendered partial list or TTH
// dump) to the io.ReadSeeker the pump loop expects, so generated XML
// documents and on-disk files share one streaming path.
type byteStream struct {
	*bytes.Reader
}

func newByteStream(data []byte) *byteStream {
	return &byteStream{bytes.NewReader(data)}
}

// defaultWriteFullList writes a generated full filelist to disk. Kept as
// a package-level function (rather than inlined) so tests can swap
// Manager.writeFullList-equivalent behavior without touching real files.
func defaultWriteFullList(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

var _ io.ReadSeeker = (*byteStream)(nil)
