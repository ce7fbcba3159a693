package share

import (
	"encoding/xml"
	"strconv"
	"time"
)

// xmlDirectory and xmlFile mirror the ADC partial filelist schema; struct
// tags drive encoding/xml rather than hand-built string concatenation,
// matching how the rest of the corpus prefers declarative marshaling over
// manual escaping wherever the standard library already does the job.
type xmlDirectory struct {
	XMLName xml.Name       `xml:"Directory"`
	Name    string         `xml:"Name,attr"`
	Date    string         `xml:"Date,attr,omitempty"`
	Dirs    []xmlDirectory `xml:"Directory,omitempty"`
	Files   []xmlFile      `xml:"File,omitempty"`
}

type xmlFile struct {
	XMLName xml.Name `xml:"File"`
	Name    string   `xml:"Name,attr"`
	Size    int64    `xml:"Size,attr"`
	TTH     string   `xml:"TTH,attr"`
	Date    string   `xml:"Date,attr,omitempty"`
}

type xmlFileList struct {
	XMLName xml.Name     `xml:"FileListing"`
	Version string       `xml:"Version,attr"`
	CID     string       `xml:"CID,attr"`
	Base    string       `xml:"Base,attr"`
	Dirs    []xmlDirectory `xml:"Directory"`
	Files   []xmlFile      `xml:"File"`
}

// PartialList renders the subtree rooted at virtualPath, restricted to
// the given profile's visibility, as the XML document a hub peer expects
// from a RES/GET filelist request. recursive controls whether
// subdirectories are expanded or left as empty placeholders (a
// non-recursive listing still names its immediate children).
func (t *Tree) PartialList(virtualPath, profile, ourCID string, recursive bool) ([]byte, error) {
	dir, file, err := t.Resolve(virtualPath, profile)
	if err != nil {
		return nil, err
	}
	if file != nil {
		return nil, ErrNotFound // GET filelist always targets a directory
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	list := xmlFileList{Version: "1", CID: ourCID, Base: dir.VirtualPath()}
	list.Dirs = renderChildren(dir, profile, recursive)
	list.Files = renderFiles(dir)
	return xml.MarshalIndent(list, "", "  ")
}

// FullList renders every root visible under profile, the document
// advertised once via the hub's INF/FileListing and cached on the
// profile until the next tree mutation invalidates it (writeFile writes
// the bytes to diskPath and records that path on success).
func (t *Tree) FullList(profile *ShareProfile, ourCID string, writeFile func(path string, data []byte) error, diskPath string) (string, error) {
	if cached, ok := profile.GeneratedList(); ok {
		return cached, nil
	}

	t.mu.RLock()
	list := xmlFileList{Version: "1", CID: ourCID, Base: "/"}
	for _, d := range t.topDirs {
		if d.Root == nil || !d.Root.VisibleTo(profile.Token) {
			continue
		}
		entry := xmlDirectory{Name: d.Root.VirtualName.Orig, Date: unixDate(d.Modified)}
		entry.Dirs = renderChildren(d, profile.Token, true)
		entry.Files = renderFiles(d)
		list.Dirs = append(list.Dirs, entry)
	}
	t.mu.RUnlock()

	data, err := xml.MarshalIndent(list, "", "  ")
	if err != nil {
		return "", err
	}
	if err := writeFile(diskPath, data); err != nil {
		return "", err
	}
	profile.MarkListGenerated(diskPath)
	return diskPath, nil
}

// renderChildren lists sub.Dirs, keyed by lower-cased name so two real
// directories that only differ by case can never coexist as distinct
// entries; the refresh builder is responsible for resolving that
// collision when splicing a fresh subtree in.
func renderChildren(d *Directory, profile string, recursive bool) []xmlDirectory {
	out := make([]xmlDirectory, 0, len(d.Dirs))
	for _, sub := range d.SortedDirs() {
		if !sub.VisibleTo(profile) {
			continue
		}
		entry := xmlDirectory{Name: sub.Name.Orig, Date: unixDate(sub.Modified)}
		if recursive {
			entry.Dirs = renderChildren(sub, profile, recursive)
			entry.Files = renderFiles(sub)
		}
		out = append(out, entry)
	}
	return out
}

func renderFiles(d *Directory) []xmlFile {
	out := make([]xmlFile, 0, len(d.Files))
	for _, f := range d.SortedFiles() {
		out = append(out, xmlFile{Name: f.Name.Orig, Size: f.Size, TTH: f.TTH.String(), Date: unixDate(f.Modified)})
	}
	return out
}

// unixDate renders a modification time as ADC filelists expect: seconds
// since the epoch, omitted entirely for a zero time.
func unixDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.Unix(), 10)
}

// TTHList renders only `<File TTH="…"/>` entries for a subtree, used to
// answer TTH-enumeration requests from bundled-partial peers.
func (t *Tree) TTHList(virtualPath, profile string) ([]byte, error) {
	dir, _, err := t.Resolve(virtualPath, profile)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var buf []byte
	buf = append(buf, []byte(xml.Header)...)
	buf = append(buf, "<FileListing>\n"...)
	var walk func(*Directory)
	walk = func(d *Directory) {
		for _, f := range d.SortedFiles() {
			buf = append(buf, []byte(`<File TTH="`+f.TTH.String()+`"/>`+"\n")...)
		}
		for _, sub := range d.SortedDirs() {
			if sub.VisibleTo(profile) {
				walk(sub)
			}
		}
	}
	walk(dir)
	buf = append(buf, "</FileListing>\n"...)
	return buf, nil
}
