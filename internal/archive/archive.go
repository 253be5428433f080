// Package archive opens uploaded export archives and decides how their
// contents should be ingested.
package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrTooLarge is returned when an archive or one of its entries exceeds the
// configured size limit.
var ErrTooLarge = eris.New("archive: exceeds size limit")

// Entry is one regular file inside an archive.
type Entry struct {
	// Name is the slash-separated path inside the archive.
	Name string
	Size uint64

	file *zip.File
}

// Base returns the file name without directories.
func (e Entry) Base() string {
	return path.Base(e.Name)
}

// Stem returns the file name without directories or extension.
func (e Entry) Stem() string {
	base := e.Base()
	return strings.TrimSuffix(base, path.Ext(base))
}

// Ext returns the lower-cased extension including the dot.
func (e Entry) Ext() string {
	return strings.ToLower(path.Ext(e.Name))
}

// Dirs returns the directory components of the entry path.
func (e Entry) Dirs() []string {
	dir := path.Dir(e.Name)
	if dir == "." || dir == "/" {
		return nil
	}
	return strings.Split(dir, "/")
}

// Archive is an opened zip export.
type Archive struct {
	path     string
	maxBytes int64
	reader   *zip.ReadCloser
	entries  []Entry
}

// Open opens the zip archive at p. maxBytes bounds both the archive file and
// the uncompressed size of any single entry; zero disables the limit.
func Open(p string, maxBytes int64) (*Archive, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, eris.Wrap(err, "archive: stat")
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return nil, eris.Wrapf(ErrTooLarge, "archive: %d bytes, limit %d", info.Size(), maxBytes)
	}

	r, err := zip.OpenReader(p)
	if err != nil {
		return nil, eris.Wrap(err, "archive: open")
	}

	a := &Archive{path: p, maxBytes: maxBytes, reader: r}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, ok := cleanName(f.Name)
		if !ok {
			zap.L().Warn("archive: skipping unsafe entry", zap.String("entry", f.Name))
			continue
		}
		if isMetadata(name) {
			continue
		}
		a.entries = append(a.entries, Entry{Name: name, Size: f.UncompressedSize64, file: f})
	}
	return a, nil
}

// Path returns the archive location on disk.
func (a *Archive) Path() string {
	return a.path
}

// Entries returns the regular files in archive order.
func (a *Archive) Entries() []Entry {
	return a.entries
}

// Names returns every entry name, for diagnostics.
func (a *Archive) Names() []string {
	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.Name
	}
	return names
}

// OpenEntry returns a reader over the uncompressed contents of e.
func (a *Archive) OpenEntry(e Entry) (io.ReadCloser, error) {
	if e.file == nil {
		return nil, eris.Errorf("archive: entry %q does not belong to an open archive", e.Name)
	}
	if a.maxBytes > 0 && e.Size > uint64(a.maxBytes) {
		return nil, eris.Wrapf(ErrTooLarge, "archive: entry %q is %d bytes", e.Name, e.Size)
	}
	rc, err := e.file.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "archive: open entry %q", e.Name)
	}
	return rc, nil
}

// ReadEntry reads the whole of e into memory.
func (a *Archive) ReadEntry(e Entry) ([]byte, error) {
	rc, err := a.OpenEntry(e)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	var r io.Reader = rc
	if a.maxBytes > 0 {
		r = io.LimitReader(rc, a.maxBytes+1)
	}
	var buf bytes.Buffer
	n, err := buf.ReadFrom(r)
	if err != nil {
		return nil, eris.Wrapf(err, "archive: read entry %q", e.Name)
	}
	if a.maxBytes > 0 && n > a.maxBytes {
		return nil, eris.Wrapf(ErrTooLarge, "archive: entry %q", e.Name)
	}
	return buf.Bytes(), nil
}

// peek returns up to n leading bytes of e.
func (a *Archive) peek(e Entry, n int64) ([]byte, error) {
	rc, err := a.OpenEntry(e)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(rc, n))
	if err != nil {
		return nil, eris.Wrapf(err, "archive: peek entry %q", e.Name)
	}
	return data, nil
}

// Close releases the archive file handle.
func (a *Archive) Close() error {
	return a.reader.Close()
}

// cleanName normalizes an entry path and rejects names that would escape
// the archive root when extracted.
func cleanName(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") {
		return "", false
	}
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}

// isMetadata reports entries added by archivers rather than the exporter.
func isMetadata(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	base := path.Base(name)
	return base == ".DS_Store" || strings.HasPrefix(base, "._")
}
