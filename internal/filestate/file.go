package filestate

import (
	"crypto/md5"
	"fmt"

	"github.com/jward/keel/internal/frontend"
	"github.com/jward/keel/internal/source"
)

// FileHandle is a lazy view over one source file: path, content, content
// hash, and unresolved syntax tree. Content is read at most once per handle;
// the unit is reparsed on every access and never cached, so the handle stays
// cheap to discard.
type FileHandle struct {
	tracker *Tracker
	src     source.Source

	read    bool
	content string
	hash    string
	absent  bool
}

func (f *FileHandle) Path() string     { return f.src.Path }
func (f *FileHandle) URI() source.URI  { return f.src.URI }
func (f *FileHandle) Source() source.Source { return f.src }

// Content returns the file's current content. The content-cache override is
// consulted first, then the provider. Unreadable files coerce to empty
// content with Absent set; the analysis engine decides whether to surface
// that. Reading records the fresh hash in the tracker.
func (f *FileHandle) Content() string {
	if f.read {
		return f.content
	}
	f.read = true
	if f.tracker.cache != nil {
		if content, ok := f.tracker.cache.Contents(f.src); ok {
			f.content = content
		} else {
			f.readFromProvider()
		}
	} else {
		f.readFromProvider()
	}
	f.hash = fmt.Sprintf("%x", md5.Sum([]byte(f.content)))
	f.tracker.recordHash(f.src.Path, f.hash)
	return f.content
}

func (f *FileHandle) readFromProvider() {
	content, err := f.tracker.provider.ReadFile(f.src.Path)
	if err != nil {
		f.absent = true
		return
	}
	f.content = content
}

// ContentHash returns the file's content hash. Before Content has been
// touched this may be the tracker's cached hash; afterwards hash and
// content always correspond.
func (f *FileHandle) ContentHash() string {
	if f.read {
		return f.hash
	}
	if hash, ok := f.tracker.CachedHash(f.src.Path); ok {
		return hash
	}
	f.Content()
	return f.hash
}

// Absent reports whether the last content read failed. Meaningful only
// after Content has been accessed.
func (f *FileHandle) Absent() bool { return f.absent }

// Unit scans and parses the current content into the unresolved syntax
// tree. Scan and parse errors go to a null listener here; real diagnostics
// are produced by the analysis engine.
func (f *FileHandle) Unit() *frontend.Unit {
	return frontend.Parse(f.Content(), frontend.NullListener{})
}

// ResolveURI resolves a directive URI relative to this file and returns a
// handle on the result. Resolution goes through the tracker's two-level
// cache; the factory is invoked only on a miss.
func (f *FileHandle) ResolveURI(text string) (*FileHandle, error) {
	src, err := f.tracker.resolveURI(f.src, text)
	if err != nil {
		return nil, err
	}
	return f.tracker.HandleFor(src), nil
}
