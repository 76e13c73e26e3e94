// Package filestate tracks the driver's view of the file system: the
// authoritative path-to-content-hash map, the URI-resolution cache, and the
// ephemeral FileHandle views created inside a single analysis step.
package filestate

import (
	"sync"

	"github.com/jward/keel/internal/source"
)

// Tracker owns the process-lived file state. FileHandles write observed
// content hashes back into it; the driver drops entries to force a fresh
// read when a file is scheduled for re-verification.
type Tracker struct {
	provider source.Provider
	cache    source.ContentCache // may be nil
	factory  *source.Factory

	mu sync.Mutex
	// hashes maps absolute path to the MD5 hex of the last observed content.
	hashes map[string]string
	// resolved is the two-level URI-resolution cache:
	// outer URI -> directive text -> resolved source.
	resolved map[source.URI]map[string]source.Source
}

func NewTracker(provider source.Provider, cache source.ContentCache, factory *source.Factory) *Tracker {
	return &Tracker{
		provider: provider,
		cache:    cache,
		factory:  factory,
		hashes:   make(map[string]string),
		resolved: make(map[source.URI]map[string]source.Source),
	}
}

// Handle creates a fresh FileHandle for the path. Handles are ephemeral:
// they live inside one analysis step and must not be retained afterwards.
func (t *Tracker) Handle(path string) *FileHandle {
	return &FileHandle{tracker: t, src: t.factory.CreateSource(path)}
}

// HandleFor creates a fresh FileHandle for an already resolved source.
func (t *Tracker) HandleFor(src source.Source) *FileHandle {
	return &FileHandle{tracker: t, src: src}
}

// CachedHash returns the stored content hash for path, if any.
func (t *Tracker) CachedHash(path string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.hashes[path]
	return h, ok
}

// Forget drops the stored hash for path so the next access re-reads and
// re-hashes the content.
func (t *Tracker) Forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.hashes, path)
}

func (t *Tracker) recordHash(path, hash string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hashes[path] = hash
}

func (t *Tracker) resolveURI(base source.Source, text string) (source.Source, error) {
	t.mu.Lock()
	byText, ok := t.resolved[base.URI]
	if ok {
		if src, ok := byText[text]; ok {
			t.mu.Unlock()
			return src, nil
		}
	}
	t.mu.Unlock()

	src, err := t.factory.ResolveURI(base, text)
	if err != nil {
		return source.Source{}, err
	}

	t.mu.Lock()
	if byText == nil {
		byText = make(map[string]source.Source)
		t.resolved[base.URI] = byText
	}
	byText[text] = src
	t.mu.Unlock()
	return src, nil
}
