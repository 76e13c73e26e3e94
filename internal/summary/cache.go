package summary

import (
	"github.com/jward/keel/internal/bytestore"
	"github.com/jward/keel/internal/frontend"
	"github.com/jward/keel/internal/source"
)

// FileView is the slice of a file handle the cache consumes: identity,
// current content hash, and the unresolved unit.
type FileView interface {
	URI() source.URI
	ContentHash() string
	Unit() *frontend.Unit
}

// Cache derives unlinked summaries and persists them in the byte store
// under content-derived keys.
type Cache struct {
	store bytestore.Store
}

func NewCache(store bytestore.Store) *Cache {
	return &Cache{store: store}
}

// Unlinked returns the unlinked summary of the file, reading it from the
// byte store when present and computing, storing, and returning it
// otherwise. A malformed blob is treated as a miss and overwritten.
func (c *Cache) Unlinked(f FileView) *UnlinkedUnit {
	key := bytestore.UnlinkedKey(f.ContentHash())
	if data, ok := c.store.Get(key); ok {
		if u := decodeSingle(data); u != nil {
			return u
		}
	}
	u := FromUnit(f.URI(), f.Unit())
	bundle := &Bundle{UnlinkedUnits: []*UnlinkedUnit{u}}
	if data, err := bundle.Encode(); err == nil {
		c.store.Put(key, data)
	}
	return u
}

// CurrentUnlinked returns the stored unlinked summary for a content hash
// without reading file content or computing on a miss. Used to retrieve the
// old apiSignature of a file before a change is applied.
func (c *Cache) CurrentUnlinked(contentHash string) (*UnlinkedUnit, bool) {
	data, ok := c.store.Get(bytestore.UnlinkedKey(contentHash))
	if !ok {
		return nil, false
	}
	u := decodeSingle(data)
	if u == nil {
		return nil, false
	}
	return u, true
}

// Linked returns the stored linked summary for a dependency signature.
func (c *Cache) Linked(depSignature string) (*LinkedLibrary, bool) {
	data, ok := c.store.Get(bytestore.LinkedKey(depSignature))
	if !ok {
		return nil, false
	}
	b, err := DecodeBundle(data)
	if err != nil || len(b.LinkedLibraries) != 1 {
		return nil, false
	}
	return b.LinkedLibraries[0], true
}

// PutLinked stores a linked summary under a dependency signature.
func (c *Cache) PutLinked(depSignature string, lib *LinkedLibrary) {
	bundle := &Bundle{LinkedLibraries: []*LinkedLibrary{lib}}
	if data, err := bundle.Encode(); err == nil {
		c.store.Put(bytestore.LinkedKey(depSignature), data)
	}
}

func decodeSingle(data []byte) *UnlinkedUnit {
	b, err := DecodeBundle(data)
	if err != nil || len(b.UnlinkedUnits) != 1 {
		return nil
	}
	return b.UnlinkedUnits[0]
}
