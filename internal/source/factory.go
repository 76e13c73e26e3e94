package source

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// resolveCacheSize bounds the factory's resolution cache. The driver keeps
// its own per-library directive cache in front of this one, so the bound is
// rarely reached in practice.
const resolveCacheSize = 4096

// Factory resolves directive URIs to Sources and restores canonical URIs
// from paths. Package URIs are mapped through a configured set of package
// roots; platform URIs never resolve to files.
type Factory struct {
	provider Provider
	// roots maps a package name to the absolute directory holding its files.
	roots map[string]string
	cache *lru.Cache[string, Source]
}

// NewFactory creates a Factory over the given provider and package-root map.
// The roots map is captured by reference; callers must not mutate it.
func NewFactory(provider Provider, roots map[string]string) *Factory {
	cache, _ := lru.New[string, Source](resolveCacheSize)
	return &Factory{provider: provider, roots: roots, cache: cache}
}

// ResolveURI resolves the directive text against the base source and returns
// the Source it names. Relative references resolve against the base path and
// get the canonical URI restored from the resulting path. Platform URIs
// resolve to a path-less Source.
func (f *Factory) ResolveURI(base Source, text string) (Source, error) {
	cacheKey := string(base.URI) + "\x00" + text
	if src, ok := f.cache.Get(cacheKey); ok {
		return src, nil
	}
	src, err := f.resolve(base, text)
	if err != nil {
		return Source{}, err
	}
	f.cache.Add(cacheKey, src)
	return src, nil
}

func (f *Factory) resolve(base Source, text string) (Source, error) {
	switch {
	case strings.HasPrefix(text, PlatformScheme+":"):
		return Source{URI: URI(text)}, nil
	case strings.HasPrefix(text, "package:"):
		return f.resolvePackage(text)
	case strings.HasPrefix(text, "file:///"):
		p := filepath.FromSlash(strings.TrimPrefix(text, "file://"))
		return Source{Path: p, URI: URI(text)}, nil
	case strings.Contains(text, ":"):
		return Source{}, fmt.Errorf("resolve %q: unknown scheme", text)
	default:
		// Relative reference: resolve against the base path and restore the
		// canonical URI for the result, so a file reached relatively from a
		// package library keeps its package URI.
		if base.Path == "" {
			return Source{}, fmt.Errorf("resolve %q: relative reference from path-less source %s", text, base.URI)
		}
		p := filepath.Clean(filepath.Join(filepath.Dir(base.Path), filepath.FromSlash(text)))
		return Source{Path: p, URI: f.RestoreURI(p)}, nil
	}
}

func (f *Factory) resolvePackage(text string) (Source, error) {
	rest := strings.TrimPrefix(text, "package:")
	name, rel, ok := strings.Cut(rest, "/")
	if !ok || name == "" || rel == "" {
		return Source{}, fmt.Errorf("resolve %q: malformed package URI", text)
	}
	root, ok := f.roots[name]
	if !ok {
		return Source{}, fmt.Errorf("resolve %q: unknown package %q", text, name)
	}
	p := filepath.Join(root, filepath.FromSlash(rel))
	return Source{Path: p, URI: URI(text)}, nil
}

// RestoreURI maps an absolute path back to its canonical URI: a package URI
// when the path is under a configured root, a file URI otherwise. When roots
// nest, the longest match wins.
func (f *Factory) RestoreURI(p string) URI {
	var names []string
	for name := range f.roots {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return len(f.roots[names[i]]) > len(f.roots[names[j]])
	})
	for _, name := range names {
		root := f.roots[name]
		if rel, err := filepath.Rel(root, p); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return URI("package:" + name + "/" + path.Clean(filepath.ToSlash(rel)))
		}
	}
	return URI("file://" + filepath.ToSlash(p))
}

// CreateSource builds a Source for the absolute path, restoring its URI.
func (f *Factory) CreateSource(p string) Source {
	return Source{Path: p, URI: f.RestoreURI(p)}
}
