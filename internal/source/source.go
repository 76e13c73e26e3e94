// Package source defines how the analyzer names and reads source files: the
// Source value type, URI schemes, the resource and content-cache abstractions,
// and the Factory that maps between paths and canonical URIs.
package source

import (
	"fmt"
	"strings"
)

// URI is the canonical identifier of a source file. Three schemes are
// recognized: "package:" for files under a configured package root, "file:"
// for everything else on disk, and "std:" for platform libraries served by
// the pre-linked SDK bundle rather than by files.
type URI string

// PlatformScheme is the URI scheme of platform libraries. URIs under this
// scheme never resolve to files.
const PlatformScheme = "std"

// CoreLibrary is implicitly available to every compilation unit.
const CoreLibrary = URI("std:core")

// Scheme returns the part of the URI before the first colon, or "" if the
// URI has no scheme.
func (u URI) Scheme() string {
	if i := strings.IndexByte(string(u), ':'); i >= 0 {
		return string(u[:i])
	}
	return ""
}

// IsPlatform reports whether the URI names a platform library.
func (u URI) IsPlatform() bool {
	return u.Scheme() == PlatformScheme
}

// Source pairs an absolute file path with its canonical URI. Two Sources are
// the same file iff their paths are equal; the URI mapping is not assumed
// stable across time.
type Source struct {
	Path string
	URI  URI
}

func (s Source) String() string {
	return fmt.Sprintf("%s (%s)", s.Path, s.URI)
}

// Provider abstracts file-system reads. Implementations exist for the OS
// file system and for an in-memory map used by tests.
type Provider interface {
	// ReadFile returns the content of the file at the absolute path.
	ReadFile(path string) (string, error)
}

// ContentCache can override file content, e.g. with unsaved editor buffers.
// It is consulted before the Provider.
type ContentCache interface {
	// Contents returns the override for src, if one is present.
	Contents(src Source) (string, bool)
}
