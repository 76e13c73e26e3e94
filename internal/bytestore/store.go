// Package bytestore provides content-addressed blob storage for analysis
// artifacts. Keys are derived from content and dependency signatures, so a
// key is only ever written with semantically equivalent bytes; "last put
// wins" is safe even when several drivers share one store.
package bytestore

import (
	"crypto/sha256"
	"fmt"
)

// Store is a content-addressed key-value interface. Get reports absence via
// the bool; Put is best-effort. Implementations must accept concurrent use.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte)
}

// UnlinkedKey is the key of the unlinked summary of a file whose content
// hash is contentHash.
func UnlinkedKey(contentHash string) string {
	return contentHash + ".unlinked"
}

// LinkedKey is the key of the linked summary of a library whose dependency
// signature is depSignature.
func LinkedKey(depSignature string) string {
	return depSignature + ".linked"
}

// ErrorsKey is the key of the diagnostics of a file at a particular
// (dependency signature, content hash) pairing.
func ErrorsKey(depSignature, contentHash string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n", depSignature, contentHash)
	return fmt.Sprintf("%x.errors", h.Sum(nil))
}
