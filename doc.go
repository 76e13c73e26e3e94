// Package keel is the incremental-analysis driver at the heart of a source
// analyzer for a statically typed, modular language. It maintains an
// eventually consistent view of diagnostics for a changing set of files
// against a content-addressed byte store, so unchanged work is never redone
// across editor sessions or process restarts.
//
// # Pipeline
//
// Each analysis step runs four phases:
//
//  1. File state: a FileHandle lazily reads content (editor overlays first,
//     then the file system), hashes it, and parses the unresolved unit.
//
//  2. Summaries: per-unit unlinked summaries are derived and cached in the
//     byte store under the content hash; each carries an apiSignature over
//     the unit's externally visible shape only.
//
//  3. Library graph: import, export, and part references are walked into a
//     library graph whose dependency signature (sorted apiSignatures of the
//     transitive closure plus the platform bundle) keys linked summaries
//     and diagnostics.
//
//  4. Diagnostics: built-in checks plus optional Risor rule scripts run
//     against the linked view; the error list is cached under the
//     (dependency signature, content hash) pairing.
//
// # Usage
//
// Create a Driver, start its loop, and feed it files:
//
//	factory := source.NewFactory(provider, map[string]string{"app": "/src/app"})
//	d, err := keel.New(nil, provider, bytestore.NewMemory(), nil, factory, nil, keel.Options{})
//	if err != nil { ... }
//
//	ctx, cancel := context.WithCancel(context.Background())
//	d.Start(ctx)
//	d.AddFile("/src/app/main.kl")
//	for r := range d.Results() { ... }
//	cancel()
//
// # Invalidation
//
// ChangeFile schedules a cheap apiSignature check before the next pass. A
// body-only edit re-analyzes just that file; an edit that changes the
// file's public shape clears the dependency-signature memo and re-enqueues
// every explicit file. Coarse, but sound.
//
// # Sharing
//
// The byte store is the only component safely shared between drivers. Keys
// are content-addressed, so concurrent writers under the same key store
// semantically equivalent blobs and last-put-wins is harmless.
package keel
