package keel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jward/keel/internal/analysis"
	"github.com/jward/keel/internal/bytestore"
	"github.com/jward/keel/internal/filestate"
	"github.com/jward/keel/internal/libgraph"
	"github.com/jward/keel/internal/link"
	"github.com/jward/keel/internal/perflog"
	"github.com/jward/keel/internal/source"
	"github.com/jward/keel/internal/summary"
)

// ErrShutdown fails GetResult futures still pending when the driver stops.
var ErrShutdown = errors.New("driver shut down")

// Driver maintains an eventually consistent view of analysis results for a
// changing set of files. Clients add, change, and remove files and receive
// results on a stream; unchanged work is served from the byte store across
// restarts.
//
// The work loop owns every analysis step. Client operations only mutate the
// queues under the mutex and signal the wake channel, so a mutation made
// while the loop is mid-step is observed on the next iteration.
type Driver struct {
	log     *perflog.Logger
	store   bytestore.Store
	cache   *summary.Cache
	tracker *filestate.Tracker
	sdk     *summary.SDK
	opts    Options
	rules   *analysis.RuleSet

	mu         sync.Mutex
	explicit   map[string]bool
	pending    []string
	pendingSet map[string]bool
	verify     map[string]bool
	requested  map[string][]chan Result
	priority   map[string]bool
	// depSignatures memoizes dependency signatures per library URI. Cleared
	// wholesale when a changed file's apiSignature no longer matches.
	depSignatures map[source.URI]string
	busy          bool

	wake    chan string
	results chan *AnalysisResult
}

// New creates a driver. A nil log disables phase timing; a nil sdk uses the
// builtin platform bundle. The byte store may be shared between drivers.
func New(log *perflog.Logger, provider source.Provider, store bytestore.Store, contentCache source.ContentCache, factory *source.Factory, sdk *summary.SDK, opts Options) (*Driver, error) {
	if log == nil {
		log = perflog.Nop()
	}
	if sdk == nil {
		sdk = summary.BuiltinSDK()
	}
	d := &Driver{
		log:           log,
		store:         store,
		cache:         summary.NewCache(store),
		tracker:       filestate.NewTracker(provider, contentCache, factory),
		sdk:           sdk,
		opts:          opts,
		explicit:      make(map[string]bool),
		pendingSet:    make(map[string]bool),
		verify:        make(map[string]bool),
		requested:     make(map[string][]chan Result),
		priority:      make(map[string]bool),
		depSignatures: make(map[source.URI]string),
		wake:          make(chan string, 1),
		results:       make(chan *AnalysisResult, 64),
	}
	if len(opts.RuleScripts) > 0 {
		rules, err := analysis.LoadRules(opts.ScriptFS, opts.RuleScripts)
		if err != nil {
			return nil, fmt.Errorf("driver: %w", err)
		}
		d.rules = rules
	}
	return d, nil
}

// AddFile adds path to the explicit set and schedules it for analysis.
func (d *Driver) AddFile(path string) {
	d.mu.Lock()
	d.explicit[path] = true
	d.enqueueLocked(path)
	d.mu.Unlock()
	d.wakeLoop("addFile")
}

// RemoveFile removes path from the explicit set. Cached artifacts remain;
// they are content-addressed. A result for the file may still be delivered
// if its analysis is already underway.
func (d *Driver) RemoveFile(path string) {
	d.mu.Lock()
	delete(d.explicit, path)
	if d.pendingSet[path] {
		delete(d.pendingSet, path)
		for i, p := range d.pending {
			if p == path {
				d.pending = append(d.pending[:i], d.pending[i+1:]...)
				break
			}
		}
	}
	d.mu.Unlock()
	d.wakeLoop("removeFile")
}

// ChangeFile notifies the driver that path's content may have changed. The
// file's apiSignature is re-verified before the next analysis pass; path
// need not be in the explicit set.
func (d *Driver) ChangeFile(path string) {
	d.mu.Lock()
	d.verify[path] = true
	d.enqueueLocked(path)
	d.mu.Unlock()
	d.wakeLoop("changeFile")
}

// GetResult registers a one-shot future for path. Exactly one Result is
// delivered on the returned channel; further unsolicited results for the
// same file may still appear on the stream.
func (d *Driver) GetResult(path string) <-chan Result {
	ch := make(chan Result, 1)
	d.mu.Lock()
	d.requested[path] = append(d.requested[path], ch)
	d.mu.Unlock()
	d.wakeLoop("getResult")
	return ch
}

// SetPriorityFiles replaces the priority hint. Priority paths may be
// processed before non-priority ones; no strict ordering is promised.
func (d *Driver) SetPriorityFiles(paths []string) {
	d.mu.Lock()
	d.priority = make(map[string]bool, len(paths))
	for _, p := range paths {
		d.priority[p] = true
	}
	d.mu.Unlock()
	d.wakeLoop("setPriorityFiles")
}

// Results returns the result stream. The stream has a single consumer;
// results for the same file may be emitted more than once.
func (d *Driver) Results() <-chan *AnalysisResult {
	return d.results
}

// Start launches the work loop and returns immediately. Cancelling ctx
// stops the loop after the current step, fails pending futures with
// ErrShutdown, and closes the result stream.
func (d *Driver) Start(ctx context.Context) {
	go d.loop(ctx)
}

// WaitIdle blocks until every queue is drained and no analysis step is in
// flight, or ctx is cancelled.
func (d *Driver) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		d.mu.Lock()
		idle := !d.busy && len(d.pending) == 0 && len(d.verify) == 0 && len(d.requested) == 0
		d.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Driver) loop(ctx context.Context) {
	defer d.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		}
		for {
			d.verifyChangedFiles()
			path, ok := d.nextPath()
			if !ok {
				break
			}
			d.analyze(ctx, path)
			d.mu.Lock()
			d.busy = false
			d.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}
}

func (d *Driver) shutdown() {
	d.mu.Lock()
	requested := d.requested
	d.requested = make(map[string][]chan Result)
	d.busy = false
	d.mu.Unlock()
	for _, chans := range requested {
		for _, ch := range chans {
			ch <- Result{Err: ErrShutdown}
		}
	}
	close(d.results)
}

func (d *Driver) enqueueLocked(path string) {
	if d.pendingSet[path] {
		return
	}
	d.pendingSet[path] = true
	d.pending = append(d.pending, path)
}

func (d *Driver) wakeLoop(op string) {
	select {
	case d.wake <- op:
	default:
	}
}

// nextPath picks the next file to analyze: requested files first, then
// priority files, then the queue head.
func (d *Driver) nextPath() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	take := func(path string) (string, bool) {
		if d.pendingSet[path] {
			delete(d.pendingSet, path)
			for i, p := range d.pending {
				if p == path {
					d.pending = append(d.pending[:i], d.pending[i+1:]...)
					break
				}
			}
		}
		d.busy = true
		return path, true
	}
	for path := range d.requested {
		return take(path)
	}
	for _, path := range d.pending {
		if d.priority[path] {
			return take(path)
		}
	}
	if len(d.pending) > 0 {
		return take(d.pending[0])
	}
	return "", false
}

// verifyChangedFiles revalidates the apiSignature of every file scheduled by
// ChangeFile. On the first mismatch the dependency-signature memo is cleared
// and every explicit file is re-enqueued; the remaining files need no
// individual check once the world is invalidated. The verify set is cleared
// either way.
func (d *Driver) verifyChangedFiles() {
	d.mu.Lock()
	if len(d.verify) == 0 {
		d.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(d.verify))
	for p := range d.verify {
		paths = append(paths, p)
	}
	d.verify = make(map[string]bool)
	d.mu.Unlock()
	sort.Strings(paths)

	d.log.Run("verifyUnlinkedSignatures", func() {
		for _, path := range paths {
			if d.apiSignatureChanged(path) {
				d.invalidateAll()
				return
			}
		}
	})
}

// apiSignatureChanged compares the stored apiSignature for path's cached
// content hash against the signature of the freshly read content. The cached
// hash entry is dropped first so the read observes the file system.
func (d *Driver) apiSignatureChanged(path string) bool {
	oldSig := ""
	if hash, ok := d.tracker.CachedHash(path); ok {
		if u, ok := d.cache.CurrentUnlinked(hash); ok {
			oldSig = u.APISignature
		}
	}
	d.tracker.Forget(path)
	fresh := d.cache.Unlinked(d.tracker.Handle(path))
	return oldSig != "" && oldSig != fresh.APISignature
}

func (d *Driver) invalidateAll() {
	d.mu.Lock()
	d.depSignatures = make(map[source.URI]string)
	explicit := make([]string, 0, len(d.explicit))
	for p := range d.explicit {
		explicit = append(explicit, p)
	}
	sort.Strings(explicit)
	for _, p := range explicit {
		d.enqueueLocked(p)
	}
	d.mu.Unlock()
}

func (d *Driver) analyze(ctx context.Context, path string) {
	var result *AnalysisResult
	var err error
	d.log.Run("analyze "+path, func() {
		result, err = d.analyzeOne(ctx, path)
	})

	d.mu.Lock()
	chans := d.requested[path]
	delete(d.requested, path)
	d.mu.Unlock()
	if err != nil {
		for _, ch := range chans {
			ch <- Result{Err: err}
		}
		return
	}
	for _, ch := range chans {
		ch <- Result{Value: result}
	}
	select {
	case d.results <- result:
	case <-ctx.Done():
	}
}

// analyzeOne builds one self-consistent AnalysisResult for path. The file
// handle, graph, and analysis context are all scoped to this call; nothing
// retaining the parse tree survives past the returned result.
func (d *Driver) analyzeOne(ctx context.Context, path string) (*AnalysisResult, error) {
	f := d.tracker.Handle(path)
	content := f.Content()
	hash := f.ContentHash()

	ds := summary.NewDataStore()
	ds.AddBundle(d.sdk.Bundle)

	var graph *libgraph.Graph
	builder := &libgraph.Builder{Cache: d.cache, Store: ds}
	d.log.Run("buildLibraryGraph", func() {
		graph, _ = builder.Build(f)
	})

	uri := f.URI()
	depSig := d.dependencySignature(graph, uri)

	if err := d.linkGraph(graph, ds); err != nil {
		return nil, err
	}

	errorsKey := bytestore.ErrorsKey(depSig, hash)
	var errs []analysis.Error
	hit := false
	if data, ok := d.store.Get(errorsKey); ok {
		if decoded, err := analysis.DecodeErrors(data); err == nil {
			errs = decoded
			hit = true
		}
	}
	if !hit {
		d.log.Run("computeErrors", func() {
			errs = d.computeErrors(ctx, f, ds, content)
		})
		if data, err := analysis.EncodeErrors(errs); err == nil {
			d.store.Put(errorsKey, data)
		}
	}

	return &AnalysisResult{
		Path:        path,
		URI:         uri,
		Content:     content,
		ContentHash: hash,
		Unit:        f.Unit(),
		Errors:      errs,
	}, nil
}

// linkGraph ensures every node in the graph has a linked summary in the data
// store: byte-store hits are loaded, the misses are linked in one batch, and
// fresh summaries are written back under their dependency signatures.
func (d *Driver) linkGraph(graph *libgraph.Graph, ds *summary.DataStore) error {
	var missing []source.URI
	for nodeURI := range graph.Nodes {
		if ds.HasLinked(nodeURI) {
			continue
		}
		sig := d.dependencySignature(graph, nodeURI)
		if lib, ok := d.cache.Linked(sig); ok {
			ds.AddLinked(lib)
			continue
		}
		missing = append(missing, nodeURI)
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })

	var linked map[source.URI]*summary.LinkedLibrary
	var err error
	d.log.Run("link", func() {
		linked, err = link.Link(missing, ds.Linked, ds.Unlinked, ds.Resolve, d.opts.StrongMode)
	})
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}
	for nodeURI, lib := range linked {
		ds.AddLinked(lib)
		d.cache.PutLinked(d.dependencySignature(graph, nodeURI), lib)
	}
	return nil
}

func (d *Driver) computeErrors(ctx context.Context, f *filestate.FileHandle, ds *summary.DataStore, content string) []analysis.Error {
	actx := analysis.NewContext(ds, analysis.Options{StrongMode: d.opts.StrongMode, Rules: d.rules})
	defer actx.Dispose()
	actx.ApplyChanges([]source.Source{f.Source()})
	actx.SetContents(f.Source(), content)
	if f.Absent() {
		actx.MarkAbsent(f.Source())
	}
	computed := actx.ComputeErrors(ctx, f.Source())

	errs := make([]analysis.Error, 0, len(computed))
	for _, e := range computed {
		if e.Category == analysis.CategoryTodo {
			continue
		}
		errs = append(errs, e)
	}
	return errs
}

// dependencySignature memoizes the dependency signature for uri. Entries
// survive across analysis steps until an apiSignature mismatch clears the
// whole map.
func (d *Driver) dependencySignature(graph *libgraph.Graph, uri source.URI) string {
	d.mu.Lock()
	if sig, ok := d.depSignatures[uri]; ok {
		d.mu.Unlock()
		return sig
	}
	d.mu.Unlock()

	sig := graph.Signature(uri, d.sdk.APISignature)

	d.mu.Lock()
	d.depSignatures[uri] = sig
	d.mu.Unlock()
	return sig
}
