package keel

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/keel/internal/analysis"
	"github.com/jward/keel/internal/bytestore"
	"github.com/jward/keel/internal/source"
)

// harness runs one driver over an in-memory file system and a counting byte
// store. Results are drained from the stream buffer after WaitIdle, which is
// safe because a step marks itself finished only after emitting.
type harness struct {
	t        *testing.T
	provider *source.MemProvider
	store    *bytestore.Counting
	d        *Driver
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, provider *source.MemProvider, store *bytestore.Counting, cache source.ContentCache, opts Options) *harness {
	t.Helper()
	factory := source.NewFactory(provider, map[string]string{"app": "/src/app"})
	d, err := New(nil, provider, store, cache, factory, nil, opts)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	t.Cleanup(cancel)
	return &harness{t: t, provider: provider, store: store, d: d, cancel: cancel}
}

func (h *harness) idle() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(h.t, h.d.WaitIdle(ctx))
}

func (h *harness) await(path string) *AnalysisResult {
	h.t.Helper()
	select {
	case res := <-h.d.GetResult(path):
		require.NoError(h.t, res.Err)
		require.NotNil(h.t, res.Value)
		return res.Value
	case <-time.After(5 * time.Second):
		h.t.Fatalf("no result for %s", path)
		return nil
	}
}

// drain empties the result stream buffer without blocking.
func (h *harness) drain() []*AnalysisResult {
	var out []*AnalysisResult
	for {
		select {
		case r := <-h.d.Results():
			if r == nil {
				return out
			}
			out = append(out, r)
		default:
			return out
		}
	}
}

func paths(results []*AnalysisResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Path)
	}
	return out
}

func errorCodes(errs []analysis.Error) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

// =============================================================================
// Basic analysis
// =============================================================================

func TestDriver_AddFileProducesResult(t *testing.T) {
	t.Parallel()
	provider := source.NewMemProvider()
	provider.WriteFile("/src/app/a.kl", "func main(): Void { print(); }")
	h := newHarness(t, provider, bytestore.NewCounting(bytestore.NewMemory()), nil, Options{StrongMode: true})

	h.d.AddFile("/src/app/a.kl")
	res := h.await("/src/app/a.kl")

	assert.Equal(t, "/src/app/a.kl", res.Path)
	assert.Equal(t, source.URI("package:app/a.kl"), res.URI)
	assert.Equal(t, "func main(): Void { print(); }", res.Content)
	assert.Len(t, res.ContentHash, 32)
	assert.NotNil(t, res.Unit)
	assert.Empty(t, res.Errors)

	h.idle()
	assert.Contains(t, paths(h.drain()), "/src/app/a.kl")
}

func TestDriver_RelativeImportResolvesAgainstLibrary(t *testing.T) {
	t.Parallel()
	provider := source.NewMemProvider()
	provider.WriteFile("/src/app/a.kl", "import \"b.kl\";\nfunc main(): Void { helper(); }")
	provider.WriteFile("/src/app/b.kl", "func helper(): Void { }")
	h := newHarness(t, provider, bytestore.NewCounting(bytestore.NewMemory()), nil, Options{StrongMode: true})

	h.d.AddFile("/src/app/a.kl")
	res := h.await("/src/app/a.kl")
	assert.Empty(t, res.Errors)
}

func TestDriver_UnresolvedReferenceReported(t *testing.T) {
	t.Parallel()
	provider := source.NewMemProvider()
	provider.WriteFile("/src/app/a.kl", "func main(): Void { nowhere(); }")
	h := newHarness(t, provider, bytestore.NewCounting(bytestore.NewMemory()), nil, Options{StrongMode: true})

	h.d.AddFile("/src/app/a.kl")
	res := h.await("/src/app/a.kl")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "unresolved-reference", res.Errors[0].Code)
	assert.Equal(t, analysis.CategoryError, res.Errors[0].Category)
}

func TestDriver_AbsentFileReported(t *testing.T) {
	t.Parallel()
	h := newHarness(t, source.NewMemProvider(), bytestore.NewCounting(bytestore.NewMemory()), nil, Options{})

	h.d.AddFile("/src/app/missing.kl")
	res := h.await("/src/app/missing.kl")
	assert.Contains(t, errorCodes(res.Errors), "file-absent")
	assert.Equal(t, "", res.Content)
}

func TestDriver_TodoMarkersFilteredFromResults(t *testing.T) {
	t.Parallel()
	provider := source.NewMemProvider()
	provider.WriteFile("/src/app/a.kl", "// TODO later\nclass A {}")
	h := newHarness(t, provider, bytestore.NewCounting(bytestore.NewMemory()), nil, Options{})

	h.d.AddFile("/src/app/a.kl")
	res := h.await("/src/app/a.kl")
	assert.Empty(t, res.Errors)
}

func TestDriver_OverlayWinsOverFileSystem(t *testing.T) {
	t.Parallel()
	provider := source.NewMemProvider()
	provider.WriteFile("/src/app/a.kl", "func main(): Void { }")
	overlays := source.NewOverlayCache()
	overlays.SetOverlay("/src/app/a.kl", "func main(): Void { nowhere(); }")
	h := newHarness(t, provider, bytestore.NewCounting(bytestore.NewMemory()), overlays, Options{StrongMode: true})

	h.d.AddFile("/src/app/a.kl")
	res := h.await("/src/app/a.kl")
	assert.Contains(t, errorCodes(res.Errors), "unresolved-reference")
}

// =============================================================================
// Caching
// =============================================================================

func TestDriver_RepeatedAnalysisServedFromErrorCache(t *testing.T) {
	t.Parallel()
	provider := source.NewMemProvider()
	provider.WriteFile("/src/app/a.kl", "func main(): Void { print(); }")
	store := bytestore.NewCounting(bytestore.NewMemory())
	h := newHarness(t, provider, store, nil, Options{StrongMode: true})

	h.d.AddFile("/src/app/a.kl")
	h.await("/src/app/a.kl")
	store.Reset()

	h.await("/src/app/a.kl")
	assert.Equal(t, 1, store.Hits(".errors"))
	assert.Zero(t, store.Puts(".errors"))
}

func TestDriver_RestartServesEverythingFromStore(t *testing.T) {
	t.Parallel()
	provider := source.NewMemProvider()
	provider.WriteFile("/src/app/a.kl", "import \"package:app/b.kl\";\nfunc main(): Void { helper(); }")
	provider.WriteFile("/src/app/b.kl", "func helper(): Void { }")
	store := bytestore.NewCounting(bytestore.NewMemory())

	h1 := newHarness(t, provider, store, nil, Options{StrongMode: true})
	h1.d.AddFile("/src/app/a.kl")
	h1.await("/src/app/a.kl")
	h1.cancel()
	for range h1.d.Results() {
	}
	store.Reset()

	h2 := newHarness(t, provider, store, nil, Options{StrongMode: true})
	h2.d.AddFile("/src/app/a.kl")
	res := h2.await("/src/app/a.kl")

	assert.Empty(t, res.Errors)
	assert.Zero(t, store.Puts(".unlinked"), "unchanged content recomputes no unlinked summaries")
	assert.Zero(t, store.Puts(".linked"), "unchanged dependency signatures recompute no linked summaries")
	assert.Zero(t, store.Puts(".errors"))
	assert.Equal(t, 1, store.Hits(".errors"))
}

func TestDriver_ContentTwinsShareOneUnlinkedWrite(t *testing.T) {
	t.Parallel()
	provider := source.NewMemProvider()
	provider.WriteFile("/src/app/a.kl", "class Same {}")
	provider.WriteFile("/src/app/b.kl", "class Same {}")
	store := bytestore.NewCounting(bytestore.NewMemory())
	h := newHarness(t, provider, store, nil, Options{})

	h.d.AddFile("/src/app/a.kl")
	h.d.AddFile("/src/app/b.kl")
	h.idle()

	assert.Equal(t, 1, store.Puts(".unlinked"), "identical content is stored once")
	assert.Equal(t, 2, store.Puts(".linked"), "each library links under its own signature")
}

// =============================================================================
// Invalidation
// =============================================================================

func TestDriver_BodyEditReanalyzesOnlyTheChangedFile(t *testing.T) {
	t.Parallel()
	provider := source.NewMemProvider()
	provider.WriteFile("/src/app/a.kl", "import \"package:app/b.kl\";\nfunc main(): Void { helper(); }")
	provider.WriteFile("/src/app/b.kl", "func helper(): Void { print(); }")
	h := newHarness(t, provider, bytestore.NewCounting(bytestore.NewMemory()), nil, Options{StrongMode: true})

	h.d.AddFile("/src/app/a.kl")
	h.d.AddFile("/src/app/b.kl")
	h.idle()
	h.drain()

	provider.WriteFile("/src/app/b.kl", "func helper(): Void { print(); print(); }")
	h.d.ChangeFile("/src/app/b.kl")
	h.idle()

	assert.Equal(t, []string{"/src/app/b.kl"}, paths(h.drain()),
		"an edit below the API surface leaves importers alone")
}

func TestDriver_APIEditInvalidatesImporters(t *testing.T) {
	t.Parallel()
	provider := source.NewMemProvider()
	provider.WriteFile("/src/app/a.kl", "import \"package:app/b.kl\";\nfunc main(): Void { helper(); }")
	provider.WriteFile("/src/app/b.kl", "func helper(): Void { }")
	h := newHarness(t, provider, bytestore.NewCounting(bytestore.NewMemory()), nil, Options{StrongMode: true})

	h.d.AddFile("/src/app/a.kl")
	h.d.AddFile("/src/app/b.kl")
	h.idle()
	h.drain()

	provider.WriteFile("/src/app/b.kl", "func helperRenamed(): Void { }")
	h.d.ChangeFile("/src/app/b.kl")
	h.idle()

	results := h.drain()
	assert.ElementsMatch(t, []string{"/src/app/a.kl", "/src/app/b.kl"}, paths(results))
	for _, r := range results {
		if r.Path == "/src/app/a.kl" {
			assert.Contains(t, errorCodes(r.Errors), "unresolved-reference",
				"the importer sees the renamed declaration")
		}
	}
}

func TestDriver_RemovedFileIsNotReanalyzed(t *testing.T) {
	t.Parallel()
	provider := source.NewMemProvider()
	provider.WriteFile("/src/app/a.kl", "import \"package:app/b.kl\";\nfunc main(): Void { helper(); }")
	provider.WriteFile("/src/app/b.kl", "func helper(): Void { }")
	h := newHarness(t, provider, bytestore.NewCounting(bytestore.NewMemory()), nil, Options{StrongMode: true})

	h.d.AddFile("/src/app/a.kl")
	h.d.AddFile("/src/app/b.kl")
	h.idle()
	h.drain()

	h.d.RemoveFile("/src/app/a.kl")
	provider.WriteFile("/src/app/b.kl", "func helperRenamed(): Void { }")
	h.d.ChangeFile("/src/app/b.kl")
	h.idle()

	assert.Equal(t, []string{"/src/app/b.kl"}, paths(h.drain()))
}

func TestDriver_ImportCycleTolerated(t *testing.T) {
	t.Parallel()
	provider := source.NewMemProvider()
	provider.WriteFile("/src/app/a.kl", "import \"package:app/b.kl\";\nfunc fa(): Void { fb(); }")
	provider.WriteFile("/src/app/b.kl", "import \"package:app/a.kl\";\nfunc fb(): Void { fa(); }")
	h := newHarness(t, provider, bytestore.NewCounting(bytestore.NewMemory()), nil, Options{StrongMode: true})

	h.d.AddFile("/src/app/a.kl")
	h.d.AddFile("/src/app/b.kl")
	assert.Empty(t, h.await("/src/app/a.kl").Errors)
	assert.Empty(t, h.await("/src/app/b.kl").Errors)
}

// =============================================================================
// Scheduling
// =============================================================================

func TestDriver_NextPathPrefersRequestedThenPriority(t *testing.T) {
	t.Parallel()
	provider := source.NewMemProvider()
	factory := source.NewFactory(provider, map[string]string{"app": "/src/app"})
	d, err := New(nil, provider, bytestore.NewMemory(), nil, factory, nil, Options{})
	require.NoError(t, err)

	d.AddFile("/src/app/a.kl")
	d.AddFile("/src/app/b.kl")
	d.AddFile("/src/app/c.kl")
	d.SetPriorityFiles([]string{"/src/app/c.kl"})

	path, ok := d.nextPath()
	require.True(t, ok)
	assert.Equal(t, "/src/app/c.kl", path)

	d.GetResult("/src/app/b.kl")
	path, ok = d.nextPath()
	require.True(t, ok)
	assert.Equal(t, "/src/app/b.kl", path)

	path, ok = d.nextPath()
	require.True(t, ok)
	assert.Equal(t, "/src/app/b.kl", path, "requested files outrank the queue until delivered")
}

func TestDriver_ShutdownFailsPendingFutures(t *testing.T) {
	t.Parallel()
	provider := source.NewMemProvider()
	factory := source.NewFactory(provider, map[string]string{"app": "/src/app"})
	d, err := New(nil, provider, bytestore.NewMemory(), nil, factory, nil, Options{})
	require.NoError(t, err)

	ch := d.GetResult("/src/app/a.kl")
	<-d.wake

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Start(ctx)

	select {
	case res := <-ch:
		require.Error(t, res.Err)
		assert.ErrorIs(t, res.Err, ErrShutdown)
	case <-time.After(5 * time.Second):
		t.Fatal("future never failed")
	}
	_, open := <-d.Results()
	assert.False(t, open, "result stream closes on shutdown")
}

// =============================================================================
// Rule scripts
// =============================================================================

func TestDriver_RuleScriptsProduceLints(t *testing.T) {
	t.Parallel()
	provider := source.NewMemProvider()
	provider.WriteFile("/src/app/a.kl", "let x: Int = 1;")
	fsys := fstest.MapFS{
		"rules/no_let.risor": &fstest.MapFile{Data: []byte(
			"for _, d := range decls { if d[\"kind\"] == \"let\" { report(\"no-let\", \"top-level let\", d[\"offset\"]) } }",
		)},
	}
	h := newHarness(t, provider, bytestore.NewCounting(bytestore.NewMemory()), nil,
		Options{RuleScripts: []string{"rules/no_let.risor"}, ScriptFS: fsys})

	h.d.AddFile("/src/app/a.kl")
	res := h.await("/src/app/a.kl")
	assert.Contains(t, errorCodes(res.Errors), "no-let")
}

func TestNew_MissingRuleScriptFails(t *testing.T) {
	t.Parallel()
	provider := source.NewMemProvider()
	factory := source.NewFactory(provider, map[string]string{"app": "/src/app"})
	_, err := New(nil, provider, bytestore.NewMemory(), nil, factory, nil,
		Options{RuleScripts: []string{"rules/none.risor"}, ScriptFS: fstest.MapFS{}})
	require.Error(t, err)
}
