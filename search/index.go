// Package search keeps the per-document page text cache and runs literal,
// case-insensitive queries against it.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/abiiranathan/pdfmark/glyph"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Options configures an Index.
type Options struct {
	// Characters of context kept on each side of a match.
	ContextWindow int

	// Upper bound of matches reported per page, so pathological repeated
	// patterns cannot flood the output. Zero means no cap.
	MaxMatchesPerPage int

	// Max pages extracted at a time.
	Concurrency int

	// Splits page text into sentences for snippets. Defaults to RuleSegmenter.
	Segmenter Segmenter

	Logger *slog.Logger
}

// DefaultOptions holds the stock settings. NewIndex falls back to them for a
// zero ContextWindow or Concurrency.
var DefaultOptions = Options{
	ContextWindow:     50,
	MaxMatchesPerPage: 1000,
	Concurrency:       10,
}

type entry struct {
	page glyph.PageText

	once  sync.Once
	spans []Span
}

// Index memoizes the extracted text of every page of one document.
// Pages are built on first use and read-only afterwards.
type Index struct {
	src  glyph.PageSource
	ext  *glyph.Extractor
	opts Options
	log  *slog.Logger

	group singleflight.Group
	sem   chan struct{}

	mu         sync.RWMutex
	pages      map[int]*entry
	generation uint64
}

// NewIndex creates an empty index over src.
func NewIndex(src glyph.PageSource, opts Options) *Index {
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = DefaultOptions.ContextWindow
	}
	if opts.MaxMatchesPerPage < 0 {
		opts.MaxMatchesPerPage = 0
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultOptions.Concurrency
	}
	if opts.Segmenter == nil {
		opts.Segmenter = RuleSegmenter{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Index{
		src:   src,
		ext:   glyph.NewExtractor(opts.Logger),
		opts:  opts,
		log:   opts.Logger,
		sem:   make(chan struct{}, opts.Concurrency),
		pages: make(map[int]*entry, src.NumPages()),
	}
}

// NumPages returns the number of pages of the underlying document.
func (ix *Index) NumPages() int {
	return ix.src.NumPages()
}

// Cached returns the text of page n if it has been extracted.
func (ix *Index) Cached(n int) (*glyph.PageText, bool) {
	e, ok := ix.cached(n)
	if !ok {
		return nil, false
	}
	return &e.page, true
}

func (ix *Index) cached(n int) (*entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.pages[n]
	return e, ok
}

// Page returns the text of page n, extracting it if needed.
// Concurrent callers share one extraction. Cancelling ctx stops the wait,
// not the extraction, which still completes and is cached.
func (ix *Index) Page(ctx context.Context, n int) (*glyph.PageText, error) {
	e, err := ix.entry(ctx, n)
	if err != nil {
		return nil, err
	}
	return &e.page, nil
}

func (ix *Index) entry(ctx context.Context, n int) (*entry, error) {
	if n < 1 || n > ix.src.NumPages() {
		return nil, fmt.Errorf("page %d out of range [1, %d]", n, ix.src.NumPages())
	}

	if e, ok := ix.cached(n); ok {
		return e, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case res := <-ix.load(ctx, n):
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*entry), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Prefetch starts extracting page n in the background.
func (ix *Index) Prefetch(n int) {
	if n < 1 || n > ix.src.NumPages() {
		return
	}
	if _, ok := ix.cached(n); ok {
		return
	}
	ix.load(context.Background(), n)
}

func (ix *Index) load(ctx context.Context, n int) <-chan singleflight.Result {
	ctx = context.WithoutCancel(ctx)

	return ix.group.DoChan(strconv.Itoa(n), func() (any, error) {
		if e, ok := ix.cached(n); ok {
			return e, nil
		}

		ix.mu.RLock()
		gen := ix.generation
		ix.mu.RUnlock()

		ix.sem <- struct{}{}
		// Failures are logged by the extractor and leave an empty page.
		page, _ := ix.ext.Extract(ctx, ix.src, n)
		<-ix.sem

		e := &entry{page: page}

		ix.mu.Lock()
		if ix.generation == gen {
			ix.pages[n] = e
		}
		ix.mu.Unlock()
		return e, nil
	})
}

// Build extracts every page that is not cached yet.
func (ix *Index) Build(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Concurrency)

	for n := 1; n <= ix.src.NumPages() && ctx.Err() == nil; n++ {
		if _, ok := ix.cached(n); ok {
			continue
		}
		g.Go(func() error {
			_, err := ix.entry(ctx, n)
			return err
		})
	}
	return g.Wait()
}

// Pages returns the cached pages in page order.
func (ix *Index) Pages() []glyph.PageText {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	pages := make([]glyph.PageText, 0, len(ix.pages))
	for n := 1; n <= ix.src.NumPages(); n++ {
		if e, ok := ix.pages[n]; ok {
			pages = append(pages, e.page)
		}
	}
	return pages
}

// Discard drops every cached page. Extractions in flight are not stored.
func (ix *Index) Discard() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.pages = make(map[int]*entry)
	ix.generation++
}

func (ix *Index) sentences(e *entry) []Span {
	e.once.Do(func() {
		e.spans = ix.opts.Segmenter.Spans(e.page.FullText)
	})
	return e.spans
}
