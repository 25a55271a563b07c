package library

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/abiiranathan/pdfmark/annotation"
	"github.com/abiiranathan/pdfmark/database"
	"github.com/abiiranathan/pdfmark/glyph"
	"github.com/abiiranathan/pdfmark/position"
	"github.com/abiiranathan/pdfmark/search"
)

// Document is an opened document: its page text index, the query runner of
// its search box and its bookmarks.
type Document struct {
	ID        uint32
	Name      string
	PageCount int

	index   *search.Index
	runner  *search.Runner
	marks   *annotation.Set
	headers glyph.HeaderOptions
	log     *slog.Logger

	// Stops the background Build, if any.
	cancel context.CancelFunc
}

func newDocument(stored database.Document, src glyph.PageSource, store annotation.Store, opts Options) *Document {
	ix := search.NewIndex(src, opts.Search)
	pages := src.NumPages()

	return &Document{
		ID:        stored.ID,
		Name:      stored.Name,
		PageCount: pages,
		index:     ix,
		runner:    search.NewRunner(ix, opts.Await),
		marks:     annotation.New(stored.ID, pages, stored.Bookmarks, store),
		headers:   opts.Headers,
		log:       opts.Logger.With("document", stored.ID),
	}
}

// ValidPage reports whether n is a page of the document.
func (d *Document) ValidPage(n int) bool {
	return n >= 1 && n <= d.PageCount
}

// Search runs query against the document. A newer call supersedes this one,
// which then returns search.ErrSuperseded.
func (d *Document) Search(ctx context.Context, query string) ([]search.Match, error) {
	return d.runner.Search(ctx, query)
}

// LastSearch returns the query and matches of the newest completed search.
func (d *Document) LastSearch() (string, []search.Match) {
	return d.runner.Latest()
}

// CreateAnnotationFromSelection maps a selection on page pageNumber to the
// normalized point used to pre-fill the bookmark dialog.
func (d *Document) CreateAnnotationFromSelection(sel, page position.Rect, pageNumber int, text string) (position.NormalizedPoint, error) {
	if !d.ValidPage(pageNumber) {
		return position.NormalizedPoint{}, fmt.Errorf("%w: %d not in [1, %d]", annotation.ErrPageOutOfRange, pageNumber, d.PageCount)
	}
	if strings.TrimSpace(text) == "" {
		return position.NormalizedPoint{}, annotation.ErrEmptyText
	}
	return position.FromSelectionRect(sel, page)
}

// RenderAnchor places a bookmark on the page element as currently rendered.
func (d *Document) RenderAnchor(a annotation.Annotation, page position.Rect) (position.Rect, error) {
	return position.ToScreenRect(a.Position, page)
}

// AddBookmark stores a new bookmark.
func (d *Document) AddBookmark(ctx context.Context, c annotation.Candidate) (annotation.Annotation, error) {
	return d.marks.Add(ctx, c)
}

// AddBookmarkFromMatch bookmarks a search match at its highlight position.
// An empty note defaults to "Search result for: <query>".
func (d *Document) AddBookmarkFromMatch(ctx context.Context, m search.Match, query, note string) (annotation.Annotation, error) {
	if m.NormalizedPosition == nil {
		d.log.Warn("match has no position", "page", m.PageNumber, "start", m.Start)
		return annotation.Annotation{}, fmt.Errorf("page %d offset %d: %w", m.PageNumber, m.Start, position.ErrUnresolved)
	}
	if strings.TrimSpace(note) == "" {
		note = "Search result for: " + query
	}

	return d.marks.Add(ctx, annotation.Candidate{
		Text:       m.MatchedText,
		Note:       note,
		PageNumber: m.PageNumber,
		Position:   *m.NormalizedPosition,
	})
}

// RemoveBookmark deletes a bookmark.
func (d *Document) RemoveBookmark(ctx context.Context, id string) error {
	return d.marks.Remove(ctx, id)
}

// UpdateNote replaces the note of a bookmark.
func (d *Document) UpdateNote(ctx context.Context, id, note string) (annotation.Annotation, error) {
	return d.marks.UpdateNote(ctx, id, note)
}

// Bookmark returns the bookmark with the given id.
func (d *Document) Bookmark(id string) (annotation.Annotation, bool) {
	return d.marks.Get(id)
}

// Bookmarks returns the bookmarks by creation time.
func (d *Document) Bookmarks() []annotation.Annotation {
	return d.marks.List()
}

// BookmarksByPage returns the bookmarks ordered for the sidebar.
func (d *Document) BookmarksByPage() []annotation.Annotation {
	return d.marks.ByPage()
}

// Headers returns the section outline of the leading pages, extracting
// their text if needed.
func (d *Document) Headers(ctx context.Context) ([]glyph.Header, error) {
	n := d.PageCount
	if d.headers.MaxPages > 0 {
		n = min(n, d.headers.MaxPages)
	}

	pages := make([]glyph.PageText, 0, n)
	for i := 1; i <= n; i++ {
		page, err := d.index.Page(ctx, i)
		if err != nil {
			return nil, err
		}
		pages = append(pages, *page)
	}
	return glyph.Outline(pages, d.headers), nil
}

// Page returns the extracted text of page n.
func (d *Document) Page(ctx context.Context, n int) (*glyph.PageText, error) {
	if !d.ValidPage(n) {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", annotation.ErrPageOutOfRange, n, d.PageCount)
	}
	return d.index.Page(ctx, n)
}

// close stops the background Build and drops the cached page text.
func (d *Document) close() {
	if d.cancel != nil {
		d.cancel()
	}
	d.index.Discard()
}

// Build extracts every page ahead of the first search.
func (d *Document) Build(ctx context.Context) error {
	return d.index.Build(ctx)
}
