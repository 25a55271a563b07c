// Package glyph turns the text-rendering records of a page into a searchable
// page string with character offsets that map back to on-page geometry.
package glyph

import (
	"context"
	"fmt"
	"sort"
)

// Separator is appended after every run when building PageText.FullText.
const Separator = ' '

// RawItem is one text-rendering record as produced by the page renderer.
type RawItem struct {
	Str string // Text fragment.

	// Affine transform [a b c d e f]. e is the horizontal position,
	// f the baseline measured from the bottom of the page and d the
	// vertical scale, read as the font size.
	Transform [6]float64

	Width    float64 // Rendered width in page units.
	Height   float64 // Rendered height in page units.
	FontName string
}

// Viewport is the unscaled size of a page in page units.
type Viewport struct {
	Width  float64
	Height float64
}

// Scale returns the viewport at the given zoom factor.
func (vp Viewport) Scale(scale float64) Viewport {
	return Viewport{Width: vp.Width * scale, Height: vp.Height * scale}
}

// Empty reports whether the viewport has no area.
func (vp Viewport) Empty() bool {
	return vp.Width <= 0 || vp.Height <= 0
}

// GlyphRun is a contiguous fragment of rendered text.
// [StartOffset, EndOffset) covers the fragment and its trailing separator.
type GlyphRun struct {
	Text        string  `json:"text"`
	StartOffset int     `json:"startOffset"`
	EndOffset   int     `json:"endOffset"`
	X           float64 `json:"x"`
	YBaseline   float64 `json:"yBaseline"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	FontSize    float64 `json:"fontSize"`
}

// PageText is the extracted text model of a single page.
// It is immutable once built.
type PageText struct {
	PageNumber     int        `json:"pageNumber"`
	FullText       string     `json:"fullText"`
	Runs           []GlyphRun `json:"runs"`
	ViewportWidth  float64    `json:"viewportWidth"`
	ViewportHeight float64    `json:"viewportHeight"`
}

// Viewport returns the unscaled page viewport the runs are measured in.
func (p *PageText) Viewport() Viewport {
	return Viewport{Width: p.ViewportWidth, Height: p.ViewportHeight}
}

// RunAt returns the run whose [StartOffset, EndOffset) contains offset.
func (p *PageText) RunAt(offset int) (GlyphRun, bool) {
	runs := p.Runs
	if offset < 0 || len(runs) == 0 {
		return GlyphRun{}, false
	}

	// first run starting after offset; the candidate is the one before it.
	i := sort.Search(len(runs), func(i int) bool { return runs[i].StartOffset > offset })
	if i == 0 {
		return GlyphRun{}, false
	}

	run := runs[i-1]
	if offset >= run.EndOffset {
		return GlyphRun{}, false
	}
	return run, true
}

// Page is a single page exposed by a PageSource.
type Page interface {
	// TextContent returns the page's text-rendering records in document order.
	TextContent(ctx context.Context) ([]RawItem, error)

	// Viewport returns the page size at the given scale. Scale 1 is unscaled.
	Viewport(scale float64) Viewport
}

// PageSource gives access to the pages of a loaded document.
// Page numbers are 1-based.
type PageSource interface {
	NumPages() int
	Page(ctx context.Context, n int) (Page, error)
}

// ExtractionError reports that the text of a page could not be read.
type ExtractionError struct {
	Page int
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract page %d: %v", e.Page, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
