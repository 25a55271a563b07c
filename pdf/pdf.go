// Package pdf exposes the pages of a PDF file as glyph.PageSource values.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/abiiranathan/pdfmark/glyph"
	lpdf "github.com/ledongthuc/pdf"
)

var (
	ErrEmpty       = errors.New("pdf data is empty")
	ErrNoPages     = errors.New("pdf has no pages")
	ErrPageMissing = errors.New("pdf page not found")
)

// US Letter, used when a page carries no usable MediaBox.
var defaultViewport = glyph.Viewport{Width: 612, Height: 792}

// Glyph merge thresholds, as multiples of the font size.
const (
	rowTolerance = 0.25 // max baseline drift within one fragment
	spaceGap     = 0.3  // gap that reads as a word space
	breakGap     = 2.0  // gap that starts a new fragment
)

// Document is an opened PDF.
type Document struct {
	Path string // Source path. Empty for documents opened from bytes.

	// The reader resolves objects lazily and is not safe for concurrent use.
	mu    sync.Mutex
	r     *lpdf.Reader
	pages int
}

// Open reads and opens the PDF at path.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc, err := OpenBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.Path = path
	return doc, nil
}

// OpenBytes opens a PDF held in memory. The document has at least one page.
func OpenBytes(data []byte) (doc *Document, err error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	// The parser panics on some malformed input.
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("invalid pdf: %v", r)
		}
	}()

	r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid pdf: %w", err)
	}

	n := r.NumPage()
	if n < 1 {
		return nil, ErrNoPages
	}
	return &Document{r: r, pages: n}, nil
}

// NumPages returns the number of pages.
func (d *Document) NumPages() int {
	return d.pages
}

// Page returns page n, counting from 1.
func (d *Document) Page(ctx context.Context, n int) (p glyph.Page, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n < 1 || n > d.pages {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrPageMissing, n, d.pages)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("page %d: %v", n, r)
		}
	}()

	page := d.r.Page(n)
	if page.V.IsNull() {
		return nil, fmt.Errorf("%w: %d", ErrPageMissing, n)
	}

	box, ox, oy := mediaBox(page.V)
	return &Page{doc: d, page: page, number: n, box: box, originX: ox, originY: oy}, nil
}

// Page is a single page of a Document.
type Page struct {
	doc    *Document
	page   lpdf.Page
	number int

	box              glyph.Viewport
	originX, originY float64
}

// Viewport returns the MediaBox size at the given scale.
func (p *Page) Viewport(scale float64) glyph.Viewport {
	return p.box.Scale(scale)
}

// TextContent decodes the page content stream and merges its glyphs into
// text fragments, in content order.
func (p *Page) TextContent(ctx context.Context) (items []glyph.RawItem, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			items, err = nil, fmt.Errorf("page %d content: %v", p.number, r)
		}
	}()

	content := p.page.Content()
	return mergeTexts(content.Text, p.originX, p.originY), nil
}

// mediaBox returns the page size and origin, walking up the page tree for
// inherited boxes.
func mediaBox(v lpdf.Value) (glyph.Viewport, float64, float64) {
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if box.Len() == 4 {
			x0, y0 := box.Index(0).Float64(), box.Index(1).Float64()
			x1, y1 := box.Index(2).Float64(), box.Index(3).Float64()

			vp := glyph.Viewport{Width: math.Abs(x1 - x0), Height: math.Abs(y1 - y0)}
			if !vp.Empty() {
				return vp, math.Min(x0, x1), math.Min(y0, y1)
			}
		}
		v = v.Key("Parent")
	}
	return defaultViewport, 0, 0
}

// fragment is a RawItem under construction.
type fragment struct {
	text     strings.Builder
	font     string
	size     float64
	x, y     float64
	end      float64 // right edge of the last glyph
	hasSpace bool    // a word space is pending
}

func (f *fragment) item() glyph.RawItem {
	return glyph.RawItem{
		Str:       f.text.String(),
		Transform: [6]float64{f.size, 0, 0, f.size, f.x, f.y},
		Width:     f.end - f.x,
		Height:    f.size,
		FontName:  f.font,
	}
}

// continues reports whether t belongs to the fragment, and whether a word
// space separates it from the previous glyph.
func (f *fragment) continues(t lpdf.Text) (same, space bool) {
	if t.Font != f.font || t.FontSize != f.size {
		return false, false
	}

	tol := math.Max(f.size, 1)
	if math.Abs(t.Y-f.y) > rowTolerance*tol {
		return false, false
	}

	gap := t.X - f.end
	switch {
	case gap < -spaceGap*tol:
		return false, false // moved back, a new line or column
	case gap > breakGap*tol:
		return false, false
	}
	return true, gap > spaceGap*tol
}

// mergeTexts joins per-glyph records into fragments that share a font and a
// baseline. Coordinates are made relative to the MediaBox origin.
func mergeTexts(texts []lpdf.Text, originX, originY float64) []glyph.RawItem {
	var (
		items []glyph.RawItem
		cur   *fragment
	)

	flush := func() {
		if cur != nil && cur.text.Len() > 0 {
			items = append(items, cur.item())
		}
		cur = nil
	}

	for _, t := range texts {
		t.X -= originX
		t.Y -= originY

		if strings.TrimSpace(t.S) == "" {
			if cur != nil {
				cur.hasSpace = true
				cur.end = math.Max(cur.end, t.X+t.W)
			}
			continue
		}

		if cur != nil {
			same, space := cur.continues(t)
			if same {
				if space || cur.hasSpace {
					cur.text.WriteByte(' ')
				}
				cur.text.WriteString(t.S)
				cur.end = math.Max(cur.end, t.X+t.W)
				cur.hasSpace = false
				continue
			}
			flush()
		}

		cur = &fragment{font: t.Font, size: t.FontSize, x: t.X, y: t.Y, end: t.X + t.W}
		cur.text.WriteString(t.S)
	}
	flush()
	return items
}

// ContentHash returns the fnv-32 hash of data, used as the document id.
func ContentHash(data []byte) uint32 {
	h := fnv.New32()
	h.Write(data)
	return h.Sum32()
}

var _ glyph.PageSource = (*Document)(nil)
