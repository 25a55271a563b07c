package glyph

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Extractor builds PageText values from raw page items.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor returns an extractor logging to logger.
// A nil logger uses slog.Default().
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract loads page n from src and builds its text model.
// When the page cannot be read, an empty PageText with the page number set
// is returned together with an *ExtractionError. Callers keep going.
// A panic in src is reported the same way.
func (ex *Extractor) Extract(ctx context.Context, src PageSource, n int) (text PageText, err error) {
	defer func() {
		if r := recover(); r != nil {
			ex.logger.Warn("page source panicked", "page", n, "panic", r)
			text, err = PageText{PageNumber: n}, &ExtractionError{Page: n, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	empty := PageText{PageNumber: n}

	page, err := src.Page(ctx, n)
	if err != nil {
		ex.logger.Warn("unable to load page", "page", n, "err", err)
		return empty, &ExtractionError{Page: n, Err: err}
	}

	vp := page.Viewport(1)
	empty.ViewportWidth = finite(vp.Width)
	empty.ViewportHeight = finite(vp.Height)

	items, err := page.TextContent(ctx)
	if err != nil {
		ex.logger.Warn("unable to read page text", "page", n, "err", err)
		return empty, &ExtractionError{Page: n, Err: err}
	}
	return ex.ExtractPage(items, vp, n), nil
}

// ExtractPage concatenates the item fragments of a page, each followed by
// Separator, and records the offsets of every run. It has no side effects.
func (ex *Extractor) ExtractPage(items []RawItem, vp Viewport, n int) PageText {
	var buf strings.Builder
	runs := make([]GlyphRun, 0, len(items))

	for _, item := range items {
		text := cleanFragment(item.Str)

		start := buf.Len()
		buf.WriteString(text)
		buf.WriteByte(Separator)

		runs = append(runs, GlyphRun{
			Text:        text,
			StartOffset: start,
			EndOffset:   buf.Len(),
			X:           finite(item.Transform[4]),
			YBaseline:   finite(item.Transform[5]),
			Width:       finite(item.Width),
			Height:      finite(item.Height),
			FontSize:    math.Abs(finite(item.Transform[3])),
		})
	}

	return PageText{
		PageNumber:     n,
		FullText:       buf.String(),
		Runs:           runs,
		ViewportWidth:  finite(vp.Width),
		ViewportHeight: finite(vp.Height),
	}
}

// skipRune reports runes from the geometric shapes block (arrows, bullets,
// boxes) and stray C1 controls that renderers emit as decoration.
func skipRune(r rune) bool {
	return (r >= 0x25A0 && r <= 0x25FF) || r == 0x0080 || r == 0x0089
}

// cleanFragment applies compatibility normalisation so ligatures and
// full-width forms match typed queries, and drops decoration glyphs.
func cleanFragment(s string) string {
	s = norm.NFKC.String(s)
	return strings.Map(func(r rune) rune {
		if skipRune(r) {
			return -1
		}
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		return r
	}, s)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// CheckInvariants verifies the offset invariants of a page:
// strictly increasing, non-overlapping runs that end exactly at the end of
// FullText.
func CheckInvariants(p *PageText) error {
	prevEnd := 0
	for i, run := range p.Runs {
		if run.StartOffset >= run.EndOffset {
			return fmt.Errorf("run %d: empty span [%d, %d)", i, run.StartOffset, run.EndOffset)
		}
		if run.StartOffset != prevEnd {
			return fmt.Errorf("run %d: starts at %d, previous ended at %d", i, run.StartOffset, prevEnd)
		}
		prevEnd = run.EndOffset
	}
	if prevEnd != len(p.FullText) {
		return fmt.Errorf("text length %d does not match last run end %d", len(p.FullText), prevEnd)
	}
	return nil
}
