// Package position converts between screen geometry and the normalized
// page coordinate that annotations and highlights are stored in.
//
// A NormalizedPoint is a percentage of the unscaled page, so it does not
// change with zoom. Points built from a selection are the selection's
// center. Points built from a glyph run are the run's left edge on its
// baseline and carry AnchorBaseline.
package position

import (
	"errors"
	"math"

	"github.com/abiiranathan/pdfmark/glyph"
)

var (
	// ErrDeferred is returned when the page element has no area yet,
	// e.g. before its first render. The caller retries after layout.
	ErrDeferred = errors.New("position: page element has no area")

	// ErrUnresolved is returned when geometry for a run cannot be mapped.
	ErrUnresolved = errors.New("position: unresolved")
)

// Rect is a screen rectangle with a top-left origin.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return !(r.Width > 0) || !(r.Height > 0)
}

// Center returns the middle of r.
func (r Rect) Center() (x, y float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Anchor names the point of an annotation's rectangle that XPct and YPct
// locate.
type Anchor string

const (
	AnchorCenter   Anchor = ""         // middle of the rectangle
	AnchorBaseline Anchor = "baseline" // left edge on the text baseline
)

// NormalizedPoint is a position as a percentage of the unscaled page.
type NormalizedPoint struct {
	XPct      float64  `json:"xPct"`
	YPct      float64  `json:"yPct"`
	WidthPct  *float64 `json:"widthPct,omitempty"`
	HeightPct *float64 `json:"heightPct,omitempty"`
	Anchor    Anchor   `json:"anchor,omitempty"`
}

// Clamp returns p with every coordinate limited to [0, 100]. Unknown
// anchors become AnchorCenter.
func Clamp(p NormalizedPoint) NormalizedPoint {
	out := NormalizedPoint{XPct: clamp(p.XPct), YPct: clamp(p.YPct)}
	if p.Anchor == AnchorBaseline {
		out.Anchor = AnchorBaseline
	}
	if p.WidthPct != nil {
		out.WidthPct = pct(*p.WidthPct)
	}
	if p.HeightPct != nil {
		out.HeightPct = pct(*p.HeightPct)
	}
	return out
}

// FromSelectionRect maps a selection rectangle to the center of the
// selection relative to page, both in screen pixels.
// Selections that extend past the page are clamped to its edges.
func FromSelectionRect(sel, page Rect) (NormalizedPoint, error) {
	if page.Empty() {
		return NormalizedPoint{}, ErrDeferred
	}

	cx, cy := sel.Center()
	return Clamp(NormalizedPoint{
		XPct:      (cx - page.X) / page.Width * 100,
		YPct:      (cy - page.Y) / page.Height * 100,
		WidthPct:  pct(math.Max(sel.Width, 0) / page.Width * 100),
		HeightPct: pct(math.Max(sel.Height, 0) / page.Height * 100),
	}), nil
}

// FromRun maps a glyph run measured in page space to a normalized point.
// Run baselines are measured from the bottom of the page, so the vertical
// axis is flipped.
func FromRun(run glyph.GlyphRun, vp glyph.Viewport) (NormalizedPoint, error) {
	if vp.Empty() {
		return NormalizedPoint{}, ErrUnresolved
	}

	return Clamp(NormalizedPoint{
		XPct:      run.X / vp.Width * 100,
		YPct:      (vp.Height - run.YBaseline) / vp.Height * 100,
		WidthPct:  pct(run.Width / vp.Width * 100),
		HeightPct: pct(run.Height / vp.Height * 100),
		Anchor:    AnchorBaseline,
	}), nil
}

// ToScreenRect places p on the page element as currently rendered.
// p is the center of the returned rectangle, or its bottom-left corner for
// AnchorBaseline. A point without size yields a zero-sized rectangle at that
// position.
func ToScreenRect(p NormalizedPoint, page Rect) (Rect, error) {
	if page.Empty() {
		return Rect{}, ErrDeferred
	}

	var w, h float64
	if p.WidthPct != nil {
		w = *p.WidthPct / 100 * page.Width
	}
	if p.HeightPct != nil {
		h = *p.HeightPct / 100 * page.Height
	}

	x := page.X + p.XPct/100*page.Width
	y := page.Y + p.YPct/100*page.Height
	if p.Anchor == AnchorBaseline {
		return Rect{X: x, Y: y - h, Width: w, Height: h}, nil
	}
	return Rect{X: x - w/2, Y: y - h/2, Width: w, Height: h}, nil
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 100)
}

func pct(v float64) *float64 {
	v = clamp(v)
	return &v
}
