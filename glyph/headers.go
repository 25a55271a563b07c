package glyph

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/bbalet/stopwords"
)

// HeaderOptions tunes section header detection.
type HeaderOptions struct {
	// Runs with a font size strictly greater than FontSize are candidates.
	FontSize float64

	// Only the first MaxPages pages are scanned. Zero scans every page.
	MaxPages int

	// Candidates must be shorter than MaxLength characters.
	MaxLength int

	// Language used to reject candidates made only of stopwords.
	// Empty disables the check.
	Language string
}

// DefaultHeaderOptions mirrors the thresholds used by the viewer sidebar.
var DefaultHeaderOptions = HeaderOptions{
	FontSize:  12,
	MaxPages:  3,
	MaxLength: 100,
	Language:  "en",
}

// Header is a large-text item surfaced as a navigation entry.
type Header struct {
	Text       string  `json:"text"`
	PageNumber int     `json:"pageNumber"`
	Position   float64 `json:"position"` // Baseline, measured from the page bottom.
	FontSize   float64 `json:"fontSize"`
	Level      int     `json:"level"`
}

// HeaderLevel maps a font size to an outline level from 1 to 4.
func HeaderLevel(fontSize float64) int {
	switch {
	case fontSize >= 20:
		return 1
	case fontSize >= 16:
		return 2
	case fontSize >= 14:
		return 3
	default:
		return 4
	}
}

// Outline collects header candidates from pages, ordered by page and then
// top to bottom. Repeated texts keep their first occurrence.
func Outline(pages []PageText, opts HeaderOptions) []Header {
	var headers []Header

	for _, page := range pages {
		if opts.MaxPages > 0 && page.PageNumber > opts.MaxPages {
			continue
		}

		for _, run := range page.Runs {
			if !isHeader(run, opts) {
				continue
			}
			headers = append(headers, Header{
				Text:       strings.TrimSpace(run.Text),
				PageNumber: page.PageNumber,
				Position:   run.YBaseline,
				FontSize:   run.FontSize,
				Level:      HeaderLevel(run.FontSize),
			})
		}
	}

	slices.SortStableFunc(headers, func(a, b Header) int {
		if c := cmp.Compare(a.PageNumber, b.PageNumber); c != 0 {
			return c
		}
		// Baselines grow upwards.
		return cmp.Compare(b.Position, a.Position)
	})

	seen := make(map[string]struct{}, len(headers))
	unique := headers[:0]
	for _, h := range headers {
		if _, ok := seen[h.Text]; ok {
			continue
		}
		seen[h.Text] = struct{}{}
		unique = append(unique, h)
	}
	return slices.Clip(unique)
}

func isHeader(run GlyphRun, opts HeaderOptions) bool {
	if run.FontSize <= opts.FontSize {
		return false
	}

	if opts.MaxLength > 0 && len([]rune(run.Text)) >= opts.MaxLength {
		return false
	}

	text := strings.TrimSpace(run.Text)
	if !strings.ContainsFunc(text, isLatinLetter) {
		return false
	}

	if isDigits(text) {
		return false
	}

	if opts.Language != "" && strings.TrimSpace(stopwords.CleanString(text, opts.Language, false)) == "" {
		return false
	}
	return true
}

func isLatinLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
