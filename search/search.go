package search

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/abiiranathan/pdfmark/position"
)

// Match is one occurrence of a query on a page.
type Match struct {
	PageNumber  int    `json:"pageNumber"`
	MatchedText string `json:"matchedText"` // Text as it appears on the page.
	Context     string `json:"context"`

	// Byte offsets of the match in the page text.
	Start int `json:"start"`
	End   int `json:"end"`

	// Nil when no containing run could be resolved.
	NormalizedPosition *position.NormalizedPoint `json:"normalizedPosition"`
}

// Compile turns a user query into a case-insensitive literal pattern.
func Compile(query string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + regexp.QuoteMeta(query))
}

// Search runs query against every page in page order, waiting for pages
// that are still being extracted. A blank query returns no matches.
// The only errors are from ctx.
func (ix *Index) Search(ctx context.Context, query string) ([]Match, error) {
	return ix.search(ctx, query, true)
}

// Snapshot is like Search but skips pages whose text is not ready and
// starts extracting them instead. Re-running the query later picks them up.
func (ix *Index) Snapshot(ctx context.Context, query string) ([]Match, error) {
	return ix.search(ctx, query, false)
}

func (ix *Index) search(ctx context.Context, query string, await bool) ([]Match, error) {
	matches := []Match{}
	if strings.TrimSpace(query) == "" {
		return matches, nil
	}

	re, err := Compile(query)
	if err != nil {
		ix.log.Warn("unable to compile query", "query", query, "err", err)
		return matches, nil
	}

	for n := 1; n <= ix.src.NumPages(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var e *entry
		if await {
			e, err = ix.entry(ctx, n)
			if err != nil {
				return nil, err
			}
		} else {
			var ok bool
			if e, ok = ix.cached(n); !ok {
				ix.Prefetch(n)
				continue
			}
		}
		matches = append(matches, ix.scan(e, re)...)
	}
	return matches, nil
}

func (ix *Index) scan(e *entry, re *regexp.Regexp) []Match {
	page := &e.page
	if len(page.Runs) == 0 {
		return nil
	}

	limit := -1
	if ix.opts.MaxMatchesPerPage > 0 {
		limit = ix.opts.MaxMatchesPerPage
	}

	locs := re.FindAllStringIndex(page.FullText, limit)
	if len(locs) == 0 {
		return nil
	}
	if len(locs) == limit {
		ix.log.Warn("match cap reached", "page", page.PageNumber, "limit", limit)
	}

	spans := ix.sentences(e)
	vp := page.Viewport()
	matches := make([]Match, 0, len(locs))

	for _, loc := range locs {
		start, end := loc[0], loc[1]
		m := Match{
			PageNumber:  page.PageNumber,
			MatchedText: page.FullText[start:end],
			Context:     Snippet(page.FullText, spans, start, end, ix.opts.ContextWindow),
			Start:       start,
			End:         end,
		}

		run, ok := page.RunAt(start)
		if !ok {
			ix.log.Warn("no run contains match", "page", page.PageNumber, "offset", start)
		} else if p, err := position.FromRun(run, vp); err != nil {
			ix.log.Warn("unable to position match", "page", page.PageNumber, "offset", start, "err", err)
		} else {
			m.NormalizedPosition = &p
		}
		matches = append(matches, m)
	}
	return matches
}

// Snippet returns text[start:end] padded with up to window runes on each
// side, clipped to the sentences that contain the match and trimmed.
func Snippet(text string, spans []Span, start, end, window int) string {
	lo := start
	for i := 0; i < window && lo > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:lo])
		lo -= size
	}

	hi := end
	for i := 0; i < window && hi < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[hi:])
		hi += size
	}

	if s, ok := spanAt(spans, start); ok && s.Start > lo {
		lo = s.Start
	}

	last := start
	if end > start {
		last = end - 1
	}
	if s, ok := spanAt(spans, last); ok && s.End < hi {
		hi = s.End
	}
	return strings.TrimSpace(text[lo:hi])
}
