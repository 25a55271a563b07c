package search

import (
	"sort"
	"strings"

	"github.com/jdkato/prose/v2"
)

// Span is a half-open byte range [Start, End) of a page text.
type Span struct {
	Start int
	End   int
}

// Segmenter splits text into ordered, non-overlapping sentence spans.
type Segmenter interface {
	Spans(text string) []Span
}

// RuleSegmenter ends a sentence at '.', '!' or '?' followed by whitespace
// or the end of the text. Decimal points such as "42.00" do not split.
type RuleSegmenter struct{}

func (RuleSegmenter) Spans(text string) []Span {
	var spans []Span
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || isSpace(text[i+1]) {
				spans = append(spans, Span{Start: start, End: i + 1})
				start = i + 1
			}
		}
	}
	if start < len(text) {
		spans = append(spans, Span{Start: start, End: len(text)})
	}
	return spans
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

// ProseSegmenter uses the prose sentence tokenizer, which knows about
// abbreviations like "Dr." and "e.g.". If sentences cannot be located in
// the original text, it falls back to RuleSegmenter.
type ProseSegmenter struct{}

func (ProseSegmenter) Spans(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	doc, err := prose.NewDocument(text, prose.WithTagging(false), prose.WithExtraction(false))
	if err != nil {
		return RuleSegmenter{}.Spans(text)
	}

	var spans []Span
	cursor := 0
	for _, s := range doc.Sentences() {
		if s.Text == "" {
			continue
		}
		i := strings.Index(text[cursor:], s.Text)
		if i < 0 {
			return RuleSegmenter{}.Spans(text)
		}
		spans = append(spans, Span{Start: cursor + i, End: cursor + i + len(s.Text)})
		cursor += i + len(s.Text)
	}
	return spans
}

// NewSegmenter returns the segmenter registered under name.
// Unknown names fall back to the rule based segmenter.
func NewSegmenter(name string) Segmenter {
	if name == "prose" {
		return ProseSegmenter{}
	}
	return RuleSegmenter{}
}

func spanAt(spans []Span, offset int) (Span, bool) {
	i := sort.Search(len(spans), func(i int) bool { return spans[i].End > offset })
	if i < len(spans) && spans[i].Start <= offset {
		return spans[i], true
	}
	return Span{}, false
}
