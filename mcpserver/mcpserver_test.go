package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abiiranathan/pdfmark/annotation"
	"github.com/abiiranathan/pdfmark/database"
	"github.com/abiiranathan/pdfmark/glyph"
	"github.com/abiiranathan/pdfmark/library"
	"github.com/abiiranathan/pdfmark/search"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// textSource serves "TEXT\n" documents with one item per page.
type textSource []string

func (s textSource) NumPages() int { return len(s) }

func (s textSource) Page(ctx context.Context, n int) (glyph.Page, error) {
	return textPage(s[n-1]), nil
}

type textPage string

func (p textPage) TextContent(ctx context.Context) ([]glyph.RawItem, error) {
	return []glyph.RawItem{{
		Str:       string(p),
		Transform: [6]float64{22, 0, 0, 22, 100, 600},
		Width:     200,
		Height:    22,
	}}, nil
}

func (p textPage) Viewport(scale float64) glyph.Viewport {
	return glyph.Viewport{Width: 500, Height: 800}.Scale(scale)
}

func openText(data []byte) (glyph.PageSource, error) {
	text, ok := strings.CutPrefix(string(data), "TEXT\n")
	if !ok {
		return nil, errors.New("unsupported format")
	}
	return textSource(strings.Split(text, "\f")), nil
}

func setup(t *testing.T) (*Tools, uint32) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "mcp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	lib := library.New(db, openText, library.Options{Await: true})
	require.NoError(t, lib.Load(context.Background()))

	doc, err := lib.Import(context.Background(), "report.pdf", []byte("TEXT\nQuarterly Report\fThe report total is final"))
	require.NoError(t, err)
	return &Tools{lib: lib}, doc.ID
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestNew(t *testing.T) {
	tools, _ := setup(t)
	assert.NotNil(t, New(tools.lib, "test"))
}

func TestListDocuments(t *testing.T) {
	tools, id := setup(t)

	res, err := tools.ListDocuments(context.Background(), call(nil))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var docs []database.Document
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)
	assert.Equal(t, 2, docs[0].PageCount)
}

func TestSearchDocument(t *testing.T) {
	tools, id := setup(t)
	ctx := context.Background()

	res, err := tools.SearchDocument(ctx, call(map[string]any{"document_id": float64(id), "query": "REPORT"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var matches []search.Match
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &matches))
	require.Len(t, matches, 2)
	assert.Equal(t, 1, matches[0].PageNumber)
	assert.Equal(t, "Report", matches[0].MatchedText)
	assert.Equal(t, 2, matches[1].PageNumber)

	res, err = tools.SearchDocument(ctx, call(map[string]any{"document_id": float64(id), "query": "report", "limit": float64(1)}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &matches))
	assert.Len(t, matches, 1)

	for _, query := range []string{"absent", "", "   "} {
		res, err = tools.SearchDocument(ctx, call(map[string]any{"document_id": float64(id), "query": query}))
		require.NoError(t, err)
		assert.False(t, res.IsError, query)
		assert.Equal(t, "[]", text(t, res), query)
	}

	res, err = tools.SearchDocument(ctx, call(map[string]any{"document_id": float64(id)}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "[]", text(t, res))

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing document", map[string]any{"query": "report"}},
		{"unknown document", map[string]any{"document_id": float64(7), "query": "report"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tools.SearchDocument(ctx, call(tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
		})
	}
}

func TestDocumentOutline(t *testing.T) {
	tools, id := setup(t)

	res, err := tools.DocumentOutline(context.Background(), call(map[string]any{"document_id": float64(id)}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var headers []glyph.Header
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &headers))
	require.Len(t, headers, 2)
	assert.Equal(t, "Quarterly Report", headers[0].Text)
	assert.Equal(t, 1, headers[0].Level)
}

func TestBookmarkTools(t *testing.T) {
	tools, id := setup(t)
	ctx := context.Background()
	doc := float64(id)

	res, err := tools.AddBookmarkFromMatch(ctx, call(map[string]any{"document_id": doc, "query": "total"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var fromMatch annotation.Annotation
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &fromMatch))
	assert.Equal(t, "Search result for: total", fromMatch.Note)
	assert.Equal(t, 2, fromMatch.PageNumber)
	assert.InDelta(t, 20, fromMatch.Position.XPct, 1e-9)
	assert.InDelta(t, 25, fromMatch.Position.YPct, 1e-9)

	res, err = tools.AddBookmarkFromMatch(ctx, call(map[string]any{"document_id": doc, "query": "total", "match_index": float64(3)}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tools.AddBookmark(ctx, call(map[string]any{
		"document_id": doc, "page_number": float64(1), "text": "Quarterly", "x_pct": 150.0, "y_pct": 5.0,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var manual annotation.Annotation
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &manual))
	assert.Equal(t, 100.0, manual.Position.XPct)
	assert.Equal(t, 5.0, manual.Position.YPct)

	res, err = tools.AddBookmark(ctx, call(map[string]any{"document_id": doc, "page_number": float64(9), "text": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tools.ListBookmarks(ctx, call(map[string]any{"document_id": doc, "order": "page"}))
	require.NoError(t, err)
	var list []annotation.Annotation
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &list))
	require.Len(t, list, 2)
	assert.Equal(t, manual.ID, list[0].ID)
	assert.Equal(t, fromMatch.ID, list[1].ID)

	res, err = tools.ListBookmarks(ctx, call(map[string]any{"document_id": doc, "order": "random"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tools.UpdateBookmarkNote(ctx, call(map[string]any{"document_id": doc, "bookmark_id": manual.ID, "note": "cover"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	assert.Contains(t, text(t, res), `"note": "cover"`)

	res, err = tools.RemoveBookmark(ctx, call(map[string]any{"document_id": doc, "bookmark_id": manual.ID}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Removed bookmark "+manual.ID, text(t, res))

	res, err = tools.RemoveBookmark(ctx, call(map[string]any{"document_id": doc, "bookmark_id": manual.ID}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tools.ListBookmarks(ctx, call(map[string]any{"document_id": doc}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &list))
	require.Len(t, list, 1)
	assert.Equal(t, fromMatch.ID, list[0].ID)
}
