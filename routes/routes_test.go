package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abiiranathan/pdfmark/annotation"
	"github.com/abiiranathan/pdfmark/database"
	"github.com/abiiranathan/pdfmark/glyph"
	"github.com/abiiranathan/pdfmark/library"
	"github.com/abiiranathan/pdfmark/position"
	"github.com/abiiranathan/pdfmark/routes"
	"github.com/abiiranathan/pdfmark/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineSource serves "LINES\n" documents: pages split on form feeds, one
// item per line, on a 600x800 viewport.
type lineSource []string

func (s lineSource) NumPages() int { return len(s) }

func (s lineSource) Page(ctx context.Context, n int) (glyph.Page, error) {
	return linePage(s[n-1]), nil
}

type linePage string

func (p linePage) TextContent(ctx context.Context) ([]glyph.RawItem, error) {
	var items []glyph.RawItem
	for i, line := range strings.Split(string(p), "\n") {
		items = append(items, glyph.RawItem{
			Str:       line,
			Transform: [6]float64{10, 0, 0, 10, 60, 700 - float64(i)*20},
			Width:     float64(len(line)) * 5,
			Height:    10,
		})
	}
	return items, nil
}

func (p linePage) Viewport(scale float64) glyph.Viewport {
	return glyph.Viewport{Width: 600, Height: 800}.Scale(scale)
}

func openLines(data []byte) (glyph.PageSource, error) {
	text, ok := strings.CutPrefix(string(data), "LINES\n")
	if !ok {
		return nil, errors.New("unsupported format")
	}
	return lineSource(strings.Split(text, "\f")), nil
}

type api struct {
	t   *testing.T
	mux *http.ServeMux
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "routes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	lib := library.New(db, openLines, library.Options{Await: true})
	require.NoError(t, lib.Load(context.Background()))

	mux := http.NewServeMux()
	routes.SetupRoutes(mux, lib)
	return &api{t: t, mux: mux}
}

func (a *api) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func (a *api) upload(name string, data []byte) *httptest.ResponseRecorder {
	a.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(a.t, err)
	_, err = fw.Write(data)
	require.NoError(a.t, err)
	require.NoError(a.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func (a *api) importDoc(pages ...string) uint32 {
	a.t.Helper()

	rec := a.upload("invoice.pdf", []byte("LINES\n"+strings.Join(pages, "\f")))
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	var doc database.Document
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &doc))
	return doc.ID
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const invoice = "Invoice Total: $42.00. Thank you."

func TestDocuments(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodGet, "/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]database.Document](t, rec))

	id := a.importDoc(invoice, "second page")

	docs := decodeBody[[]database.Document](t, a.do(http.MethodGet, "/documents", nil))
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)
	assert.Equal(t, "invoice.pdf", docs[0].Name)
	assert.Equal(t, 2, docs[0].PageCount)

	rec = a.do(http.MethodGet, fmt.Sprintf("/documents/%d/file", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "LINES\n"+invoice+"\fsecond page", rec.Body.String())

	rec = a.upload("bad.pdf", []byte("nope"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/documents", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteDocument(t *testing.T) {
	a := newAPI(t)
	id := a.importDoc(invoice)

	rec := a.do(http.MethodPost, fmt.Sprintf("/documents/%d/bookmarks", id),
		annotation.Candidate{Text: "Invoice", PageNumber: 1})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(http.MethodDelete, fmt.Sprintf("/documents/%d", id), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(http.MethodGet, fmt.Sprintf("/documents/%d/bookmarks", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodDelete, fmt.Sprintf("/documents/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Empty(t, decodeBody[[]database.Document](t, a.do(http.MethodGet, "/documents", nil)))
}

func TestBadDocumentID(t *testing.T) {
	a := newAPI(t)

	tests := []struct {
		path   string
		status int
	}{
		{"/documents/abc/search?query=x", http.StatusBadRequest},
		{"/documents/-1/headers", http.StatusBadRequest},
		{"/documents/99999999999/bookmarks", http.StatusBadRequest},
		{"/documents/42/search?query=x", http.StatusNotFound},
		{"/documents/42/file", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := a.do(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, decodeBody[map[string]string](t, rec), "message")
		})
	}
}

func TestSearch(t *testing.T) {
	a := newAPI(t)
	id := a.importDoc(invoice, "a.b*c here\naXbYYc there")

	tests := []struct {
		query string
		pages []int
	}{
		{"Total", []int{1}},
		{"total", []int{1}},
		{"a.b*c", []int{2}},
		{"", nil},
		{"   ", nil},
		{"missing", nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := a.do(http.MethodGet, fmt.Sprintf("/documents/%d/search?query=%s", id, urlEncode(tt.query)), nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.True(t, strings.HasPrefix(rec.Body.String(), "["), "always a JSON array")

			var pages []int
			for _, m := range decodeBody[[]search.Match](t, rec) {
				pages = append(pages, m.PageNumber)
			}
			assert.Equal(t, tt.pages, pages)
		})
	}

	matches := decodeBody[[]search.Match](t, a.do(http.MethodGet, fmt.Sprintf("/documents/%d/search?query=Total", id), nil))
	require.Len(t, matches, 1)
	assert.Equal(t, "Invoice Total: $42.00.", matches[0].Context)
	require.NotNil(t, matches[0].NormalizedPosition)
	assert.InDelta(t, 10, matches[0].NormalizedPosition.XPct, 1e-9)
	assert.InDelta(t, 12.5, matches[0].NormalizedPosition.YPct, 1e-9)
}

func urlEncode(s string) string {
	return strings.NewReplacer(" ", "%20", "*", "%2A", "$", "%24").Replace(s)
}

func TestPagesAndHeaders(t *testing.T) {
	a := newAPI(t)
	id := a.importDoc(invoice)

	rec := a.do(http.MethodGet, fmt.Sprintf("/documents/%d/pages/1", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[glyph.PageText](t, rec)
	assert.Equal(t, invoice+" ", page.FullText)
	assert.Equal(t, 600.0, page.ViewportWidth)

	rec = a.do(http.MethodGet, fmt.Sprintf("/documents/%d/pages/7", id), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(http.MethodGet, fmt.Sprintf("/documents/%d/pages/first", id), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodGet, fmt.Sprintf("/documents/%d/headers", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]glyph.Header](t, rec))
}

func TestBookmarks(t *testing.T) {
	a := newAPI(t)
	id := a.importDoc(invoice, "page two", "page three")
	base := fmt.Sprintf("/documents/%d/bookmarks", id)

	rec := a.do(http.MethodPost, base, annotation.Candidate{
		Text: "three", Note: "last", PageNumber: 3, Position: position.NormalizedPoint{XPct: 20, YPct: 30},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	third := decodeBody[annotation.Annotation](t, rec)
	assert.Equal(t, id, third.DocumentID)
	assert.NotEmpty(t, third.ID)

	rec = a.do(http.MethodPost, base, annotation.Candidate{Text: "one", PageNumber: 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decodeBody[annotation.Annotation](t, rec)

	t.Run("validation", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, base, annotation.Candidate{Text: "x", PageNumber: 4}).Code)
		assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, base, annotation.Candidate{Text: " ", PageNumber: 1}).Code)
		assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, base, map[string]any{"bogus": true}).Code)
	})

	list := decodeBody[[]annotation.Annotation](t, a.do(http.MethodGet, base, nil))
	require.Len(t, list, 2)
	assert.Equal(t, third.ID, list[0].ID)

	list = decodeBody[[]annotation.Annotation](t, a.do(http.MethodGet, base+"?order=page", nil))
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)

	rec = a.do(http.MethodPatch, base+"/"+first.ID, map[string]string{"note": "edited"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "edited", decodeBody[annotation.Annotation](t, rec).Note)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, base+"/"+first.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, base+"/"+first.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPatch, base+"/missing", map[string]string{"note": "x"}).Code)

	list = decodeBody[[]annotation.Annotation](t, a.do(http.MethodGet, base, nil))
	require.Len(t, list, 1)
	assert.Equal(t, third.ID, list[0].ID)
}

func TestBookmarkFromMatch(t *testing.T) {
	a := newAPI(t)
	id := a.importDoc(invoice)

	matches := decodeBody[[]search.Match](t, a.do(http.MethodGet, fmt.Sprintf("/documents/%d/search?query=thank", id), nil))
	require.Len(t, matches, 1)

	rec := a.do(http.MethodPost, fmt.Sprintf("/documents/%d/bookmarks/from-match", id),
		map[string]any{"match": matches[0], "query": "thank"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	bm := decodeBody[annotation.Annotation](t, rec)
	assert.Equal(t, "Thank", bm.Text)
	assert.Equal(t, "Search result for: thank", bm.Note)
	assert.Equal(t, 1, bm.PageNumber)

	unresolved := matches[0]
	unresolved.NormalizedPosition = nil
	rec = a.do(http.MethodPost, fmt.Sprintf("/documents/%d/bookmarks/from-match", id),
		map[string]any{"match": unresolved, "query": "thank"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSelectionAndAnchor(t *testing.T) {
	a := newAPI(t)
	id := a.importDoc(invoice)

	rec := a.do(http.MethodPost, fmt.Sprintf("/documents/%d/selection", id), map[string]any{
		"selection":  position.Rect{X: 390, Y: 95, Width: 20, Height: 10},
		"page":       position.Rect{Width: 800, Height: 1000},
		"pageNumber": 1,
		"text":       "Invoice",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decodeBody[position.NormalizedPoint](t, rec)
	assert.InDelta(t, 50, p.XPct, 1e-9)
	assert.InDelta(t, 10, p.YPct, 1e-9)

	rec = a.do(http.MethodPost, fmt.Sprintf("/documents/%d/selection", id), map[string]any{
		"selection":  position.Rect{X: 1, Y: 1, Width: 1, Height: 1},
		"page":       position.Rect{},
		"pageNumber": 1,
		"text":       "Invoice",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, fmt.Sprintf("/documents/%d/bookmarks", id),
		annotation.Candidate{Text: "Invoice", PageNumber: 1, Position: p})
	require.Equal(t, http.StatusCreated, rec.Code)
	bm := decodeBody[annotation.Annotation](t, rec)

	anchor := fmt.Sprintf("/documents/%d/bookmarks/%s/anchor", id, bm.ID)
	rec = a.do(http.MethodGet, anchor+"?x=10&y=20&width=1600&height=2000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rect := decodeBody[position.Rect](t, rec)
	assert.InDelta(t, 10+800-20, rect.X, 1e-9)
	assert.InDelta(t, 20+200-10, rect.Y, 1e-9)
	assert.InDelta(t, 40, rect.Width, 1e-9)
	assert.InDelta(t, 20, rect.Height, 1e-9)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, anchor, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, anchor+"?width=abc&height=1", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		a.do(http.MethodGet, fmt.Sprintf("/documents/%d/bookmarks/missing/anchor?width=1&height=1", id), nil).Code)
}

func TestLogger(t *testing.T) {
	var out bytes.Buffer
	handler := routes.Logger(&out)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, out.String(), "method=GET")
	assert.Contains(t, out.String(), "path=/documents")
	assert.Contains(t, out.String(), "status=418")
}

func TestHealth(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[map[string]any](t, rec)["status"])
}
