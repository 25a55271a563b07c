package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/abiiranathan/pdfmark/annotation"
	"github.com/abiiranathan/pdfmark/library"
	"github.com/abiiranathan/pdfmark/position"
	"github.com/abiiranathan/pdfmark/search"
)

// MaxUploadSize bounds the body of a document upload.
const MaxUploadSize = 64 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, library.ErrUnknownDocument), errors.Is(err, annotation.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, library.ErrInvalidDocument),
		errors.Is(err, annotation.ErrPageOutOfRange),
		errors.Is(err, annotation.ErrEmptyText),
		errors.Is(err, position.ErrDeferred):
		status = http.StatusBadRequest
	case errors.Is(err, position.ErrUnresolved):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, search.ErrSuperseded):
		status = http.StatusConflict
	case errors.Is(err, annotation.ErrPersistence):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	writeMessage(w, status, err.Error())
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// document resolves the {doc_id} path value to an opened document.
func document(lib *library.Library, w http.ResponseWriter, r *http.Request) (*library.Document, bool) {
	id, err := strconv.ParseUint(r.PathValue("doc_id"), 10, 32)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid document id")
		return nil, false
	}

	d, err := lib.Open(r.Context(), uint32(id))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return d, true
}

func ListDocuments(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, lib.Documents())
	}
}

// UploadDocument imports the multipart "file" field.
func UploadDocument(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)

		file, header, err := r.FormFile("file")
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Missing file: "+err.Error())
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Unable to read file: "+err.Error())
			return
		}

		doc, err := lib.Import(r.Context(), header.Filename, data)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, doc)
	}
}

// ServeDocument streams the raw document bytes to the viewer.
func ServeDocument(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.PathValue("doc_id"), 10, 32)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid document id")
			return
		}

		doc, err := lib.Raw(r.Context(), uint32(id))
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Cache-Control", "max-age=31536000")
		http.ServeContent(w, r, doc.Name, doc.CreatedAt, bytes.NewReader(doc.Data))
	}
}

func DeleteDocument(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.PathValue("doc_id"), 10, 32)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid document id")
			return
		}

		if err := lib.Delete(r.Context(), uint32(id)); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Search runs ?query= against one document. An empty query returns [].
func Search(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := document(lib, w, r)
		if !ok {
			return
		}

		matches, err := d.Search(r.Context(), r.URL.Query().Get("query"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, matches)
	}
}

func Headers(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := document(lib, w, r)
		if !ok {
			return
		}

		headers, err := d.Headers(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, headers)
	}
}

// PageText returns the extracted text and runs of a page.
func PageText(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := document(lib, w, r)
		if !ok {
			return
		}

		n, err := strconv.Atoi(r.PathValue("page_num"))
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid page number")
			return
		}

		page, err := d.Page(r.Context(), n)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

// ListBookmarks lists by creation time, or by page with ?order=page.
func ListBookmarks(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := document(lib, w, r)
		if !ok {
			return
		}

		if r.URL.Query().Get("order") == "page" {
			writeJSON(w, http.StatusOK, d.BookmarksByPage())
			return
		}
		writeJSON(w, http.StatusOK, d.Bookmarks())
	}
}

func AddBookmark(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := document(lib, w, r)
		if !ok {
			return
		}

		var c annotation.Candidate
		if err := decode(r, &c); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}

		a, err := d.AddBookmark(r.Context(), c)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

type matchBookmarkRequest struct {
	Match search.Match `json:"match"`
	Query string       `json:"query"`
	Note  string       `json:"note"`
}

func AddBookmarkFromMatch(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := document(lib, w, r)
		if !ok {
			return
		}

		var req matchBookmarkRequest
		if err := decode(r, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}

		a, err := d.AddBookmarkFromMatch(r.Context(), req.Match, req.Query, req.Note)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

func UpdateNote(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := document(lib, w, r)
		if !ok {
			return
		}

		var req struct {
			Note string `json:"note"`
		}
		if err := decode(r, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}

		a, err := d.UpdateNote(r.Context(), r.PathValue("bookmark_id"), req.Note)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func RemoveBookmark(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := document(lib, w, r)
		if !ok {
			return
		}

		if err := d.RemoveBookmark(r.Context(), r.PathValue("bookmark_id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type selectionRequest struct {
	Selection  position.Rect `json:"selection"`
	Page       position.Rect `json:"page"`
	PageNumber int           `json:"pageNumber"`
	Text       string        `json:"text"`
}

// Selection maps a text selection to the point used to pre-fill the
// bookmark dialog.
func Selection(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := document(lib, w, r)
		if !ok {
			return
		}

		var req selectionRequest
		if err := decode(r, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}

		p, err := d.CreateAnnotationFromSelection(req.Selection, req.Page, req.PageNumber, req.Text)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// Anchor places a bookmark on the page element described by the x, y,
// width and height query parameters.
func Anchor(lib *library.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := document(lib, w, r)
		if !ok {
			return
		}

		a, found := d.Bookmark(r.PathValue("bookmark_id"))
		if !found {
			writeMessage(w, http.StatusNotFound, "Bookmark not found")
			return
		}

		var page position.Rect
		q := r.URL.Query()
		for _, f := range []struct {
			name string
			dst  *float64
		}{
			{"x", &page.X}, {"y", &page.Y}, {"width", &page.Width}, {"height", &page.Height},
		} {
			v := q.Get(f.name)
			if v == "" {
				continue
			}
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				writeMessage(w, http.StatusBadRequest, "Invalid "+f.name)
				return
			}
			*f.dst = parsed
		}

		rect, err := d.RenderAnchor(a, page)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rect)
	}
}

// Health reports that the server is up.
func Health(started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"uptime": time.Since(started).Round(time.Second).String(),
		})
	}
}
