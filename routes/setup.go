package routes

import (
	"net/http"
	"time"

	"github.com/abiiranathan/pdfmark/library"
)

func SetupRoutes(mux *http.ServeMux, lib *library.Library) {
	mux.HandleFunc("GET /health", Health(time.Now()))

	// Documents
	mux.HandleFunc("GET /documents", ListDocuments(lib))
	mux.HandleFunc("POST /documents", UploadDocument(lib))
	mux.HandleFunc("GET /documents/{doc_id}/file", ServeDocument(lib))
	mux.HandleFunc("DELETE /documents/{doc_id}", DeleteDocument(lib))

	// Text
	mux.HandleFunc("GET /documents/{doc_id}/search", Search(lib))
	mux.HandleFunc("GET /documents/{doc_id}/headers", Headers(lib))
	mux.HandleFunc("GET /documents/{doc_id}/pages/{page_num}", PageText(lib))

	// Bookmarks
	mux.HandleFunc("GET /documents/{doc_id}/bookmarks", ListBookmarks(lib))
	mux.HandleFunc("POST /documents/{doc_id}/bookmarks", AddBookmark(lib))
	mux.HandleFunc("POST /documents/{doc_id}/bookmarks/from-match", AddBookmarkFromMatch(lib))
	mux.HandleFunc("PATCH /documents/{doc_id}/bookmarks/{bookmark_id}", UpdateNote(lib))
	mux.HandleFunc("DELETE /documents/{doc_id}/bookmarks/{bookmark_id}", RemoveBookmark(lib))
	mux.HandleFunc("GET /documents/{doc_id}/bookmarks/{bookmark_id}/anchor", Anchor(lib))

	// Selection to normalized point for the bookmark dialog.
	mux.HandleFunc("POST /documents/{doc_id}/selection", Selection(lib))
}
