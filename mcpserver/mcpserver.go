// Package mcpserver exposes the library as Model Context Protocol tools
// served over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/abiiranathan/pdfmark/annotation"
	"github.com/abiiranathan/pdfmark/library"
	"github.com/abiiranathan/pdfmark/position"
	"github.com/abiiranathan/pdfmark/search"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Tools holds the tool handlers.
type Tools struct {
	lib *library.Library
}

// New returns an MCP server with every tool registered.
func New(lib *library.Library, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"pdfmark",
		version,
		server.WithToolCapabilities(true),
	)
	t := &Tools{lib: lib}

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List the imported PDF documents with their ids, page counts and bookmarks."),
		),
		t.ListDocuments,
	)

	s.AddTool(
		mcp.NewTool("search_document",
			mcp.WithDescription("Find every case-insensitive occurrence of a literal text in one document. Returns page numbers, context snippets and positions."),
			mcp.WithNumber("document_id", mcp.Required(), mcp.Description("Document id from list_documents")),
			mcp.WithString("query", mcp.Required(), mcp.Description("Text to find. An empty query returns no matches")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of matches to return (default: all)")),
		),
		t.SearchDocument,
	)

	s.AddTool(
		mcp.NewTool("document_outline",
			mcp.WithDescription("List the section headers detected on the first pages of a document."),
			mcp.WithNumber("document_id", mcp.Required(), mcp.Description("Document id from list_documents")),
		),
		t.DocumentOutline,
	)

	s.AddTool(
		mcp.NewTool("list_bookmarks",
			mcp.WithDescription("List the bookmarks of a document."),
			mcp.WithNumber("document_id", mcp.Required(), mcp.Description("Document id from list_documents")),
			mcp.WithString("order",
				mcp.Description("'created' for creation time, 'page' for page order"),
				mcp.DefaultString("created"),
			),
		),
		t.ListBookmarks,
	)

	s.AddTool(
		mcp.NewTool("add_bookmark",
			mcp.WithDescription("Bookmark a text on a page. Position is in percent of the page, from the top left corner."),
			mcp.WithNumber("document_id", mcp.Required(), mcp.Description("Document id from list_documents")),
			mcp.WithNumber("page_number", mcp.Required(), mcp.Description("Page number, starting at 1")),
			mcp.WithString("text", mcp.Required(), mcp.Description("Bookmarked text")),
			mcp.WithString("note", mcp.Description("Optional note")),
			mcp.WithNumber("x_pct", mcp.Description("Horizontal position, 0 to 100")),
			mcp.WithNumber("y_pct", mcp.Description("Vertical position, 0 to 100")),
		),
		t.AddBookmark,
	)

	s.AddTool(
		mcp.NewTool("add_bookmark_from_match",
			mcp.WithDescription("Run a search and bookmark one of its matches at the match position."),
			mcp.WithNumber("document_id", mcp.Required(), mcp.Description("Document id from list_documents")),
			mcp.WithString("query", mcp.Required(), mcp.Description("Text to find")),
			mcp.WithNumber("match_index", mcp.Description("Index of the match in the search results (default: 0)")),
			mcp.WithString("note", mcp.Description("Optional note. Defaults to 'Search result for: <query>'")),
		),
		t.AddBookmarkFromMatch,
	)

	s.AddTool(
		mcp.NewTool("update_bookmark_note",
			mcp.WithDescription("Replace the note of a bookmark."),
			mcp.WithNumber("document_id", mcp.Required(), mcp.Description("Document id from list_documents")),
			mcp.WithString("bookmark_id", mcp.Required(), mcp.Description("Bookmark id")),
			mcp.WithString("note", mcp.Required(), mcp.Description("New note")),
		),
		t.UpdateBookmarkNote,
	)

	s.AddTool(
		mcp.NewTool("remove_bookmark",
			mcp.WithDescription("Delete a bookmark."),
			mcp.WithNumber("document_id", mcp.Required(), mcp.Description("Document id from list_documents")),
			mcp.WithString("bookmark_id", mcp.Required(), mcp.Description("Bookmark id")),
		),
		t.RemoveBookmark,
	)

	return s
}

// Serve runs s over stdin and stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (t *Tools) document(ctx context.Context, req mcp.CallToolRequest) (*library.Document, *mcp.CallToolResult) {
	id := req.GetInt("document_id", -1)
	if id < 0 || int64(id) > math.MaxUint32 {
		return nil, mcp.NewToolResultError("document_id is required")
	}

	d, err := t.lib.Open(ctx, uint32(id))
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Error opening document: %v", err))
	}
	return d, nil
}

func (t *Tools) ListDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.lib.Documents())
}

func (t *Tools) SearchDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, errResult := t.document(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	// An empty query has no matches.
	matches, err := d.Search(ctx, req.GetString("query", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error searching: %v", err)), nil
	}
	if matches == nil {
		matches = []search.Match{}
	}

	if limit := req.GetInt("limit", 0); limit > 0 && limit < len(matches) {
		matches = matches[:limit]
	}
	return jsonResult(matches)
}

func (t *Tools) DocumentOutline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, errResult := t.document(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	headers, err := d.Headers(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error reading headers: %v", err)), nil
	}
	if len(headers) == 0 {
		return mcp.NewToolResultText("No headers found"), nil
	}
	return jsonResult(headers)
}

func (t *Tools) ListBookmarks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, errResult := t.document(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	switch order := req.GetString("order", "created"); order {
	case "page":
		return jsonResult(d.BookmarksByPage())
	case "created", "":
		return jsonResult(d.Bookmarks())
	default:
		return mcp.NewToolResultError("order must be 'created' or 'page'"), nil
	}
}

func (t *Tools) AddBookmark(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, errResult := t.document(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	a, err := d.AddBookmark(ctx, annotation.Candidate{
		Text:       req.GetString("text", ""),
		Note:       req.GetString("note", ""),
		PageNumber: req.GetInt("page_number", 0),
		Position: position.NormalizedPoint{
			XPct: req.GetFloat("x_pct", 0),
			YPct: req.GetFloat("y_pct", 0),
		},
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error adding bookmark: %v", err)), nil
	}
	return jsonResult(a)
}

func (t *Tools) AddBookmarkFromMatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, errResult := t.document(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	matches, err := d.Search(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error searching: %v", err)), nil
	}

	i := req.GetInt("match_index", 0)
	if i < 0 || i >= len(matches) {
		return mcp.NewToolResultError(fmt.Sprintf("match_index %d out of range: %d matches for %q", i, len(matches), query)), nil
	}

	a, err := d.AddBookmarkFromMatch(ctx, matches[i], query, req.GetString("note", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error adding bookmark: %v", err)), nil
	}
	return jsonResult(a)
}

func (t *Tools) UpdateBookmarkNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, errResult := t.document(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	a, err := d.UpdateNote(ctx, req.GetString("bookmark_id", ""), req.GetString("note", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error updating bookmark: %v", err)), nil
	}
	return jsonResult(a)
}

func (t *Tools) RemoveBookmark(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, errResult := t.document(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	id := req.GetString("bookmark_id", "")
	if err := d.RemoveBookmark(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error removing bookmark: %v", err)), nil
	}
	return mcp.NewToolResultText("Removed bookmark " + id), nil
}
