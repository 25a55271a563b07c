package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/abiiranathan/pdfmark/annotation"
	"github.com/abiiranathan/pdfmark/database"
	"github.com/abiiranathan/pdfmark/library"
	"github.com/abiiranathan/pdfmark/position"
	"github.com/abiiranathan/pdfmark/search"
)

var ErrUsage = errors.New("invalid arguments")

// OpenLibrary opens the database at config.Database and loads its documents.
// The caller closes the returned DB.
func OpenLibrary(ctx context.Context, config *Config, await bool) (*library.Library, *database.DB, error) {
	db, err := database.Open(config.Database)
	if err != nil {
		return nil, nil, err
	}

	lib := library.New(db, library.OpenPDF, config.LibraryOptions(await))
	if err := lib.Load(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return lib, db, nil
}

func printMatches(w io.Writer, matches []search.Match) {
	for i, match := range matches {
		fmt.Fprintf(w, "[%d] Page: %d : %s\n", i, match.PageNumber, match.Context)
	}
}

func printBookmark(w io.Writer, a annotation.Annotation) {
	fmt.Fprintf(w, "%s Page: %d (%.1f%%, %.1f%%) : %s", a.ID, a.PageNumber, a.Position.XPct, a.Position.YPct, a.Text)
	if a.Note != "" {
		fmt.Fprintf(w, " [%s]", a.Note)
	}
	fmt.Fprintln(w)
}

func document(ctx context.Context, lib *library.Library, config *Config) (*library.Document, error) {
	if config.DocumentID < 0 || int64(config.DocumentID) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: document id %d", ErrUsage, config.DocumentID)
	}
	return lib.Open(ctx, uint32(config.DocumentID))
}

// Import stores config.Filename or every PDF under config.Directory.
func Import(ctx context.Context, w io.Writer, lib *library.Library, config *Config) error {
	var docs []database.Document

	switch {
	case config.Filename != "":
		data, err := os.ReadFile(config.Filename)
		if err != nil {
			return err
		}

		doc, err := lib.Import(ctx, config.Filename, data)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	case config.Directory != "":
		var err error
		docs, err = lib.ImportDirectory(ctx, config.Directory)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: one of -file or -directory is required", ErrUsage)
	}

	for _, doc := range docs {
		fmt.Fprintf(w, "%d %s (%d pages)\n", doc.ID, doc.Name, doc.PageCount)
	}
	return nil
}

// List prints the known documents.
func List(w io.Writer, lib *library.Library) {
	for _, doc := range lib.Documents() {
		fmt.Fprintf(w, "%d %s (%d pages, %d bookmarks)\n", doc.ID, doc.Name, doc.PageCount, len(doc.Bookmarks))
	}
}

func Delete(ctx context.Context, w io.Writer, lib *library.Library, config *Config) error {
	if config.DocumentID < 0 || int64(config.DocumentID) > math.MaxUint32 {
		return fmt.Errorf("%w: document id %d", ErrUsage, config.DocumentID)
	}
	if err := lib.Delete(ctx, uint32(config.DocumentID)); err != nil {
		return err
	}
	fmt.Fprintf(w, "Deleted document %d\n", config.DocumentID)
	return nil
}

// Search prints the matches of config.Pattern, numbered for the bookmark
// command's -match flag.
func Search(ctx context.Context, w io.Writer, lib *library.Library, config *Config) error {
	d, err := document(ctx, lib, config)
	if err != nil {
		return err
	}

	matches, err := d.Search(ctx, config.Pattern)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Fprintf(w, "No results found for: %s\n", config.Pattern)
		return nil
	}
	printMatches(w, matches)
	return nil
}

func Headers(ctx context.Context, w io.Writer, lib *library.Library, config *Config) error {
	d, err := document(ctx, lib, config)
	if err != nil {
		return err
	}

	headers, err := d.Headers(ctx)
	if err != nil {
		return err
	}
	for _, h := range headers {
		fmt.Fprintf(w, "%sPage: %d : %s\n", strings.Repeat("  ", h.Level-1), h.PageNumber, h.Text)
	}
	return nil
}

// Bookmark adds a bookmark at match -match of -pattern, or at the top left
// of -page with -text.
func Bookmark(ctx context.Context, w io.Writer, lib *library.Library, config *Config) error {
	d, err := document(ctx, lib, config)
	if err != nil {
		return err
	}

	var a annotation.Annotation
	if config.Pattern != "" {
		matches, err := d.Search(ctx, config.Pattern)
		if err != nil {
			return err
		}

		i := config.MatchIndex
		if i < 0 || i >= len(matches) {
			return fmt.Errorf("%w: match %d of %d for %q", ErrUsage, i, len(matches), config.Pattern)
		}

		a, err = d.AddBookmarkFromMatch(ctx, matches[i], config.Pattern, config.Note)
		if err != nil {
			return err
		}
	} else {
		a, err = d.AddBookmark(ctx, annotation.Candidate{
			Text:       config.Text,
			Note:       config.Note,
			PageNumber: config.Page,
			Position:   position.NormalizedPoint{},
		})
		if err != nil {
			return err
		}
	}

	printBookmark(w, a)
	return nil
}

func Bookmarks(ctx context.Context, w io.Writer, lib *library.Library, config *Config) error {
	d, err := document(ctx, lib, config)
	if err != nil {
		return err
	}

	var list []annotation.Annotation
	switch config.Order {
	case "page":
		list = d.BookmarksByPage()
	case "created", "":
		list = d.Bookmarks()
	default:
		return fmt.Errorf("%w: order must be created or page", ErrUsage)
	}

	for _, a := range list {
		printBookmark(w, a)
	}
	return nil
}

func Unbookmark(ctx context.Context, w io.Writer, lib *library.Library, config *Config) error {
	d, err := document(ctx, lib, config)
	if err != nil {
		return err
	}
	if err := d.RemoveBookmark(ctx, config.BookmarkID); err != nil {
		return err
	}
	fmt.Fprintf(w, "Removed bookmark %s\n", config.BookmarkID)
	return nil
}

func Note(ctx context.Context, w io.Writer, lib *library.Library, config *Config) error {
	d, err := document(ctx, lib, config)
	if err != nil {
		return err
	}

	a, err := d.UpdateNote(ctx, config.BookmarkID, config.Note)
	if err != nil {
		return err
	}
	printBookmark(w, a)
	return nil
}
