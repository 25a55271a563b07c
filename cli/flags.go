package cli

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/abiiranathan/goflag"
	"github.com/abiiranathan/pdfmark/library"
)

// command wraps a subcommand that needs the library. The library is closed
// when fn returns and errors are fatal.
func command(config *Config, fn func(ctx context.Context, w io.Writer, lib *library.Library) error) func() {
	return func() {
		ctx := context.Background()
		lib, db, err := OpenLibrary(ctx, config, true)
		if err != nil {
			log.Fatalln(err)
		}
		defer db.Close()

		if err := fn(ctx, os.Stdout, lib); err != nil {
			db.Close()
			log.Fatalln(err)
		}
	}
}

// with adapts the commands that read their arguments from config.
func with(config *Config, fn func(context.Context, io.Writer, *library.Library, *Config) error) func() {
	return command(config, func(ctx context.Context, w io.Writer, lib *library.Library) error {
		return fn(ctx, w, lib, config)
	})
}

func DefineFlags(config *Config, runserver, runmcp func()) *goflag.Context {
	// Use the home folder/pdfmark.db as default database.
	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("os.UserHomeDir() unable failed: %v\n", err)
	}
	config.Database = filepath.Join(home, "pdfmark.db")

	// Flags required by multiple subcomands
	idFlag := goflag.Flag{
		FlagType:  goflag.FlagInt,
		Name:      "id",
		ShortName: "i",
		Value:     &config.DocumentID,
		Usage:     "The document id, as printed by import or list",
		Required:  true,
		Validator: nil,
	}

	patternFlag := goflag.Flag{
		FlagType:  goflag.FlagString,
		Name:      "pattern",
		ShortName: "p",
		Value:     &config.Pattern,
		Usage:     "The text to search for. Matched literally, ignoring case",
		Required:  true,
		Validator: nil,
	}

	bookmarkFlag := goflag.Flag{
		FlagType:  goflag.FlagString,
		Name:      "bookmark",
		ShortName: "b",
		Value:     &config.BookmarkID,
		Usage:     "The bookmark id",
		Required:  true,
		Validator: nil,
	}

	noteFlag := goflag.Flag{
		FlagType:  goflag.FlagString,
		Name:      "note",
		ShortName: "n",
		Value:     &config.Note,
		Usage:     "The bookmark note",
		Required:  false,
		Validator: nil,
	}

	// Create flag context.
	ctx := goflag.NewContext()

	// global flags
	ctx.AddFlag(goflag.FlagString, "db", "D", &config.Database, "Path to the sqlite database", false)

	ctx.AddFlag(goflag.FlagInt, "concurrency", "c",
		&config.MaxConcurrency,
		"No of concurrent pages or files to be processed at once",
		false, goflag.Min(1), goflag.Max(100))

	ctx.AddFlag(goflag.FlagInt, "window", "w", &config.ContextWindow,
		"Characters of context around each match", false, goflag.Min(0))

	ctx.AddFlag(goflag.FlagInt, "max-matches", "m", &config.MaxMatchesPerPage,
		"Maximum matches per page. 0 for no limit", false, goflag.Min(0))

	ctx.AddFlag(goflag.FlagInt, "header-size", "H", &config.HeaderFontSize,
		"Text above this font size is listed as a header", false, goflag.Min(1))

	ctx.AddFlag(goflag.FlagInt, "header-pages", "P", &config.HeaderPages,
		"Number of pages scanned for headers", false, goflag.Min(1))

	ctx.AddFlag(goflag.FlagString, "segmenter", "s", &config.Segmenter,
		"Sentence segmenter used for snippets: rule or prose", false)

	// register subcommands
	ctx.AddSubCommand("import", "Import a PDF file or a directory of PDF files", with(config, Import)).
		AddFlag(goflag.FlagFilePath, "file", "f", &config.Filename, "The PDF file to import", false).
		AddFlag(goflag.FlagDirPath, "directory", "d", &config.Directory, "The directory to import recursively", false)

	ctx.AddSubCommand("list", "List imported documents", command(config,
		func(ctx context.Context, w io.Writer, lib *library.Library) error {
			List(w, lib)
			return nil
		}))

	ctx.AddSubCommand("delete", "Delete a document and its bookmarks", with(config, Delete)).
		AddFlagPtr(&idFlag)

	ctx.AddSubCommand("search", "Search a document", with(config, Search)).
		AddFlagPtr(&idFlag).AddFlagPtr(&patternFlag)

	ctx.AddSubCommand("headers", "Print the outline of a document", with(config, Headers)).
		AddFlagPtr(&idFlag)

	// -pattern is optional here: without it the bookmark is placed on -page.
	optionalPattern := patternFlag
	optionalPattern.Required = false
	ctx.AddSubCommand("bookmark", "Bookmark a search match or a page", with(config, Bookmark)).
		AddFlagPtr(&idFlag).AddFlagPtr(&optionalPattern).
		AddFlag(goflag.FlagInt, "match", "x", &config.MatchIndex, "Index of the match to bookmark", false).
		AddFlag(goflag.FlagInt, "page", "g", &config.Page, "The page to bookmark, without -pattern", false).
		AddFlag(goflag.FlagString, "text", "t", &config.Text, "The bookmarked text, without -pattern", false).
		AddFlagPtr(&noteFlag)

	ctx.AddSubCommand("bookmarks", "List the bookmarks of a document", with(config, Bookmarks)).
		AddFlagPtr(&idFlag).
		AddFlag(goflag.FlagString, "order", "o", &config.Order, "created or page", false)

	ctx.AddSubCommand("unbookmark", "Remove a bookmark", with(config, Unbookmark)).
		AddFlagPtr(&idFlag).AddFlagPtr(&bookmarkFlag)

	requiredNote := noteFlag
	requiredNote.Required = true
	ctx.AddSubCommand("note", "Replace the note of a bookmark", with(config, Note)).
		AddFlagPtr(&idFlag).AddFlagPtr(&bookmarkFlag).AddFlagPtr(&requiredNote)

	// Run server
	ctx.AddSubCommand("runserver", "Start an Http server for the library", runserver).
		AddFlag(goflag.FlagInt, "port", "p", &config.Port, "The port to run the server on", false)

	ctx.AddSubCommand("mcp", "Serve the library as MCP tools over stdio", runmcp)

	return ctx
}
