package cli

import (
	"log/slog"
	"os"

	"github.com/abiiranathan/pdfmark/glyph"
	"github.com/abiiranathan/pdfmark/library"
	"github.com/abiiranathan/pdfmark/search"
)

// Config holds the configuration for the CLI.
type Config struct {
	// Max pages extracted or files imported at a time.
	// Large values will increase CPU and memory usage.
	// Default is 10.
	MaxConcurrency int

	// Path to the sqlite database. Default is ~/pdfmark.db
	Database string

	// Characters of context on each side of a search match.
	ContextWindow int

	// Matches reported per page. 0 disables the cap.
	MaxMatchesPerPage int

	// Text larger than this font size is listed as a header.
	HeaderFontSize int

	// Pages scanned for headers.
	HeaderPages int

	// Sentence segmenter for snippets: rule or prose.
	Segmenter string

	// server port. default is 8080
	Port int

	// Subcommand arguments.
	Filename   string
	Directory  string
	DocumentID int
	BookmarkID string
	Pattern    string
	MatchIndex int
	Page       int
	Text       string
	Note       string
	Order      string
}

var DefaultConfig = Config{
	MaxConcurrency:    10,
	ContextWindow:     search.DefaultOptions.ContextWindow,
	MaxMatchesPerPage: search.DefaultOptions.MaxMatchesPerPage,
	HeaderFontSize:    int(glyph.DefaultHeaderOptions.FontSize),
	HeaderPages:       glyph.DefaultHeaderOptions.MaxPages,
	Segmenter:         "rule",
	Port:              8080,
	Order:             "created",
}

// LibraryOptions derives the library settings from c. With await unset,
// searches return the pages extracted so far.
func (c *Config) LibraryOptions(await bool) library.Options {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	headers := glyph.DefaultHeaderOptions
	headers.FontSize = float64(c.HeaderFontSize)
	headers.MaxPages = c.HeaderPages

	return library.Options{
		Search: search.Options{
			ContextWindow:     c.ContextWindow,
			MaxMatchesPerPage: c.MaxMatchesPerPage,
			Concurrency:       c.MaxConcurrency,
			Segmenter:         search.NewSegmenter(c.Segmenter),
			Logger:            logger,
		},
		Headers: headers,
		Await:   await,
		Workers: c.MaxConcurrency,
		Logger:  logger,
	}
}
