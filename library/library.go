// Package library holds the documents known to the store and the state of
// each opened one: its page text index, its query runner and its bookmarks.
package library

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/abiiranathan/pdfmark/annotation"
	"github.com/abiiranathan/pdfmark/database"
	"github.com/abiiranathan/pdfmark/glyph"
	"github.com/abiiranathan/pdfmark/pdf"
	"github.com/abiiranathan/pdfmark/search"
	"golang.org/x/sync/singleflight"
)

var (
	ErrUnknownDocument = errors.New("unknown document")
	ErrInvalidDocument = errors.New("invalid document")
)

// DocumentStore persists documents and their bookmark lists.
// *database.DB implements it.
type DocumentStore interface {
	annotation.Store
	GetAll(ctx context.Context) ([]database.Document, error)
	Get(ctx context.Context, id uint32) (database.Document, error)
	Put(ctx context.Context, doc database.Document) error
	Delete(ctx context.Context, id uint32) error
}

// Opener decodes raw document bytes into a page source.
type Opener func(data []byte) (glyph.PageSource, error)

// OpenPDF is the Opener for PDF files.
func OpenPDF(data []byte) (glyph.PageSource, error) {
	doc, err := pdf.OpenBytes(data)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Options configures a Library.
type Options struct {
	Search  search.Options
	Headers glyph.HeaderOptions

	// Await makes searches wait for pages still being extracted instead of
	// returning a snapshot of the pages ready so far.
	Await bool

	// Files imported at a time by ImportDirectory.
	Workers int

	Logger *slog.Logger
}

// Library is the arena of documents, indexed by id. Documents are listed
// from the store and opened on demand.
type Library struct {
	store DocumentStore
	open  Opener
	opts  Options
	log   *slog.Logger

	group singleflight.Group

	mu     sync.Mutex
	known  map[uint32]database.Document // without Data
	opened map[uint32]*Document
}

// New returns an empty library. Call Load to read the stored documents.
func New(store DocumentStore, open Opener, opts Options) *Library {
	if open == nil {
		open = OpenPDF
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Search.Logger == nil {
		opts.Search.Logger = opts.Logger
	}
	if opts.Headers == (glyph.HeaderOptions{}) {
		opts.Headers = glyph.DefaultHeaderOptions
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	return &Library{
		store:  store,
		open:   open,
		opts:   opts,
		log:    opts.Logger,
		known:  make(map[uint32]database.Document),
		opened: make(map[uint32]*Document),
	}
}

// Load replaces the list of known documents with the store's.
func (l *Library) Load(ctx context.Context) error {
	docs, err := l.store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("unable to load documents: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.known = make(map[uint32]database.Document, len(docs))
	for _, doc := range docs {
		doc.Data = nil
		l.known[doc.ID] = doc
	}
	return nil
}

// Import validates data as a document and stores it under name.
// The id is the content hash, so importing the same bytes twice returns the
// existing document with its bookmarks.
func (l *Library) Import(ctx context.Context, name string, data []byte) (database.Document, error) {
	src, err := l.open(data)
	if err != nil {
		return database.Document{}, fmt.Errorf("%w: %s: %w", ErrInvalidDocument, name, err)
	}

	pages := src.NumPages()
	if pages < 1 {
		return database.Document{}, fmt.Errorf("%w: %s has no pages", ErrInvalidDocument, name)
	}

	id := pdf.ContentHash(data)
	if doc, ok := l.lookup(id); ok {
		l.log.Info("document already imported", "document", id, "name", doc.Name)
		return doc, nil
	}

	doc := database.Document{
		ID:        id,
		Name:      filepath.Base(name),
		PageCount: pages,
		Size:      int64(len(data)),
		CreatedAt: time.Now().UTC(),
		Data:      data,
		Bookmarks: []annotation.Annotation{},
	}
	if err := l.store.Put(ctx, doc); err != nil {
		return database.Document{}, fmt.Errorf("unable to store %s: %w", name, err)
	}

	doc.Data = nil
	l.mu.Lock()
	l.known[id] = doc
	l.mu.Unlock()

	l.log.Info("imported document", "document", id, "name", doc.Name, "pages", pages)
	return doc, nil
}

func (l *Library) lookup(id uint32) (database.Document, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, ok := l.known[id]
	if !ok {
		return doc, false
	}
	if d, open := l.opened[id]; open {
		doc.Bookmarks = d.marks.List()
	}
	return doc, true
}

// Documents returns the known documents in import order, with current
// bookmark lists and without raw bytes.
func (l *Library) Documents() []database.Document {
	l.mu.Lock()
	defer l.mu.Unlock()

	docs := make([]database.Document, 0, len(l.known))
	for id, doc := range l.known {
		if d, ok := l.opened[id]; ok {
			doc.Bookmarks = d.marks.List()
		}
		docs = append(docs, doc)
	}

	slices.SortFunc(docs, func(a, b database.Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return docs
}

// Raw returns a known document with its stored bytes.
func (l *Library) Raw(ctx context.Context, id uint32) (database.Document, error) {
	if _, ok := l.lookup(id); !ok {
		return database.Document{}, fmt.Errorf("%w: %d", ErrUnknownDocument, id)
	}

	doc, err := l.store.Get(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return database.Document{}, fmt.Errorf("%w: %d", ErrUnknownDocument, id)
	}
	return doc, err
}

// Open returns the opened document with the given id, decoding it on first
// use. Concurrent calls for the same id share one decode.
func (l *Library) Open(ctx context.Context, id uint32) (*Document, error) {
	l.mu.Lock()
	if d, ok := l.opened[id]; ok {
		l.mu.Unlock()
		return d, nil
	}
	_, known := l.known[id]
	l.mu.Unlock()

	if !known {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDocument, id)
	}

	v, err, _ := l.group.Do(strconv.FormatUint(uint64(id), 10), func() (any, error) {
		return l.load(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Document), nil
}

func (l *Library) load(ctx context.Context, id uint32) (*Document, error) {
	l.mu.Lock()
	if d, ok := l.opened[id]; ok {
		l.mu.Unlock()
		return d, nil
	}
	l.mu.Unlock()

	stored, err := l.store.Get(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDocument, id)
	}
	if err != nil {
		return nil, err
	}

	src, err := l.open(stored.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidDocument, stored.Name, err)
	}

	d := newDocument(stored, src, l.store, l.opts)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Deleted while decoding.
	if _, ok := l.known[id]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDocument, id)
	}
	l.opened[id] = d
	l.log.Info("opened document", "document", id, "pages", d.PageCount)

	// Snapshot searches pick pages up as they are extracted.
	if !l.opts.Await {
		buildCtx, cancel := context.WithCancel(context.Background())
		d.cancel = cancel
		go func() {
			err := d.Build(buildCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				l.log.Warn("unable to build page index", "document", id, "err", err)
			}
		}()
	}
	return d, nil
}

// Unload drops the cached page text of an opened document and stops its
// background extraction. Its bookmarks stay in the store.
func (l *Library) Unload(id uint32) {
	l.mu.Lock()
	d, ok := l.unloadLocked(id)
	l.mu.Unlock()

	if ok {
		d.close()
	}
}

// unloadLocked removes id from the opened set. Callers hold l.mu.
func (l *Library) unloadLocked(id uint32) (*Document, bool) {
	d, ok := l.opened[id]
	if !ok {
		return nil, false
	}
	delete(l.opened, id)

	stored := l.known[id]
	stored.Bookmarks = d.marks.List()
	l.known[id] = stored
	return d, true
}

// Delete removes a document and all of its bookmarks from the store and
// the library.
func (l *Library) Delete(ctx context.Context, id uint32) error {
	err := l.store.Delete(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrUnknownDocument, id)
	}
	if err != nil {
		return fmt.Errorf("unable to delete document %d: %w", id, err)
	}

	// Both maps change under one lock: load checks known before registering.
	l.mu.Lock()
	d, opened := l.unloadLocked(id)
	delete(l.known, id)
	l.mu.Unlock()

	if opened {
		d.close()
	}

	l.log.Info("deleted document", "document", id)
	return nil
}
