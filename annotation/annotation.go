// Package annotation keeps the ordered bookmark list of one document and
// persists every change through a Store before applying it.
package annotation

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/abiiranathan/pdfmark/position"
	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("annotation not found")
	ErrPageOutOfRange = errors.New("page number out of range")
	ErrEmptyText      = errors.New("annotation text is empty")

	// ErrPersistence wraps store failures. The in-memory list is unchanged
	// and the operation can be retried.
	ErrPersistence = errors.New("unable to persist annotations")
)

// Annotation is a bookmark pinned to a normalized position on a page.
type Annotation struct {
	ID         string                   `json:"id"`
	DocumentID uint32                   `json:"documentId"`
	PageNumber int                      `json:"pageNumber"`
	Text       string                   `json:"text"`
	Note       string                   `json:"note"`
	Position   position.NormalizedPoint `json:"position"`
	CreatedAt  time.Time                `json:"createdAt"`
}

// Candidate carries the user supplied fields of a new annotation.
type Candidate struct {
	Text       string                   `json:"text"`
	Note       string                   `json:"note"`
	PageNumber int                      `json:"pageNumber"`
	Position   position.NormalizedPoint `json:"position"`
}

// Store persists the full annotation list of a document.
type Store interface {
	SaveBookmarks(ctx context.Context, documentID uint32, bookmarks []Annotation) error
}

// Set is the annotation list of one document. Mutations are serialized and
// applied only once the store has accepted the new list.
type Set struct {
	documentID uint32
	pageCount  int
	store      Store

	now   func() time.Time
	newID func() (string, error)

	mu    sync.Mutex
	items []Annotation
}

// Option configures a Set.
type Option func(*Set)

// WithClock replaces time.Now for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Set) { s.now = now }
}

// WithIDs replaces the identifier generator.
func WithIDs(newID func() (string, error)) Option {
	return func(s *Set) { s.newID = newID }
}

// New returns the annotation set of a document with pageCount pages,
// seeded with the annotations already persisted for it.
func New(documentID uint32, pageCount int, existing []Annotation, store Store, opts ...Option) *Set {
	s := &Set{
		documentID: documentID,
		pageCount:  pageCount,
		store:      store,
		now:        time.Now,
		newID:      timeOrderedID,
		items:      slices.Clone(existing),
	}
	for _, opt := range opts {
		opt(s)
	}

	slices.SortStableFunc(s.items, byCreatedAt)
	return s
}

// timeOrderedID returns a UUIDv7, whose leading bits are the creation
// timestamp in milliseconds.
func timeOrderedID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func byCreatedAt(a, b Annotation) int {
	return a.CreatedAt.Compare(b.CreatedAt)
}

// DocumentID returns the owning document.
func (s *Set) DocumentID() uint32 {
	return s.documentID
}

// Add validates c, assigns an id and creation time, and appends it.
func (s *Set) Add(ctx context.Context, c Candidate) (Annotation, error) {
	text := strings.TrimSpace(c.Text)
	if text == "" {
		return Annotation{}, ErrEmptyText
	}
	if c.PageNumber < 1 || c.PageNumber > s.pageCount {
		return Annotation{}, fmt.Errorf("%w: %d not in [1, %d]", ErrPageOutOfRange, c.PageNumber, s.pageCount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Ids and timestamps are taken under s.mu: items stay in creation order.
	id, err := s.newID()
	if err != nil {
		return Annotation{}, fmt.Errorf("generate annotation id: %w", err)
	}

	a := Annotation{
		ID:         id,
		DocumentID: s.documentID,
		PageNumber: c.PageNumber,
		Text:       text,
		Note:       strings.TrimSpace(c.Note),
		Position:   position.Clamp(c.Position),
		CreatedAt:  s.now(),
	}

	next := append(slices.Clone(s.items), a)
	if err := s.commit(ctx, next); err != nil {
		return Annotation{}, err
	}
	return a, nil
}

// Remove deletes the annotation with the given id.
func (s *Set) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := slices.Delete(slices.Clone(s.items), i, i+1)
	return s.commit(ctx, next)
}

// UpdateNote replaces the note of an annotation.
func (s *Set) UpdateNote(ctx context.Context, id, note string) (Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return Annotation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := slices.Clone(s.items)
	next[i].Note = strings.TrimSpace(note)
	if err := s.commit(ctx, next); err != nil {
		return Annotation{}, err
	}
	return next[i], nil
}

// commit persists next and swaps it in. Callers hold s.mu.
func (s *Set) commit(ctx context.Context, next []Annotation) error {
	if err := s.store.SaveBookmarks(ctx, s.documentID, next); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.items = next
	return nil
}

func (s *Set) index(id string) int {
	return slices.IndexFunc(s.items, func(a Annotation) bool { return a.ID == id })
}

// Get returns the annotation with the given id.
func (s *Set) Get(id string) (Annotation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return Annotation{}, false
	}
	return s.items[i], true
}

// Len returns the number of annotations.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// List returns the annotations by ascending creation time.
func (s *Set) List() []Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// ByPage returns the annotations ordered by page, then creation time.
func (s *Set) ByPage() []Annotation {
	items := s.List()
	slices.SortStableFunc(items, func(a, b Annotation) int {
		return cmp.Compare(a.PageNumber, b.PageNumber)
	})
	return items
}

// OnPage returns the annotations of page n by creation time.
func (s *Set) OnPage(n int) []Annotation {
	var out []Annotation
	for _, a := range s.List() {
		if a.PageNumber == n {
			out = append(out, a)
		}
	}
	return out
}
