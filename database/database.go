package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/abiiranathan/pdfmark/annotation"
	"github.com/abiiranathan/pdfmark/position"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("duplicate bookmark id")
)

// Keep batches below SQLITE_MAX_VARIABLE_NUMBER (999 on older builds).
const bookmarkBatchSize = 80

// DB stores documents and their bookmarks in sqlite.
type DB struct {
	db *sql.DB
}

// Open connects to the sqlite3 database at path and creates the tables.
// Use ":memory:" for a throwaway database.
func Open(path string) (*DB, error) {
	// sqlite percent-decodes URI paths, so ? and # in path stay literal.
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", url.PathEscape(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// One connection keeps :memory: databases and pragmas consistent.
	db.SetMaxOpenConns(1)

	// ping the database to ensure we are connected.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &DB{db: db}
	if err := store.CreateTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to create tables: %w", err)
	}
	return store, nil
}

// Close closes the underlying connection.
func (s *DB) Close() error {
	return s.db.Close()
}

func (s *DB) CreateTables() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS documents(
		id INTEGER NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		page_count INTEGER NOT NULL,
		size INTEGER NOT NULL,
		data BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)
	`)
	if err != nil {
		return err
	}

	// Bookmarks go away with their document.
	_, err = s.db.Exec(`
	CREATE TABLE IF NOT EXISTS bookmarks(
		id TEXT NOT NULL PRIMARY KEY,
		document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		page_number INTEGER NOT NULL,
		text TEXT NOT NULL,
		note TEXT NOT NULL,
		x_pct REAL NOT NULL,
		y_pct REAL NOT NULL,
		width_pct REAL,
		height_pct REAL,
		anchor TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS bookmarks_document ON bookmarks(document_id, seq)`)
	return err
}

// GetAll returns every document with its bookmarks, without the raw bytes.
func (s *DB) GetAll(ctx context.Context) ([]Document, error) {
	query := `SELECT id, name, page_count, size, created_at FROM documents ORDER BY created_at, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var doc Document
		var created int64
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.PageCount, &doc.Size, &created); err != nil {
			return nil, err
		}
		doc.CreatedAt = time.Unix(0, created).UTC()
		docs = append(docs, doc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	bookmarks, err := s.bookmarks(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Bookmarks = bookmarks[docs[i].ID]
	}
	return docs, nil
}

// Get returns a document with its raw bytes and bookmarks.
func (s *DB) Get(ctx context.Context, id uint32) (doc Document, err error) {
	query := `SELECT id, name, page_count, size, data, created_at FROM documents WHERE id=$1 LIMIT 1`

	var created int64
	row := s.db.QueryRowContext(ctx, query, id)
	err = row.Scan(&doc.ID, &doc.Name, &doc.PageCount, &doc.Size, &doc.Data, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return doc, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return doc, err
	}
	doc.CreatedAt = time.Unix(0, created).UTC()

	bookmarks, err := s.bookmarks(ctx, &id)
	if err != nil {
		return doc, err
	}
	doc.Bookmarks = bookmarks[id]
	return doc, nil
}

// Put inserts or updates a document. Bookmarks are replaced when
// doc.Bookmarks is non-nil and kept otherwise.
func (s *DB) Put(ctx context.Context, doc Document) error {
	query := `INSERT INTO documents (id, name, page_count, size, data, created_at) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, page_count=excluded.page_count,
		size=excluded.size, data=excluded.data`

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, query, doc.ID, doc.Name, doc.PageCount, len(doc.Data), doc.Data, doc.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("error inserting document %s: %w", doc.Name, err)
	}

	if doc.Bookmarks != nil {
		if err := replaceBookmarks(ctx, tx, doc.ID, doc.Bookmarks); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Delete removes a document and all of its bookmarks.
func (s *DB) Delete(ctx context.Context, id uint32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	// The foreign key cascades; this also covers connections opened
	// without foreign key enforcement.
	if _, err := tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE document_id=$1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveBookmarks replaces the bookmark list of a document.
func (s *DB) SaveBookmarks(ctx context.Context, id uint32, bookmarks []annotation.Annotation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id=$1`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return err
	}

	if err := replaceBookmarks(ctx, tx, id, bookmarks); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceBookmarks(ctx context.Context, tx *sql.Tx, id uint32, bookmarks []annotation.Annotation) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE document_id=$1`, id); err != nil {
		return err
	}

	num := len(bookmarks)
	for i := 0; i < num; i += bookmarkBatchSize {
		end := min(i+bookmarkBatchSize, num)

		placeholders, args := bookmarkValueTuple(id, i, bookmarks[i:end])
		query := fmt.Sprintf(`INSERT INTO bookmarks (id, document_id, seq, page_number, text, note,
			x_pct, y_pct, width_pct, height_pct, anchor, created_at) VALUES %s`, placeholders)

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) &&
				(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
					sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
				return fmt.Errorf("%w: %v", ErrDuplicate, err)
			}
			return fmt.Errorf("error inserting bookmarks: %w", err)
		}
	}

	if num > 0 {
		log.Printf("Stored %d bookmarks for document %d\n", num, id)
	}
	return nil
}

// bookmarks loads bookmarks grouped by document, for one document when id
// is set.
func (s *DB) bookmarks(ctx context.Context, id *uint32) (map[uint32][]annotation.Annotation, error) {
	query := `SELECT id, document_id, page_number, text, note, x_pct, y_pct, width_pct, height_pct, anchor, created_at
		FROM bookmarks ORDER BY document_id, seq`
	var args []any
	if id != nil {
		query = `SELECT id, document_id, page_number, text, note, x_pct, y_pct, width_pct, height_pct, anchor, created_at
		FROM bookmarks WHERE document_id=$1 ORDER BY seq`
		args = append(args, *id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uint32][]annotation.Annotation)
	for rows.Next() {
		var (
			a             annotation.Annotation
			width, height sql.NullFloat64
			anchor        string
			created       int64
		)
		err := rows.Scan(&a.ID, &a.DocumentID, &a.PageNumber, &a.Text, &a.Note,
			&a.Position.XPct, &a.Position.YPct, &width, &height, &anchor, &created)
		if err != nil {
			return nil, err
		}
		if width.Valid {
			a.Position.WidthPct = &width.Float64
		}
		if height.Valid {
			a.Position.HeightPct = &height.Float64
		}
		a.Position.Anchor = position.Anchor(anchor)
		a.CreatedAt = time.Unix(0, created).UTC()
		out[a.DocumentID] = append(out[a.DocumentID], a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func bookmarkValueTuple(id uint32, seq int, bookmarks []annotation.Annotation) (string, []any) {
	var query strings.Builder
	args := make([]any, 0, len(bookmarks)*12)

	for i, b := range bookmarks {
		// Use placeholders for values
		query.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?),")
		args = append(args, b.ID, id, seq+i, b.PageNumber, b.Text, b.Note,
			b.Position.XPct, b.Position.YPct, nullable(b.Position.WidthPct), nullable(b.Position.HeightPct),
			string(b.Position.Anchor), b.CreatedAt.UnixNano())
	}

	// Remove trailing comma
	return strings.TrimSuffix(query.String(), ","), args
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

var _ annotation.Store = (*DB)(nil)
