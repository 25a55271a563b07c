package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/abiiranathan/pdfmark/database"
	"golang.org/x/sync/errgroup"
)

// WalkDir returns the regular files under dir with one of the given
// extensions. Hidden files and directories are skipped.
func WalkDir(dir string, extensions []string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if d.Type().IsRegular() && slices.Contains(extensions, ext) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ImportDirectory imports every PDF under dir using Options.Workers
// goroutines. Files that cannot be read or are not valid documents are
// logged and skipped. The imported documents are returned in file order.
func (l *Library) ImportDirectory(ctx context.Context, dir string) ([]database.Document, error) {
	files, err := WalkDir(dir, []string{".pdf"})
	if err != nil {
		return nil, fmt.Errorf("unable to load files at %s: %w", dir, err)
	}

	numFiles := len(files)
	l.log.Info("importing directory", "dir", dir, "files", numFiles, "workers", l.opts.Workers)

	var mu sync.Mutex
	imported := make(map[int]database.Document, numFiles)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)

	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			data, err := os.ReadFile(file)
			if err != nil {
				l.log.Warn("unable to read file", "file", file, "err", err)
				return nil
			}

			doc, err := l.Import(ctx, file, data)
			if err != nil {
				l.log.Warn("unable to import file", "file", file, "err", err)
				return nil
			}
			l.log.Info("processed file", "progress", fmt.Sprintf("%d/%d", i+1, numFiles), "file", file)

			mu.Lock()
			imported[i] = doc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	docs := make([]database.Document, 0, len(imported))
	for i := range files {
		if doc, ok := imported[i]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}
