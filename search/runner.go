package search

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is returned by Runner.Search when a newer query was issued
// before this one completed.
var ErrSuperseded = errors.New("search: superseded by a newer query")

// Runner serializes the queries of one UI session. Every call takes a new
// token and cancels the previous query; a query whose token is no longer
// current when it completes is discarded.
type Runner struct {
	ix    *Index
	await bool

	mu     sync.Mutex
	token  uint64
	cancel context.CancelFunc
	query  string
	latest []Match
}

// NewRunner returns a runner over ix. With await set, queries wait for
// pages still being extracted; otherwise they use Index.Snapshot.
func NewRunner(ix *Index, await bool) *Runner {
	return &Runner{ix: ix, await: await, latest: []Match{}}
}

// Search dispatches query and returns its matches, or ErrSuperseded if a
// newer query was started meanwhile.
func (r *Runner) Search(ctx context.Context, query string) ([]Match, error) {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.token++
	token := r.token
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	var (
		matches []Match
		err     error
	)
	if r.await {
		matches, err = r.ix.Search(ctx, query)
	} else {
		matches, err = r.ix.Snapshot(ctx, query)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if token != r.token {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}

	r.query = query
	r.latest = matches
	return matches, nil
}

// Latest returns the query and matches of the newest completed search.
func (r *Runner) Latest() (string, []Match) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.query, r.latest
}
