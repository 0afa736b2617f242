package resource

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/vk/assembly/internal/ctxlog"
	"golang.org/x/sync/errgroup"
)

// entryState tracks a cache slot through its absent -> loading -> resolved
// life. A slot never regresses except through an explicit Clear.
type entryState int

const (
	stateLoading entryState = iota
	stateResolved
)

// settled is what a waitlisted caller receives when its URL resolves.
type settled struct {
	value any
	err   error
}

type entry struct {
	state   entryState
	value   any
	waiters []chan settled
}

// Loader is the process-wide resource cache. All cache and waitlist state
// lives behind one mutex; transport happens outside of it.
type Loader struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]*entry
}

// NewLoader returns a loader with a pooled HTTP client.
func NewLoader() *Loader {
	return NewLoaderWithClient(&http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	})
}

// NewLoaderWithClient returns a loader using the given HTTP client. Tests
// inject a client pointed at a local server.
func NewLoaderWithClient(client *http.Client) *Loader {
	return &Loader{
		client: client,
		cache:  make(map[string]*entry),
	}
}

// Load resolves one resource request. The return is immediate when the URL
// is already cached; otherwise the call blocks until the single transport
// operation for that URL settles. Concurrent calls for one URL share that
// operation and are released in the order they arrived.
func (l *Loader) Load(ctx context.Context, req *Request) (any, error) {
	logger := ctxlog.FromContext(ctx)

	if req.IgnoreCache {
		logger.Debug("Loading resource outside the cache.", "url", req.URL)
		return l.fetch(ctx, req)
	}

	l.mu.Lock()
	e, ok := l.cache[req.URL]
	if ok {
		switch e.state {
		case stateResolved:
			l.mu.Unlock()
			return e.value, nil
		case stateLoading:
			ch := make(chan settled, 1)
			e.waiters = append(e.waiters, ch)
			l.mu.Unlock()
			logger.Debug("Resource already loading, joining waitlist.", "url", req.URL)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case res := <-ch:
				return res.value, res.err
			}
		}
	}

	// First request for this URL: mark the slot loading before transport
	// starts so a second request cannot race a duplicate operation.
	e = &entry{state: stateLoading}
	l.cache[req.URL] = e
	l.mu.Unlock()

	value, err := l.fetch(ctx, req)

	l.mu.Lock()
	waiters := e.waiters
	e.waiters = nil
	if err != nil {
		// A failed load never becomes a cache entry; the slot returns to
		// absent and the error is handed to everyone who waited.
		delete(l.cache, req.URL)
	} else {
		e.state = stateResolved
		e.value = value
	}
	l.mu.Unlock()

	for _, ch := range waiters {
		ch <- settled{value: value, err: err}
	}

	if err != nil {
		logger.Warn("Resource load failed.", "url", req.URL, "error", err)
		return nil, err
	}
	return value, nil
}

// LoadChain resolves a serial composition of load steps. Each step's result
// feeds the next step's evaluation context; a step that is itself a slice is
// a parallel sub-group whose members resolve independently before the chain
// continues. The chain's value is the final step's result.
func (l *Loader) LoadChain(ctx context.Context, steps []any) (any, error) {
	var prev any
	for _, raw := range steps {
		switch step := raw.(type) {
		case []any:
			results := make([]any, len(step))
			g, gctx := errgroup.WithContext(ctx)
			for i, member := range step {
				g.Go(func() error {
					var err error
					switch m := member.(type) {
					case []any:
						results[i], err = l.LoadChain(gctx, m)
					default:
						req, convErr := requestOf(m, prev)
						if convErr != nil {
							return convErr
						}
						results[i], err = l.Load(gctx, req)
					}
					return err
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}
			prev = results
		default:
			req, err := requestOf(raw, prev)
			if err != nil {
				return nil, err
			}
			prev, err = l.Load(ctx, req)
			if err != nil {
				return nil, err
			}
		}
	}
	return prev, nil
}

// Cached reports whether a URL is already resolved, without loading it.
func (l *Loader) Cached(u string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.cache[u]
	return ok && e.state == stateResolved
}

// Clear empties the resolved cache. In-flight entries are kept so their
// waitlists still drain.
func (l *Loader) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for u, e := range l.cache {
		if e.state == stateResolved {
			delete(l.cache, u)
		}
	}
}
