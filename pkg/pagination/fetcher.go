package pagination

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/readwise-export/pkg/cache"
	"github.com/Sternrassler/readwise-export/pkg/client"
	"github.com/Sternrassler/readwise-export/pkg/document"
	"github.com/Sternrassler/readwise-export/pkg/ratelimit"
)

var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readwise_pages_total",
		Help: "Pages walked by source",
	}, []string{"source"}) // "cache", "network"

	documentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "readwise_documents_total",
		Help: "Documents yielded by the pagination walk",
	})
)

// Config holds fetcher configuration
type Config struct {
	// Endpoint is the path used in cache keys
	Endpoint string

	// ProgressEvery logs a progress line every N pages (0 disables)
	ProgressEvery int
}

// DefaultConfig returns the default fetcher configuration
func DefaultConfig() Config {
	return Config{
		Endpoint:      client.ListEndpoint,
		ProgressEvery: 50,
	}
}

// PageSource fetches one classified page of the document list.
// *client.Client implements it.
type PageSource interface {
	FetchPage(ctx context.Context, cursor string) (*client.PageResult, error)
}

// Stats summarizes a walk.
type Stats struct {
	Pages         int
	CachedPages   int
	FetchedPages  int
	Documents     int
	ThrottleWaits int
	TotalWaited   time.Duration
}

// Fetcher walks the document list with a resume cache.
// A Fetcher performs one walk at a time and is not safe for concurrent use.
type Fetcher struct {
	source PageSource
	store  cache.Store
	waiter *ratelimit.Waiter
	config Config
	logger zerolog.Logger
	stats  Stats
}

// NewFetcher creates a fetcher. A nil store keeps pages in memory for the
// lifetime of the fetcher. A nil waiter waits without limits.
func NewFetcher(source PageSource, store cache.Store, waiter *ratelimit.Waiter, config Config) *Fetcher {
	logger := log.With().Str("component", "fetcher").Logger()

	if store == nil {
		store = cache.NewMemoryStore()
	}
	if waiter == nil {
		waiter = ratelimit.NewWaiter(ratelimit.DefaultConfig(), logger)
	}
	if config.Endpoint == "" {
		config.Endpoint = client.ListEndpoint
	}

	return &Fetcher{
		source: source,
		store:  store,
		waiter: waiter,
		config: config,
		logger: logger,
	}
}

// FetchAll returns the lazy sequence of every document in the collection.
//
// The walk starts when the sequence is ranged over and advances one page at
// a time as documents are consumed. A non-nil error is always the last
// element of the sequence.
func (f *Fetcher) FetchAll(ctx context.Context) iter.Seq2[document.Document, error] {
	return func(yield func(document.Document, error) bool) {
		start := time.Now()
		f.stats = Stats{}
		cursor := ""

		for {
			page, err := f.page(ctx, cursor)
			if err != nil {
				f.logger.Error().
					Err(err).
					Str("cursor", cursor).
					Int("pages", f.stats.Pages).
					Int("documents", f.stats.Documents).
					Msg("Pagination walk aborted")
				yield(document.Document{}, err)
				return
			}

			f.stats.Pages++
			if f.config.ProgressEvery > 0 && f.stats.Pages%f.config.ProgressEvery == 0 {
				f.logger.Info().
					Int("pages", f.stats.Pages).
					Int("cached_pages", f.stats.CachedPages).
					Int("documents", f.stats.Documents).
					Msg("Fetch progress")
			}

			for _, doc := range page.Results {
				f.stats.Documents++
				documentsTotal.Inc()
				if !yield(doc, nil) {
					return
				}
			}

			if page.IsLast() {
				f.logger.Info().
					Int("pages", f.stats.Pages).
					Int("cached_pages", f.stats.CachedPages).
					Int("documents", f.stats.Documents).
					Dur("duration", time.Since(start)).
					Msg("Fetch complete")
				return
			}
			cursor = page.NextPageCursor
		}
	}
}

// Stats returns counters for the current or last walk.
func (f *Fetcher) Stats() Stats {
	s := f.stats
	state := f.waiter.State()
	s.ThrottleWaits = state.TotalWaits
	s.TotalWaited = state.TotalWaited
	return s
}

// page resolves one page, from the cache or the network. Throttling notices
// are waited out and the same page is requested again.
func (f *Fetcher) page(ctx context.Context, cursor string) (*client.Page, error) {
	key := cache.CacheKey{
		Endpoint:    f.config.Endpoint,
		QueryParams: client.PageParams(cursor),
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := f.cached(ctx, key)
		if err != nil {
			return nil, err
		}
		if page != nil {
			f.stats.CachedPages++
			pagesTotal.WithLabelValues("cache").Inc()
			return page, nil
		}

		result, err := f.source.FetchPage(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch page %q: %w", cursor, err)
		}

		switch result.Kind {
		case client.ResultSuccess:
			f.waiter.Succeeded()
			f.remember(ctx, key, result)
			f.stats.FetchedPages++
			pagesTotal.WithLabelValues("network").Inc()
			return result.Page, nil

		case client.ResultThrottled:
			if err := f.waiter.Wait(ctx, result.RetryAfter); err != nil {
				return nil, err
			}

		default:
			return nil, result.Err
		}
	}
}

// cached returns the cached page for key, or nil on a miss.
// Store failures degrade to a miss; an undecodable entry is an error.
func (f *Fetcher) cached(ctx context.Context, key cache.CacheKey) (*client.Page, error) {
	entry, err := f.store.Get(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		f.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache read failed, fetching from API")
		return nil, nil
	}

	page, err := client.ParsePage(entry.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", cache.ErrInvalidEntry, key.String(), err)
	}

	f.logger.Debug().
		Str("key", key.String()).
		Dur("age", entry.Age()).
		Int("results", len(page.Results)).
		Msg("Page served from cache")
	return page, nil
}

// remember stores a successful page body. Write failures are logged, not returned.
func (f *Fetcher) remember(ctx context.Context, key cache.CacheKey, result *client.PageResult) {
	if err := f.store.Set(ctx, key, cache.NewEntry(result.Body, result.StatusCode)); err != nil {
		f.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache write failed")
	}
}
