package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/readwise-export/internal/testutil"
	"github.com/Sternrassler/readwise-export/pkg/cache"
	"github.com/Sternrassler/readwise-export/pkg/client"
	"github.com/Sternrassler/readwise-export/pkg/document"
	"github.com/Sternrassler/readwise-export/pkg/ratelimit"
)

const testToken = "test-token"

type walkEnv struct {
	mock   *testutil.MockReadwise
	client *client.Client
	store  *cache.MemoryStore
	waiter *ratelimit.Waiter
	slept  []time.Duration
}

func newWalkEnv(t *testing.T) *walkEnv {
	t.Helper()

	env := &walkEnv{
		mock:  testutil.NewMockReadwise(testToken),
		store: cache.NewMemoryStore(),
	}
	t.Cleanup(env.mock.Close)

	cfg := client.DefaultConfig(testToken)
	cfg.BaseURL = env.mock.URL()
	cfg.Retry = client.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	env.client = c

	env.waiter = ratelimit.NewWaiter(ratelimit.DefaultConfig(), zerolog.Nop())
	env.waiter.SetSleepFunc(func(ctx context.Context, d time.Duration) error {
		env.slept = append(env.slept, d)
		return ctx.Err()
	})
	return env
}

func (e *walkEnv) fetcher() *Fetcher {
	return NewFetcher(e.client, e.store, e.waiter, DefaultConfig())
}

// threePages serves P1 (no cursor) -> c2 -> c3 (terminal).
func (e *walkEnv) threePages() {
	e.mock.SetPage("", testutil.MockPage{
		Results:        []map[string]any{{"id": "1", "title": "one"}, {"id": "2", "title": "two"}},
		NextPageCursor: "c2",
	})
	e.mock.SetPage("c2", testutil.MockPage{
		Results:        []map[string]any{{"id": "3", "title": "three"}},
		NextPageCursor: "c3",
	})
	e.mock.SetPage("c3", testutil.MockPage{
		Results: []map[string]any{{"id": "4", "title": "four"}},
	})
}

func collect(t *testing.T, seq func(func(document.Document, error) bool)) ([]string, error) {
	t.Helper()

	var lines []string
	for doc, err := range seq {
		if err != nil {
			return lines, err
		}
		data, merr := json.Marshal(doc)
		if merr != nil {
			t.Fatalf("Marshal() error = %v", merr)
		}
		lines = append(lines, string(data))
	}
	return lines, nil
}

func TestFetchAll_WalksEveryPageInOrder(t *testing.T) {
	env := newWalkEnv(t)
	env.threePages()

	f := env.fetcher()
	lines, err := collect(t, f.FetchAll(context.Background()))
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if len(lines) != 4 {
		t.Fatalf("documents = %d, want 4", len(lines))
	}
	for i, id := range []string{"1", "2", "3", "4"} {
		if !strings.Contains(lines[i], `"id":"`+id+`"`) {
			t.Errorf("document %d = %s, want id %s", i, lines[i], id)
		}
	}

	cursors := env.mock.GetCursors()
	want := []string{"", "c2", "c3"}
	if strings.Join(cursors, ",") != strings.Join(want, ",") {
		t.Errorf("cursors = %v, want %v", cursors, want)
	}

	stats := f.Stats()
	if stats.Pages != 3 || stats.FetchedPages != 3 || stats.CachedPages != 0 || stats.Documents != 4 {
		t.Errorf("Stats() = %+v", stats)
	}
	if env.store.Len() != 3 {
		t.Errorf("cached pages = %d, want 3", env.store.Len())
	}
}

func TestFetchAll_ReplayFromCacheMakesNoRequests(t *testing.T) {
	env := newWalkEnv(t)
	env.threePages()

	first, err := collect(t, env.fetcher().FetchAll(context.Background()))
	if err != nil {
		t.Fatalf("first walk error = %v", err)
	}
	env.mock.Reset()

	f := env.fetcher()
	second, err := collect(t, f.FetchAll(context.Background()))
	if err != nil {
		t.Fatalf("second walk error = %v", err)
	}

	if env.mock.GetRequestCount() != 0 {
		t.Errorf("replay made %d requests, want 0", env.mock.GetRequestCount())
	}
	if strings.Join(first, "\n") != strings.Join(second, "\n") {
		t.Errorf("replay differs:\n%v\n%v", first, second)
	}
	if f.Stats().CachedPages != 3 {
		t.Errorf("CachedPages = %d, want 3", f.Stats().CachedPages)
	}
}

func TestFetchAll_ResumesAfterPartialWalk(t *testing.T) {
	env := newWalkEnv(t)
	env.threePages()
	env.mock.FailWith("c3", `{"detail":"boom"}`)

	_, err := collect(t, env.fetcher().FetchAll(context.Background()))
	if err == nil {
		t.Fatal("first walk expected error")
	}

	env.mock.FailWith("c3", "")
	env.mock.Reset()

	lines, err := collect(t, env.fetcher().FetchAll(context.Background()))
	if err != nil {
		t.Fatalf("resumed walk error = %v", err)
	}
	if len(lines) != 4 {
		t.Errorf("documents = %d, want 4", len(lines))
	}
	if cursors := env.mock.GetCursors(); len(cursors) != 1 || cursors[0] != "c3" {
		t.Errorf("resumed walk requested %v, want only c3", cursors)
	}
}

func TestFetchAll_WaitsOutThrottling(t *testing.T) {
	env := newWalkEnv(t)
	env.threePages()
	env.mock.ThrottleOnce("c2", 7)
	env.mock.ThrottleOnce("c2", 3)

	f := env.fetcher()
	lines, err := collect(t, f.FetchAll(context.Background()))
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(lines) != 4 {
		t.Errorf("documents = %d, want 4", len(lines))
	}

	if len(env.slept) != 2 || env.slept[0] != 7*time.Second || env.slept[1] != 3*time.Second {
		t.Errorf("waits = %v, want [7s 3s]", env.slept)
	}

	want := []string{"", "c2", "c2", "c2", "c3"}
	if got := env.mock.GetCursors(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("cursors = %v, want %v", got, want)
	}

	stats := f.Stats()
	if stats.ThrottleWaits != 2 || stats.TotalWaited != 10*time.Second {
		t.Errorf("Stats() = %+v", stats)
	}
	if env.store.Len() != 3 {
		t.Errorf("cached pages = %d, want 3 (throttles are never cached)", env.store.Len())
	}
}

func TestFetchAll_ThrottleLimit(t *testing.T) {
	env := newWalkEnv(t)
	env.threePages()
	for range 3 {
		env.mock.ThrottleOnce("", 1)
	}

	env.waiter = ratelimit.NewWaiter(ratelimit.Config{MaxConsecutiveWaits: 2}, zerolog.Nop())
	env.waiter.SetSleepFunc(func(context.Context, time.Duration) error { return nil })

	_, err := collect(t, env.fetcher().FetchAll(context.Background()))
	if !errors.Is(err, ratelimit.ErrThrottleLimitExceeded) {
		t.Errorf("error = %v, want ErrThrottleLimitExceeded", err)
	}
}

func TestFetchAll_APIErrorStopsWalk(t *testing.T) {
	env := newWalkEnv(t)
	env.threePages()
	env.mock.FailWith("c2", `{"detail":"Invalid cursor."}`)

	lines, err := collect(t, env.fetcher().FetchAll(context.Background()))

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *client.APIError", err)
	}
	if apiErr.Body != `{"detail":"Invalid cursor."}` {
		t.Errorf("Body = %q", apiErr.Body)
	}
	if len(lines) != 2 {
		t.Errorf("documents before error = %d, want 2", len(lines))
	}
	if env.store.Len() != 1 {
		t.Errorf("cached pages = %d, want 1 (errors are never cached)", env.store.Len())
	}
}

func TestFetchAll_StopsWhenConsumerStops(t *testing.T) {
	env := newWalkEnv(t)
	env.threePages()

	count := 0
	for _, err := range env.fetcher().FetchAll(context.Background()) {
		if err != nil {
			t.Fatalf("FetchAll() error = %v", err)
		}
		count++
		if count == 1 {
			break
		}
	}

	if got := env.mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestFetchAll_ContextCancelled(t *testing.T) {
	env := newWalkEnv(t)
	env.threePages()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := collect(t, env.fetcher().FetchAll(ctx))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if env.mock.GetRequestCount() != 0 {
		t.Errorf("requests = %d, want 0", env.mock.GetRequestCount())
	}
}

func TestFetchAll_InvalidCacheEntry(t *testing.T) {
	env := newWalkEnv(t)
	key := cache.CacheKey{Endpoint: client.ListEndpoint, QueryParams: client.PageParams("")}
	if err := env.store.Set(context.Background(), key, cache.NewEntry([]byte(`{"detail":"x"}`), 200)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	_, err := collect(t, env.fetcher().FetchAll(context.Background()))
	if !errors.Is(err, cache.ErrInvalidEntry) {
		t.Errorf("error = %v, want ErrInvalidEntry", err)
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, cache.CacheKey) (*cache.Entry, error) {
	return nil, errors.New("disk on fire")
}

func (failingStore) Set(context.Context, cache.CacheKey, *cache.Entry) error {
	return errors.New("disk on fire")
}

func (failingStore) Close() error { return nil }

func TestFetchAll_StoreFailuresFallBackToNetwork(t *testing.T) {
	env := newWalkEnv(t)
	env.threePages()

	f := NewFetcher(env.client, failingStore{}, env.waiter, DefaultConfig())
	lines, err := collect(t, f.FetchAll(context.Background()))
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(lines) != 4 {
		t.Errorf("documents = %d, want 4", len(lines))
	}
}

func TestNewFetcher_Defaults(t *testing.T) {
	f := NewFetcher(nil, nil, nil, Config{})
	if f.store == nil || f.waiter == nil {
		t.Error("NewFetcher() should default store and waiter")
	}
	if f.config.Endpoint != client.ListEndpoint {
		t.Errorf("Endpoint = %q", f.config.Endpoint)
	}
}
