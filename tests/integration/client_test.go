//go:build integration

package integration

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/readwise-export/internal/testutil"
	"github.com/Sternrassler/readwise-export/pkg/cache"
	"github.com/Sternrassler/readwise-export/pkg/client"
	"github.com/Sternrassler/readwise-export/pkg/export"
	"github.com/Sternrassler/readwise-export/pkg/pagination"
	"github.com/Sternrassler/readwise-export/pkg/ratelimit"
)

const testToken = "integration-token"

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// testTransport redirects requests for readwise.io to the mock server.
type testTransport struct {
	mock     *testutil.MockReadwise
	failures atomic.Int32
}

func (t *testTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.failures.Load() > 0 {
		t.failures.Add(-1)
		return nil, errors.New("connection reset by peer")
	}

	req.URL.Scheme = "http"
	if req.URL.Host == "" || req.URL.Host == "readwise.io" {
		req.URL.Host = strings.TrimPrefix(t.mock.URL(), "http://")
	}
	return http.DefaultTransport.RoundTrip(req)
}

func newClient(t *testing.T, transport *testTransport) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig(testToken)
	cfg.Retry.InitialBackoff = 10 * time.Millisecond
	cfg.Retry.MaxBackoff = 50 * time.Millisecond

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	c.SetHTTPClient(&http.Client{Transport: transport, Timeout: 30 * time.Second})
	return c
}

func newWaiter() (*ratelimit.Waiter, *[]time.Duration) {
	var slept []time.Duration
	w := ratelimit.NewWaiter(ratelimit.DefaultConfig(), zerolog.Nop())
	w.SetSleepFunc(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	})
	return w, &slept
}

func seedPages(mock *testutil.MockReadwise) {
	mock.SetPage("", testutil.MockPage{
		Results:        []map[string]any{{"id": "1", "title": "One"}, {"id": "2", "title": "Two"}},
		NextPageCursor: "p2",
	})
	mock.SetPage("p2", testutil.MockPage{
		Results:        []map[string]any{{"id": "3", "title": "Three"}},
		NextPageCursor: "p3",
	})
	mock.SetPage("p3", testutil.MockPage{
		Results: []map[string]any{{"id": "4", "title": "Four"}},
	})
}

// TestFullExportFlow tests fetch → Redis cache → JSONL export, then an
// idempotent re-run served entirely from Redis.
func TestFullExportFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockReadwise(testToken)
	defer mock.Close()
	seedPages(mock)

	ctx := context.Background()
	output := filepath.Join(t.TempDir(), "export.jsonl")

	run := func() export.Result {
		waiter, _ := newWaiter()
		store := cache.NewRedisStore(redisClient)
		fetcher := pagination.NewFetcher(newClient(t, &testTransport{mock: mock}), store, waiter, pagination.DefaultConfig())

		result, err := export.Append(ctx, fetcher.FetchAll(ctx), export.Options{Path: output})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		return result
	}

	first := run()
	if first.Written != 4 {
		t.Errorf("first run written = %d, want 4", first.Written)
	}
	if mock.GetRequestCount() != 3 {
		t.Errorf("first run requests = %d, want 3", mock.GetRequestCount())
	}

	keys, err := redisClient.Keys(ctx, "readwise:*").Result()
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 3 {
		t.Errorf("cached keys = %v, want 3", keys)
	}

	mock.Reset()
	second := run()
	if second.Written != 0 || second.Skipped != 4 {
		t.Errorf("second run = %+v, want 0 written, 4 skipped", second)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("second run requests = %d, want 0", mock.GetRequestCount())
	}

	data, _ := os.ReadFile(output)
	if n := strings.Count(string(data), "\n"); n != 4 {
		t.Errorf("output lines = %d, want 4", n)
	}
}

// TestThrottleNotCached tests that throttling notices are waited out and never stored.
func TestThrottleNotCached(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockReadwise(testToken)
	defer mock.Close()
	seedPages(mock)
	mock.ThrottleOnce("p2", 20)

	ctx := context.Background()
	waiter, slept := newWaiter()
	fetcher := pagination.NewFetcher(newClient(t, &testTransport{mock: mock}), cache.NewRedisStore(redisClient), waiter, pagination.DefaultConfig())

	count := 0
	for _, err := range fetcher.FetchAll(ctx) {
		if err != nil {
			t.Fatalf("FetchAll() error = %v", err)
		}
		count++
	}

	if count != 4 {
		t.Errorf("documents = %d, want 4", count)
	}
	if len(*slept) != 1 || (*slept)[0] != 20*time.Second {
		t.Errorf("waits = %v, want [20s]", *slept)
	}

	key := cache.CacheKey{Endpoint: client.ListEndpoint, QueryParams: client.PageParams("p2")}
	raw, err := redisClient.Get(ctx, key.String()).Result()
	if err != nil {
		t.Fatalf("Get(%s) error = %v", key, err)
	}
	if strings.Contains(raw, "throttled") {
		t.Errorf("throttle notice was cached: %s", raw)
	}
}

// TestRetryNetworkErrors tests that transport failures are retried.
func TestRetryNetworkErrors(t *testing.T) {
	mock := testutil.NewMockReadwise(testToken)
	defer mock.Close()
	seedPages(mock)

	transport := &testTransport{mock: mock}
	transport.failures.Store(2)

	result, err := newClient(t, transport).FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if result.Kind != client.ResultSuccess {
		t.Errorf("Kind = %s, want success", result.Kind)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests reaching the server = %d, want 1", mock.GetRequestCount())
	}
}

// TestNoRetryAPIErrors tests that API errors are NOT retried.
func TestNoRetryAPIErrors(t *testing.T) {
	mock := testutil.NewMockReadwise(testToken)
	defer mock.Close()
	mock.FailWith("", `{"detail":"Something broke."}`)

	result, err := newClient(t, &testTransport{mock: mock}).FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if result.Kind != client.ResultAPIError {
		t.Errorf("Kind = %s, want api_error", result.Kind)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1", mock.GetRequestCount())
	}
}
