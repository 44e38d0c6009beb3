// Package pagination walks the Reader document list page by page.
//
// The list API hands out an opaque nextPageCursor with every page; the walk
// follows it until the API stops returning one. Every successful page body is
// written once to a cache.Store under a canonical key derived from the
// request parameters, so an interrupted export resumes without re-fetching
// pages it has already seen.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(readerClient, store, waiter, pagination.DefaultConfig())
//	for doc, err := range fetcher.FetchAll(ctx) {
//		if err != nil {
//			return err
//		}
//		// use doc
//	}
//
// The fetcher:
//   - Serves pages from the cache when present (no network call)
//   - Waits out throttling notices and retries the same page
//   - Stops at the first API error, surfacing the raw response body
//   - Never caches throttling notices or error responses
//   - Yields documents lazily, in API order
package pagination
