package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/readwise-export/pkg/document"
	"github.com/Sternrassler/readwise-export/pkg/ratelimit"
)

// ResultKind tags the shape of a list response.
type ResultKind string

const (
	// ResultSuccess is a page carrying a results field.
	ResultSuccess ResultKind = "success"

	// ResultThrottled is a throttling notice naming a wait time.
	ResultThrottled ResultKind = "throttled"

	// ResultAPIError is anything else.
	ResultAPIError ResultKind = "api_error"
)

// Page is one page of the document list.
type Page struct {
	Results        []document.Document `json:"results"`
	NextPageCursor string              `json:"nextPageCursor"`
	Count          int                 `json:"count"`
}

// IsLast returns true if no continuation cursor was returned.
func (p *Page) IsLast() bool {
	return p.NextPageCursor == ""
}

// PageResult is the classified outcome of one list request.
// Exactly one of Page, RetryAfter or Err is meaningful, selected by Kind.
type PageResult struct {
	Kind       ResultKind
	StatusCode int

	// Page is set for ResultSuccess.
	Page *Page

	// Body is the raw response body. For ResultSuccess it is what gets cached.
	Body []byte

	// RetryAfter is set for ResultThrottled.
	RetryAfter time.Duration

	// Err is set for ResultAPIError.
	Err *APIError
}

// ParsePage decodes a successful list response body.
// The body must be a JSON object containing a results array.
func ParsePage(body []byte) (*Page, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}

	raw, ok := fields["results"]
	if !ok {
		return nil, fmt.Errorf("decode page: results field missing")
	}
	if string(raw) == "null" {
		return nil, fmt.Errorf("decode page: results is null")
	}

	page := &Page{}
	if err := json.Unmarshal(raw, &page.Results); err != nil {
		return nil, fmt.Errorf("decode page results: %w", err)
	}

	if cursor, ok := fields["nextPageCursor"]; ok {
		// null decodes to the empty cursor
		if err := json.Unmarshal(cursor, &page.NextPageCursor); err != nil {
			return nil, fmt.Errorf("decode page cursor: %w", err)
		}
	}
	if count, ok := fields["count"]; ok {
		_ = json.Unmarshal(count, &page.Count)
	}

	return page, nil
}

// ClassifyResponse turns a raw list response into a tagged result.
//
// A body with a results field is a page regardless of status. Otherwise a
// detail carrying the throttling message, or a 429 with a Retry-After
// header, is a throttling notice. Everything else is an API error.
func ClassifyResponse(statusCode int, header http.Header, body []byte) *PageResult {
	result := &PageResult{
		StatusCode: statusCode,
		Body:       body,
	}

	var fields map[string]json.RawMessage
	isObject := json.Unmarshal(body, &fields) == nil

	if isObject {
		if _, ok := fields["results"]; ok {
			page, err := ParsePage(body)
			if err == nil {
				result.Kind = ResultSuccess
				result.Page = page
				return result
			}
		}

		if raw, ok := fields["detail"]; ok {
			var detail string
			if json.Unmarshal(raw, &detail) == nil {
				if wait, ok := ratelimit.ParseThrottleDetail(detail); ok {
					result.Kind = ResultThrottled
					result.RetryAfter = wait
					return result
				}
			}
		}
	}

	if statusCode == http.StatusTooManyRequests {
		if wait, ok := parseRetryAfter(header); ok {
			result.Kind = ResultThrottled
			result.RetryAfter = wait
			return result
		}
	}

	result.Kind = ResultAPIError
	result.Err = &APIError{
		StatusCode: statusCode,
		Body:       string(body),
	}
	return result
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(header http.Header) (time.Duration, bool) {
	value := header.Get("Retry-After")
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		wait := time.Until(at)
		if wait < 0 {
			wait = 0
		}
		return wait.Round(time.Second), true
	}
	return 0, false
}
