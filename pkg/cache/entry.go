package cache

import (
	"time"
)

// Entry represents a cached page response.
type Entry struct {
	// Data is the raw response body
	Data []byte `json:"data"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry creates an entry for a successful page body.
func NewEntry(data []byte, statusCode int) *Entry {
	return &Entry{
		Data:       data,
		StatusCode: statusCode,
		CachedAt:   time.Now().UTC(),
	}
}

// Size returns the number of body bytes held by the entry.
func (e *Entry) Size() int {
	if e == nil {
		return 0
	}
	return len(e.Data)
}

// Age returns how long ago the entry was written.
func (e *Entry) Age() time.Duration {
	return time.Since(e.CachedAt)
}
