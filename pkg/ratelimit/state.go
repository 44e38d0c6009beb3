// Package ratelimit implements recovery from Reader API throttling.
// The API signals throttling with a detail message naming the number of
// seconds until it accepts requests again; this package recognizes that
// message and blocks the pipeline for the requested time.
package ratelimit

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"time"
)

// throttlePattern matches the API's throttling detail, with or without the
// surrounding quotes some API versions add.
var throttlePattern = regexp.MustCompile(`Request was throttled\. Expected available in (\d+) seconds?\.`)

// maxThrottleSeconds is the longest wait representable as a time.Duration.
const maxThrottleSeconds = math.MaxInt64 / int64(time.Second)

// ParseThrottleDetail extracts the wait duration from a throttling detail
// message. It returns false if detail is not a throttling message.
// Waits too long for a time.Duration are clamped to maxThrottleSeconds.
func ParseThrottleDetail(detail string) (time.Duration, bool) {
	m := throttlePattern.FindStringSubmatch(detail)
	if m == nil {
		return 0, false
	}

	seconds, err := strconv.ParseInt(m[1], 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		seconds = maxThrottleSeconds
	} else if err != nil {
		return 0, false
	}
	seconds = min(seconds, maxThrottleSeconds)
	return time.Duration(seconds) * time.Second, true
}

// ThrottleState describes the throttling observed during one fetch walk.
type ThrottleState struct {
	// ConsecutiveWaits counts waits since the last successful page.
	ConsecutiveWaits int `json:"consecutive_waits"`

	// TotalWaits counts every wait in this walk.
	TotalWaits int `json:"total_waits"`

	// TotalWaited is the cumulative time spent waiting.
	TotalWaited time.Duration `json:"total_waited"`

	// LastWaitAt is when the most recent wait started.
	LastWaitAt time.Time `json:"last_wait_at"`

	// ResumeAt is when the API said it would accept requests again.
	ResumeAt time.Time `json:"resume_at"`
}

// IsThrottled returns true while the server-specified delay has not elapsed.
func (s *ThrottleState) IsThrottled() bool {
	return time.Now().Before(s.ResumeAt)
}

// TimeUntilResume returns the duration until the API accepts requests again.
// Returns 0 if the resume time has already passed.
func (s *ThrottleState) TimeUntilResume() time.Duration {
	duration := time.Until(s.ResumeAt)
	if duration < 0 {
		return 0
	}
	return duration
}

func (s *ThrottleState) recordWait(now time.Time, wait time.Duration) {
	s.ConsecutiveWaits++
	s.TotalWaits++
	s.TotalWaited += wait
	s.LastWaitAt = now
	s.ResumeAt = now.Add(wait)
}

func (s *ThrottleState) recordSuccess() {
	s.ConsecutiveWaits = 0
}
