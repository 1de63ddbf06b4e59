package clock

import (
	"net/http"
	"strconv"
	"time"
)

// OverrideHeader carries an explicit epoch-millisecond timestamp that
// replaces the wall clock when test mode is enabled.
const OverrideHeader = "X-Test-Now-Ms"

// Clock resolves the current time for create and consume operations. In
// normal operation it is the real wall clock; with TestMode set, requests may
// pin time via the override header. Malformed or negative overrides fall back
// to the real clock.
type Clock struct {
	TestMode bool

	// now is swappable in tests; nil means time.Now.
	now func() time.Time
}

// New returns a Clock. testMode enables the request-header override.
func New(testMode bool) *Clock {
	return &Clock{TestMode: testMode}
}

// NowMS returns the current time in epoch milliseconds.
func (c *Clock) NowMS() int64 {
	if c != nil && c.now != nil {
		return c.now().UnixMilli()
	}
	return time.Now().UnixMilli()
}

// FromRequest returns the effective time for a request in epoch milliseconds.
func (c *Clock) FromRequest(r *http.Request) int64 {
	if c == nil || !c.TestMode {
		return c.NowMS()
	}
	raw := r.Header.Get(OverrideHeader)
	if raw == "" {
		return c.NowMS()
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return c.NowMS()
	}
	return n
}
