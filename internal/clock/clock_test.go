package clock

import (
	"net/http/httptest"
	"testing"
	"time"
)

func pinned(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestOverrideIgnoredOutsideTestMode(t *testing.T) {
	c := New(false)
	c.now = pinned(5_000)

	r := httptest.NewRequest("GET", "/pastes/abc", nil)
	r.Header.Set(OverrideHeader, "1234")

	if got := c.FromRequest(r); got != 5_000 {
		t.Fatalf("expected wall clock 5000, got %d", got)
	}
}

func TestOverrideAppliedInTestMode(t *testing.T) {
	c := New(true)
	c.now = pinned(5_000)

	r := httptest.NewRequest("GET", "/pastes/abc", nil)
	r.Header.Set(OverrideHeader, "1234")

	if got := c.FromRequest(r); got != 1234 {
		t.Fatalf("expected override 1234, got %d", got)
	}
}

func TestMalformedOverrideFallsBack(t *testing.T) {
	c := New(true)
	c.now = pinned(5_000)

	for _, raw := range []string{"", "abc", "-7", "1.5"} {
		r := httptest.NewRequest("GET", "/pastes/abc", nil)
		if raw != "" {
			r.Header.Set(OverrideHeader, raw)
		}
		if got := c.FromRequest(r); got != 5_000 {
			t.Fatalf("override %q: expected fallback 5000, got %d", raw, got)
		}
	}
}

func TestNowMSTracksWallClock(t *testing.T) {
	c := New(false)
	before := time.Now().UnixMilli()
	got := c.NowMS()
	after := time.Now().UnixMilli()
	if got < before || got > after {
		t.Fatalf("NowMS %d outside [%d, %d]", got, before, after)
	}
}
