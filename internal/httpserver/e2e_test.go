package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"burnbin/internal/clock"
	"burnbin/internal/id"
)

func TestEndToEndOneShotPaste(t *testing.T) {
	srv := newTestServer(t, newMemoryStore(), false)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Post(ts.URL+"/pastes", "application/json",
		strings.NewReader(`{"content":"secret token","max_views":1}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var created struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %d", resp.StatusCode)
	}
	if !strings.HasPrefix(created.URL, ts.URL) {
		t.Fatalf("url should point at this server: %q", created.URL)
	}

	// The returned link is directly consumable, exactly once.
	view, err := client.Get(created.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got struct {
		Content        string  `json:"content"`
		RemainingViews *int64  `json:"remaining_views"`
		ExpiresAt      *string `json:"expires_at"`
	}
	if err := json.NewDecoder(view.Body).Decode(&got); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	view.Body.Close()
	if view.StatusCode != http.StatusOK || got.Content != "secret token" {
		t.Fatalf("view: %d %+v", view.StatusCode, got)
	}
	if got.RemainingViews == nil || *got.RemainingViews != 0 {
		t.Fatalf("remaining views: %v", got.RemainingViews)
	}

	gone, err := client.Get(created.URL)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	gone.Body.Close()
	if gone.StatusCode != http.StatusNotFound {
		t.Fatalf("second view should 404, got %d", gone.StatusCode)
	}
}

// The last-view race across real HTTP: exactly one of N parallel readers
// receives the paste.
func TestEndToEndConcurrentReaders(t *testing.T) {
	srv := newTestServer(t, newMemoryStore(), false)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Post(ts.URL+"/pastes", "application/json",
		strings.NewReader(`{"content":"only one","max_views":1}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	resp.Body.Close()

	const readers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		hits int
	)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := client.Get(ts.URL + "/pastes/" + created.ID)
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			defer r.Body.Close()
			if r.StatusCode == http.StatusOK {
				mu.Lock()
				hits++
				mu.Unlock()
			} else if r.StatusCode != http.StatusNotFound {
				t.Errorf("unexpected status %d", r.StatusCode)
			}
		}()
	}
	wg.Wait()

	if hits != 1 {
		t.Fatalf("expected exactly one successful reader, got %d", hits)
	}
}

func TestEndToEndTestClock(t *testing.T) {
	srv, err := New(Config{
		Store:       newMemoryStore(),
		IDGenerator: id.New(10),
		Clock:       clock.New(true),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := &http.Client{Timeout: 5 * time.Second}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/pastes",
		strings.NewReader(`{"content":"timed","ttl_seconds":30}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(clock.OverrideHeader, "1000")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()

	read := func(nowMS string) int {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/pastes/"+created.ID, nil)
		req.Header.Set(clock.OverrideHeader, nowMS)
		r, err := client.Do(req)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer r.Body.Close()
		return r.StatusCode
	}

	if code := read("30999"); code != http.StatusOK {
		t.Fatalf("expected alive just before expiry, got %d", code)
	}
	if code := read("31000"); code != http.StatusNotFound {
		t.Fatalf("expected expired at the boundary, got %d", code)
	}
}
