package crawler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordedWaits struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedWaits) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delays)
}

func stubWait(t *testing.T) *recordedWaits {
	t.Helper()
	rec := &recordedWaits{}
	original := wait
	wait = func(ctx context.Context, d time.Duration) error {
		rec.mu.Lock()
		rec.delays = append(rec.delays, d)
		rec.mu.Unlock()
		return ctx.Err()
	}
	t.Cleanup(func() { wait = original })
	return rec
}

const projectHTML = `<html><body><h1>Développement API</h1></body></html>`

type siteHandler struct {
	robots       string
	robotsStatus int
	pages        map[string]func(w http.ResponseWriter, hits int)

	robotsHits atomic.Int32
	mu         sync.Mutex
	hits       map[string]int
}

func (s *siteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/robots.txt" {
		s.robotsHits.Add(1)
		status := s.robotsStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(s.robots))
		return
	}

	s.mu.Lock()
	if s.hits == nil {
		s.hits = make(map[string]int)
	}
	s.hits[r.URL.RequestURI()]++
	hits := s.hits[r.URL.RequestURI()]
	s.mu.Unlock()

	handler, ok := s.pages[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	handler(w, hits)
}

func (s *siteHandler) hitCount(uri string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[uri]
}

func htmlPage(body string) func(http.ResponseWriter, int) {
	return func(w http.ResponseWriter, _ int) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}
}

func newTestCrawler(robots *RobotsCache) *Crawler {
	return New(Config{UserAgent: DefaultUserAgent}, robots, zap.NewNop())
}

func TestDocumentFetchesOnceAndCaches(t *testing.T) {
	waits := stubWait(t)
	site := &siteHandler{pages: map[string]func(http.ResponseWriter, int){
		"/projects/123-api": htmlPage(projectHTML),
	}}
	server := httptest.NewServer(site)
	defer server.Close()

	c := newTestCrawler(nil)

	for i := 0; i < 2; i++ {
		doc, err := c.Document(context.Background(), server.URL+"/projects/123-api")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := doc.Find("h1").Text(); got != "Développement API" {
			t.Fatalf("unexpected title %q", got)
		}
	}

	if got := site.hitCount("/projects/123-api"); got != 1 {
		t.Fatalf("expected a single page fetch, got %d", got)
	}
	if got := site.robotsHits.Load(); got != 1 {
		t.Fatalf("expected a single robots fetch, got %d", got)
	}
	// one courtesy pause after robots.txt and one after the page
	if got := waits.count(); got != 2 {
		t.Fatalf("expected 2 courtesy pauses, got %d", got)
	}
}

func TestDocumentRetriesTemporaryStatus(t *testing.T) {
	waits := stubWait(t)
	site := &siteHandler{pages: map[string]func(http.ResponseWriter, int){
		"/projects/1": func(w http.ResponseWriter, hits int) {
			if hits < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			htmlPage(projectHTML)(w, hits)
		},
	}}
	server := httptest.NewServer(site)
	defer server.Close()

	c := newTestCrawler(nil)
	if _, err := c.Document(context.Background(), server.URL+"/projects/1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := site.hitCount("/projects/1"); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}

	// robots pause, then per attempt a courtesy pause, plus two backoffs
	if got := waits.count(); got != 6 {
		t.Fatalf("expected 6 pauses, got %d", got)
	}

	waits.mu.Lock()
	defer waits.mu.Unlock()
	firstBackoff, secondBackoff := waits.delays[2], waits.delays[4]
	if firstBackoff < time.Second || firstBackoff > 2*time.Second {
		t.Fatalf("first backoff out of range: %v", firstBackoff)
	}
	if secondBackoff < 2*time.Second || secondBackoff > 3*time.Second {
		t.Fatalf("second backoff out of range: %v", secondBackoff)
	}
}

func TestDocumentRetriesStalledBody(t *testing.T) {
	stubWait(t)
	site := &siteHandler{}
	site.pages = map[string]func(http.ResponseWriter, int){
		"/projects/2": func(w http.ResponseWriter, hits int) {
			if hits >= 3 {
				htmlPage(projectHTML)(w, hits)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html><body><h1>Dével"))
			w.(http.Flusher).Flush()
			time.Sleep(400 * time.Millisecond)
		},
	}
	server := httptest.NewServer(site)
	defer server.Close()

	c := New(Config{UserAgent: DefaultUserAgent, Timeout: 100 * time.Millisecond}, nil, zap.NewNop())
	doc, err := c.Document(context.Background(), server.URL+"/projects/2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := doc.Find("h1").Text(); got != "Développement API" {
		t.Fatalf("unexpected title %q", got)
	}
	if got := site.hitCount("/projects/2"); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "service unavailable", err: &StatusError{StatusCode: http.StatusServiceUnavailable}, want: true},
		{name: "not found", err: &StatusError{StatusCode: http.StatusNotFound}},
		{name: "body read", err: &TransportError{URL: "https://www.codeur.com", Err: io.ErrUnexpectedEOF}, want: true},
		{name: "parse", err: errors.New("parse html")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Fatalf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDocumentGivesUpAfterMaxAttempts(t *testing.T) {
	stubWait(t)
	site := &siteHandler{pages: map[string]func(http.ResponseWriter, int){
		"/projects/1": func(w http.ResponseWriter, _ int) {
			w.WriteHeader(http.StatusTooManyRequests)
		},
	}}
	server := httptest.NewServer(site)
	defer server.Close()

	c := newTestCrawler(nil)
	_, err := c.Document(context.Background(), server.URL+"/projects/1")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 status error, got %v", err)
	}
	if got := site.hitCount("/projects/1"); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestDocumentDoesNotRetryPermanentStatus(t *testing.T) {
	stubWait(t)
	site := &siteHandler{pages: map[string]func(http.ResponseWriter, int){
		"/projects/1": func(w http.ResponseWriter, _ int) {
			w.WriteHeader(http.StatusForbidden)
		},
	}}
	server := httptest.NewServer(site)
	defer server.Close()

	c := newTestCrawler(nil)
	_, err := c.Document(context.Background(), server.URL+"/projects/1")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 status error, got %v", err)
	}
	if got := site.hitCount("/projects/1"); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestDocumentHonoursRobots(t *testing.T) {
	stubWait(t)
	site := &siteHandler{
		robots: "User-agent: *\nDisallow: /private/\n",
		pages: map[string]func(http.ResponseWriter, int){
			"/private/1":  htmlPage(projectHTML),
			"/projects/1": htmlPage(projectHTML),
		},
	}
	server := httptest.NewServer(site)
	defer server.Close()

	robots := NewRobotsCache()
	c := newTestCrawler(robots)

	if _, err := c.Document(context.Background(), server.URL+"/private/1"); !errors.Is(err, ErrPolicyRefused) {
		t.Fatalf("expected policy refusal, got %v", err)
	}
	if got := site.hitCount("/private/1"); got != 0 {
		t.Fatalf("disallowed page must not be fetched, got %d hits", got)
	}

	other := newTestCrawler(robots)
	if _, err := other.Document(context.Background(), server.URL+"/projects/1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := site.robotsHits.Load(); got != 1 {
		t.Fatalf("robots.txt should be shared between crawlers, fetched %d times", got)
	}
}

func TestDocumentAllowsAllWhenRobotsMissing(t *testing.T) {
	stubWait(t)
	site := &siteHandler{
		robotsStatus: http.StatusInternalServerError,
		robots:       "User-agent: *\nDisallow: /\n",
		pages: map[string]func(http.ResponseWriter, int){
			"/projects/1": htmlPage(projectHTML),
		},
	}
	server := httptest.NewServer(site)
	defer server.Close()

	c := newTestCrawler(nil)
	if _, err := c.Document(context.Background(), server.URL+"/projects/1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDocumentRefusesBeforeNetwork(t *testing.T) {
	stubWait(t)
	site := &siteHandler{}
	server := httptest.NewServer(site)
	defer server.Close()

	c := newTestCrawler(nil)
	for _, target := range []string{
		server.URL + "/system/projects/1",
		server.URL + "/projects/1?utm_source=mail",
	} {
		if _, err := c.Document(context.Background(), target); !errors.Is(err, ErrPolicyRefused) {
			t.Fatalf("expected policy refusal for %s, got %v", target, err)
		}
	}

	if got := site.robotsHits.Load(); got != 0 {
		t.Fatalf("policy refusal must happen before any request, robots fetched %d times", got)
	}
}

func TestDocumentStopsOnCancelledContext(t *testing.T) {
	stubWait(t)
	site := &siteHandler{pages: map[string]func(http.ResponseWriter, int){
		"/projects/1": htmlPage(projectHTML),
	}}
	server := httptest.NewServer(site)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestCrawler(nil)
	if _, err := c.Document(ctx, server.URL+"/projects/1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
