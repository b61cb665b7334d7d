package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/codeur-agent/codeur-responder/internal/utils"
)

const (
	DefaultUserAgent   = "CodeurAgentCrawler/1.0"
	defaultTimeout     = 5 * time.Second
	defaultMaxAttempts = 3
	defaultMinDelay    = time.Second
	defaultMaxDelay    = 5 * time.Second
	initialBackoff     = time.Second
	backoffJitter      = time.Second

	acceptHeader         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguageHeader = "fr-FR,fr;q=0.9,en-US;q=0.7,en;q=0.5"
)

var wait = utils.WaitFor

// Config controls the HTTP behaviour of a Crawler.
type Config struct {
	UserAgent   string        `mapstructure:"user-agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max-attempts"`
	MinDelay    time.Duration `mapstructure:"min-delay"`
	MaxDelay    time.Duration `mapstructure:"max-delay"`
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.MinDelay <= 0 {
		c.MinDelay = defaultMinDelay
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = max(c.MinDelay, defaultMaxDelay)
	}
	return c
}

// Crawler fetches and parses pages politely: it honours the site policy and robots.txt,
// retries temporary failures with backoff and pauses after every request.
// Parsed documents are cached per crawler by normalized URL.
type Crawler struct {
	cfg    Config
	client *http.Client
	robots *RobotsCache
	logger *zap.Logger

	mu   sync.Mutex
	docs map[string]*goquery.Document
}

// New creates a crawler sharing the given robots cache.
func New(cfg Config, robots *RobotsCache, log *zap.Logger) *Crawler {
	cfg = cfg.withDefaults()
	if robots == nil {
		robots = NewRobotsCache()
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Crawler{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		robots: robots,
		logger: log.Named("crawler"),
		docs:   make(map[string]*goquery.Document),
	}
}

// Document returns the parsed page at rawURL, fetching it at most once per crawler.
func (c *Crawler) Document(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if err := CheckPolicy(rawURL); err != nil {
		return nil, err
	}

	key := CacheKey(rawURL)

	c.mu.Lock()
	doc, ok := c.docs[key]
	c.mu.Unlock()
	if ok {
		return doc, nil
	}

	target, err := url.Parse(key)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", key, err)
	}

	allowed, err := c.robotsAllowed(ctx, target)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("%w: robots.txt disallows %s", ErrPolicyRefused, key)
	}

	doc, err = c.fetchWithRetries(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.docs[key] = doc
	c.mu.Unlock()

	return doc, nil
}

func (c *Crawler) fetchWithRetries(ctx context.Context, target string) (*goquery.Document, error) {
	log := c.logger.With(zap.String("url", target))
	backoff := initialBackoff

	for attempt := 1; ; attempt++ {
		log.Debug("fetching page", zap.Int("attempt", attempt))

		doc, err := c.fetch(ctx, target)
		if delayErr := c.courtesyDelay(ctx); delayErr != nil {
			return nil, delayErr
		}
		if err == nil {
			return doc, nil
		}

		if ctx.Err() != nil || !retryable(err) || attempt >= c.cfg.MaxAttempts {
			return nil, fmt.Errorf("fetch %s after %d attempt(s): %w", target, attempt, err)
		}

		delay := backoff + utils.RandomDuration(0, backoffJitter)
		log.Warn("fetch failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := wait(ctx, delay); err != nil {
			return nil, err
		}
		backoff *= 2
	}
}

func (c *Crawler) fetch(ctx context.Context, target string) (*goquery.Document, error) {
	req, err := c.newRequest(ctx, target)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: target, Err: err}
	}

	reader, err := charset.NewReader(bytes.NewReader(body), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode body of %s: %w", target, err)
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse html of %s: %w", target, err)
	}

	return doc, nil
}

func (c *Crawler) newRequest(ctx context.Context, target string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", target, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguageHeader)
	return req, nil
}

func (c *Crawler) courtesyDelay(ctx context.Context) error {
	return wait(ctx, utils.RandomDuration(c.cfg.MinDelay, c.cfg.MaxDelay))
}

// retryable reports whether err is a transport failure or a 429/503 answer.
func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
