package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

type robotsKey struct {
	scheme string
	host   string
	agent  string
}

// RobotsCache keeps parsed robots.txt groups per scheme, host and user agent.
// A nil group means everything is allowed. The cache is safe for concurrent use
// and is meant to be shared between crawlers.
type RobotsCache struct {
	mu     sync.Mutex
	groups map[robotsKey]*robotstxt.Group
}

// NewRobotsCache returns an empty cache.
func NewRobotsCache() *RobotsCache {
	return &RobotsCache{groups: make(map[robotsKey]*robotstxt.Group)}
}

func (r *RobotsCache) lookup(key robotsKey) (*robotstxt.Group, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	group, ok := r.groups[key]
	return group, ok
}

func (r *RobotsCache) store(key robotsKey, group *robotstxt.Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[key] = group
}

// Len returns the number of cached hosts.
func (r *RobotsCache) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

func (c *Crawler) robotsAllowed(ctx context.Context, target *url.URL) (bool, error) {
	key := robotsKey{scheme: target.Scheme, host: target.Host, agent: c.cfg.UserAgent}

	group, ok := c.robots.lookup(key)
	if !ok {
		var err error
		group, err = c.fetchRobots(ctx, target)
		if err != nil {
			return false, err
		}
		c.robots.store(key, group)
	}

	if group == nil {
		return true, nil
	}
	return group.Test(target.RequestURI()), nil
}

// fetchRobots loads robots.txt for the target host. Unreachable or non-2xx robots files allow everything.
func (c *Crawler) fetchRobots(ctx context.Context, target *url.URL) (*robotstxt.Group, error) {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", target.Scheme, target.Host)
	group := c.loadRobots(ctx, robotsURL)

	if err := c.courtesyDelay(ctx); err != nil {
		return nil, err
	}

	return group, nil
}

func (c *Crawler) loadRobots(ctx context.Context, robotsURL string) *robotstxt.Group {
	req, err := c.newRequest(ctx, robotsURL)
	if err != nil {
		return nil
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("robots.txt unavailable, allowing all")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(http.StatusOK, body)
	if err != nil {
		c.logger.Warn("robots.txt could not be parsed, allowing all")
		return nil
	}

	return data.FindGroup(c.cfg.UserAgent)
}
