package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	pageParam        = "page"
	forbiddenPathDir = "/system/projects/"
)

// CheckPolicy rejects URLs the site does not allow crawlers to visit:
// anything under /system/projects/ and any query parameter other than "page".
func CheckPolicy(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	if strings.HasPrefix(u.Path, forbiddenPathDir) {
		return fmt.Errorf("%w: path %s", ErrPolicyRefused, u.Path)
	}

	for key := range u.Query() {
		if key != pageParam {
			return fmt.Errorf("%w: query parameter %q", ErrPolicyRefused, key)
		}
	}

	return nil
}

// CacheKey normalizes a URL by dropping every query parameter except "page".
func CacheKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	values := u.Query()
	kept := url.Values{}
	if pages, ok := values[pageParam]; ok {
		kept[pageParam] = pages
	}
	u.RawQuery = kept.Encode()
	u.Fragment = ""

	return u.String()
}
