package codeur

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

const (
	availabilityContainerSelector = "div.flex.gap-4.flex-col"
	metaLineSelector              = "p.font-medium.mb-0.flex.flex-wrap"
	statusSpanSelector            = "span.whitespace-nowrap"
	titleSelector                 = "h1.text-3xl.font-bold.mb-4.text-darker"
	descriptionSelector           = "div.project-description.break-words div.content"
	tagsLineSelector              = "p.flex.items-start.gap-2.m-0"
	tooltipSelector               = `span[data-controller="tooltip"]`

	openMarker     = "Ouvert"
	profilesMarker = "Profils recherchés :"
	budgetTooltip  = "Budget indicatif"
)

var tooltipAttributes = []string{"data-bs-original-title", "aria-label", "title"}

// Fetcher returns the parsed document at a URL.
type Fetcher interface {
	Document(ctx context.Context, url string) (*goquery.Document, error)
}

// ProjectPage reads the fields of one marketplace project page.
// Markup that cannot be found yields empty values; only fetch and policy errors are returned.
// Every field is computed once per page.
type ProjectPage struct {
	url     string
	fetcher Fetcher

	mu     sync.Mutex
	fields map[string]any
}

// NewProjectPage binds a page to its reference URL.
func NewProjectPage(fetcher Fetcher, url string) *ProjectPage {
	return &ProjectPage{url: url, fetcher: fetcher, fields: make(map[string]any)}
}

// URL returns the reference the page is bound to.
func (p *ProjectPage) URL() string {
	return p.url
}

// Available reports whether the project is still open for offers.
func (p *ProjectPage) Available(ctx context.Context) (bool, error) {
	return field(ctx, p, "availability", func(doc *goquery.Document) bool {
		line := doc.Find(availabilityContainerSelector).First().Find(metaLineSelector).First()
		open := false
		line.Find(statusSpanSelector).EachWithBreak(func(_ int, span *goquery.Selection) bool {
			if strings.Contains(strings.Join(textNodes(span), ""), openMarker) {
				open = true
				return false
			}
			return true
		})
		return open
	})
}

// Title returns the project heading.
func (p *ProjectPage) Title(ctx context.Context) (string, error) {
	return field(ctx, p, "title", func(doc *goquery.Document) string {
		return strings.Join(textNodes(doc.Find(titleSelector).First()), "")
	})
}

// Description returns the project description as plain text, one text node per line.
func (p *ProjectPage) Description(ctx context.Context) (string, error) {
	return field(ctx, p, "description", func(doc *goquery.Document) string {
		return joinedText(doc.Find(descriptionSelector).First(), "\n")
	})
}

// Tags returns the requested profiles and skills in page order without duplicates.
func (p *ProjectPage) Tags(ctx context.Context) ([]string, error) {
	return field(ctx, p, "tags", func(doc *goquery.Document) []string {
		seen := make(map[string]struct{})
		var tags []string
		doc.Find(tagsLineSelector).Each(func(_ int, line *goquery.Selection) {
			line.ChildrenFiltered("span").Each(func(_ int, span *goquery.Selection) {
				for _, text := range textNodes(span) {
					// The profiles line holds its label and ", " separators as bare text nodes,
					// and a profile may be linked again on the next span.
					if text == profilesMarker || !hasWordRune(text) {
						continue
					}
					if _, dup := seen[text]; dup {
						continue
					}
					seen[text] = struct{}{}
					tags = append(tags, text)
				}
			})
		})
		return tags
	})
}

// Budget returns the indicative budget as [min, max], or nil when the page shows none.
func (p *ProjectPage) Budget(ctx context.Context) ([]int, error) {
	return field(ctx, p, "budget", func(doc *goquery.Document) []int {
		var budget []int
		doc.Find(metaLineSelector).First().Find(tooltipSelector).EachWithBreak(func(_ int, span *goquery.Selection) bool {
			if !isBudgetTooltip(span) {
				return true
			}
			budget = ParseBudget(strings.Join(textNodes(span), " "))
			return false
		})
		return budget
	})
}

func hasWordRune(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

func isBudgetTooltip(span *goquery.Selection) bool {
	for _, attr := range tooltipAttributes {
		if value, ok := span.Attr(attr); ok && strings.TrimSpace(value) == budgetTooltip {
			return true
		}
	}
	return false
}

func field[T any](ctx context.Context, p *ProjectPage, name string, extract func(*goquery.Document) T) (T, error) {
	p.mu.Lock()
	cached, ok := p.fields[name]
	p.mu.Unlock()
	if ok {
		return cached.(T), nil
	}

	doc, err := p.fetcher.Document(ctx, p.url)
	if err != nil {
		var zero T
		return zero, err
	}

	value := extract(doc)

	p.mu.Lock()
	p.fields[name] = value
	p.mu.Unlock()

	return value, nil
}
