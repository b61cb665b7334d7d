package filtering

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeur-agent/codeur-responder/internal/ai"
)

type keywordsFilter struct {
	name     string
	keywords []string
	exclude  bool
	disabled bool
	reason   string
}

// NewKeywords creates the keyword gate: the text must contain at least one keyword, case-insensitively.
// An empty keyword list lets every candidate through.
func NewKeywords(keywords []string) Filter {
	return &keywordsFilter{name: "keywords", keywords: normalizeKeywords(keywords)}
}

// NewExcludedKeywords creates a filter rejecting texts that contain any of the keywords.
func NewExcludedKeywords(keywords []string) Filter {
	return &keywordsFilter{name: "excluded_keywords", keywords: normalizeKeywords(keywords), exclude: true}
}

func normalizeKeywords(keywords []string) []string {
	normalized := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		if keyword = strings.ToLower(strings.TrimSpace(keyword)); keyword != "" {
			normalized = append(normalized, keyword)
		}
	}
	return normalized
}

func (f *keywordsFilter) Name() string { return f.name }

func (f *keywordsFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *keywordsFilter) IsEnabled() bool { return !f.disabled }

func (f *keywordsFilter) Validate() error { return nil }

func (f *keywordsFilter) Apply(_ context.Context, c Candidate) (ai.Verdict, error) {
	if len(f.keywords) == 0 {
		return ai.Verdict{Matched: true}, nil
	}

	found := firstKeyword(strings.ToLower(c.Text), f.keywords)

	switch {
	case f.exclude && found != "":
		return ai.Reject(fmt.Sprintf("excluded keyword %q found", found)), nil
	case f.exclude:
		return ai.Verdict{Matched: true}, nil
	case found == "":
		return ai.Reject("no configured keyword found"), nil
	default:
		return ai.Verdict{Matched: true, Reasons: []string{fmt.Sprintf("keyword %q found", found)}}, nil
	}
}

func firstKeyword(text string, keywords []string) string {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return keyword
		}
	}
	return ""
}

func (f *keywordsFilter) Status() Status {
	details := map[string]string{}
	if len(f.keywords) > 0 {
		details["keywords"] = strings.Join(f.keywords, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
