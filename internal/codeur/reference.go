package codeur

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ProjectURLPrefix is the prefix every project reference starts with.
const ProjectURLPrefix = "https://www.codeur.com/projects/"

// ExtractReference returns the first project link found in a notification body.
func ExtractReference(body string) (string, bool) {
	if strings.TrimSpace(body) == "" {
		return "", false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", false
	}

	var reference string
	doc.Find("a[href]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if strings.HasPrefix(href, ProjectURLPrefix) {
			reference = href
			return false
		}
		return true
	})

	return reference, reference != ""
}

// PlainText strips markup from an HTML fragment, keeping one text node per line.
func PlainText(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return strings.TrimSpace(body)
	}

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	return joinedText(root, "\n")
}
