package codeur

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// textNodes returns the trimmed, non-empty text nodes under the selection in document order.
func textNodes(sel *goquery.Selection) []string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}

	for _, node := range sel.Nodes {
		walk(node)
	}
	return parts
}

// joinedText joins the trimmed text nodes of the selection with sep.
func joinedText(sel *goquery.Selection, sep string) string {
	return strings.Join(textNodes(sel), sep)
}
