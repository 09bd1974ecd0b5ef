package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var repeatSpace = regexp.MustCompile(`\s+`)

const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td, th, dt, dd"

// ExtractText reduces an HTML document to its title and readable text.
// Headings become Markdown headings and list items bullets.
func ExtractText(doc *goquery.Document) (string, string) {
	title := collapseSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript, nav, header, footer, aside, form, iframe, svg").Remove()

	root := doc.Find("main, article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var lines []string
	root.Find(blockSelector).Each(func(i int, s *goquery.Selection) {
		// Nested blocks are emitted by their innermost element
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		text := collapseSpace(s.Text())
		if text == "" {
			return
		}
		switch tag := goquery.NodeName(s); tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			text = strings.Repeat("#", int(tag[1]-'0')) + " " + text
		case "li":
			text = "- " + text
		case "blockquote":
			text = "> " + text
		}
		lines = append(lines, text)
	})

	if len(lines) == 0 {
		return title, collapseSpace(root.Text())
	}
	return title, strings.Join(lines, "\n")
}

func collapseSpace(s string) string {
	return strings.TrimSpace(repeatSpace.ReplaceAllString(s, " "))
}
