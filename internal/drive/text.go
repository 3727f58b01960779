package drive

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	inlineSpace = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	extraBreaks = regexp.MustCompile(`\n{3,}`)
)

// ExtractText reduces an HTML document export to plain text.
// Block elements end a paragraph, so paragraphs come out separated by one blank line.
func ExtractText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var extract func(*html.Node)

	// Tags to skip (non-content)
	skipTags := map[string]bool{
		"head": true, "script": true, "style": true,
		"noscript": true, "iframe": true, "title": true,
	}

	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}

		if n.Type == html.TextNode {
			sb.WriteString(inlineSpace.ReplaceAllString(strings.ReplaceAll(n.Data, "\n", " "), " "))
		}

		if n.Type == html.ElementNode && n.Data == "br" {
			sb.WriteString("\n")
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}

		// Paragraph break after block elements
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "tr", "blockquote":
				sb.WriteString("\n\n")
			}
		}
	}

	extract(doc)

	lines := strings.Split(sb.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	result := extraBreaks.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(result)
}

// normalizeExport strips the byte order mark and carriage returns of a plain-text export
func normalizeExport(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.ReplaceAll(s, "\r\n", "\n")
}
