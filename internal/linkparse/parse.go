// Package linkparse turns lightly marked-up text into typed rich-text segments.
//
// Three forms are recognised, in this priority:
//
//	[[Name]]           link to the project called Name
//	[Label] target     external link, or email link when target contains @
//	[Label]            link to the page at /slug(Label)
package linkparse

import (
	"regexp"
	"strings"

	"github.com/pbaille/folio/internal/domain"
	"github.com/pbaille/folio/internal/logging"
)

var (
	markup     = regexp.MustCompile(`\[\[(.*?)\]\]|\[(.*?)\]\s+(https?://[^\s]+|[\w.-]+@[\w.-]+\.\w+)|\[(.*?)\]`)
	paragraphs = regexp.MustCompile(`\n\s*\n`)
)

// Parse splits text into paragraphs on blank lines and each paragraph into segments.
// A project link naming no known project is kept as literal text and logged.
func Parse(text string, projects []domain.Node) []domain.Paragraph {
	var out []domain.Paragraph
	for _, p := range paragraphs.Split(text, -1) {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, parseParagraph(p, projects))
	}
	return out
}

func parseParagraph(p string, projects []domain.Node) domain.Paragraph {
	var segments domain.Paragraph
	last := 0

	for _, m := range markup.FindAllStringSubmatchIndex(p, -1) {
		if m[0] > last {
			segments = append(segments, domain.Segment{Type: domain.SegmentText, Content: p[last:m[0]]})
		}
		whole := p[m[0]:m[1]]

		switch {
		case m[2] >= 0:
			name := p[m[2]:m[3]]
			if project, ok := findProject(name, projects); ok {
				segments = append(segments, domain.Segment{Type: domain.SegmentProjectLink, Text: name, ProjectID: project.ID})
			} else {
				logging.Warn("project link matches no project", logging.String("link", whole))
				segments = append(segments, domain.Segment{Type: domain.SegmentText, Content: whole})
			}
		case m[4] >= 0:
			label := strings.TrimSpace(p[m[4]:m[5]])
			target := p[m[6]:m[7]]
			if strings.Contains(target, "@") {
				segments = append(segments, domain.Segment{Type: domain.SegmentEmailLink, Text: label, Email: target})
			} else {
				segments = append(segments, domain.Segment{Type: domain.SegmentExternalLink, Text: label, URL: target})
			}
		default:
			label := p[m[8]:m[9]]
			segments = append(segments, domain.Segment{Type: domain.SegmentPageLink, Text: label, Path: "/" + domain.Slugify(label)})
		}
		last = m[1]
	}

	if last < len(p) {
		segments = append(segments, domain.Segment{Type: domain.SegmentText, Content: p[last:]})
	}
	return segments
}

func findProject(name string, projects []domain.Node) (domain.Node, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Node{}, false
	}
	for _, p := range projects {
		if strings.EqualFold(strings.TrimSpace(p.Name), name) {
			return p, true
		}
	}
	return domain.Node{}, false
}

// ProjectOrder returns project ids by first mention in paragraphs, followed by
// the unmentioned projects in the order given.
func ProjectOrder(paragraphs []domain.Paragraph, projects []domain.Node) []string {
	known := make(map[string]bool, len(projects))
	for _, p := range projects {
		known[p.ID] = true
	}

	order := make([]string, 0, len(projects))
	placed := make(map[string]bool, len(projects))
	for _, para := range paragraphs {
		for _, s := range para {
			if s.Type != domain.SegmentProjectLink || placed[s.ProjectID] || !known[s.ProjectID] {
				continue
			}
			placed[s.ProjectID] = true
			order = append(order, s.ProjectID)
		}
	}
	for _, p := range projects {
		if !placed[p.ID] {
			placed[p.ID] = true
			order = append(order, p.ID)
		}
	}
	return order
}
