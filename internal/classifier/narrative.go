package classifier

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pbaille/folio/internal/domain"
)

func buildNarrativePrompt(n domain.Node, media []domain.MediaItem) (string, error) {
	names := make([]string, len(media))
	for i, m := range media {
		names[i] = m.Name
	}
	project, err := json.MarshalIndent(struct {
		Name       string `json:"name"`
		Content    string `json:"content"`
		MediaFiles string `json:"mediaFiles"`
		Path       string `json:"path"`
	}{n.Name, n.Text, strings.Join(names, ", "), n.Path}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal project: %w", err)
	}

	var sb strings.Builder

	sb.WriteString("Extract the structured narrative of a portfolio project. Return JSON only.\n\n")
	sb.WriteString("The project text has sections headed L1, L2 and L3. Keep the author's wording: ")
	sb.WriteString("do not rewrite, summarise or invent text. Only fix obvious typos.\n\n")
	sb.WriteString("Project:\n")
	sb.Write(project)
	sb.WriteString("\n\n")
	sb.WriteString(`Return a JSON object with this structure:
{
  "id": "` + n.Path + `",
  "l1": "text of the L1 section",
  "l2": "text of the L2 section",
  "l3": [
    {"type": "heading", "content": "a short title line inside L3"},
    {"type": "paragraph", "content": "a paragraph inside L3"},
    {"type": "link", "url": "https://example.com", "text": "title of the link"},
    {"type": "credits", "items": [{"role": "Design", "name": "Jane Doe", "url": "https://jane.example"}]}
  ],
  "year": "year of the project",
  "medium": "medium of the project",
  "role": "author's role"
}

Rules:
- Only the L3 section becomes "l3" blocks
- A short line followed by a line break is a heading; skip headings named "Links" or "Credits"
- A standalone hyperlink is a link block whose text is the link title, not the URL
- Consecutive "role: name" lines form one credits block; attach a URL to the name when present
- Everything else in L3 is a paragraph
- Use empty strings for values the text does not state

Return ONLY the JSON, no other text.`)

	return sb.String(), nil
}

type narrativeAnswer struct {
	ID     text          `json:"id"`
	L1     text          `json:"l1"`
	L2     text          `json:"l2"`
	L3     []blockAnswer `json:"l3"`
	Year   text          `json:"year"`
	Medium text          `json:"medium"`
	Role   text          `json:"role"`
}

type blockAnswer struct {
	Type    string          `json:"type"`
	Content text            `json:"content"`
	URL     string          `json:"url"`
	Text    text            `json:"text"`
	Items   []domain.Credit `json:"items"`
}

func parseNarrative(resp string, n domain.Node) (domain.Narrative, error) {
	raw, err := ExtractJSON(resp)
	if err != nil {
		return domain.Narrative{}, err
	}
	var answer narrativeAnswer
	if err := decodeStrict(raw, &answer); err != nil {
		return domain.Narrative{}, err
	}
	return validateNarrative(answer, n)
}

func validateNarrative(a narrativeAnswer, n domain.Node) (domain.Narrative, error) {
	out := domain.Narrative{
		ID:     n.Path,
		L1:     strings.TrimSpace(string(a.L1)),
		L2:     strings.TrimSpace(string(a.L2)),
		L3:     make([]domain.Block, 0, len(a.L3)),
		Year:   strings.TrimSpace(string(a.Year)),
		Medium: strings.TrimSpace(string(a.Medium)),
		Role:   strings.TrimSpace(string(a.Role)),
	}
	if out.L1 == "" {
		return domain.Narrative{}, fmt.Errorf("%w: empty l1", ErrInvalidResponse)
	}

	for i, b := range a.L3 {
		block := domain.Block{Type: domain.BlockType(b.Type)}
		switch block.Type {
		case domain.BlockHeading, domain.BlockParagraph:
			block.Content = strings.TrimSpace(string(b.Content))
			if block.Content == "" {
				return domain.Narrative{}, fmt.Errorf("%w: l3[%d] %s has no content", ErrInvalidResponse, i, b.Type)
			}
		case domain.BlockLink:
			block.URL = strings.TrimSpace(b.URL)
			if block.URL == "" {
				return domain.Narrative{}, fmt.Errorf("%w: l3[%d] link has no url", ErrInvalidResponse, i)
			}
			block.Text = strings.TrimSpace(string(b.Text))
			if block.Text == "" {
				block.Text = block.URL
			}
		case domain.BlockCredits:
			if len(b.Items) == 0 {
				return domain.Narrative{}, fmt.Errorf("%w: l3[%d] credits are empty", ErrInvalidResponse, i)
			}
			for j, c := range b.Items {
				if strings.TrimSpace(c.Name) == "" {
					return domain.Narrative{}, fmt.Errorf("%w: l3[%d] credit %d has no name", ErrInvalidResponse, i, j)
				}
			}
			block.Items = b.Items
		default:
			return domain.Narrative{}, fmt.Errorf("%w: l3[%d] has unknown type %q", ErrInvalidResponse, i, b.Type)
		}
		out.L3 = append(out.L3, block)
	}
	return out, nil
}

var (
	sectionHeading = regexp.MustCompile(`(?i)^L([123])\s*[:.\-]?\s*(.*)$`)
	metaLine       = regexp.MustCompile(`(?i)^(year|medium|role)\s*:\s*(.+)$`)
	yearPattern    = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	creditLine     = regexp.MustCompile(`^([^:]{1,40}):\s*(.+)$`)
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	blankLines     = regexp.MustCompile(`\n\s*\n`)
)

// FallbackNarrative builds a narrative from the node's own text without any service call.
// L1/L2/L3 headed sections are used when present, otherwise the name and paragraphs.
func FallbackNarrative(n domain.Node) domain.Narrative {
	out := domain.Narrative{ID: n.Path, L3: []domain.Block{}}

	var body []string
	for _, line := range strings.Split(strings.ReplaceAll(n.Text, "\r\n", "\n"), "\n") {
		if m := metaLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			v := strings.TrimSpace(m[2])
			switch strings.ToLower(m[1]) {
			case "year":
				out.Year = v
			case "medium":
				out.Medium = v
			case "role":
				out.Role = v
			}
			continue
		}
		body = append(body, line)
	}

	sections := map[string][]string{}
	current := ""
	for _, line := range body {
		if m := sectionHeading.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			current = m[1]
			if m[2] != "" {
				sections[current] = append(sections[current], m[2])
			}
			continue
		}
		sections[current] = append(sections[current], line)
	}

	if _, ok := sections["1"]; ok {
		out.L1 = joinText(sections["1"])
		out.L2 = joinText(sections["2"])
		out.L3 = blocksFrom(strings.Join(sections["3"], "\n"))
	} else {
		paragraphs := splitParagraphs(strings.Join(body, "\n"))
		out.L1 = n.Name
		if len(paragraphs) > 0 {
			out.L2 = paragraphs[0]
			out.L3 = blocksFrom(strings.Join(paragraphs[1:], "\n\n"))
		}
	}

	if out.L1 == "" {
		out.L1 = n.Name
	}
	if out.Year == "" {
		out.Year = yearPattern.FindString(n.Text)
	}
	return out
}

func joinText(lines []string) string {
	return strings.Join(splitParagraphs(strings.Join(lines, "\n")), "\n\n")
}

func splitParagraphs(s string) []string {
	var out []string
	for _, p := range blankLines.Split(s, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func blocksFrom(s string) []domain.Block {
	blocks := []domain.Block{}
	for _, p := range splitParagraphs(s) {
		lines := strings.Split(p, "\n")

		if credits, ok := parseCredits(lines); ok {
			blocks = append(blocks, domain.Block{Type: domain.BlockCredits, Items: credits})
			continue
		}
		if len(lines) == 1 {
			line := strings.TrimSpace(lines[0])
			if urlPattern.FindString(line) == line {
				blocks = append(blocks, domain.Block{Type: domain.BlockLink, URL: line, Text: line})
				continue
			}
			if len(line) <= 60 && !strings.HasSuffix(line, ".") {
				if lower := strings.ToLower(line); lower == "links" || lower == "credits" {
					continue
				}
				blocks = append(blocks, domain.Block{Type: domain.BlockHeading, Content: line})
				continue
			}
		}
		blocks = append(blocks, domain.Block{Type: domain.BlockParagraph, Content: p})
	}
	return blocks
}

func parseCredits(lines []string) ([]domain.Credit, bool) {
	credits := make([]domain.Credit, 0, len(lines))
	for _, line := range lines {
		m := creditLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil || strings.HasPrefix(strings.TrimSpace(m[2]), "//") {
			return nil, false
		}
		c := domain.Credit{Role: strings.TrimSpace(m[1]), Name: strings.TrimSpace(m[2])}
		if u := urlPattern.FindString(c.Name); u != "" {
			c.URL = u
			c.Name = strings.TrimSpace(strings.Replace(c.Name, u, "", 1))
			if c.Name == "" {
				c.Name = u
			}
		}
		credits = append(credits, c)
	}
	return credits, len(credits) > 0
}
