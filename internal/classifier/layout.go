package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pbaille/folio/internal/domain"
)

type mediaInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	AspectRatio string `json:"aspectRatio"`
}

func buildLayoutPrompt(media []domain.MediaItem) (string, error) {
	infos := make([]mediaInfo, len(media))
	for i, m := range media {
		info := mediaInfo{ID: m.ID, Name: m.Name, Type: "image", Width: m.Width, Height: m.Height, AspectRatio: "unknown"}
		if m.IsVideo() {
			info.Type = "video"
		}
		if m.Width > 0 && m.Height > 0 {
			info.AspectRatio = fmt.Sprintf("%.2f", float64(m.Width)/float64(m.Height))
		}
		infos[i] = info
	}
	assets, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal media: %w", err)
	}

	var sb strings.Builder

	sb.WriteString("Group the media assets of one portfolio project into presentation layouts. Return JSON only.\n\n")
	sb.WriteString(`Layouts:
- A: one asset shown full bleed. The strongest landscape image or video; names like "hero", "cover" or "main" are good hints. At most one A per project.
- B: two assets side by side. Good for portrait assets (aspect ratio below 0.9) or closely related pairs.
- C: three or four smaller assets together. Good for details, UI crops or a series.
- D: one asset in a container. Anything important that is not full bleed.

`)
	sb.WriteString("Media assets:\n")
	sb.Write(assets)
	sb.WriteString("\n\n")
	sb.WriteString(`Return a JSON array with this structure:
[
  {"layout": "A", "media_ids": ["id-1"]},
  {"layout": "B", "media_ids": ["id-2", "id-3"]}
]

Rules:
- Use every media id exactly once
- Use only the ids listed above
- Keep the order in which the groups should be shown

Return ONLY the JSON, no other text.`)

	return sb.String(), nil
}

type layoutInstruction struct {
	Layout   string   `json:"layout"`
	MediaIDs []string `json:"media_ids"`
}

func parseLayouts(resp string, media []domain.MediaItem) ([]domain.LayoutGroup, error) {
	raw, err := ExtractJSON(resp)
	if err != nil {
		return nil, err
	}
	var instructions []layoutInstruction
	if err := decodeStrict(raw, &instructions); err != nil {
		return nil, err
	}
	return validateLayouts(instructions, media)
}

// validateLayouts rejects any grouping that does not place every media item exactly once
func validateLayouts(instructions []layoutInstruction, media []domain.MediaItem) ([]domain.LayoutGroup, error) {
	known := make(map[string]bool, len(media))
	for _, m := range media {
		known[m.ID] = true
	}

	placed := make(map[string]bool, len(media))
	fullBleed := 0
	groups := make([]domain.LayoutGroup, 0, len(instructions))

	for i, in := range instructions {
		code := domain.LayoutCode(strings.ToUpper(strings.TrimSpace(in.Layout)))
		if !code.Valid() {
			return nil, fmt.Errorf("%w: group %d has unknown layout %q", ErrInvalidResponse, i, in.Layout)
		}
		if len(in.MediaIDs) == 0 {
			return nil, fmt.Errorf("%w: group %d is empty", ErrInvalidResponse, i)
		}
		if code == domain.LayoutFullBleed {
			fullBleed++
			if fullBleed > 1 {
				return nil, fmt.Errorf("%w: more than one full bleed group", ErrInvalidResponse)
			}
		}
		for _, id := range in.MediaIDs {
			if !known[id] {
				return nil, fmt.Errorf("%w: unknown media id %q", ErrInvalidResponse, id)
			}
			if placed[id] {
				return nil, fmt.Errorf("%w: media id %q placed twice", ErrInvalidResponse, id)
			}
			placed[id] = true
		}
		groups = append(groups, domain.LayoutGroup{Layout: code, MediaIDs: append([]string(nil), in.MediaIDs...)})
	}

	if len(placed) != len(media) {
		return nil, fmt.Errorf("%w: %d of %d media placed", ErrInvalidResponse, len(placed), len(media))
	}
	return groups, nil
}

// FallbackLayouts puts every media item, in order, into one single-asset group
func FallbackLayouts(media []domain.MediaItem) []domain.LayoutGroup {
	if len(media) == 0 {
		return nil
	}
	ids := make([]string, len(media))
	for i, m := range media {
		ids[i] = m.ID
	}
	return []domain.LayoutGroup{{Layout: domain.LayoutSingle, MediaIDs: ids}}
}
