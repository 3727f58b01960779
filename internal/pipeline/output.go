package pipeline

import (
	"github.com/pbaille/folio/internal/domain"
)

// mediaFile is a synced media item as the presentation layer reads it.
// Every link field points at the hosted copy.
type mediaFile struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MimeType      string `json:"mimeType"`
	WebViewLink   string `json:"webViewLink"`
	DownloadLink  string `json:"downloadLink"`
	ThumbnailLink string `json:"thumbnailLink"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	ModifiedTime  string `json:"modifiedTime"`
}

type mediaLayout struct {
	Layout domain.LayoutCode `json:"layout"`
	Media  []mediaFile       `json:"media"`
}

type contentItem struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Path         string        `json:"path"`
	Type         domain.Kind   `json:"type"`
	Children     []contentItem `json:"children,omitempty"`
	Content      string        `json:"content,omitempty"`
	MediaFiles   []mediaFile   `json:"mediaFiles,omitempty"`
	MediaLayouts []mediaLayout `json:"mediaLayouts,omitempty"`
}

// contentDocument is written to content.json
type contentDocument struct {
	Root contentItem `json:"root"`
}

// derivedDocument is written to zoom-content.json. A nil IntroContent encodes as null.
type derivedDocument struct {
	SiteHeader   string             `json:"siteHeader"`
	Projects     []domain.Narrative `json:"projects"`
	ProjectOrder []string           `json:"projectOrder"`
	IntroContent []domain.Paragraph `json:"introContent"`
}

func toMediaFile(m domain.MediaItem) mediaFile {
	return mediaFile{
		ID:            m.ID,
		Name:          m.Name,
		MimeType:      m.MimeType,
		WebViewLink:   m.HostedURL,
		DownloadLink:  m.HostedURL,
		ThumbnailLink: m.HostedURL,
		Width:         m.Width,
		Height:        m.Height,
		ModifiedTime:  m.ModifiedTime,
	}
}

// resolveLayouts maps each group's ids back to the synced media.
// Ids missing from media are dropped and groups left empty are skipped.
func resolveLayouts(groups []domain.LayoutGroup, media []domain.MediaItem) []mediaLayout {
	byID := make(map[string]domain.MediaItem, len(media))
	for _, m := range media {
		byID[m.ID] = m
	}

	out := make([]mediaLayout, 0, len(groups))
	for _, g := range groups {
		var files []mediaFile
		for _, id := range g.MediaIDs {
			if m, ok := byID[id]; ok {
				files = append(files, toMediaFile(m))
			}
		}
		if len(files) == 0 {
			continue
		}
		out = append(out, mediaLayout{Layout: g.Layout, Media: files})
	}
	return out
}

// buildContent converts the tree into the content document, taking each node's
// media and layouts from the results of this run
func buildContent(t *domain.Tree, media map[string][]domain.MediaItem, layouts map[string][]domain.LayoutGroup) contentDocument {
	var build func(n domain.Node) contentItem
	build = func(n domain.Node) contentItem {
		item := contentItem{
			ID:      n.ID,
			Name:    n.Name,
			Path:    n.Path,
			Type:    n.Kind,
			Content: n.Text,
		}
		for _, c := range t.Children(n.ID) {
			item.Children = append(item.Children, build(c))
		}
		synced := media[n.ID]
		for _, m := range synced {
			item.MediaFiles = append(item.MediaFiles, toMediaFile(m))
		}
		if groups, ok := layouts[n.ID]; ok {
			item.MediaLayouts = resolveLayouts(groups, synced)
		}
		return item
	}
	return contentDocument{Root: build(t.Root())}
}

// orderNarratives returns the narratives of the ordered project ids
func orderNarratives(order []string, narratives map[string]domain.Narrative) []domain.Narrative {
	out := make([]domain.Narrative, 0, len(order))
	for _, id := range order {
		if n, ok := narratives[id]; ok {
			out = append(out, n)
		}
	}
	return out
}
