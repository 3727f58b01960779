package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pbaille/folio/internal/domain"
)

var media = []domain.MediaItem{
	{ID: "m1", ModifiedTime: "2024-01-01T00:00:00Z"},
	{ID: "m2", ModifiedTime: "2024-02-01T00:00:00Z"},
	{ID: "m3", ModifiedTime: "2024-03-01T00:00:00Z"},
}

func TestMediaIsOrderIndependent(t *testing.T) {
	reordered := []domain.MediaItem{media[2], media[0], media[1]}
	assert.Equal(t, Media(media), Media(reordered))
	assert.Len(t, Media(media), 64)
}

func TestMediaIgnoresHostedFields(t *testing.T) {
	withURL := append([]domain.MediaItem(nil), media...)
	withURL[0].HostedURL = "https://cdn.example.com/x.jpg"
	withURL[0].Width = 800
	assert.Equal(t, Media(media), Media(withURL))
}

func TestMediaDetectsModifiedTime(t *testing.T) {
	changed := append([]domain.MediaItem(nil), media...)
	changed[1].ModifiedTime = "2024-02-02T00:00:00Z"
	assert.NotEqual(t, Media(media), Media(changed))
}

func TestMediaEmpty(t *testing.T) {
	assert.Equal(t, "", Media(nil))
}

func TestMediaKnownValue(t *testing.T) {
	// sha256("a-1|b-2")
	items := []domain.MediaItem{{ID: "b", ModifiedTime: "2"}, {ID: "a", ModifiedTime: "1"}}
	assert.Equal(t, hashString("a-1|b-2"), Media(items))
}

func TestNodeSignature(t *testing.T) {
	n := domain.Node{ID: "p1", Name: "Alpha", Path: "/alpha", Text: "L1\nhello"}
	base := Node(n, media)

	assert.Equal(t, base, Node(n, []domain.MediaItem{media[1], media[2], media[0]}))

	tests := map[string]func(domain.Node) domain.Node{
		"name": func(n domain.Node) domain.Node { n.Name = "Alpha 2"; return n },
		"text": func(n domain.Node) domain.Node { n.Text = "L1\nbye"; return n },
		"path": func(n domain.Node) domain.Node { n.Path = "/work/alpha"; return n },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			assert.NotEqual(t, base, Node(mutate(n), media))
		})
	}

	assert.NotEqual(t, base, Node(n, media[:2]))
}
