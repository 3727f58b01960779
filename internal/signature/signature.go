// Package signature computes the content hashes that key every derived cache.
//
// Both functions hash a canonical serialization with SHA-256 and return lowercase hex.
// The serialization is part of the persisted cache format: changing it invalidates
// every cache entry written by earlier runs.
package signature

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/pbaille/folio/internal/domain"
)

// Media hashes the sorted "{id}-{modifiedTime}" strings of items.
// An empty set has the empty signature.
func Media(items []domain.MediaItem) string {
	if len(items) == 0 {
		return ""
	}
	return hashString(mediaKey(items))
}

// Node hashes the node's identity, text and path together with the media it owns.
// media is passed separately so callers can sign the post-sync media list.
func Node(n domain.Node, media []domain.MediaItem) string {
	// Field order is fixed by the struct declaration.
	canonical := struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Content string `json:"content"`
		Path    string `json:"path"`
		Media   string `json:"media"`
	}{
		ID:      n.ID,
		Name:    n.Name,
		Content: n.Text,
		Path:    n.Path,
		Media:   mediaKey(media),
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(canonical); err != nil {
		// Encoding plain strings cannot fail.
		panic(err)
	}
	return hashBytes(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

func mediaKey(items []domain.MediaItem) string {
	parts := make([]string, len(items))
	for i, m := range items {
		parts[i] = m.ID + "-" + m.ModifiedTime
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

func hashString(s string) string {
	return hashBytes([]byte(s))
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
