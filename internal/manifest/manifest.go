// Package manifest records the last known sync outcome of every mirrored asset.
package manifest

import (
	"fmt"
	"sort"

	"github.com/pbaille/folio/internal/state"
)

// Status tags a manifest entry
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Entry is either a hosted asset or a recorded failure for one source modification time
type Entry struct {
	Status             Status `json:"status"`
	SourceModifiedTime string `json:"sourceModifiedTime"`
	HostedAssetID      string `json:"hostedAssetId,omitempty"`
	HostedURL          string `json:"hostedUrl,omitempty"`
	Width              int    `json:"width,omitempty"`
	Height             int    `json:"height,omitempty"`
	FailureReason      string `json:"failureReason,omitempty"`
}

// Success builds an entry for an asset the host accepted
func Success(modifiedTime, assetID, url string, width, height int) Entry {
	return Entry{
		Status:             StatusSuccess,
		SourceModifiedTime: modifiedTime,
		HostedAssetID:      assetID,
		HostedURL:          url,
		Width:              width,
		Height:             height,
	}
}

// Failure builds an entry for an asset whose upload failed
func Failure(modifiedTime, reason string) Entry {
	return Entry{
		Status:             StatusFailed,
		SourceModifiedTime: modifiedTime,
		FailureReason:      reason,
	}
}

// OK reports whether the asset is currently hosted
func (e Entry) OK() bool {
	return e.Status == StatusSuccess
}

// Manifest maps a source media id to its entry
type Manifest struct {
	entries map[string]Entry
}

// New returns an empty manifest
func New() *Manifest {
	return &Manifest{entries: make(map[string]Entry)}
}

// Load reads the manifest document, returning an empty manifest when none exists yet
func Load(s *state.Store) (*Manifest, error) {
	m := New()
	if _, err := s.ReadJSON(state.ManifestFile, &m.entries); err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	if m.entries == nil {
		m.entries = make(map[string]Entry)
	}
	for id, e := range m.entries {
		if e.Status != StatusSuccess && e.Status != StatusFailed {
			return nil, fmt.Errorf("load manifest: entry %s has unknown status %q", id, e.Status)
		}
	}
	return m, nil
}

// Save writes the manifest document
func (m *Manifest) Save(s *state.Store) error {
	if err := s.WriteJSON(state.ManifestFile, m.entries); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

// Get returns the entry for id
func (m *Manifest) Get(id string) (Entry, bool) {
	e, ok := m.entries[id]
	return e, ok
}

// Put replaces the entry for id
func (m *Manifest) Put(id string, e Entry) {
	m.entries[id] = e
}

// Delete drops the entry for id
func (m *Manifest) Delete(id string) {
	delete(m.entries, id)
}

// Keys returns every media id in sorted order
func (m *Manifest) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries
func (m *Manifest) Len() int {
	return len(m.entries)
}
