// Package assetsync mirrors a project's media to the asset host, consulting the
// manifest so each asset is uploaded at most once per source modification.
package assetsync

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pbaille/folio/internal/assethost"
	"github.com/pbaille/folio/internal/domain"
	"github.com/pbaille/folio/internal/logging"
	"github.com/pbaille/folio/internal/manifest"
	"github.com/pbaille/folio/internal/state"
)

// Downloader streams the bytes of a remote media file
type Downloader interface {
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// Stats counts per-asset outcomes of a run
type Stats struct {
	Uploaded      int
	Reused        int
	Failed        int
	SkippedFailed int
}

// Engine syncs media items against the manifest
type Engine struct {
	source   Downloader
	host     assethost.Host
	manifest *manifest.Manifest
	errors   *state.ErrorLog
	prefix   string

	mu    sync.Mutex
	seen  map[string]bool
	stats Stats
}

// New creates an Engine. Keys of uploaded assets are placed under prefix.
func New(source Downloader, host assethost.Host, m *manifest.Manifest, errors *state.ErrorLog, prefix string) *Engine {
	return &Engine{
		source:   source,
		host:     host,
		manifest: m,
		errors:   errors,
		prefix:   prefix,
		seen:     make(map[string]bool),
	}
}

// SyncNode returns the node's media that is hosted after this call, in source order.
// Items whose upload fails now or failed for the same modification before are left out.
func (e *Engine) SyncNode(ctx context.Context, n domain.Node) []domain.MediaItem {
	e.mu.Lock()
	defer e.mu.Unlock()

	log := logging.WithContext(ctx).With(logging.String("node", n.Path))
	out := make([]domain.MediaItem, 0, len(n.Media))

	for _, item := range n.Media {
		e.seen[item.ID] = true
		location := n.Path + "/" + item.Name
		if n.Path == "/" {
			location = "/" + item.Name
		}

		entry, known := e.manifest.Get(item.ID)
		if known && entry.SourceModifiedTime == item.ModifiedTime {
			if entry.OK() {
				out = append(out, hosted(item, entry))
				e.stats.Reused++
				continue
			}
			e.errors.Skipped(location, entry.FailureReason)
			e.stats.SkippedFailed++
			log.Debug("skipping previously failed asset", logging.String("media_id", item.ID))
			continue
		}

		asset, err := e.upload(ctx, n, item)
		if err != nil {
			e.manifest.Put(item.ID, manifest.Failure(item.ModifiedTime, err.Error()))
			e.errors.Failed(location, err.Error())
			e.stats.Failed++
			log.Warn("asset upload failed",
				logging.String("media_id", item.ID),
				logging.String("file", item.Name),
				logging.Err(err),
			)
			continue
		}

		width, height := asset.Width, asset.Height
		if width == 0 || height == 0 {
			width, height = item.Width, item.Height
		}
		entry = manifest.Success(item.ModifiedTime, asset.ID, asset.URL, width, height)
		e.manifest.Put(item.ID, entry)
		e.stats.Uploaded++
		log.Info("asset uploaded",
			logging.String("media_id", item.ID),
			logging.String("asset_id", asset.ID),
		)
		out = append(out, hosted(item, entry))
	}
	return out
}

func (e *Engine) upload(ctx context.Context, n domain.Node, item domain.MediaItem) (assethost.Asset, error) {
	body, err := e.source.Download(ctx, item.ID)
	if err != nil {
		return assethost.Asset{}, fmt.Errorf("download %s: %w", item.Name, err)
	}
	defer body.Close()

	asset, err := e.host.Upload(ctx, assethost.AssetKey(e.prefix, n.Path, item.ID, item.Name), body)
	if err != nil {
		return assethost.Asset{}, fmt.Errorf("upload %s: %w", item.Name, err)
	}
	return asset, nil
}

// hosted rewrites item to point at its hosted copy
func hosted(item domain.MediaItem, entry manifest.Entry) domain.MediaItem {
	item.HostedURL = entry.HostedURL
	if entry.Width > 0 && entry.Height > 0 {
		item.Width, item.Height = entry.Width, entry.Height
	}
	return item
}

// Seen returns the set of media ids encountered so far
func (e *Engine) Seen() map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]bool, len(e.seen))
	for id := range e.seen {
		out[id] = true
	}
	return out
}

// Stats returns the outcome counts so far
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
