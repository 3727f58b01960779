// Package prune removes hosted assets whose source disappeared, refusing
// suspiciously large deletions unless forced.
package prune

import (
	"context"
	"fmt"
	"strings"

	"github.com/pbaille/folio/internal/assethost"
	"github.com/pbaille/folio/internal/logging"
	"github.com/pbaille/folio/internal/manifest"
)

// DefaultThreshold is the largest orphan count pruned without an override
const DefaultThreshold = 10

// ForceFlag is the command-line override for the threshold
const ForceFlag = "--force-delete"

// Orphan is a manifest entry whose media id was not seen in this run
type Orphan struct {
	ID    string
	Entry manifest.Entry
}

// AbortError is returned when the orphan count exceeds the threshold without an override.
// Nothing has been deleted when it is returned.
type AbortError struct {
	Orphans   []Orphan
	Threshold int
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("refusing to delete %d orphaned assets (threshold %d); rerun with %s if this is intended",
		len(e.Orphans), e.Threshold, ForceFlag)
}

// Report lists the hosted assets that would have been deleted
func (e *AbortError) Report() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "about to delete %d assets, which is more than the threshold of %d.\n", len(e.Orphans), e.Threshold)
	sb.WriteString("This usually means the source listing failed, not that the files were removed.\n\n")
	sb.WriteString("Assets that would be deleted:\n")
	for _, o := range e.Orphans {
		if o.Entry.OK() {
			fmt.Fprintf(&sb, " - %s\n", o.Entry.HostedAssetID)
		} else {
			fmt.Fprintf(&sb, " - %s (never hosted)\n", o.ID)
		}
	}
	fmt.Fprintf(&sb, "\nIf this is intended, run again with %s.\n", ForceFlag)
	return sb.String()
}

// Result counts what a prune did
type Result struct {
	Deleted      int
	Dropped      int
	DeleteFailed int
}

// Guard diffs the manifest against the media seen in a run
type Guard struct {
	Threshold int
}

// Plan returns the manifest entries absent from seen, ordered by media id
func (g Guard) Plan(m *manifest.Manifest, seen map[string]bool) []Orphan {
	var orphans []Orphan
	for _, id := range m.Keys() {
		if seen[id] {
			continue
		}
		e, _ := m.Get(id)
		orphans = append(orphans, Orphan{ID: id, Entry: e})
	}
	return orphans
}

// Execute deletes orphans from the host and the manifest. Past the threshold it
// returns an *AbortError and changes nothing, unless force is set.
// A failed deletion keeps its manifest entry so the next run tries again.
func (g Guard) Execute(ctx context.Context, host assethost.Host, m *manifest.Manifest, seen map[string]bool, force bool) (Result, error) {
	orphans := g.Plan(m, seen)
	if len(orphans) > g.Threshold && !force {
		return Result{}, &AbortError{Orphans: orphans, Threshold: g.Threshold}
	}

	log := logging.WithContext(ctx)
	if len(orphans) > 0 {
		log.Info("pruning deleted assets", logging.Int("count", len(orphans)))
	}

	var res Result
	for _, o := range orphans {
		if !o.Entry.OK() {
			m.Delete(o.ID)
			res.Dropped++
			continue
		}
		if err := host.Destroy(ctx, o.Entry.HostedAssetID); err != nil {
			log.Error("failed to delete hosted asset",
				logging.String("asset_id", o.Entry.HostedAssetID),
				logging.Err(err),
			)
			res.DeleteFailed++
			continue
		}
		m.Delete(o.ID)
		res.Deleted++
		log.Info("deleted hosted asset", logging.String("asset_id", o.Entry.HostedAssetID))
	}
	return res, nil
}
