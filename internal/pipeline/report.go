package pipeline

import (
	"time"

	"github.com/pbaille/folio/internal/assetsync"
	"github.com/pbaille/folio/internal/classifier"
	"github.com/pbaille/folio/internal/derived"
	"github.com/pbaille/folio/internal/metrics"
	"github.com/pbaille/folio/internal/prune"
	"github.com/pbaille/folio/internal/store"
)

// Report summarizes one run
type Report struct {
	RunID     string
	Started   time.Time
	Duration  time.Duration
	LastFetch string

	// Empty is set when the root had no children and nothing was touched
	Empty bool

	Assets     assetsync.Stats
	Prune      prune.Result
	Layouts    derived.Stats
	Narratives derived.Stats
	Generative classifier.Stats
	Failures   int
}

// Counters flattens the report for the run journal
func (r *Report) Counters() store.Counters {
	return store.Counters{
		Uploaded:        r.Assets.Uploaded,
		Reused:          r.Assets.Reused,
		Failed:          r.Assets.Failed,
		SkippedFailed:   r.Assets.SkippedFailed,
		Pruned:          r.Prune.Deleted,
		PruneDropped:    r.Prune.Dropped,
		PruneFailed:     r.Prune.DeleteFailed,
		LayoutHits:      r.Layouts.Hits,
		LayoutMisses:    r.Layouts.Misses,
		NarrativeHits:   r.Narratives.Hits,
		NarrativeMisses: r.Narratives.Misses,
		GenerativeCalls: r.Generative.Calls,
		Fallbacks:       r.Generative.Fallbacks,
	}
}

// Observe copies the report into a run's metrics
func (r *Report) Observe(m *metrics.Run) {
	m.Assets.WithLabelValues("uploaded").Add(float64(r.Assets.Uploaded))
	m.Assets.WithLabelValues("reused").Add(float64(r.Assets.Reused))
	m.Assets.WithLabelValues("failed").Add(float64(r.Assets.Failed))
	m.Assets.WithLabelValues("skipped_failed").Add(float64(r.Assets.SkippedFailed))

	m.Pruned.WithLabelValues("deleted").Add(float64(r.Prune.Deleted))
	m.Pruned.WithLabelValues("dropped").Add(float64(r.Prune.Dropped))
	m.Pruned.WithLabelValues("failed").Add(float64(r.Prune.DeleteFailed))

	m.CacheLookup.WithLabelValues("layout", "hit").Add(float64(r.Layouts.Hits))
	m.CacheLookup.WithLabelValues("layout", "miss").Add(float64(r.Layouts.Misses))
	m.CacheLookup.WithLabelValues("narrative", "hit").Add(float64(r.Narratives.Hits))
	m.CacheLookup.WithLabelValues("narrative", "miss").Add(float64(r.Narratives.Misses))

	m.Generative.WithLabelValues("call").Add(float64(r.Generative.Calls))
	m.Generative.WithLabelValues("fallback").Add(float64(r.Generative.Fallbacks))

	m.Duration.Set(r.Duration.Seconds())
}
