// Package pipeline runs one content sync: crawl, mirror media, derive
// presentation metadata, prune, and write the artifacts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pbaille/folio/internal/assethost"
	"github.com/pbaille/folio/internal/assetsync"
	"github.com/pbaille/folio/internal/classifier"
	"github.com/pbaille/folio/internal/derived"
	"github.com/pbaille/folio/internal/domain"
	"github.com/pbaille/folio/internal/linkparse"
	"github.com/pbaille/folio/internal/logging"
	"github.com/pbaille/folio/internal/manifest"
	"github.com/pbaille/folio/internal/metrics"
	"github.com/pbaille/folio/internal/prune"
	"github.com/pbaille/folio/internal/signature"
	"github.com/pbaille/folio/internal/state"
	"github.com/pbaille/folio/internal/store"
)

// TreeReader materializes the remote content tree
type TreeReader interface {
	ReadTree(ctx context.Context, rootID string) (*domain.Tree, error)
}

// Structurer derives layouts and narratives. It must never fail.
type Structurer interface {
	GroupLayouts(ctx context.Context, media []domain.MediaItem) []domain.LayoutGroup
	Narrate(ctx context.Context, n domain.Node, media []domain.MediaItem) domain.Narrative
	Stats() classifier.Stats
}

// Journal records runs. It is optional.
type Journal interface {
	BeginRun(lastFetch string) (*store.Run, error)
	FinishRun(id string, status store.Status, c store.Counters, runErr error) error
}

// Deps are the collaborators of a run, constructed once at startup
type Deps struct {
	Reader     TreeReader
	Source     assetsync.Downloader
	Host       assethost.Host
	Structurer Structurer
	State      *state.Store
	Journal    Journal
}

// Settings are the plain values a run needs
type Settings struct {
	RootID         string
	AssetPrefix    string
	ErrorLogName   string
	SiteHeader     string
	IntroDocName   string
	PruneThreshold int
	Concurrency    int
	PushgatewayURL string
}

// RunOptions are per-invocation switches
type RunOptions struct {
	ForceDelete bool
}

// Pipeline orchestrates sync runs
type Pipeline struct {
	deps     Deps
	settings Settings
	now      func() time.Time
}

// New creates a Pipeline
func New(deps Deps, settings Settings) *Pipeline {
	if settings.Concurrency < 1 {
		settings.Concurrency = 1
	}
	if settings.ErrorLogName == "" {
		settings.ErrorLogName = ".upload-errors.log"
	}
	return &Pipeline{deps: deps, settings: settings, now: time.Now}
}

type layoutCache = derived.Cache[[]domain.LayoutGroup]
type narrativeCache = derived.Cache[domain.Narrative]

// Run executes one sync. A *prune.AbortError is returned when the pruning guard
// refuses to proceed; persistence failures are returned as errors too.
// Individual asset or generative failures are reported, never returned.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	started := p.now()
	report := &Report{Started: started}

	lastFetch, found, err := p.deps.State.ReadMarker(state.LastFetchFile)
	if err != nil {
		return nil, fmt.Errorf("read last fetch: %w", err)
	}
	if found {
		report.LastFetch = lastFetch
	}

	run := p.beginRun(report.LastFetch)
	if run != nil {
		report.RunID = run.ID
		ctx = logging.WithRunID(ctx, run.ID)
	}
	log := logging.WithContext(ctx)
	if found {
		log.Info("previous successful run", logging.String("last_fetch", lastFetch))
	}

	runErr := p.run(ctx, report, opts, started)
	report.Duration = p.now().Sub(started)

	status := store.StatusOK
	var abort *prune.AbortError
	switch {
	case errors.As(runErr, &abort):
		status = store.StatusAborted
	case runErr != nil:
		status = store.StatusFailed
	}
	p.finishRun(ctx, run, status, report, runErr)
	p.pushMetrics(ctx, report, status)

	if runErr != nil {
		return report, runErr
	}
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, report *Report, opts RunOptions, started time.Time) error {
	log := logging.WithContext(ctx)

	log.Info("reading content tree", logging.String("root", p.settings.RootID))
	tree, err := p.deps.Reader.ReadTree(ctx, p.settings.RootID)
	if err != nil {
		return fmt.Errorf("read tree: %w", err)
	}
	if len(tree.Children(tree.RootID)) == 0 {
		log.Info("no content found, nothing to do")
		report.Empty = true
		return nil
	}

	st := p.deps.State
	m, err := manifest.Load(st)
	if err != nil {
		return err
	}
	layouts, err := derived.Load[[]domain.LayoutGroup](st, state.LayoutCacheFile)
	if err != nil {
		return err
	}
	narratives, err := derived.Load[domain.Narrative](st, state.ProjectCacheFile)
	if err != nil {
		return err
	}
	errLog := state.NewErrorLog(st.Filesystem(), p.settings.ErrorLogName, started)

	// Sync every node that owns media, in tree order
	engine := assetsync.New(p.deps.Source, p.deps.Host, m, errLog, p.settings.AssetPrefix)
	synced := make(map[string][]domain.MediaItem)
	for _, n := range preorder(tree) {
		if len(n.Media) == 0 {
			continue
		}
		synced[n.ID] = engine.SyncNode(ctx, n)
	}
	report.Assets = engine.Stats()

	// Every media id is seen before pruning starts
	guard := prune.Guard{Threshold: p.settings.PruneThreshold}
	pruned, err := guard.Execute(ctx, p.deps.Host, m, engine.Seen(), opts.ForceDelete)
	if err != nil {
		// Keep the uploads of this run so a rerun does not repeat them
		if saveErr := m.Save(st); saveErr != nil {
			log.Error("failed to save manifest after abort", logging.Err(saveErr))
		}
		return err
	}
	report.Prune = pruned

	groups, docs, err := p.derive(ctx, tree, synced, layouts, narratives)
	if err != nil {
		return err
	}
	report.Layouts = layouts.Stats()
	report.Narratives = narratives.Stats()
	report.Generative = p.deps.Structurer.Stats()

	// Intro parsing and ordering
	projects := tree.Projects()
	var intro []domain.Paragraph
	if page, ok := tree.FindPage(p.settings.IntroDocName); ok && page.Text != "" {
		intro = linkparse.Parse(page.Text, projects)
	} else {
		log.Info("no intro page, projects keep listing order", logging.String("page", p.settings.IntroDocName))
	}
	order := linkparse.ProjectOrder(intro, projects)

	if err := m.Save(st); err != nil {
		return err
	}
	if err := layouts.Save(st); err != nil {
		return err
	}
	if err := narratives.Save(st); err != nil {
		return err
	}

	if err := st.WriteJSON(state.ContentFile, buildContent(tree, synced, groups)); err != nil {
		return fmt.Errorf("write content: %w", err)
	}
	doc := derivedDocument{
		SiteHeader:   p.settings.SiteHeader,
		Projects:     orderNarratives(order, docs),
		ProjectOrder: order,
		IntroContent: intro,
	}
	if err := st.WriteJSON(state.DerivedFile, doc); err != nil {
		return fmt.Errorf("write derived content: %w", err)
	}

	report.Failures = errLog.Len()
	if err := errLog.Flush(); err != nil {
		return fmt.Errorf("write error log: %w", err)
	}
	if report.Failures > 0 {
		log.Warn("some assets failed to upload, see the error log",
			logging.String("file", p.settings.ErrorLogName),
			logging.Int("entries", report.Failures),
		)
	}

	if err := st.WriteMarker(state.LastFetchFile, p.now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("write last fetch: %w", err)
	}

	log.Info("sync complete",
		logging.Int("uploaded", report.Assets.Uploaded),
		logging.Int("reused", report.Assets.Reused),
		logging.Int("failed", report.Assets.Failed),
		logging.Int("pruned", report.Prune.Deleted),
		logging.Int("projects", len(projects)),
	)
	return nil
}

// derive resolves layouts for every node with synced media and narratives for every project.
// Cache lookups run concurrently; the caches serialize their own writes.
func (p *Pipeline) derive(ctx context.Context, tree *domain.Tree, synced map[string][]domain.MediaItem,
	layouts *layoutCache, narratives *narrativeCache) (map[string][]domain.LayoutGroup, map[string]domain.Narrative, error) {

	var layoutNodes []domain.Node
	for _, n := range preorder(tree) {
		if len(synced[n.ID]) > 0 {
			layoutNodes = append(layoutNodes, n)
		}
	}
	projects := tree.Projects()

	groupResults := make([][]domain.LayoutGroup, len(layoutNodes))
	narrativeResults := make([]domain.Narrative, len(projects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.settings.Concurrency)

	for i, n := range layoutNodes {
		g.Go(func() error {
			media := synced[n.ID]
			groups, hit := layouts.Resolve(n.ID, signature.Media(media), func() []domain.LayoutGroup {
				return p.deps.Structurer.GroupLayouts(gctx, media)
			})
			logCache(gctx, "layout", n, hit)
			groupResults[i] = groups
			return gctx.Err()
		})
	}
	for i, n := range projects {
		g.Go(func() error {
			media := synced[n.ID]
			n.Media = media
			doc, hit := narratives.Resolve(n.ID, signature.Node(n, media), func() domain.Narrative {
				return p.deps.Structurer.Narrate(gctx, n, media)
			})
			logCache(gctx, "narrative", n, hit)
			narrativeResults[i] = doc
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("derive content: %w", err)
	}

	groups := make(map[string][]domain.LayoutGroup, len(layoutNodes))
	for i, n := range layoutNodes {
		groups[n.ID] = groupResults[i]
	}
	docs := make(map[string]domain.Narrative, len(projects))
	for i, n := range projects {
		docs[n.ID] = narrativeResults[i]
	}
	return groups, docs, nil
}

func logCache(ctx context.Context, cache string, n domain.Node, hit bool) {
	if hit {
		logging.WithContext(ctx).Debug("using cached "+cache, logging.String("node", n.Path))
		return
	}
	logging.WithContext(ctx).Info("generated "+cache, logging.String("node", n.Path))
}

// preorder lists the tree's nodes parents first, children in listing order
func preorder(t *domain.Tree) []domain.Node {
	var out []domain.Node
	var visit func(n domain.Node)
	visit = func(n domain.Node) {
		out = append(out, n)
		for _, c := range t.Children(n.ID) {
			visit(c)
		}
	}
	visit(t.Root())
	return out
}

func (p *Pipeline) beginRun(lastFetch string) *store.Run {
	if p.deps.Journal == nil {
		return nil
	}
	run, err := p.deps.Journal.BeginRun(lastFetch)
	if err != nil {
		logging.Warn("run journal unavailable", logging.Err(err))
		return nil
	}
	return run
}

func (p *Pipeline) finishRun(ctx context.Context, run *store.Run, status store.Status, report *Report, runErr error) {
	if run == nil {
		return
	}
	if err := p.deps.Journal.FinishRun(run.ID, status, report.Counters(), runErr); err != nil {
		logging.WithContext(ctx).Warn("failed to record run", logging.Err(err))
	}
}

func (p *Pipeline) pushMetrics(ctx context.Context, report *Report, status store.Status) {
	if p.settings.PushgatewayURL == "" {
		return
	}
	r := metrics.NewRun()
	report.Observe(r)
	if status == store.StatusOK {
		r.LastSuccess.Set(float64(p.now().Unix()))
	}
	if err := r.Push(p.settings.PushgatewayURL); err != nil {
		logging.WithContext(ctx).Warn("failed to push metrics", logging.Err(err))
	}
}
