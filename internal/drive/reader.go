package drive

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pbaille/folio/internal/domain"
	"github.com/pbaille/folio/internal/logging"
)

// Export formats for text documents.
const (
	FormatText = "text"
	FormatHTML = "html"
)

// RootName is the name given to the root node
const RootName = "root"

// Reader materializes the remote folder hierarchy as a content tree
type Reader struct {
	svc    Service
	format string
	sem    *semaphore.Weighted
}

// NewReader creates a Reader issuing at most concurrency remote calls at once
func NewReader(svc Service, format string, concurrency int) *Reader {
	if concurrency < 1 {
		concurrency = 1
	}
	if format != FormatHTML {
		format = FormatText
	}
	return &Reader{svc: svc, format: format, sem: semaphore.NewWeighted(int64(concurrency))}
}

// item is one crawled node with its children in listing order
type item struct {
	node     domain.Node
	children []*item
}

// ReadTree crawls rootID. Listing and export failures are logged and read as empty,
// so the only errors returned are cancellation and tree construction errors.
func (r *Reader) ReadTree(ctx context.Context, rootID string) (*domain.Tree, error) {
	root, err := r.folder(ctx, File{ID: rootID, Name: RootName, MimeType: MimeFolder}, "/")
	if err != nil {
		return nil, err
	}

	tree := domain.NewTree(root.node)
	var add func(parentID string, children []*item) error
	add = func(parentID string, children []*item) error {
		for _, c := range children {
			c.node.ParentID = parentID
			if err := tree.Add(c.node); err != nil {
				return fmt.Errorf("build tree: %w", err)
			}
			if err := add(c.node.ID, c.children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := add(root.node.ID, root.children); err != nil {
		return nil, err
	}
	return tree, nil
}

// folder crawls a folder and classifies it: a folder with no sub-folders is a project
func (r *Reader) folder(ctx context.Context, f File, path string) (*item, error) {
	children, err := r.list(ctx, f.ID)
	if err != nil {
		return nil, err
	}

	isProject := true
	for _, c := range children {
		if c.IsFolder() {
			isProject = false
			break
		}
	}

	it := &item{node: domain.Node{ID: f.ID, Name: f.Name, Path: path, Kind: domain.KindFolder}}
	if isProject {
		it.node.Kind = domain.KindProject
	}

	slots := make([]*item, len(children))
	taken := make(map[string]bool)
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range children {
		var childPath string
		if c.IsFolder() || c.IsDocument() {
			childPath = domain.JoinPath(path, siblingSlug(c, taken))
		}
		switch {
		case c.IsFolder():
			g.Go(func() error {
				child, err := r.folder(gctx, c, childPath)
				slots[i] = child
				return err
			})
		case c.IsDocument():
			g.Go(func() error {
				text, err := r.export(gctx, c)
				if err != nil {
					return err
				}
				slots[i] = &item{node: domain.Node{ID: c.ID, Name: c.Name, Path: childPath, Kind: domain.KindPage, Text: text}}
				return nil
			})
		case isProject && domain.IsMedia(c.MimeType):
			it.node.Media = append(it.node.Media, domain.MediaItem{
				ID:           c.ID,
				Name:         c.Name,
				MimeType:     c.MimeType,
				ModifiedTime: c.ModifiedTime,
				Width:        c.Width,
				Height:       c.Height,
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hasText := false
	for _, s := range slots {
		if s == nil {
			continue
		}
		// A project's text is its first document
		if isProject && !hasText && s.node.Kind == domain.KindPage {
			it.node.Text = s.node.Text
			hasText = true
		}
		it.children = append(it.children, s)
	}
	return it, nil
}

// siblingSlug names a child so that no two siblings share a path. An empty slug
// falls back to the file id and a repeated one gets a short id suffix.
func siblingSlug(f File, taken map[string]bool) string {
	base := domain.Slugify(f.Name)
	if base == "" {
		base = domain.Slugify(f.ID)
	}
	if base == "" {
		base = "untitled"
	}

	slug := base
	if short := domain.Slugify(f.ID); taken[slug] && short != "" {
		if len(short) > 6 {
			short = short[:6]
		}
		slug = base + "-" + short
	}
	for n := 2; taken[slug]; n++ {
		slug = fmt.Sprintf("%s-%d", base, n)
	}
	taken[slug] = true
	return slug
}

func (r *Reader) list(ctx context.Context, folderID string) ([]File, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	files, err := r.svc.ListChildren(ctx, folderID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.WithContext(ctx).Warn("listing failed, treating folder as empty",
			logging.String("folder", folderID), logging.Err(err))
		return nil, nil
	}
	return files, nil
}

func (r *Reader) export(ctx context.Context, f File) (string, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer r.sem.Release(1)

	mimeType := "text/plain"
	if r.format == FormatHTML {
		mimeType = "text/html"
	}
	body, err := r.svc.Export(ctx, f.ID, mimeType)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logging.WithContext(ctx).Warn("export failed, treating document as empty",
			logging.String("document", f.Name), logging.Err(err))
		return "", nil
	}
	if r.format == FormatHTML {
		return ExtractText(body), nil
	}
	return normalizeExport(body), nil
}
