package assetsync

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/folio/internal/assethost"
	"github.com/pbaille/folio/internal/domain"
	"github.com/pbaille/folio/internal/manifest"
	"github.com/pbaille/folio/internal/state"
)

type fakeSource struct {
	downloads []string
	fail      map[string]bool
}

func (f *fakeSource) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	f.downloads = append(f.downloads, fileID)
	if f.fail[fileID] {
		return nil, errors.New("403 forbidden")
	}
	return io.NopCloser(strings.NewReader("bytes of " + fileID)), nil
}

type fakeHost struct {
	uploads []string
	width   int
}

func (f *fakeHost) Upload(ctx context.Context, key string, body io.Reader) (assethost.Asset, error) {
	if _, err := io.ReadAll(body); err != nil {
		return assethost.Asset{}, err
	}
	f.uploads = append(f.uploads, key)
	return assethost.Asset{ID: key, URL: "https://cdn.example.com/" + key, Width: f.width, Height: f.width / 2}, nil
}

func (f *fakeHost) Destroy(ctx context.Context, assetID string) error {
	return nil
}

func project(items ...domain.MediaItem) domain.Node {
	return domain.Node{ID: "p1", Name: "Alpha", Path: "/work/alpha", Kind: domain.KindProject, Media: items}
}

func item(id, mod string) domain.MediaItem {
	return domain.MediaItem{ID: id, Name: id + ".jpg", MimeType: "image/jpeg", ModifiedTime: mod, Width: 10, Height: 20}
}

type harness struct {
	source *fakeSource
	host   *fakeHost
	m      *manifest.Manifest
	fs     billy.Filesystem
	log    *state.ErrorLog
	engine *Engine
}

func newHarness(m *manifest.Manifest) *harness {
	fs := memfs.New()
	h := &harness{
		source: &fakeSource{fail: map[string]bool{}},
		host:   &fakeHost{width: 1200},
		m:      m,
		fs:     fs,
		log:    state.NewErrorLog(fs, "errors.log", time.Unix(0, 0)),
	}
	h.engine = New(h.source, h.host, m, h.log, "drive-portfolio")
	return h
}

func TestNewAssetsAreUploaded(t *testing.T) {
	h := newHarness(manifest.New())

	got := h.engine.SyncNode(context.Background(), project(item("m1", "t1"), item("m2", "t1")))

	require.Len(t, got, 2)
	assert.Equal(t, "https://cdn.example.com/drive-portfolio/work/alpha/m1/m1.jpg", got[0].HostedURL)
	assert.Equal(t, 1200, got[0].Width)
	assert.Equal(t, 600, got[0].Height)
	assert.Equal(t, []string{"drive-portfolio/work/alpha/m1/m1.jpg", "drive-portfolio/work/alpha/m2/m2.jpg"}, h.host.uploads)

	e, ok := h.m.Get("m1")
	require.True(t, ok)
	assert.True(t, e.OK())
	assert.Equal(t, "t1", e.SourceModifiedTime)
	assert.Equal(t, "drive-portfolio/work/alpha/m1/m1.jpg", e.HostedAssetID)
	assert.Equal(t, Stats{Uploaded: 2}, h.engine.Stats())
}

func TestUnchangedAssetsAreReused(t *testing.T) {
	m := manifest.New()
	m.Put("m1", manifest.Success("t1", "k1", "https://cdn.example.com/k1", 300, 200))
	h := newHarness(m)

	got := h.engine.SyncNode(context.Background(), project(item("m1", "t1")))

	require.Len(t, got, 1)
	assert.Equal(t, "https://cdn.example.com/k1", got[0].HostedURL)
	assert.Equal(t, 300, got[0].Width)
	assert.Empty(t, h.source.downloads)
	assert.Empty(t, h.host.uploads)
	assert.Equal(t, Stats{Reused: 1}, h.engine.Stats())
}

func TestChangedModificationTimeReuploadsOnce(t *testing.T) {
	m := manifest.New()
	m.Put("m1", manifest.Success("t1", "k1", "https://cdn.example.com/k1", 300, 200))
	h := newHarness(m)

	got := h.engine.SyncNode(context.Background(), project(item("m1", "t2")))

	require.Len(t, got, 1)
	assert.Len(t, h.host.uploads, 1)
	e, _ := h.m.Get("m1")
	assert.Equal(t, "t2", e.SourceModifiedTime)
	assert.Equal(t, "drive-portfolio/work/alpha/m1/m1.jpg", e.HostedAssetID)
}

func TestFailedUploadIsRecordedAndExcluded(t *testing.T) {
	h := newHarness(manifest.New())
	h.source.fail["m2"] = true

	got := h.engine.SyncNode(context.Background(), project(item("m1", "t1"), item("m2", "t1")))

	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)

	e, ok := h.m.Get("m2")
	require.True(t, ok)
	assert.False(t, e.OK())
	assert.Contains(t, e.FailureReason, "403 forbidden")
	assert.Equal(t, 1, h.log.Len())
	assert.Equal(t, Stats{Uploaded: 1, Failed: 1}, h.engine.Stats())

	require.NoError(t, h.log.Flush())
	data, err := util.ReadFile(h.fs, "errors.log")
	require.NoError(t, err)
	assert.Contains(t, string(data), "File: /work/alpha/m2.jpg\nReason: download m2.jpg: 403 forbidden")
}

func TestPreviouslyFailedAssetIsSkipped(t *testing.T) {
	m := manifest.New()
	m.Put("m1", manifest.Failure("t1", "corrupt file"))
	h := newHarness(m)

	got := h.engine.SyncNode(context.Background(), project(item("m1", "t1")))

	assert.Empty(t, got)
	assert.Empty(t, h.source.downloads)
	assert.Equal(t, Stats{SkippedFailed: 1}, h.engine.Stats())

	require.NoError(t, h.log.Flush())
	data, err := util.ReadFile(h.fs, "errors.log")
	require.NoError(t, err)
	assert.Contains(t, string(data), "File (skipped): /work/alpha/m1.jpg\nReason: corrupt file")
}

func TestFailedAssetIsRetriedAfterSourceChange(t *testing.T) {
	m := manifest.New()
	m.Put("m1", manifest.Failure("t1", "corrupt file"))
	h := newHarness(m)

	got := h.engine.SyncNode(context.Background(), project(item("m1", "t2")))

	require.Len(t, got, 1)
	e, _ := h.m.Get("m1")
	assert.True(t, e.OK())
}

func TestHostDimensionsFallBackToSource(t *testing.T) {
	h := newHarness(manifest.New())
	h.host.width = 0

	got := h.engine.SyncNode(context.Background(), project(item("m1", "t1")))

	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0].Width)
	assert.Equal(t, 20, got[0].Height)
}

func TestSeenCoversEveryItem(t *testing.T) {
	m := manifest.New()
	m.Put("m2", manifest.Failure("t1", "bad"))
	h := newHarness(m)
	h.source.fail["m3"] = true

	h.engine.SyncNode(context.Background(), project(item("m3", "t1"), item("m1", "t1"), item("m2", "t1")))

	assert.Equal(t, map[string]bool{"m1": true, "m2": true, "m3": true}, h.engine.Seen())
}
