package derived

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/folio/internal/domain"
	"github.com/pbaille/folio/internal/state"
)

func TestResolveHitAndMiss(t *testing.T) {
	c := New[string]("cache.json")
	calls := 0
	gen := func(v string) func() string {
		return func() string {
			calls++
			return v
		}
	}

	got, hit := c.Resolve("n1", "sig-a", gen("first"))
	assert.False(t, hit)
	assert.Equal(t, "first", got)

	got, hit = c.Resolve("n1", "sig-a", gen("second"))
	assert.True(t, hit)
	assert.Equal(t, "first", got)

	got, hit = c.Resolve("n1", "sig-b", gen("third"))
	assert.False(t, hit)
	assert.Equal(t, "third", got)

	assert.Equal(t, 2, calls)
	assert.Equal(t, Stats{Hits: 1, Misses: 2}, c.Stats())

	got, hit = c.Resolve("n1", "sig-b", gen("fourth"))
	assert.True(t, hit)
	assert.Equal(t, "third", got)
}

func TestSaveLoadLayouts(t *testing.T) {
	s := state.New(memfs.New())
	c := New[[]domain.LayoutGroup](state.LayoutCacheFile)
	groups := []domain.LayoutGroup{
		{Layout: domain.LayoutFullBleed, MediaIDs: []string{"m1"}},
		{Layout: domain.LayoutPair, MediaIDs: []string{"m2", "m3"}},
	}
	c.Resolve("p1", "abc", func() []domain.LayoutGroup { return groups })
	require.NoError(t, c.Save(s))

	loaded, err := Load[[]domain.LayoutGroup](s, state.LayoutCacheFile)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())

	got, hit := loaded.Resolve("p1", "abc", func() []domain.LayoutGroup {
		t.Fatal("generator called on a matching signature")
		return nil
	})
	assert.True(t, hit)
	assert.Equal(t, groups, got)
}

func TestSaveIsStable(t *testing.T) {
	s := state.New(memfs.New())
	c := New[domain.Narrative](state.ProjectCacheFile)
	c.Resolve("b", "2", func() domain.Narrative { return domain.Narrative{ID: "/b", L1: "B"} })
	c.Resolve("a", "1", func() domain.Narrative { return domain.Narrative{ID: "/a", L1: "A"} })
	require.NoError(t, c.Save(s))
	first, _, err := s.ReadRaw(state.ProjectCacheFile)
	require.NoError(t, err)

	loaded, err := Load[domain.Narrative](s, state.ProjectCacheFile)
	require.NoError(t, err)
	require.NoError(t, loaded.Save(s))
	second, _, err := s.ReadRaw(state.ProjectCacheFile)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	fs := memfs.New()
	c, err := Load[string](state.New(fs), "cache.json")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())

	require.NoError(t, util.WriteFile(fs, "cache.json", []byte("{not json"), 0o644))
	_, err = Load[string](state.New(fs), "cache.json")
	assert.Error(t, err)
}
