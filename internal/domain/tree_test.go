package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree(t *testing.T) *Tree {
	t.Helper()
	tree := NewTree(Node{ID: "root", Name: "root", Path: "/", Kind: KindFolder})
	require.NoError(t, tree.Add(Node{ID: "work", ParentID: "root", Name: "Work", Path: "/work", Kind: KindFolder}))
	require.NoError(t, tree.Add(Node{ID: "alpha", ParentID: "work", Name: "Alpha", Path: "/work/alpha", Kind: KindProject}))
	require.NoError(t, tree.Add(Node{ID: "intro", ParentID: "root", Name: "_intro", Path: "/_intro", Kind: KindPage, Text: "hello"}))
	require.NoError(t, tree.Add(Node{ID: "beta", ParentID: "root", Name: "Beta", Path: "/beta", Kind: KindProject}))
	return tree
}

func TestTreeAddRejectsDuplicatesAndOrphans(t *testing.T) {
	tree := sampleTree(t)
	assert.Error(t, tree.Add(Node{ID: "alpha", ParentID: "root"}))
	assert.Error(t, tree.Add(Node{ID: "gamma", ParentID: "missing"}))
	assert.Equal(t, 5, tree.Len())
}

func TestTreeProjectsAndPages(t *testing.T) {
	tree := sampleTree(t)
	var ids []string
	for _, p := range tree.Projects() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"alpha", "beta"}, ids)

	page, ok := tree.FindPage("_intro")
	require.True(t, ok)
	assert.Equal(t, "hello", page.Text)

	_, ok = tree.FindPage("Work")
	assert.False(t, ok)
}

func TestTreeGetReturnsCopy(t *testing.T) {
	tree := sampleTree(t)
	n, ok := tree.Get("beta")
	require.True(t, ok)
	n.Name = "mutated"
	again, _ := tree.Get("beta")
	assert.Equal(t, "Beta", again.Name)
}

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"My Project", "my-project"},
		{"  Café & Bar!  ", "caf--bar"},
		{"already-slug", "already-slug"},
		{"Multi   Space", "multi-space"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), tt.in)
	}
	assert.Equal(t, "/work/my-project", JoinPath("/work", "My Project"))
	assert.Equal(t, "/my-project", JoinPath("/", "My Project"))
}
