package linkparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pbaille/folio/internal/domain"
	"github.com/pbaille/folio/internal/logging"
)

var projects = []domain.Node{
	{ID: "id-alpha", Name: "Alpha", Path: "/work/alpha", Kind: domain.KindProject},
	{ID: "id-beta", Name: " Beta Tool ", Path: "/work/beta-tool", Kind: domain.KindProject},
	{ID: "id-gamma", Name: "Gamma", Path: "/gamma", Kind: domain.KindProject},
}

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	restore := logging.Replace(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestParseMixedLinks(t *testing.T) {
	got := Parse("See [[Alpha]] or visit [CV] https://x.com/cv or email [me] a@b.com.", projects)

	require.Len(t, got, 1)
	assert.Equal(t, domain.Paragraph{
		{Type: domain.SegmentText, Content: "See "},
		{Type: domain.SegmentProjectLink, Text: "Alpha", ProjectID: "id-alpha"},
		{Type: domain.SegmentText, Content: " or visit "},
		{Type: domain.SegmentExternalLink, Text: "CV", URL: "https://x.com/cv"},
		{Type: domain.SegmentText, Content: " or email "},
		{Type: domain.SegmentEmailLink, Text: "me", Email: "a@b.com"},
		{Type: domain.SegmentText, Content: "."},
	}, got[0])
}

func TestUnresolvedProjectLinkStaysLiteral(t *testing.T) {
	logs := observe(t)

	got := Parse("Also [[Beta]] here", projects)

	require.Len(t, got, 1)
	assert.Equal(t, domain.Paragraph{
		{Type: domain.SegmentText, Content: "Also "},
		{Type: domain.SegmentText, Content: "[[Beta]]"},
		{Type: domain.SegmentText, Content: " here"},
	}, got[0])

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "[[Beta]]", entry.ContextMap()["link"])
}

func TestProjectLinkMatchIgnoresCaseAndSpace(t *testing.T) {
	got := Parse("[[ beta tool ]]", projects)
	require.Len(t, got, 1)
	assert.Equal(t, domain.Paragraph{
		{Type: domain.SegmentProjectLink, Text: " beta tool ", ProjectID: "id-beta"},
	}, got[0])
}

func TestPageLinkAndParagraphs(t *testing.T) {
	got := Parse("Read [About Me].\n\n  \n\nSecond [Selected Work]\nline", nil)

	require.Len(t, got, 2)
	assert.Equal(t, domain.Paragraph{
		{Type: domain.SegmentText, Content: "Read "},
		{Type: domain.SegmentPageLink, Text: "About Me", Path: "/about-me"},
		{Type: domain.SegmentText, Content: "."},
	}, got[0])
	assert.Equal(t, domain.SegmentPageLink, got[1][1].Type)
	assert.Equal(t, "/selected-work", got[1][1].Path)
	assert.Equal(t, "\nline", got[1][2].Content)
}

func TestEmptyInput(t *testing.T) {
	assert.Empty(t, Parse("", projects))
	assert.Empty(t, Parse("\n\n \n", projects))
}

func TestProjectOrder(t *testing.T) {
	intro := Parse("I made [[Gamma]] and [[Alpha]].\n\nAgain [[Gamma]], and [[Nope]].", projects)

	assert.Equal(t, []string{"id-gamma", "id-alpha", "id-beta"}, ProjectOrder(intro, projects))
	assert.Equal(t, []string{"id-alpha", "id-beta", "id-gamma"}, ProjectOrder(nil, projects))
}
