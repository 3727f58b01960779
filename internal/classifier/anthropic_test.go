package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/folio/internal/domain"
	"github.com/pbaille/folio/internal/retry"
)

func media(ids ...string) []domain.MediaItem {
	out := make([]domain.MediaItem, len(ids))
	for i, id := range ids {
		out[i] = domain.MediaItem{ID: id, Name: id + ".jpg", MimeType: "image/jpeg", ModifiedTime: "2024-01-01T00:00:00Z"}
	}
	return out
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1}
}

// answering returns a server replying with text as the model output and counting requests
func answering(t *testing.T, status int, text string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req apiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, temperature, req.Temperature)
		assert.Positive(t, req.MaxTokens)

		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": text}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestGroupLayoutsValidAnswer(t *testing.T) {
	srv, calls := answering(t, http.StatusOK, "Here you go:\n```json\n"+
		`[{"layout":"A","media_ids":["m1"]},{"layout":"b","media_ids":["m2","m3"]}]`+"\n```")
	c := New("test-key", "test-model", WithEndpoint(srv.URL), WithRetry(fastRetry()))

	groups := c.GroupLayouts(context.Background(), media("m1", "m2", "m3"))

	assert.Equal(t, []domain.LayoutGroup{
		{Layout: domain.LayoutFullBleed, MediaIDs: []string{"m1"}},
		{Layout: domain.LayoutPair, MediaIDs: []string{"m2", "m3"}},
	}, groups)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
	assert.Equal(t, Stats{Calls: 1}, c.Stats())
}

func TestGroupLayoutsFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		status int
		answer string
	}{
		{"prose only", http.StatusOK, "I cannot help with that."},
		{"missing media", http.StatusOK, `[{"layout":"D","media_ids":["m1"]}]`},
		{"duplicate media", http.StatusOK, `[{"layout":"D","media_ids":["m1","m2"]},{"layout":"D","media_ids":["m2"]}]`},
		{"unknown media", http.StatusOK, `[{"layout":"D","media_ids":["m1","m2","zz"]}]`},
		{"two full bleeds", http.StatusOK, `[{"layout":"A","media_ids":["m1"]},{"layout":"A","media_ids":["m2"]}]`},
		{"unknown layout", http.StatusOK, `[{"layout":"Z","media_ids":["m1","m2"]}]`},
		{"empty group", http.StatusOK, `[{"layout":"D","media_ids":[]},{"layout":"B","media_ids":["m1","m2"]}]`},
		{"unknown field", http.StatusOK, `[{"layout":"B","media_ids":["m1","m2"],"why":"pair"}]`},
		{"client error", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := answering(t, tt.status, tt.answer)
			c := New("test-key", "test-model", WithEndpoint(srv.URL), WithRetry(fastRetry()))
			items := media("m1", "m2")

			groups := c.GroupLayouts(context.Background(), items)

			assert.Equal(t, FallbackLayouts(items), groups)
			assert.Equal(t, 1, c.Stats().Fallbacks)
		})
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	srv, calls := answering(t, http.StatusServiceUnavailable, "")
	c := New("test-key", "test-model", WithEndpoint(srv.URL), WithRetry(fastRetry()))

	groups := c.GroupLayouts(context.Background(), media("m1"))

	assert.Len(t, groups, 1)
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv, calls := answering(t, http.StatusBadRequest, "")
	c := New("test-key", "test-model", WithEndpoint(srv.URL), WithRetry(fastRetry()))

	for i := 0; i < 8; i++ {
		c.GroupLayouts(context.Background(), media("m1"))
	}

	assert.EqualValues(t, 5, atomic.LoadInt32(calls))
	assert.Equal(t, 8, c.Stats().Fallbacks)
}

func TestDisabledWithoutKey(t *testing.T) {
	srv, calls := answering(t, http.StatusOK, `[]`)
	c := New("", "test-model", WithEndpoint(srv.URL))
	assert.False(t, c.Enabled())

	items := media("m1", "m2")
	assert.Equal(t, FallbackLayouts(items), c.GroupLayouts(context.Background(), items))

	n := domain.Node{ID: "p1", Name: "Alpha", Path: "/alpha", Kind: domain.KindProject, Text: "A project from 2021."}
	assert.Equal(t, FallbackNarrative(n), c.Narrate(context.Background(), n, items))
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestGroupLayoutsEmptyMedia(t *testing.T) {
	c := New("", "test-model")
	assert.Nil(t, c.GroupLayouts(context.Background(), nil))
	assert.Zero(t, c.Stats().Fallbacks)
}

func TestNarrateValidAnswer(t *testing.T) {
	srv, _ := answering(t, http.StatusOK, `{
		"id": "wrong-id",
		"l1": "Alpha",
		"l2": "A tool for maps.",
		"l3": [
			{"type": "heading", "content": "Process"},
			{"type": "paragraph", "content": "We sketched a lot."},
			{"type": "link", "url": "https://alpha.example", "text": ""},
			{"type": "credits", "items": [{"role": "Design", "name": "Jane"}]}
		],
		"year": 2023,
		"medium": "Web",
		"role": "Lead"
	}`)
	c := New("test-key", "test-model", WithEndpoint(srv.URL), WithRetry(fastRetry()))
	n := domain.Node{ID: "p1", Name: "Alpha", Path: "/work/alpha", Kind: domain.KindProject}

	got := c.Narrate(context.Background(), n, nil)

	assert.Equal(t, "/work/alpha", got.ID)
	assert.Equal(t, "2023", got.Year)
	require.Len(t, got.L3, 4)
	assert.Equal(t, "https://alpha.example", got.L3[2].Text)
	assert.Equal(t, []domain.Credit{{Role: "Design", Name: "Jane"}}, got.L3[3].Items)
	assert.Zero(t, c.Stats().Fallbacks)
}

func TestNarrateInvalidAnswerFallsBack(t *testing.T) {
	srv, _ := answering(t, http.StatusOK, `{"l1": "", "l2": "x", "l3": []}`)
	c := New("test-key", "test-model", WithEndpoint(srv.URL), WithRetry(fastRetry()))
	n := domain.Node{ID: "p1", Name: "Alpha", Path: "/alpha", Text: "Some text."}

	assert.Equal(t, FallbackNarrative(n), c.Narrate(context.Background(), n, nil))
	assert.Equal(t, 1, c.Stats().Fallbacks)
}
