package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCounters(t *testing.T) {
	r := NewRun()
	r.Assets.WithLabelValues("uploaded").Add(3)
	r.Assets.WithLabelValues("reused").Inc()
	r.CacheLookup.WithLabelValues("layout", "hit").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(r.Assets.WithLabelValues("uploaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheLookup.WithLabelValues("layout", "hit")))

	n, err := testutil.GatherAndCount(r.Registry(), "folio_sync_assets_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPush(t *testing.T) {
	var method, path string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		method, path = req.Method, req.URL.Path
		body, _ = io.ReadAll(req.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRun()
	r.Pruned.WithLabelValues("deleted").Add(2)
	require.NoError(t, r.Push(srv.URL))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/folio_sync", path)
	assert.NotEmpty(t, body)
}

func TestPushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.ErrorContains(t, NewRun().Push(srv.URL), "push metrics")
}
