package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

type stubExecutor struct {
	results  []executor.Result
	degraded bool
	err      error
	queries  []string
}

func (s *stubExecutor) Query(_ context.Context, query string) (executor.Response, error) {
	s.queries = append(s.queries, query)
	return executor.Response{Results: s.results, Degraded: s.degraded}, s.err
}

type mapBackend map[string]string

func (m mapBackend) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	v, ok := m[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(v), dst)
}

func (m mapBackend) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	data, err := json.Marshal(v)
	m[key] = string(data)
	return err
}

func (m mapBackend) FlushByPrefix(_ context.Context, _ string) (int64, error) {
	n := int64(len(m))
	for k := range m {
		delete(m, k)
	}
	return n, nil
}

func serve(h *Handler, method, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestSearchReturnsIDTitlePairs(t *testing.T) {
	exec := &stubExecutor{results: []executor.Result{
		{DocID: 3, Title: "Cat dog bird", Score: 0.65},
		{DocID: 1, Title: "", Score: 0.46},
	}}
	rec := serve(New(exec, nil), http.MethodGet, "/search?query="+url.QueryEscape("cat"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `[["3","Cat dog bird"],["1",""]]`, rec.Body.String())
	assert.Equal(t, []string{"cat"}, exec.queries)
}

func TestSearchEmptyQuery(t *testing.T) {
	exec := &stubExecutor{}
	for _, target := range []string{"/search", "/search?query=", "/search?query=%3F%21"} {
		rec := serve(New(exec, nil), http.MethodGet, target)
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.JSONEq(t, `[]`, rec.Body.String(), target)
	}
	assert.Empty(t, exec.queries)
}

func TestSearchErrorStatus(t *testing.T) {
	exec := &stubExecutor{err: apperrors.New(apperrors.ErrNotFound, http.StatusServiceUnavailable, "no index loaded")}
	rec := serve(New(exec, nil), http.MethodGet, "/search?query=cat")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	exec.err = errors.New("boom")
	rec = serve(New(exec, nil), http.MethodGet, "/search?query=cat")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSearchUsesCache(t *testing.T) {
	exec := &stubExecutor{results: []executor.Result{{DocID: 3, Title: "Cat dog bird"}}}
	h := New(exec, cache.New(mapBackend{}, time.Minute, nil))

	for i := 0; i < 3; i++ {
		rec := serve(h, http.MethodGet, "/search?query=cat")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[["3","Cat dog bird"]]`, rec.Body.String())
	}
	assert.Len(t, exec.queries, 1)

	rec := serve(h, http.MethodGet, "/api/v1/cache/stats")
	assert.JSONEq(t, `{"hits":2,"misses":1,"total":3,"hit_rate":"66.7%"}`, rec.Body.String())

	rec = serve(h, http.MethodPost, "/api/v1/cache/invalidate")
	assert.Equal(t, http.StatusOK, rec.Code)
	serve(h, http.MethodGet, "/search?query=cat")
	assert.Len(t, exec.queries, 2)
}

func TestCacheEndpointsWithoutCache(t *testing.T) {
	h := New(&stubExecutor{}, nil)
	rec := serve(h, http.MethodGet, "/api/v1/cache/stats")
	assert.JSONEq(t, `{"status":"disabled"}`, rec.Body.String())

	rec = serve(h, http.MethodPost, "/api/v1/cache/invalidate")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDegradedSearchIsServedButNotCached(t *testing.T) {
	exec := &stubExecutor{results: []executor.Result{{DocID: 3, Title: "Cat dog bird"}}, degraded: true}
	backend := mapBackend{}
	h := New(exec, cache.New(backend, time.Minute, nil))

	rec := serve(h, http.MethodGet, "/search?query=cat")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[["3","Cat dog bird"]]`, rec.Body.String())
	assert.Empty(t, backend)

	exec.degraded = false
	serve(h, http.MethodGet, "/search?query=cat")
	serve(h, http.MethodGet, "/search?query=cat")
	assert.Len(t, exec.queries, 2, "the recovered ranking is cached")
	assert.Len(t, backend, 1)
}
