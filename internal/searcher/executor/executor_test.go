package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/blob"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/tracing"
)

var docs = corpus.Static{
	{ID: 1, Title: "the cat sat", Body: "the cat sat", Anchor: "the cat sat"},
	{ID: 2, Title: "the dog sat", Body: "the dog sat", Anchor: "the dog sat"},
	{ID: 3, Title: "cat dog bird", Body: "cat dog bird", Anchor: "cat dog bird"},
}

func searchConfig(t *testing.T) config.SearchConfig {
	return config.SearchConfig{
		CacheDir:           t.TempDir(),
		TopN:               100,
		MaxResults:         100,
		RelevanceThreshold: 0.1,
		Weights:            config.WeightsConfig{Body: 0.35, Title: 0.35, Anchor: 0.05, PageRank: 0.25},
		PageRankPath:       "pr/pr.json",
		TitlesPath:         "titles/titles.json",
	}
}

// buildStore indexes docs into an in-memory store with the side tables the
// searcher loads.
func buildStore(t *testing.T) *blob.MemoryStore {
	t.Helper()
	store := blob.NewMemoryStore()
	b := indexer.NewBuilder(config.IndexConfig{
		WorkDir:       t.TempDir(),
		Fields:        []string{FieldBody, FieldTitle, FieldAnchor},
		BlockSize:     64,
		Parallelism:   4,
		BucketRetries: 1,
	}, store, indexer.Deps{})
	_, err := b.BuildAll(context.Background(), docs)
	require.NoError(t, err)

	store.Put("pr/pr.json", []byte(`{"1": 0.2, "2": 0.9, "3": 0.8}`))
	store.Put("titles/titles.json", []byte(`{"1": "The cat sat", "2": "The dog sat", "3": "Cat dog bird"}`))
	return store
}

func newEngine(t *testing.T, store blob.Store, opts Options) *Engine {
	t.Helper()
	cfg := searchConfig(t)
	ic, err := bootstrap.NewLoader(cfg, []string{FieldBody, FieldTitle, FieldAnchor}, store).Load(context.Background())
	require.NoError(t, err)
	return New(ic, cfg, opts)
}

func TestSearchCat(t *testing.T) {
	store := buildStore(t)
	e := newEngine(t, store, Options{})

	results, err := e.Search(context.Background(), "cat")
	require.NoError(t, err)

	// the body score of "cat" stays under the relevance threshold, so
	// title and anchor select docs 1 and 3 and PageRank orders them
	require.Len(t, results, 2)
	assert.Equal(t, uint32(3), results[0].DocID)
	assert.Equal(t, "Cat dog bird", results[0].Title)
	assert.InDelta(t, 0.65, results[0].Score, 1e-9)
	assert.Equal(t, uint32(1), results[1].DocID)
	assert.Equal(t, "The cat sat", results[1].Title)
	assert.InDelta(t, 0.4625, results[1].Score, 1e-9)
}

func TestSearchBodyContributes(t *testing.T) {
	store := buildStore(t)
	e := newEngine(t, store, Options{})

	// "bird" occurs once, in doc 3: (1/3)*log10(3) = 0.159 clears the
	// threshold and the single-term cosine is 1
	results, err := e.Search(context.Background(), "bird")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(3), results[0].DocID)
	assert.InDelta(t, 0.35+0.35+0.05+0.25, results[0].Score, 1e-9)
}

func TestEmptyQueryMakesNoStorageCalls(t *testing.T) {
	store := buildStore(t)
	e := newEngine(t, store, Options{})
	before := store.Downloads()

	for _, q := range []string{"", "   ", "?!", "a b"} {
		results, err := e.Search(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, results)
	}
	assert.Equal(t, before, store.Downloads())
}

func TestUnknownWordsReturnNothing(t *testing.T) {
	e := newEngine(t, buildStore(t), Options{})
	results, err := e.Search(context.Background(), "zebra quagga")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStorageErrorDegradesToRemainingSignals(t *testing.T) {
	store := buildStore(t)
	m := metrics.New(prometheus.NewRegistry())
	e := newEngine(t, store, Options{Metrics: m})
	store.FailDownload = func(name string) error {
		if strings.HasPrefix(name, "title/") {
			return errors.New("backend unavailable")
		}
		return nil
	}

	resp, err := e.Query(context.Background(), "cat")
	require.NoError(t, err)
	assert.True(t, resp.Degraded)

	results := resp.Results
	require.Len(t, results, 2)
	assert.Equal(t, uint32(3), results[0].DocID)
	assert.InDelta(t, 0.05+0.25, results[0].Score, 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PostingFetchErrors.WithLabelValues(FieldTitle)))
}

func TestEachQueryUsesItsOwnReaderSession(t *testing.T) {
	store := buildStore(t)
	e := newEngine(t, store, Options{})

	before := store.Downloads()
	_, err := e.Search(context.Background(), "cat")
	require.NoError(t, err)
	perQuery := store.Downloads() - before
	require.Positive(t, perQuery)

	_, err = e.Search(context.Background(), "cat")
	require.NoError(t, err)
	assert.Equal(t, before+2*perQuery, store.Downloads())
}

func TestSearchWithoutIndex(t *testing.T) {
	e := New(nil, searchConfig(t), Options{})
	assert.False(t, e.Ready())

	_, err := e.Search(context.Background(), "cat")
	require.Error(t, err)
	assert.Equal(t, 503, apperrors.HTTPStatusCode(err))

	results, err := e.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSwapReplacesContext(t *testing.T) {
	store := buildStore(t)
	e := newEngine(t, store, Options{Tracer: tracing.NewTracer(true, 1)})
	old := e.Context()

	swapped := &bootstrap.IndexContext{
		Fields:   old.Fields,
		PageRank: map[uint32]float64{1: 5},
		Titles:   map[uint32]string{1: "Renamed"},
	}
	e.Swap(swapped)

	results, err := e.Search(context.Background(), "cat")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, uint32(1), results[0].DocID)
	assert.Equal(t, "Renamed", results[0].Title)
	assert.Equal(t, "", results[1].Title)
	assert.Equal(t, "Cat dog bird", old.Title(3))
}

func TestCompleteRankingIsNotDegraded(t *testing.T) {
	e := newEngine(t, buildStore(t), Options{})
	resp, err := e.Query(context.Background(), "cat dog")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Results)
	assert.False(t, resp.Degraded)
}

func TestLoadedContextSurvivesRebuild(t *testing.T) {
	store := buildStore(t)
	e := newEngine(t, store, Options{})

	b := indexer.NewBuilder(config.IndexConfig{
		WorkDir:       t.TempDir(),
		Fields:        []string{FieldBody},
		BlockSize:     64,
		Parallelism:   2,
		BucketRetries: 1,
	}, store, indexer.Deps{})
	_, err := b.Build(context.Background(), "rebuild-1", FieldBody, []corpus.Document{
		{ID: 7, Body: "fish bird"},
		{ID: 8, Body: "fish"},
	})
	require.NoError(t, err)

	resp, err := e.Query(context.Background(), "bird")
	require.NoError(t, err)
	assert.False(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, uint32(3), resp.Results[0].DocID)
	assert.InDelta(t, 0.35+0.35+0.05+0.25, resp.Results[0].Score, 1e-9, "the body signal still comes from the loaded run")

	fresh := newEngine(t, store, Options{})
	body, ok := fresh.Context().Field(FieldBody)
	require.True(t, ok)
	assert.Equal(t, "rebuild-1", body.Meta.Run)
	assert.Equal(t, 2, body.Meta.NumDocs())
}
