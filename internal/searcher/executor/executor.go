// Package executor runs queries against the currently loaded IndexContext.
// Each query scores the body, title and anchor fields concurrently, each
// with its own block reader session, and fuses the three rankings with
// PageRank.
package executor

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/block"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/tracing"
)

const (
	FieldBody   = "body"
	FieldTitle  = "title"
	FieldAnchor = "anchor"
)

// Result is one ranked document.
type Result struct {
	DocID uint32  `json:"doc_id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Response is a ranking plus whether it was computed without some posting
// lists because storage failed. A degraded ranking is correct for what could
// be read but should not outlive the failure.
type Response struct {
	Results  []Result
	Degraded bool
}

type Options struct {
	Metrics *metrics.Metrics
	Tracer  *tracing.Tracer
}

// Engine is the query engine. It holds no per-query state; the loaded
// IndexContext is replaced wholesale by Swap.
type Engine struct {
	current atomic.Pointer[bootstrap.IndexContext]
	cfg     config.SearchConfig
	weights merger.Weights
	metrics *metrics.Metrics
	tracer  *tracing.Tracer
	logger  *slog.Logger
}

func New(ic *bootstrap.IndexContext, cfg config.SearchConfig, opts Options) *Engine {
	e := &Engine{
		cfg: cfg,
		weights: merger.Weights{
			Body:     cfg.Weights.Body,
			Title:    cfg.Weights.Title,
			Anchor:   cfg.Weights.Anchor,
			PageRank: cfg.Weights.PageRank,
		},
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		logger:  slog.Default().With("component", "query-engine"),
	}
	if e.weights == (merger.Weights{}) {
		e.weights = merger.DefaultWeights
	}
	if ic != nil {
		e.current.Store(ic)
	}
	return e
}

// Swap installs ic for all queries that start after it returns.
func (e *Engine) Swap(ic *bootstrap.IndexContext) {
	e.current.Store(ic)
}

// Context returns the IndexContext queries currently run against.
func (e *Engine) Context() *bootstrap.IndexContext {
	return e.current.Load()
}

// Ready reports whether an index is loaded.
func (e *Engine) Ready() bool {
	return e.current.Load() != nil
}

// Search ranks documents for query, best first. A query without words
// returns an empty result without touching storage. Storage failures on
// individual terms degrade the ranking instead of failing the query.
func (e *Engine) Search(ctx context.Context, query string) ([]Result, error) {
	resp, err := e.Query(ctx, query)
	return resp.Results, err
}

// Query is Search reporting whether the ranking is degraded.
func (e *Engine) Query(ctx context.Context, query string) (Response, error) {
	start := time.Now()
	ctx, root := e.tracer.Start(ctx, "search", logger.RequestID(ctx))
	defer func() {
		root.End()
		root.Log(logger.FromContext(ctx))
	}()
	root.SetAttr("query", query)

	_, span := tracing.StartChildSpan(ctx, "parse")
	plan := parser.Parse(query)
	span.End()
	if plan.Empty() {
		e.countQuery("empty", 0)
		return Response{Results: []Result{}}, nil
	}

	ic := e.current.Load()
	if ic == nil {
		return Response{}, apperrors.New(apperrors.ErrNotFound, http.StatusServiceUnavailable, "no index loaded")
	}
	signals, degraded, err := e.score(ctx, ic, plan)
	if err != nil {
		return Response{}, err
	}
	root.SetAttr("degraded", degraded)

	_, span = tracing.StartChildSpan(ctx, "fuse")
	fuseStart := time.Now()
	fused := merger.Fuse(signals, ic.Rank, e.weights, e.cfg.MaxResults)
	e.observeStage("fuse", fuseStart)
	span.SetAttr("candidates", len(fused))
	span.End()

	results := make([]Result, len(fused))
	for i, d := range fused {
		results[i] = Result{DocID: d.DocID, Title: ic.Title(d.DocID), Score: d.Score}
	}
	if len(results) == 0 {
		e.countQuery("no_hits", 0)
	} else {
		e.countQuery("hits", len(results))
	}
	e.observeStage("total", start)
	logger.FromContext(ctx).Debug("query executed",
		"query", query,
		"body_hits", len(signals.Body),
		"title_hits", len(signals.Title),
		"anchor_hits", len(signals.Anchor),
		"results", len(results),
		"degraded", degraded,
		"duration", time.Since(start),
	)
	return Response{Results: results, Degraded: degraded}, nil
}

// score computes the three field rankings concurrently and reports whether
// any posting list could not be read.
func (e *Engine) score(ctx context.Context, ic *bootstrap.IndexContext, plan *parser.Plan) (merger.Signals, bool, error) {
	var sig merger.Signals
	var degraded atomic.Bool
	topN := e.cfg.TopN
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.withField(gctx, ic, FieldBody, &degraded, func(fi *bootstrap.FieldIndex, fetch ranker.Fetcher) {
			sig.Body = ranker.BodyScores(plan.BodyTokens, fi.Meta, fetch, e.cfg.RelevanceThreshold, topN)
		})
		return nil
	})
	g.Go(func() error {
		e.withField(gctx, ic, FieldTitle, &degraded, func(_ *bootstrap.FieldIndex, fetch ranker.Fetcher) {
			sig.Title = ranker.CountScores(plan.Stems, fetch, topN)
		})
		return nil
	})
	g.Go(func() error {
		e.withField(gctx, ic, FieldAnchor, &degraded, func(_ *bootstrap.FieldIndex, fetch ranker.Fetcher) {
			sig.Anchor = ranker.CountScores(plan.Tokens, fetch, topN)
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return sig, false, err
	}
	return sig, degraded.Load(), ctx.Err()
}

// withField opens a reader session on field and hands fn a fetcher bound
// to it. A field missing from the context scores nothing. A failed fetch
// sets degraded.
func (e *Engine) withField(ctx context.Context, ic *bootstrap.IndexContext, field string, degraded *atomic.Bool, fn func(*bootstrap.FieldIndex, ranker.Fetcher)) {
	fi, ok := ic.Field(field)
	if !ok {
		return
	}
	start := time.Now()
	_, span := tracing.StartChildSpan(ctx, "score."+field)
	reader := block.NewReader(fi.Store, fi.Meta.BlockSize)
	failures := 0
	fetch := func(term string) index.PostingList {
		list, err := reader.ReadPostingList(ctx, fi.Meta, term)
		if err != nil {
			failures++
			degraded.Store(true)
			if e.metrics != nil {
				e.metrics.PostingFetchErrors.WithLabelValues(field).Inc()
			}
			logger.FromContext(ctx).Warn("posting list unavailable, scoring without it",
				"field", field,
				"term", term,
				"error", err,
			)
			return nil
		}
		return list
	}
	fn(fi, fetch)
	if e.metrics != nil {
		e.metrics.BlocksFetched.WithLabelValues(field).Add(float64(reader.Fetches()))
	}
	e.observeStage(field, start)
	span.SetAttr("blocks_fetched", reader.Fetches())
	span.SetAttr("fetch_errors", failures)
	span.End()
}

func (e *Engine) countQuery(resultType string, n int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	e.metrics.SearchResultsCount.Observe(float64(n))
}

func (e *Engine) observeStage(stage string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
