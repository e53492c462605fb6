// Package indexer builds the field indexes: it analyses the corpus, inverts
// it with the pipeline stages, writes every bucket's posting lists to blocks
// in parallel and publishes the merged metadata.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/block"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/meta"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/pipeline"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/registry"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/blob"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/resilience"
)

// Deps are the optional collaborators of a Builder. Nil members are skipped.
type Deps struct {
	Registry *registry.Registry
	Events   kafka.Publisher
	Metrics  *metrics.Metrics
}

// Builder runs field index builds against a blob store. A field's index
// object is "<field>/<field>_index.idx"; the blocks it points at live under
// "<field>/<run>/".
type Builder struct {
	cfg    config.IndexConfig
	store  blob.Store
	deps   Deps
	logger *slog.Logger
}

// BuildResult summarises one published field index.
type BuildResult struct {
	RunID     string
	Field     string
	Meta      *meta.IndexMetadata
	Buckets   int
	Blocks    int
	Truncated int
	Duration  time.Duration
}

func NewBuilder(cfg config.IndexConfig, store blob.Store, deps Deps) *Builder {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = block.DefaultCapacity
	}
	return &Builder{
		cfg:    cfg,
		store:  store,
		deps:   deps,
		logger: slog.Default().With("component", "index-builder"),
	}
}

// BuildAll loads the corpus once and builds every configured field under one
// run id. Fields are built one after another; each build is parallel inside.
func (b *Builder) BuildAll(ctx context.Context, src corpus.Source) ([]*BuildResult, error) {
	docs, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}
	b.logger.Info("corpus loaded", "documents", len(docs))

	// Titles go up first: searchers reload on each field announcement.
	if b.cfg.TitlesObject != "" {
		if err := b.publishTitles(ctx, docs); err != nil {
			return nil, fmt.Errorf("publishing titles: %w", err)
		}
	}

	runID := uuid.NewString()
	results := make([]*BuildResult, 0, len(b.cfg.Fields))
	for _, field := range b.cfg.Fields {
		res, err := b.Build(ctx, runID, field, docs)
		if err != nil {
			return results, fmt.Errorf("building %s index: %w", field, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Build inverts docs for one field, writes its buckets, then merges and
// uploads the field metadata. Nothing is published for the field unless all
// buckets were written.
func (b *Builder) Build(ctx context.Context, runID, field string, docs []corpus.Document) (res *BuildResult, err error) {
	start := time.Now()
	if err := meta.CheckRun(runID); err != nil {
		return nil, err
	}
	analyzer, err := tokenizer.ForField(field)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	logger := b.logger.With("run_id", runID, "field", field)
	if err := b.deps.Registry.StartRun(ctx, runID, field, len(docs)); err != nil {
		logger.Warn("registry unavailable, continuing without bookkeeping", "error", err)
	}
	defer func() {
		terms, blocks := 0, 0
		if res != nil {
			terms, blocks = len(res.Meta.DF), res.Blocks
		}
		if rerr := b.deps.Registry.FinishRun(context.WithoutCancel(ctx), runID, field, terms, blocks, err); rerr != nil {
			logger.Warn("failed to record build outcome", "error", rerr)
		}
	}()

	fieldDocs, err := pipeline.Map(ctx, pipeline.From(docs, b.cfg.Parallelism), analyze(field, analyzer))
	if err != nil {
		return nil, err
	}
	lengths, err := pipeline.Map(ctx, fieldDocs, docLengths)
	if err != nil {
		return nil, err
	}
	counts, err := pipeline.FlatMap(ctx, fieldDocs, wordCounts)
	if err != nil {
		return nil, err
	}
	entries, err := pipeline.Map(ctx, pipeline.GroupByKey(counts), termEntry)
	if err != nil {
		return nil, err
	}
	keyed, err := pipeline.Map(ctx, entries, partition)
	if err != nil {
		return nil, err
	}
	buckets := pipeline.GroupByKey(keyed)
	logger.Info("field inverted",
		"documents", lengths.Len(),
		"terms", entries.Len(),
		"buckets", buckets.Len(),
	)

	written, err := b.writeBuckets(ctx, runID, field, buckets)
	if err != nil {
		return nil, err
	}

	m := meta.New(field, b.cfg.BlockSize)
	m.Run = runID
	for _, p := range lengths.Items() {
		// a repeated id is one document whose postings were merged
		m.DocLengths[p.Key] += p.Value
	}
	for _, e := range entries.Items() {
		m.DF[e.Term] = e.DF
		m.TermTotal[e.Term] = e.Total
	}
	res = &BuildResult{RunID: runID, Field: field, Meta: m, Buckets: len(written)}
	for _, w := range written {
		if err := m.Merge(w.locs); err != nil {
			return nil, err
		}
		res.Blocks += len(w.blocks)
		res.Truncated += w.truncated
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: merged metadata invalid: %v", apperrors.ErrInternal, err)
	}
	if err := b.publish(ctx, m); err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	if b.deps.Metrics != nil {
		b.deps.Metrics.BuildDuration.WithLabelValues(field).Observe(res.Duration.Seconds())
	}
	if res.Truncated > 0 {
		if b.deps.Metrics != nil {
			b.deps.Metrics.TruncatedPostings.WithLabelValues(field).Add(float64(res.Truncated))
		}
		logger.Warn("term frequencies above 65535 were truncated", "postings", res.Truncated)
	}
	logger.Info("field index published",
		"terms", len(m.DF),
		"blocks", res.Blocks,
		"duration", res.Duration,
	)
	b.announce(ctx, res)
	return res, nil
}

type bucketResult struct {
	bucket    int
	locs      map[string][]block.Location
	blocks    []string
	truncated int
}

// writeBuckets writes every bucket in parallel and returns once all of them
// finished. Each bucket is retried with a fresh writer session; the first
// bucket that exhausts its retries fails the build. Blocks and location maps
// go under "<field>/<run>/", so a rebuild never rewrites objects that a
// loaded index still points at.
func (b *Builder) writeBuckets(ctx context.Context, runID, field string, buckets *pipeline.Collection[pipeline.Pair[int, []index.TermEntry]]) ([]bucketResult, error) {
	store := blob.Scoped(b.store, meta.BlockScope(field, runID))
	dir := filepath.Join(b.cfg.WorkDir, runID, field)

	var mu sync.Mutex
	results := make([]bucketResult, 0, buckets.Len())
	err := pipeline.ForEach(ctx, buckets, func(ctx context.Context, p pipeline.Pair[int, []index.TermEntry]) error {
		var res bucketResult
		attempts, err := resilience.Retry(ctx, fmt.Sprintf("%s bucket %d", field, p.Key), resilience.RetryConfig{
			MaxAttempts: b.cfg.BucketRetries,
			Retryable:   retryable,
		}, func(int) error {
			var err error
			res, err = b.writeBucket(ctx, store, dir, field, p.Key, p.Value)
			b.countBucket(field, err)
			return err
		})
		if err != nil {
			return err
		}
		if rerr := b.deps.Registry.BucketDone(ctx, runID, field, p.Key, len(p.Value), res.blocks, attempts); rerr != nil {
			b.logger.Warn("failed to record bucket", "field", field, "bucket", p.Key, "error", rerr)
		}
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].bucket < results[j].bucket })
	return results, nil
}

// writeBucket is one attempt at a bucket: all posting lists in order, the
// final block upload, then the bucket's location map.
func (b *Builder) writeBucket(ctx context.Context, store blob.Store, dir, field string, bucket int, entries []index.TermEntry) (bucketResult, error) {
	res := bucketResult{bucket: bucket, locs: make(map[string][]block.Location, len(entries))}
	w, err := block.NewWriter(dir, fmt.Sprint(bucket), b.cfg.BlockSize, store)
	if err != nil {
		return res, err
	}
	if b.deps.Metrics != nil {
		w.Observe(blockMetrics{m: b.deps.Metrics, field: field})
	}
	for _, e := range entries {
		res.truncated += index.Truncated(e.Postings)
		locs, err := w.Write(ctx, index.Encode(e.Postings))
		if err != nil {
			w.Abort()
			return res, err
		}
		res.locs[e.Term] = locs
	}
	if err := w.Upload(ctx); err != nil {
		return res, err
	}
	res.blocks = w.Blocks()

	name := meta.LocationsObjectName(bucket)
	path := filepath.Join(dir, name)
	if err := meta.WriteFile(path, meta.MarshalLocations(res.locs)); err != nil {
		return res, err
	}
	if err := store.Upload(ctx, name, path); err != nil {
		return res, err
	}
	return res, nil
}

// publish writes the merged metadata locally and uploads it as
// "<field>/<field>_index.idx".
func (b *Builder) publish(ctx context.Context, m *meta.IndexMetadata) error {
	name := meta.ObjectName(m.Field)
	path := filepath.Join(b.cfg.WorkDir, name)
	if err := meta.WriteFile(path, meta.Marshal(m)); err != nil {
		return err
	}
	return blob.Scoped(b.store, m.Field).Upload(ctx, name, path)
}

// publishTitles uploads the document id to title table, keyed by decimal id.
func (b *Builder) publishTitles(ctx context.Context, docs []corpus.Document) error {
	titles := make(map[string]string, len(docs))
	for _, d := range docs {
		titles[strconv.FormatUint(uint64(d.ID), 10)] = d.Title
	}
	data, err := json.Marshal(titles)
	if err != nil {
		return fmt.Errorf("encoding titles: %w", err)
	}
	path := filepath.Join(b.cfg.WorkDir, filepath.Base(b.cfg.TitlesObject))
	if err := meta.WriteFile(path, data); err != nil {
		return err
	}
	return b.store.Upload(ctx, b.cfg.TitlesObject, path)
}

func (b *Builder) announce(ctx context.Context, res *BuildResult) {
	if b.deps.Events == nil {
		return
	}
	event := kafka.Event{
		Key: res.Field,
		Value: kafka.IndexCompleteEvent{
			RunID:       res.RunID,
			Field:       res.Field,
			IndexPath:   res.Field + "/" + meta.ObjectName(res.Field),
			NumDocs:     res.Meta.NumDocs(),
			NumTerms:    len(res.Meta.DF),
			Blocks:      res.Blocks,
			CompletedAt: time.Now().UTC(),
		},
	}
	if err := b.deps.Events.Publish(ctx, event); err != nil {
		b.logger.Warn("index published but completion event was not sent", "field", res.Field, "error", err)
	}
}

func (b *Builder) countBucket(field string, err error) {
	if b.deps.Metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	b.deps.Metrics.BucketsWrittenTotal.WithLabelValues(field, status).Inc()
}

// retryable reports whether a bucket attempt may succeed when repeated.
// Storage and local I/O failures are transient; malformed data is not.
func retryable(err error) bool {
	return !errors.Is(err, apperrors.ErrDecode) &&
		!errors.Is(err, apperrors.ErrInvalidInput) &&
		!errors.Is(err, context.Canceled)
}

type blockMetrics struct {
	m     *metrics.Metrics
	field string
}

func (o blockMetrics) BlockSealed(string, int) {
	o.m.BlocksSealedTotal.WithLabelValues(o.field).Inc()
}

func (o blockMetrics) BlockUploaded(_ string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.m.BlockUploadsTotal.WithLabelValues(o.field, status).Inc()
}
