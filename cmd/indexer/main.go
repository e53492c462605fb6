package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/registry"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/blob"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file; built-in defaults when empty (see configs/development.yaml)")
	fields := flag.String("fields", "", "comma-separated fields to build (default: index.fields)")
	corpusPath := flag.String("corpus", "", "JSON-lines corpus file (default: index.corpusPath, then mongo)")
	pageRank := flag.String("pagerank", "", "local pr.json to publish alongside the indexes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *fields != "" {
		cfg.Index.Fields = strings.Split(*fields, ",")
	}
	if *corpusPath != "" {
		cfg.Index.CorpusPath = *corpusPath
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting index build",
		"fields", cfg.Index.Fields,
		"block_size", cfg.Index.BlockSize,
		"parallelism", cfg.Index.Parallelism,
		"blob_backend", cfg.Blob.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *pageRank); err != nil {
		slog.Error("index build failed", "error", err)
		os.Exit(1)
	}
	slog.Info("index build finished")
}

func run(ctx context.Context, cfg *config.Config, pageRank string) error {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		srv, err := metrics.Listen(cfg.Metrics.Port, reg)
		if err != nil {
			return err
		}
		defer srv.Shutdown(context.Background())
	}

	store, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}
	if c, ok := store.(blob.Closer); ok {
		defer c.Close()
	}
	store = blob.Guarded(store, cfg.Blob.Timeout, nil)

	src, closeSource, err := openCorpus(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	var db *postgres.Client
	if cfg.Postgres.Enabled {
		db, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
	}
	runs := registry.New(db)
	if err := runs.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating build registry: %w", err)
	}

	deps := indexer.Deps{Registry: runs, Metrics: m}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		deps.Events = producer
	}

	if pageRank != "" {
		if err := store.Upload(ctx, cfg.Search.PageRankPath, pageRank); err != nil {
			return fmt.Errorf("publishing page rank: %w", err)
		}
		slog.Info("page rank published", "object", cfg.Search.PageRankPath)
	}

	results, err := indexer.NewBuilder(cfg.Index, store, deps).BuildAll(ctx, src)
	for _, r := range results {
		slog.Info("field built",
			"run_id", r.RunID,
			"field", r.Field,
			"documents", r.Meta.NumDocs(),
			"terms", len(r.Meta.DF),
			"buckets", r.Buckets,
			"blocks", r.Blocks,
			"duration", r.Duration,
		)
	}
	return err
}

func openCorpus(ctx context.Context, cfg *config.Config) (corpus.Source, func(), error) {
	if cfg.Index.CorpusPath != "" {
		slog.Info("reading corpus file", "path", cfg.Index.CorpusPath)
		return corpus.JSONLFile{Path: cfg.Index.CorpusPath}, func() {}, nil
	}
	coll, err := corpus.NewMongoCollection(ctx, cfg.Mongo)
	if err != nil {
		return nil, nil, fmt.Errorf("opening corpus collection: %w", err)
	}
	slog.Info("reading corpus from mongodb",
		"database", cfg.Mongo.Database,
		"collection", cfg.Mongo.Collection,
	)
	return coll, func() {
		if err := coll.Close(context.Background()); err != nil {
			slog.Warn("closing mongodb client", "error", err)
		}
	}, nil
}
