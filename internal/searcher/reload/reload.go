// Package reload swaps a freshly published index into a running searcher
// when the indexer announces a completed build over Kafka.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/searcher/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/metrics"
)

// Loader builds a new IndexContext from the blob store.
type Loader interface {
	Refresh(ctx context.Context) (*bootstrap.IndexContext, error)
}

// Swapper installs a loaded context.
type Swapper interface {
	Swap(ic *bootstrap.IndexContext)
}

// Invalidator drops results computed against the previous context.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Reloader struct {
	loader  Loader
	engine  Swapper
	cache   Invalidator
	fields  []string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns a Reloader for the given fields. cache and m may be nil.
func New(loader Loader, engine Swapper, cache Invalidator, fields []string, m *metrics.Metrics) *Reloader {
	return &Reloader{
		loader:  loader,
		engine:  engine,
		cache:   cache,
		fields:  fields,
		metrics: m,
		logger:  slog.Default().With("component", "index-reloader"),
	}
}

// Handle reloads the whole context for an event about a served field.
// Events for other fields are acknowledged and ignored. A failed reload
// keeps the current context and returns the error so the message is not
// committed.
func (r *Reloader) Handle(ctx context.Context, event kafka.IndexCompleteEvent) error {
	if !slices.Contains(r.fields, event.Field) {
		r.logger.Debug("ignoring event for unserved field", "field", event.Field, "run_id", event.RunID)
		return nil
	}
	r.logger.Info("index build completed, reloading",
		"field", event.Field,
		"run_id", event.RunID,
		"terms", event.NumTerms,
		"documents", event.NumDocs,
	)
	ic, err := r.loader.Refresh(ctx)
	if err != nil {
		r.count("error")
		return fmt.Errorf("reloading after %s build %s: %w", event.Field, event.RunID, err)
	}
	r.engine.Swap(ic)
	r.count("ok")
	if r.cache != nil {
		if err := r.cache.Invalidate(ctx); err != nil {
			r.logger.Warn("cached results may be stale", "error", err)
		}
	}
	r.logger.Info("index context swapped", "field", event.Field, "run_id", event.RunID)
	return nil
}

// MessageHandler adapts Handle for a kafka.Consumer.
func (r *Reloader) MessageHandler() kafka.MessageHandler {
	return kafka.JSONHandler(r.Handle)
}

func (r *Reloader) count(status string) {
	if r.metrics != nil {
		r.metrics.IndexReloadsTotal.WithLabelValues(status).Inc()
	}
}
