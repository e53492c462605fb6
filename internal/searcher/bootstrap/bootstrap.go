// Package bootstrap loads everything the query path reads: the three field
// index metadata files, the PageRank table and the title table. Files are
// taken from the local cache directory when present and downloaded from the
// blob store otherwise.
package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/meta"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/blob"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

// FieldIndex is one field's metadata plus the store its blocks are read
// from.
type FieldIndex struct {
	Meta  *meta.IndexMetadata
	Store blob.Store
}

// IndexContext is the read-only state shared by all queries. It is never
// mutated after Load returns; a reload builds a new one.
type IndexContext struct {
	Fields   map[string]*FieldIndex
	PageRank map[uint32]float64
	Titles   map[uint32]string
	LoadedAt time.Time
}

func (ic *IndexContext) Field(name string) (*FieldIndex, bool) {
	f, ok := ic.Fields[name]
	return f, ok
}

// Rank returns the PageRank of id.
func (ic *IndexContext) Rank(id uint32) (float64, bool) {
	v, ok := ic.PageRank[id]
	return v, ok
}

// Title returns the title of id, or "" when unknown.
func (ic *IndexContext) Title(id uint32) string {
	return ic.Titles[id]
}

// Loader builds IndexContexts from a blob store.
type Loader struct {
	cfg    config.SearchConfig
	fields []string
	store  blob.Store
	logger *slog.Logger
}

func NewLoader(cfg config.SearchConfig, fields []string, store blob.Store) *Loader {
	return &Loader{
		cfg:    cfg,
		fields: fields,
		store:  store,
		logger: slog.Default().With("component", "bootstrap"),
	}
}

// Load builds a context, preferring cached files.
func (l *Loader) Load(ctx context.Context) (*IndexContext, error) {
	return l.load(ctx, false)
}

// Refresh builds a context from freshly downloaded objects and rewrites the
// cache.
func (l *Loader) Refresh(ctx context.Context) (*IndexContext, error) {
	return l.load(ctx, true)
}

func (l *Loader) load(ctx context.Context, refresh bool) (*IndexContext, error) {
	start := time.Now()
	if err := os.MkdirAll(l.cfg.CacheDir, 0o755); err != nil {
		return nil, apperrors.Filesystem("creating cache directory", err)
	}
	metas := make([]*meta.IndexMetadata, len(l.fields))
	ic := &IndexContext{Fields: make(map[string]*FieldIndex, len(l.fields))}

	g, gctx := errgroup.WithContext(ctx)
	for i, field := range l.fields {
		g.Go(func() error {
			m, err := l.fieldMeta(gctx, field, refresh)
			if err != nil {
				return fmt.Errorf("loading %s index: %w", field, err)
			}
			metas[i] = m
			return nil
		})
	}
	g.Go(func() error {
		raw, err := l.object(gctx, l.cfg.PageRankPath, refresh)
		if err != nil {
			return fmt.Errorf("loading page rank: %w", err)
		}
		ic.PageRank, err = decodeTable[float64](raw, l.cfg.PageRankPath, l.logger)
		return err
	})
	g.Go(func() error {
		raw, err := l.object(gctx, l.cfg.TitlesPath, refresh)
		if err != nil {
			return fmt.Errorf("loading titles: %w", err)
		}
		ic.Titles, err = decodeTable[string](raw, l.cfg.TitlesPath, l.logger)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, field := range l.fields {
		ic.Fields[field] = &FieldIndex{Meta: metas[i], Store: blob.Scoped(l.store, metas[i].BlockScope())}
		l.logger.Info("field index ready",
			"field", field,
			"run", metas[i].Run,
			"documents", metas[i].NumDocs(),
			"terms", len(metas[i].DF),
		)
	}
	ic.LoadedAt = time.Now()
	l.logger.Info("index context loaded",
		"fields", len(ic.Fields),
		"page_ranks", len(ic.PageRank),
		"titles", len(ic.Titles),
		"refresh", refresh,
		"duration", time.Since(start),
	)
	return ic, nil
}

// fieldMeta reads <cacheDir>/<field>_index.idx, falling back to
// <field>/<field>_index.idx in the store. An unreadable cache file is
// replaced.
func (l *Loader) fieldMeta(ctx context.Context, field string, refresh bool) (*meta.IndexMetadata, error) {
	name := meta.ObjectName(field)
	local := filepath.Join(l.cfg.CacheDir, name)
	if !refresh {
		m, err := meta.ReadFile(local)
		if err == nil {
			l.logger.Debug("using cached index", "field", field, "path", local)
			return m, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("cached index unreadable, downloading", "field", field, "error", err)
		}
	}
	data, err := l.store.Download(ctx, path.Join(field, name))
	if err != nil {
		return nil, err
	}
	m, err := meta.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if m.Field != field {
		return nil, apperrors.Decodef("object %s holds the %s index", name, m.Field)
	}
	if err := meta.WriteFile(local, data); err != nil {
		l.logger.Warn("failed to cache index", "field", field, "error", err)
	}
	return m, nil
}

// object returns the bytes of a JSON side table, cache first.
func (l *Loader) object(ctx context.Context, name string, refresh bool) ([]byte, error) {
	local := filepath.Join(l.cfg.CacheDir, path.Base(name))
	if !refresh {
		data, err := os.ReadFile(local)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Filesystem("reading "+local, err)
		}
	}
	data, err := l.store.Download(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		l.logger.Warn("failed to cache object", "object", name, "error", err)
	}
	return data, nil
}

// decodeTable parses a JSON object keyed by decimal document id. Keys that
// are not valid ids are skipped.
func decodeTable[V any](raw []byte, name string, logger *slog.Logger) (map[uint32]V, error) {
	var byString map[string]V
	if err := json.Unmarshal(raw, &byString); err != nil {
		return nil, apperrors.Decodef("%s: %v", name, err)
	}
	out := make(map[uint32]V, len(byString))
	skipped := 0
	for k, v := range byString {
		id, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			skipped++
			continue
		}
		out[uint32(id)] = v
	}
	if skipped > 0 {
		logger.Warn("skipped entries with invalid document ids", "object", name, "skipped", skipped)
	}
	return out, nil
}
