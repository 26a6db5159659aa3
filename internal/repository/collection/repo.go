package collection

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecmatch/internal/db"
	"github.com/kailas-cloud/vecmatch/internal/domain"
	domcol "github.com/kailas-cloud/vecmatch/internal/domain/collection"
)

// store is the consumer interface for index management (ISP).
type store interface {
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo manages the FT indexes backing configured collections.
type Repo struct {
	store  store
	cols   []domcol.Collection
	hnsw   HNSWConfig
	logger *zap.Logger
}

// New creates a repository for the configured collections.
func New(s store, cols []domcol.Collection, logger *zap.Logger) *Repo {
	return &Repo{store: s, cols: cols, hnsw: HNSWConfig{M: 16, EFConstruct: 200}, logger: logger}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// EnsureIndexes creates the FT index of every collection that lacks one.
// Existing indexes are left untouched. Returns the names of collections whose index was created.
func (r *Repo) EnsureIndexes(ctx context.Context) ([]string, error) {
	var created []string
	for _, col := range r.cols {
		ok, err := r.store.IndexExists(ctx, domain.IndexName(col.Name()))
		if err != nil {
			return created, fmt.Errorf("check index %s: %w", col.Name(), err)
		}
		if ok {
			continue
		}

		def, err := buildIndex(col, r.hnsw)
		if err != nil {
			return created, fmt.Errorf("build index: %w", err)
		}

		if err := r.store.CreateIndex(ctx, def); err != nil {
			// Another replica won the race.
			if errors.Is(err, db.ErrIndexExists) {
				continue
			}
			return created, fmt.Errorf("create index %s: %w", col.Name(), err)
		}

		r.logger.Info("Created index", zap.String("collection", col.Name()), zap.String("index", def.Name))
		created = append(created, col.Name())
	}
	return created, nil
}

// Missing returns the collections whose index does not exist.
func (r *Repo) Missing(ctx context.Context) ([]string, error) {
	var missing []string
	for _, col := range r.cols {
		ok, err := r.store.IndexExists(ctx, domain.IndexName(col.Name()))
		if err != nil {
			return nil, fmt.Errorf("check index %s: %w", col.Name(), err)
		}
		if !ok {
			missing = append(missing, col.Name())
		}
	}
	return missing, nil
}
