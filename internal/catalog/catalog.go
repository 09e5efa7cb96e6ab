// Package catalog supplies the problem repositories datasets are scored against.
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rastion/rastion-datasets/internal/models"
)

const cacheKey = "catalog:repositories"

// Source lists problem repositories together with their declared schemas.
type Source interface {
	Name() string
	List(ctx context.Context) ([]models.ProblemRepository, error)
}

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

type mirrorStore interface {
	Upsert(ctx context.Context, repo *models.ProblemRepository) error
	List(ctx context.Context) ([]models.ProblemRepository, error)
}

// ErrNoSources is returned when no source is configured and the mirror is empty.
var ErrNoSources = errors.New("catalog has no sources")

// Catalog merges sources in priority order. The first source listing a repository wins.
type Catalog struct {
	sources []Source
	cache   cacheStore
	mirror  mirrorStore
	ttl     time.Duration
	logger  *zap.Logger
}

// New constructs a catalog. cache and mirror are optional.
func New(sources []Source, cache cacheStore, mirror mirrorStore, ttl time.Duration, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Catalog{sources: sources, cache: cache, mirror: mirror, ttl: ttl, logger: logger}
}

// Repositories returns the merged catalog, served from cache when possible.
func (c *Catalog) Repositories(ctx context.Context) ([]models.ProblemRepository, error) {
	if c.cache != nil {
		var cached []models.ProblemRepository
		if hit, err := c.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}
	return c.Refresh(ctx)
}

// Refresh rebuilds the catalog from its sources, updates the mirror table and the cache.
// When every source fails the last mirrored state is returned instead.
func (c *Catalog) Refresh(ctx context.Context) ([]models.ProblemRepository, error) {
	merged := make(map[string]models.ProblemRepository)
	failures := 0
	for _, src := range c.sources {
		repos, err := src.List(ctx)
		if err != nil {
			failures++
			c.logger.Warn("catalog source failed", zap.String("source", src.Name()), zap.Error(err))
			continue
		}
		for _, repo := range repos {
			repo.Owner = strings.TrimSpace(repo.Owner)
			repo.Name = strings.TrimSpace(repo.Name)
			if repo.Owner == "" || repo.Name == "" {
				continue
			}
			if repo.ProblemType == "" {
				repo.ProblemType = repo.DeclaredSchema.Schema.DeclaredProblemType()
			}
			key := strings.ToLower(repo.FullName())
			if _, exists := merged[key]; !exists {
				merged[key] = repo
			}
		}
	}

	if len(c.sources) == 0 || failures == len(c.sources) {
		return c.fromMirror(ctx)
	}

	result := make([]models.ProblemRepository, 0, len(merged))
	for _, repo := range merged {
		result = append(result, repo)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FullName() < result[j].FullName()
	})

	if c.mirror != nil {
		for i := range result {
			if err := c.mirror.Upsert(ctx, &result[i]); err != nil {
				c.logger.Warn("catalog mirror upsert failed", zap.String("repository", result[i].FullName()), zap.Error(err))
			}
		}
	}
	if c.cache != nil {
		_ = c.cache.Set(ctx, cacheKey, result, c.ttl)
	}
	c.logger.Info("catalog refreshed", zap.Int("repositories", len(result)))
	return result, nil
}

// Invalidate drops the cached catalog.
func (c *Catalog) Invalidate(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Invalidate(ctx, cacheKey)
}

func (c *Catalog) fromMirror(ctx context.Context) ([]models.ProblemRepository, error) {
	if c.mirror == nil {
		return nil, ErrNoSources
	}
	repos, err := c.mirror.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(repos) == 0 && len(c.sources) == 0 {
		return nil, ErrNoSources
	}
	return repos, nil
}
