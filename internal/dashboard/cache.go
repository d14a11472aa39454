package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/novelboard/internal/catalog"
	"github.com/MarcoPoloResearchLab/novelboard/internal/classification"
	"github.com/MarcoPoloResearchLab/novelboard/internal/ratings"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is the lifetime of one aggregate epoch.
const DefaultCacheTTL = 5 * time.Minute

const opCacheBuild = "dashboard.cache.build"

// CatalogSource provides catalog rows.
type CatalogSource interface {
	All(ctx context.Context) ([]catalog.Submission, error)
	List(ctx context.Context, filter catalog.Filter) (catalog.ListResult, error)
	Genres(ctx context.Context) ([]string, error)
}

// RatingReader provides stored rating records.
type RatingReader interface {
	ListAll(ctx context.Context) ([]ratings.Record, error)
}

// Scope restricts the catalog rows a dashboard works with.
type Scope struct {
	// RequiredKeywords keeps rows whose keywords contain any of the terms.
	RequiredKeywords []string
	// MinFirstPublished drops rows first published before it, or never published.
	MinFirstPublished *time.Time
}

func (s Scope) filter() catalog.Filter {
	return catalog.Filter{
		RequiredKeywords:   s.RequiredKeywords,
		FirstPublishedFrom: s.MinFirstPublished,
	}
}

// AggregateCacheConfig describes the dependencies of the aggregate cache.
type AggregateCacheConfig struct {
	Catalog    CatalogSource
	Ratings    RatingReader
	Classifier classification.Classifier
	Scope      Scope
	TTL        time.Duration
	Clock      func() time.Time
	Logger     *zap.Logger
}

type cacheKey struct {
	reviewerID ratings.ReviewerID
	epoch      int64
}

// AggregateCache memoizes snapshots per (reviewer, epoch). Entries expire only when
// the clock moves into a new epoch; writes never invalidate them.
type AggregateCache struct {
	catalog    CatalogSource
	ratings    RatingReader
	classifier classification.Classifier
	scope      Scope
	ttl        time.Duration
	clock      func() time.Time
	logger     *zap.Logger

	mu      sync.RWMutex
	entries map[cacheKey]Snapshot
	group   singleflight.Group
}

// NewAggregateCache validates the configuration and returns a cache.
func NewAggregateCache(cfg AggregateCacheConfig) (*AggregateCache, error) {
	if cfg.Catalog == nil {
		return nil, newServiceError(opCacheBuild, "missing_catalog", errMissingCatalog)
	}
	if cfg.Ratings == nil {
		return nil, newServiceError(opCacheBuild, "missing_ratings", errMissingRatingStore)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &AggregateCache{
		catalog:    cfg.Catalog,
		ratings:    cfg.Ratings,
		classifier: cfg.Classifier,
		scope:      cfg.Scope,
		ttl:        ttl,
		clock:      clock,
		logger:     logger,
		entries:    make(map[cacheKey]Snapshot),
	}, nil
}

func (c *AggregateCache) epoch(now time.Time) int64 {
	return now.UnixNano() / c.ttl.Nanoseconds()
}

// Get returns the reviewer's snapshot for the current epoch, building it on a miss.
// Concurrent misses for the same key share one build.
func (c *AggregateCache) Get(ctx context.Context, reviewerID ratings.ReviewerID) (Snapshot, error) {
	key := cacheKey{reviewerID: reviewerID, epoch: c.epoch(c.clock())}

	c.mu.RLock()
	snapshot, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return snapshot, nil
	}

	flightKey := fmt.Sprintf("%s|%d", reviewerID, key.epoch)
	result, err, _ := c.group.Do(flightKey, func() (interface{}, error) {
		c.mu.RLock()
		cached, found := c.entries[key]
		c.mu.RUnlock()
		if found {
			return cached, nil
		}

		built, buildErr := c.build(context.WithoutCancel(ctx), reviewerID, key.epoch)
		if buildErr != nil {
			return Snapshot{}, buildErr
		}

		c.mu.Lock()
		for existing := range c.entries {
			if existing.epoch < key.epoch {
				delete(c.entries, existing)
			}
		}
		c.entries[key] = built
		c.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return result.(Snapshot), nil
}

// Len reports how many snapshots are held.
func (c *AggregateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *AggregateCache) build(ctx context.Context, reviewerID ratings.ReviewerID, epoch int64) (Snapshot, error) {
	listed, err := c.catalog.List(ctx, c.scope.filter())
	if err != nil {
		c.logError("catalog_unavailable", err, reviewerID)
		return Snapshot{}, newServiceError(opCacheBuild, "catalog_unavailable", err)
	}
	if len(listed.Rows) == 0 {
		err := fmt.Errorf("%w: no rows in scope", catalog.ErrCatalogEmpty)
		c.logError("catalog_empty", err, reviewerID)
		return Snapshot{}, newServiceError(opCacheBuild, "catalog_empty", err)
	}

	records, err := c.ratings.ListAll(ctx)
	if err != nil {
		c.logError("ratings_unavailable", err, reviewerID)
		return Snapshot{}, newServiceError(opCacheBuild, "ratings_unavailable", err)
	}

	if unknown := c.classifier.UnknownReviewers(records); len(unknown) > 0 {
		c.logger.Debug("ratings from reviewers outside the roster",
			zap.Int("reviewers", len(unknown)),
			zap.String("reviewer_id", reviewerID.String()))
	}

	snapshot := BuildSnapshot(listed.Rows, records, reviewerID, c.classifier)
	snapshot.Epoch = epoch
	snapshot.BuiltAt = c.clock().UTC()

	c.logger.Info("aggregate snapshot built",
		zap.String("reviewer_id", reviewerID.String()),
		zap.Int64("epoch", epoch),
		zap.Int("rows", len(snapshot.Rows)),
		zap.Int("ratings", len(records)))
	return snapshot, nil
}

func (c *AggregateCache) logError(reason string, err error, reviewerID ratings.ReviewerID) {
	c.logger.Error("dashboard cache error",
		zap.String("operation", opCacheBuild),
		zap.String("reason", reason),
		zap.String("reviewer_id", reviewerID.String()),
		zap.Error(err))
}
