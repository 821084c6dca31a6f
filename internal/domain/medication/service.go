package medication

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cmlcare/cml/internal/platform/cache"
	"github.com/cmlcare/cml/internal/platform/metrics"
)

// CacheKeyAll holds the full medication list.
const CacheKeyAll = "medications:all"

// DefaultCacheTTL applies when the service is built with a non-positive TTL.
const DefaultCacheTTL = 5 * time.Minute

type Service struct {
	repo   Repository
	cache  cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewService(repo Repository, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{repo: repo, cache: c, ttl: ttl, logger: logger.With().Str("component", "medication").Logger()}
}

// List reads through the cache.
func (s *Service) List(ctx context.Context) ([]*Medication, error) {
	items, hit, err := cache.GetOrFetch(ctx, s.cache, CacheKeyAll, s.ttl, s.repo.List)
	if err != nil {
		return nil, err
	}
	metrics.RecordMedicationCacheLookup(hit)
	if items == nil {
		items = []*Medication{}
	}
	return items, nil
}

func (s *Service) Create(ctx context.Context, m *Medication) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) Update(ctx context.Context, m *Medication) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, m); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, CacheKeyAll); err != nil {
		// Readers see the stale list until the TTL lapses.
		s.logger.Warn().Err(err).Str("key", CacheKeyAll).Msg("cache invalidation failed")
	}
}
