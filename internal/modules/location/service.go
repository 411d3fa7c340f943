// README: Location service keeps the latest sample per driver for the admin map and nearby queries.
package location

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"foodtrack/internal/logging"
	"foodtrack/internal/types"
)

const DefaultStaleAfter = 2 * time.Minute

// Cache shares samples between instances.
type Cache interface {
	Put(ctx context.Context, s Sample) error
	Remove(ctx context.Context, driverID types.ID) error
	All(ctx context.Context) ([]Sample, error)
	Nearby(ctx context.Context, center types.Point, radiusKm float64) ([]Nearby, error)
}

// Mirror pushes samples to an external read model.
type Mirror interface {
	Publish(ctx context.Context, s Sample) error
	Remove(ctx context.Context, driverID types.ID) error
}

type Service struct {
	mu         sync.RWMutex
	latest     map[types.ID]Sample
	cache      Cache
	mirror     Mirror
	logger     *slog.Logger
	staleAfter time.Duration
	now        func() time.Time
}

func NewService(cache Cache, mirror Mirror, logger *slog.Logger) *Service {
	return &Service{
		latest:     make(map[types.ID]Sample),
		cache:      cache,
		mirror:     mirror,
		logger:     logging.Or(logger),
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
}

// SetStaleAfter changes how old a sample may be before Latest drops it.
func (s *Service) SetStaleAfter(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.staleAfter = d
	s.mu.Unlock()
}

// Record stores s if it is well formed and newer than what is held for the driver.
func (s *Service) Record(ctx context.Context, sample Sample) bool {
	if !sample.Valid() {
		return false
	}
	s.mu.Lock()
	if prev, ok := s.latest[sample.DriverID]; ok && prev.CapturedAt.After(sample.CapturedAt) {
		s.mu.Unlock()
		return false
	}
	s.latest[sample.DriverID] = sample
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Put(ctx, sample); err != nil {
			s.logger.Warn("location_cache_put_failed", "driver_id", string(sample.DriverID), "error", err)
		}
	}
	if s.mirror != nil {
		if err := s.mirror.Publish(ctx, sample); err != nil {
			s.logger.Warn("location_mirror_failed", "driver_id", string(sample.DriverID), "error", err)
		}
	}
	return true
}

// Forget drops a driver, typically after location sharing is turned off.
func (s *Service) Forget(ctx context.Context, driverID types.ID) {
	s.mu.Lock()
	delete(s.latest, driverID)
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Remove(ctx, driverID); err != nil {
			s.logger.Warn("location_cache_remove_failed", "driver_id", string(driverID), "error", err)
		}
	}
	if s.mirror != nil {
		if err := s.mirror.Remove(ctx, driverID); err != nil {
			s.logger.Warn("location_mirror_remove_failed", "driver_id", string(driverID), "error", err)
		}
	}
}

// Latest returns fresh samples ordered by driver id.
func (s *Service) Latest(ctx context.Context) []Sample {
	samples := s.snapshot(ctx)
	s.mu.RLock()
	cutoff := s.now().Add(-s.staleAfter)
	s.mu.RUnlock()
	out := samples[:0]
	for _, sample := range samples {
		if sample.CapturedAt.After(cutoff) {
			out = append(out, sample)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out
}

func (s *Service) Nearby(ctx context.Context, center types.Point, radiusKm float64) ([]Nearby, error) {
	fresh := s.Latest(ctx)
	if s.cache == nil {
		return nearbyFrom(fresh, center, radiusKm), nil
	}
	near, err := s.cache.Nearby(ctx, center, radiusKm)
	if err != nil {
		return nil, err
	}
	// the geo index has no timestamps; drop drivers Latest considers stale.
	keep := make(map[types.ID]bool, len(fresh))
	for _, sample := range fresh {
		keep[sample.DriverID] = true
	}
	out := near[:0]
	for _, n := range near {
		if keep[n.DriverID] {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Service) snapshot(ctx context.Context) []Sample {
	if s.cache != nil {
		all, err := s.cache.All(ctx)
		if err == nil {
			return all
		}
		s.logger.Warn("location_cache_read_failed", "error", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sample, 0, len(s.latest))
	for _, sample := range s.latest {
		out = append(out, sample)
	}
	return out
}
