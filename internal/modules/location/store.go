// README: Location store backed by Redis GEO plus a hash of the latest sample per driver.
package location

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"foodtrack/internal/types"
)

const (
	geoKey    = "geo:drivers"
	latestKey = "drivers:latest"
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func (s *Store) Put(ctx context.Context, sample Sample) error {
	raw, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	pipe := s.redis.TxPipeline()
	pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      string(sample.DriverID),
		Longitude: sample.Position.Lng,
		Latitude:  sample.Position.Lat,
	})
	pipe.HSet(ctx, latestKey, string(sample.DriverID), raw)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) Remove(ctx context.Context, driverID types.ID) error {
	pipe := s.redis.TxPipeline()
	pipe.ZRem(ctx, geoKey, string(driverID))
	pipe.HDel(ctx, latestKey, string(driverID))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) All(ctx context.Context) ([]Sample, error) {
	vals, err := s.redis.HGetAll(ctx, latestKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Sample, 0, len(vals))
	for id, raw := range vals {
		var sample Sample
		if err := json.Unmarshal([]byte(raw), &sample); err != nil {
			return nil, fmt.Errorf("decode sample %s: %w", id, err)
		}
		out = append(out, sample)
	}
	return out, nil
}

func (s *Store) Nearby(ctx context.Context, center types.Point, radiusKm float64) ([]Nearby, error) {
	locs, err := s.redis.GeoRadius(ctx, geoKey, center.Lng, center.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Nearby, 0, len(locs))
	for _, l := range locs {
		out = append(out, Nearby{
			DriverID:   types.ID(l.Name),
			Position:   types.Point{Lat: l.Latitude, Lng: l.Longitude},
			DistanceKm: l.Dist,
		})
	}
	return out, nil
}
