// README: In-memory nearby search used when no Redis GEO cache is configured.
package location

import (
	"cmp"
	"slices"

	"foodtrack/internal/geo"
	"foodtrack/internal/types"
)

func distanceKm(a, b types.Point) float64 {
	return geo.HaversineMeters(a, b) / 1000
}

// nearbyFrom filters samples to those within radiusKm of center, closest first.
func nearbyFrom(samples []Sample, center types.Point, radiusKm float64) []Nearby {
	var out []Nearby
	for _, s := range samples {
		d := distanceKm(center, s.Position)
		if d <= radiusKm {
			out = append(out, Nearby{DriverID: s.DriverID, Position: s.Position, DistanceKm: d})
		}
	}
	slices.SortStableFunc(out, func(a, b Nearby) int { return cmp.Compare(a.DistanceKm, b.DistanceKm) })
	return out
}
