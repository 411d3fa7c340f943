package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"foodtrack/internal/navigation"
	"foodtrack/internal/types"
)

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client   *maps.Client
	language string
}

// NewRouteService creates a new RouteService with the given API Key.
// Extra client options are passed through (base URL, HTTP client, rate limit).
func NewRouteService(apiKey, language string, opts ...maps.ClientOption) (*RouteService, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client, language: language}, nil
}

// Routes asks for driving alternatives departing now with pessimistic traffic
// estimates. Candidates keep the order the service returned them in.
func (s *RouteService) Routes(ctx context.Context, req navigation.RouteRequest) ([]navigation.Candidate, error) {
	r := &maps.DirectionsRequest{
		Origin:        req.Origin.String(),
		Destination:   req.Destination.String(),
		Mode:          maps.TravelModeDriving,
		Alternatives:  true,
		DepartureTime: "now",
		TrafficModel:  maps.TrafficModelPessimistic,
		Language:      s.language,
	}
	for _, w := range req.Waypoints {
		r.Waypoints = append(r.Waypoints, w.String())
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 {
		return nil, navigation.ErrNoRoute
	}

	out := make([]navigation.Candidate, 0, len(routes))
	for _, route := range routes {
		out = append(out, toCandidate(route))
	}
	return out, nil
}

func toCandidate(route maps.Route) navigation.Candidate {
	c := navigation.Candidate{Summary: route.Summary}
	for _, leg := range route.Legs {
		if leg == nil {
			continue
		}
		c.DistanceMeters += leg.Distance.Meters
		c.Duration += leg.Duration
		c.DurationInTraffic += leg.DurationInTraffic
		var l navigation.Leg
		for _, st := range leg.Steps {
			if st == nil {
				continue
			}
			l.Steps = append(l.Steps, navigation.Step{
				Instruction:    st.HTMLInstructions,
				DistanceMeters: st.Distance.Meters,
				Duration:       st.Duration,
				Start:          point(st.StartLocation),
				End:            point(st.EndLocation),
			})
		}
		c.Legs = append(c.Legs, l)
	}
	return c
}

func point(ll maps.LatLng) types.Point {
	return types.Point{Lat: ll.Lat, Lng: ll.Lng}
}
