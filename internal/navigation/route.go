// Package navigation turns directions candidates into a guided step sequence:
// it selects the fastest candidate under traffic, reports advisories, and
// advances a monotonic current-step pointer as position samples arrive.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"foodtrack/internal/types"
)

var (
	ErrNoRoute         = errors.New("no route found")
	ErrMissingEndpoint = errors.New("route endpoint missing")
)

// Traffic more than 6/5 of the normal duration raises an advisory.
const (
	heavyTrafficNum = 6
	heavyTrafficDen = 5
)

type RouteRequest struct {
	Origin      types.Point
	Destination types.Point
	Waypoints   []types.Point
}

// Step is one instruction of a route. Instruction is plain text once planned.
type Step struct {
	Instruction    string        `json:"instruction"`
	DistanceMeters int           `json:"distanceMeters"`
	Duration       time.Duration `json:"duration"`
	Start          types.Point   `json:"start"`
	End            types.Point   `json:"end"`
}

type Leg struct {
	Steps []Step
}

// Candidate is one alternative returned by the directions service, in service order.
type Candidate struct {
	Summary           string
	DistanceMeters    int
	Duration          time.Duration
	DurationInTraffic time.Duration
	Legs              []Leg
}

// Score is the traffic-adjusted duration, or the plain duration when no traffic data came back.
func (c Candidate) Score() time.Duration {
	if c.DurationInTraffic > 0 {
		return c.DurationInTraffic
	}
	return c.Duration
}

// Directions is the external directions service.
type Directions interface {
	Routes(ctx context.Context, req RouteRequest) ([]Candidate, error)
}

type AdvisoryKind string

const (
	AdvisoryReroute      AdvisoryKind = "reroute"
	AdvisoryHeavyTraffic AdvisoryKind = "heavy_traffic"
)

// Advisory is informational and never changes control flow.
type Advisory struct {
	Kind    AdvisoryKind `json:"kind"`
	Message string       `json:"message"`
}

type Route struct {
	Candidates []Candidate
	Selected   int
	Steps      []Step
	Advisories []Advisory
}

func (r *Route) SelectedCandidate() Candidate {
	return r.Candidates[r.Selected]
}

// SelectRoute picks the candidate with the lowest score. Ties keep the earlier candidate.
func SelectRoute(candidates []Candidate) (int, []Advisory, error) {
	if len(candidates) == 0 {
		return 0, nil, ErrNoRoute
	}
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Score() < candidates[best].Score() {
			best = i
		}
	}

	var advisories []Advisory
	if best != 0 {
		saved := candidates[0].Score() - candidates[best].Score()
		advisories = append(advisories, Advisory{
			Kind:    AdvisoryReroute,
			Message: fmt.Sprintf("switched to a faster route %q, saves %s", candidates[best].Summary, saved.Round(time.Second)),
		})
	}
	sel := candidates[best]
	if sel.DurationInTraffic > 0 && sel.Duration > 0 &&
		sel.DurationInTraffic*heavyTrafficDen > sel.Duration*heavyTrafficNum {
		extra := (float64(sel.DurationInTraffic)/float64(sel.Duration) - 1) * 100
		advisories = append(advisories, Advisory{
			Kind:    AdvisoryHeavyTraffic,
			Message: fmt.Sprintf("heavy traffic, about %.0f%% slower than usual", extra),
		})
	}
	return best, advisories, nil
}

// Plan requests candidates, selects one and flattens it into plain-text steps.
func Plan(ctx context.Context, dir Directions, req RouteRequest) (*Route, error) {
	if !req.Origin.Valid() || !req.Destination.Valid() {
		return nil, ErrMissingEndpoint
	}
	candidates, err := dir.Routes(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("directions: %w", err)
	}
	idx, advisories, err := SelectRoute(candidates)
	if err != nil {
		return nil, err
	}
	return &Route{
		Candidates: candidates,
		Selected:   idx,
		Steps:      flatten(candidates[idx]),
		Advisories: advisories,
	}, nil
}

func flatten(c Candidate) []Step {
	var steps []Step
	for _, leg := range c.Legs {
		for _, s := range leg.Steps {
			s.Instruction = StripHTML(s.Instruction)
			steps = append(steps, s)
		}
	}
	return steps
}
