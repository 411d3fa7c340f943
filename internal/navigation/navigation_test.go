package navigation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"foodtrack/internal/clock"
	"foodtrack/internal/types"
)

type fakeDirections struct {
	mu         sync.Mutex
	candidates []Candidate
	err        error
	requests   []RouteRequest
	// during runs while a request is in flight.
	during func()
}

func (f *fakeDirections) Routes(_ context.Context, req RouteRequest) ([]Candidate, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	candidates, err, during := f.candidates, f.err, f.during
	f.mu.Unlock()
	if during != nil {
		during()
	}
	return candidates, err
}

func (f *fakeDirections) calls() []RouteRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RouteRequest(nil), f.requests...)
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// lineSteps lays n steps along a meridian, each about 550m long.
func lineSteps(n int) []Step {
	steps := make([]Step, n)
	for i := range steps {
		lat := float64(i) * 0.01
		steps[i] = Step{
			Instruction: "Head <b>north</b>",
			Start:       types.Point{Lat: lat, Lng: 0},
			End:         types.Point{Lat: lat + 0.005, Lng: 0},
		}
	}
	return steps
}

func TestSelectRoute_PicksFastestUnderTraffic(t *testing.T) {
	cands := []Candidate{
		{Summary: "A", Duration: secs(550), DurationInTraffic: secs(600)},
		{Summary: "B", Duration: secs(480), DurationInTraffic: secs(500)},
		{Summary: "C", Duration: secs(650), DurationInTraffic: secs(700)},
	}
	idx, adv, err := SelectRoute(cands)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 1 {
		t.Fatalf("selected %d, want 1", idx)
	}
	if len(adv) != 1 || adv[0].Kind != AdvisoryReroute {
		t.Fatalf("advisories = %+v, want one reroute", adv)
	}
}

func TestSelectRoute_FirstCandidateHasNoReroute(t *testing.T) {
	cands := []Candidate{
		{Duration: secs(500), DurationInTraffic: secs(500)},
		{Duration: secs(500), DurationInTraffic: secs(500)},
	}
	idx, adv, err := SelectRoute(cands)
	if err != nil || idx != 0 || len(adv) != 0 {
		t.Fatalf("idx=%d adv=%+v err=%v", idx, adv, err)
	}
}

func TestSelectRoute_FallsBackToPlainDuration(t *testing.T) {
	cands := []Candidate{
		{Duration: secs(900)},
		{Duration: secs(300)},
	}
	idx, _, _ := SelectRoute(cands)
	if idx != 1 {
		t.Fatalf("selected %d, want 1", idx)
	}
}

func TestSelectRoute_HeavyTraffic(t *testing.T) {
	cases := []struct {
		name    string
		plain   int
		traffic int
		want    bool
	}{
		{"exactly 20 percent", 100, 120, false},
		{"over 20 percent", 100, 121, true},
		{"no traffic data", 100, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, adv, _ := SelectRoute([]Candidate{{Duration: secs(tc.plain), DurationInTraffic: secs(tc.traffic)}})
			got := len(adv) == 1 && adv[0].Kind == AdvisoryHeavyTraffic
			if got != tc.want {
				t.Fatalf("heavy traffic = %v, want %v (%+v)", got, tc.want, adv)
			}
		})
	}
}

func TestSelectRoute_Empty(t *testing.T) {
	if _, _, err := SelectRoute(nil); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("err = %v, want ErrNoRoute", err)
	}
}

func TestStripHTML(t *testing.T) {
	cases := map[string]string{
		"Turn <b>left</b> onto <b>Main St</b>":                                        "Turn left onto Main St",
		"Head <b>north</b><div style=\"font-size:0.9em\">Destination on the right</div>": "Head north Destination on the right",
		"Keep right &amp; merge":                                                      "Keep right & merge",
		"plain":                                                                       "plain",
		"":                                                                            "",
	}
	for in, want := range cases {
		if got := StripHTML(in); got != want {
			t.Errorf("StripHTML(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNearestStep(t *testing.T) {
	steps := lineSteps(4)
	if got := NearestStep(types.Point{Lat: 0.0201, Lng: 0}, steps); got != 2 {
		t.Fatalf("nearest = %d, want 2", got)
	}
	// closer to the end of step 1 than the start of step 2
	if got := NearestStep(types.Point{Lat: 0.0160, Lng: 0}, steps); got != 1 {
		t.Fatalf("nearest = %d, want 1", got)
	}
	if got := NearestStep(types.Point{}, nil); got != -1 {
		t.Fatalf("empty = %d, want -1", got)
	}
}

func plannedNavigator(t *testing.T, steps []Step) (*Navigator, *fakeDirections) {
	t.Helper()
	dir := &fakeDirections{candidates: []Candidate{{Duration: secs(100), Legs: []Leg{{Steps: steps}}}}}
	nav := NewNavigator(dir, nil)
	_, err := nav.Plan(context.Background(), RouteRequest{
		Origin:      types.Point{Lat: 0, Lng: 0},
		Destination: types.Point{Lat: 0.04, Lng: 0},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	return nav, dir
}

func TestNavigator_PointerNeverRegresses(t *testing.T) {
	steps := lineSteps(4)
	nav, _ := plannedNavigator(t, steps)
	if err := nav.StartGuidance(); err != nil {
		t.Fatal(err)
	}
	var got []int
	for _, idx := range []int{0, 2, 1, 3} {
		p, _ := nav.OnSample(steps[idx].Start)
		got = append(got, p)
	}
	want := []int{0, 2, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pointers = %v, want %v", got, want)
		}
	}
}

func TestNavigator_PlanStripsInstructions(t *testing.T) {
	nav, _ := plannedNavigator(t, lineSteps(2))
	step, idx, ok := nav.CurrentStep()
	if !ok || idx != 0 || step.Instruction != "Head north" {
		t.Fatalf("current = %+v %d %v", step, idx, ok)
	}
}

func TestNavigator_SamplesIgnoredWithoutGuidance(t *testing.T) {
	steps := lineSteps(4)
	nav, _ := plannedNavigator(t, steps)
	if p, moved := nav.OnSample(steps[3].Start); p != 0 || moved {
		t.Fatalf("pointer moved without guidance: %d %v", p, moved)
	}
}

func TestNavigator_RecalculateResetsPointer(t *testing.T) {
	steps := lineSteps(4)
	nav, dir := plannedNavigator(t, steps)
	_ = nav.StartGuidance()
	nav.OnSample(steps[2].Start)

	r, err := nav.Recalculate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, idx, _ := nav.CurrentStep(); idx != 0 {
		t.Fatalf("pointer = %d after recalculation", idx)
	}
	if len(r.Steps) != 4 {
		t.Fatalf("steps = %d", len(r.Steps))
	}
	calls := dir.calls()
	last := calls[len(calls)-1]
	if last.Origin != steps[2].Start || last.Destination != (types.Point{Lat: 0.04}) {
		t.Fatalf("recalculated from %+v", last)
	}
}

func TestNavigator_RecalculateNeedsPosition(t *testing.T) {
	nav := NewNavigator(&fakeDirections{}, nil)
	if _, err := nav.Recalculate(context.Background()); !errors.Is(err, ErrMissingEndpoint) {
		t.Fatalf("err = %v", err)
	}
	if _, err := nav.NavigateTo(context.Background(), types.Point{Lat: 1, Lng: 1}); !errors.Is(err, ErrMissingEndpoint) {
		t.Fatalf("err = %v", err)
	}
	if err := nav.StartGuidance(); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("err = %v", err)
	}
}

func TestNavigator_DirectionsErrorKeepsRoute(t *testing.T) {
	steps := lineSteps(3)
	nav, dir := plannedNavigator(t, steps)
	nav.OnSample(steps[1].Start)
	dir.err = errors.New("quota")
	if _, err := nav.Recalculate(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(nav.Steps()) != 3 {
		t.Fatal("previous route should be kept")
	}
}

func TestLegPlanner_OneRequestPerWindow(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	dir := &fakeDirections{candidates: []Candidate{{Duration: secs(60), Legs: []Leg{{Steps: lineSteps(1)}}}}}
	var routes int
	lp := NewLegPlanner(context.Background(), dir, clk, DefaultRecalcWindow, func(r *Route, err error) {
		if err == nil {
			routes++
		}
	}, nil)

	restaurant := types.Point{Lat: 1, Lng: 1}
	client := types.Point{Lat: 2, Lng: 2}
	lp.SetOrder("o1", &restaurant, &client)

	for i := 0; i < 3; i++ {
		lp.OnSample(types.Point{Lat: 0.001 * float64(i), Lng: 0})
		clk.Advance(time.Second)
	}
	// window opened at t=0 and closed at 2.5s
	calls := dir.calls()
	if len(calls) != 1 || routes != 1 {
		t.Fatalf("requests = %d, routes = %d", len(calls), routes)
	}
	if calls[0].Origin != (types.Point{Lat: 0.002}) {
		t.Fatalf("request used %+v, want latest position", calls[0].Origin)
	}
	if len(calls[0].Waypoints) != 1 || calls[0].Waypoints[0] != restaurant || calls[0].Destination != client {
		t.Fatalf("unexpected request %+v", calls[0])
	}

	lp.OnSample(types.Point{Lat: 0.003, Lng: 0})
	clk.Advance(3 * time.Second)
	if got := len(dir.calls()); got != 2 {
		t.Fatalf("requests = %d, want 2", got)
	}
}

func TestLegPlanner_SuppressedWithoutEndpoints(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	dir := &fakeDirections{}
	lp := NewLegPlanner(context.Background(), dir, clk, 0, nil, nil)

	restaurant := types.Point{Lat: 1, Lng: 1}
	lp.SetOrder("o1", &restaurant, nil)
	lp.OnSample(types.Point{Lat: 0, Lng: 0})
	clk.Advance(10 * time.Second)
	if got := len(dir.calls()); got != 0 {
		t.Fatalf("requests = %d without client destination", got)
	}
	if clk.Pending() != 0 {
		t.Fatal("no timer should be pending")
	}
}

func TestLegPlanner_DropsRouteForReplacedOrder(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	dir := &fakeDirections{candidates: []Candidate{{Duration: secs(60), Legs: []Leg{{Steps: lineSteps(1)}}}}}
	var delivered int
	lp := NewLegPlanner(context.Background(), dir, clk, 0, func(*Route, error) { delivered++ }, nil)

	restaurant := types.Point{Lat: 1, Lng: 1}
	client := types.Point{Lat: 2, Lng: 2}
	other := types.Point{Lat: 3, Lng: 3}

	cases := []struct {
		name   string
		during func()
	}{
		{"cleared", lp.ClearOrder},
		{"switched", func() { lp.SetOrder("o2", &restaurant, &other) }},
	}
	for _, tc := range cases {
		lp.SetOrder("o1", &restaurant, &client)
		dir.during = tc.during
		lp.OnSample(types.Point{Lat: 0, Lng: 0})
		clk.Advance(DefaultRecalcWindow)
		if delivered != 0 {
			t.Fatalf("%s: route for the replaced order was delivered", tc.name)
		}
	}

	dir.during = nil
	lp.SetOrder("o1", &restaurant, &client)
	lp.OnSample(types.Point{Lat: 0, Lng: 0})
	clk.Advance(DefaultRecalcWindow)
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1 once the order is stable", delivered)
	}
}

func TestLegPlanner_ClearOrderCancelsPending(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	dir := &fakeDirections{}
	lp := NewLegPlanner(context.Background(), dir, clk, 0, nil, nil)
	restaurant := types.Point{Lat: 1, Lng: 1}
	client := types.Point{Lat: 2, Lng: 2}
	lp.SetOrder("o1", &restaurant, &client)
	lp.OnSample(types.Point{Lat: 0, Lng: 0})
	lp.ClearOrder()
	clk.Advance(10 * time.Second)
	if got := len(dir.calls()); got != 0 {
		t.Fatalf("requests = %d after ClearOrder", got)
	}
}
