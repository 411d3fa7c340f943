package broadcast

import (
	"context"
	"sync"
	"time"

	"foodtrack/internal/clock"
	"foodtrack/internal/types"
)

// ReplayLocator walks a fixed list of points, one per interval, and then
// stays on the last one. The driver simulator uses it in place of a device.
type ReplayLocator struct {
	Clock    clock.Clock
	Points   []types.Point
	Interval time.Duration
	Accuracy float64
}

func (r *ReplayLocator) Permission(context.Context) (Permission, error) {
	if len(r.Points) == 0 {
		return "", ErrUnsupported
	}
	return PermissionGranted, nil
}

func (r *ReplayLocator) Watch(_ WatchOptions, onFix func(Fix), _ func(error)) (func(), error) {
	if len(r.Points) == 0 {
		return nil, ErrPositionUnavailable
	}
	clk := r.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}

	var mu sync.Mutex
	next := 0
	fire := func() {
		mu.Lock()
		p := r.Points[next]
		if next < len(r.Points)-1 {
			next++
		}
		mu.Unlock()
		onFix(Fix{Position: p, Accuracy: r.Accuracy, CapturedAt: clk.Now()})
	}
	fire()
	t := clk.Every(interval, fire)
	return func() { t.Stop() }, nil
}
