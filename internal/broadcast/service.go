// Package broadcast runs the driver side of live location sharing: a
// position watch feeds a latest-value mailbox and a fixed-cadence ticker
// emits whatever is in it while the channel is connected.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"foodtrack/internal/clock"
	"foodtrack/internal/contracts"
	"foodtrack/internal/logging"
	"foodtrack/internal/types"
)

// DefaultInterval is the emission cadence.
const DefaultInterval = 10 * time.Second

type State string

const (
	StateInactive             State = "inactive"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateActive               State = "active"
)

type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionPrompt  Permission = "prompt"
)

// Fix is one device position reading.
type Fix struct {
	Position   types.Point
	Accuracy   float64
	CapturedAt time.Time
}

type WatchOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxCachedAge time.Duration
}

var DefaultWatchOptions = WatchOptions{HighAccuracy: true, Timeout: 15 * time.Second, MaxCachedAge: 5 * time.Second}

// Locator is the device position source. Watch errors are reported through
// onErr as ErrPermissionDenied, ErrPositionUnavailable or ErrTimeout.
type Locator interface {
	Permission(ctx context.Context) (Permission, error)
	Watch(opts WatchOptions, onFix func(Fix), onErr func(error)) (stop func(), err error)
}

// Emitter is satisfied by *channel.Client.
type Emitter interface {
	Connected() bool
	Emit(event string, payload any) error
}

// ProfileStore persists the driver's sharing consent.
type ProfileStore interface {
	SetLocationSharing(ctx context.Context, share bool) error
}

type Options struct {
	Clock    clock.Clock
	Interval time.Duration
	Logger   *slog.Logger
}

type Status struct {
	State      State
	Permission Permission
	LastError  error
	Latest     *Fix
}

type Service struct {
	locator  Locator
	emitter  Emitter
	profile  ProfileStore
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
	box      mailbox

	mu         sync.Mutex
	state      State
	permission Permission
	hasShared  bool
	lastErr    error
	stopWatch  func()
	ticker     clock.Timer
	session    int
	// switching is set while an Activate/Confirm/Deactivate is in flight.
	switching  bool
}

// New builds an inactive service. hasSharedBefore skips the first-activation confirmation.
func New(locator Locator, emitter Emitter, profile ProfileStore, hasSharedBefore bool, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Service{
		locator:    locator,
		emitter:    emitter,
		profile:    profile,
		clock:      opts.Clock,
		interval:   opts.Interval,
		logger:     logging.Or(opts.Logger),
		state:      StateInactive,
		permission: PermissionPrompt,
		hasShared:  hasSharedBefore,
	}
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state, Permission: s.permission, LastError: s.lastErr}
	if f, ok := s.box.peek(); ok {
		st.Latest = &f
	}
	return st
}

// Activate turns sharing on. The first activation ever returns
// ErrConfirmationRequired and waits for Confirm.
func (s *Service) Activate(ctx context.Context) error {
	return s.activate(ctx, false)
}

// Confirm completes a pending first activation.
func (s *Service) Confirm(ctx context.Context) error {
	s.mu.Lock()
	pending := s.state == StateAwaitingConfirmation
	s.mu.Unlock()
	if !pending {
		return s.activate(ctx, false)
	}
	return s.activate(ctx, true)
}

// Decline abandons a pending confirmation.
func (s *Service) Decline() {
	s.mu.Lock()
	if s.state == StateAwaitingConfirmation {
		s.state = StateInactive
	}
	s.mu.Unlock()
}

func (s *Service) activate(ctx context.Context, confirmed bool) error {
	s.mu.Lock()
	if s.state == StateActive {
		s.mu.Unlock()
		return nil
	}
	if s.switching {
		s.mu.Unlock()
		return ErrBusy
	}
	s.switching = true
	needConfirm := !s.hasShared && !confirmed
	s.mu.Unlock()
	defer s.endSwitch()

	perm, err := s.locator.Permission(ctx)
	if err != nil {
		return s.fail(err)
	}
	s.mu.Lock()
	s.permission = perm
	s.mu.Unlock()
	if perm == PermissionDenied {
		return s.fail(ErrPermissionDenied)
	}

	if needConfirm {
		s.mu.Lock()
		s.state = StateAwaitingConfirmation
		s.mu.Unlock()
		return ErrConfirmationRequired
	}

	if err := s.profile.SetLocationSharing(ctx, true); err != nil {
		s.logger.Warn("location_sharing_persist_failed", "share", true, "error", err)
		return s.fail(fmt.Errorf("%w: %v", ErrPersistFailed, err))
	}

	s.mu.Lock()
	s.session++
	session := s.session
	s.mu.Unlock()

	stop, err := s.locator.Watch(DefaultWatchOptions,
		func(f Fix) { s.onFix(session, f) },
		func(err error) { s.onWatchError(session, err) },
	)
	if err != nil {
		if perr := s.profile.SetLocationSharing(ctx, false); perr != nil {
			s.logger.Warn("location_sharing_persist_failed", "share", false, "error", perr)
		}
		return s.fail(err)
	}

	s.mu.Lock()
	s.stopWatch = stop
	s.ticker = s.clock.Every(s.interval, func() { s.tick(session) })
	s.state = StateActive
	s.hasShared = true
	s.lastErr = nil
	s.mu.Unlock()
	s.logger.Info("location_sharing_started")
	return nil
}

func (s *Service) endSwitch() {
	s.mu.Lock()
	s.switching = false
	s.mu.Unlock()
}

// fail records err and leaves the toggle off.
func (s *Service) fail(err error) error {
	s.mu.Lock()
	s.lastErr = err
	if s.state != StateActive {
		s.state = StateInactive
	}
	s.mu.Unlock()
	return err
}

// Deactivate turns sharing off. When persisting fails the service stays active.
func (s *Service) Deactivate(ctx context.Context) error {
	s.mu.Lock()
	if s.switching {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.state != StateActive {
		s.state = StateInactive
		s.mu.Unlock()
		return nil
	}
	s.switching = true
	s.mu.Unlock()
	defer s.endSwitch()

	if err := s.profile.SetLocationSharing(ctx, false); err != nil {
		s.logger.Warn("location_sharing_persist_failed", "share", false, "error", err)
		err = fmt.Errorf("%w: %v", ErrPersistFailed, err)
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	stop := s.stopWatch
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.stopWatch, s.ticker = nil, nil
	s.session++
	s.state = StateInactive
	s.box.clear()
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.logger.Info("location_sharing_stopped")
	return nil
}

// EmitNow sends the current sample immediately.
func (s *Service) EmitNow() error {
	s.mu.Lock()
	active := s.state == StateActive
	s.mu.Unlock()
	if !active {
		return ErrPositionUnavailable
	}
	f, ok := s.box.peek()
	if !ok {
		return ErrPositionUnavailable
	}
	return s.emit(f)
}

func (s *Service) onFix(session int, f Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session != s.session || !f.Position.Valid() {
		return
	}
	s.box.put(f)
	s.lastErr = nil
}

func (s *Service) onWatchError(session int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session != s.session {
		return
	}
	s.lastErr = err
	if errors.Is(err, ErrPermissionDenied) {
		s.permission = PermissionDenied
	}
}

// tick never queues: a disconnected channel or an empty mailbox just skips this fire.
func (s *Service) tick(session int) {
	s.mu.Lock()
	live := session == s.session && s.state == StateActive
	s.mu.Unlock()
	if !live {
		return
	}
	f, ok := s.box.peek()
	if !ok {
		return
	}
	if !s.emitter.Connected() {
		s.logger.Debug("emit_skipped", "reason", "disconnected")
		return
	}
	if err := s.emit(f); err != nil {
		s.logger.Warn("emit_failed", "error", err)
	}
}

func (s *Service) emit(f Fix) error {
	return s.emitter.Emit(contracts.EventShareDriverLocation, contracts.ShareLocation{
		Lat:      f.Position.Lat,
		Lng:      f.Position.Lng,
		Accuracy: f.Accuracy,
	})
}

// mailbox holds only the latest fix.
type mailbox struct {
	mu  sync.Mutex
	fix Fix
	ok  bool
}

func (m *mailbox) put(f Fix) {
	m.mu.Lock()
	m.fix, m.ok = f, true
	m.mu.Unlock()
}

func (m *mailbox) peek() (Fix, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fix, m.ok
}

func (m *mailbox) clear() {
	m.mu.Lock()
	m.fix, m.ok = Fix{}, false
	m.mu.Unlock()
}
