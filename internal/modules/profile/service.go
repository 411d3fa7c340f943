// README: Profile service persists driver flags and announces verification decisions.
package profile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"foodtrack/internal/logging"
	"foodtrack/internal/types"
)

var (
	ErrInvalidVerification = errors.New("invalid verification status")
	ErrNoteTooLong         = errors.New("verification note too long")
)

const MaxNoteLength = 500

type Repository interface {
	// Get returns the stored profile, or ok=false when the driver has none yet.
	Get(ctx context.Context, driverID types.ID) (Profile, bool, error)
	Save(ctx context.Context, p Profile) error
}

// Notifier is told when an admin decides on a driver's verification.
type Notifier interface {
	VerificationChanged(ctx context.Context, p Profile)
}

type Service struct {
	store    Repository
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Repository, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{store: store, notifier: notifier, logger: logging.Or(logger), now: time.Now}
}

func (s *Service) Get(ctx context.Context, driverID types.ID) (Profile, error) {
	p, ok, err := s.store.Get(ctx, driverID)
	if err != nil {
		return Profile{}, err
	}
	if !ok {
		return defaultProfile(driverID), nil
	}
	return p, nil
}

func (s *Service) SetAvailability(ctx context.Context, driverID types.ID, available bool) (Profile, error) {
	return s.update(ctx, driverID, func(p *Profile) error {
		p.IsAvailable = available
		return nil
	})
}

// SetLocationSharing records the preference; enabling it also marks the driver as having shared before.
func (s *Service) SetLocationSharing(ctx context.Context, driverID types.ID, share bool) (Profile, error) {
	return s.update(ctx, driverID, func(p *Profile) error {
		p.ShareLocation = share
		if share {
			p.HasSharedLocation = true
		}
		return nil
	})
}

func (s *Service) SetVerification(ctx context.Context, driverID types.ID, status VerificationStatus, note string) (Profile, error) {
	if !status.Valid() {
		return Profile{}, ErrInvalidVerification
	}
	if len([]rune(note)) > MaxNoteLength {
		return Profile{}, ErrNoteTooLong
	}
	p, err := s.update(ctx, driverID, func(p *Profile) error {
		p.VerificationStatus = status
		p.VerificationNote = note
		return nil
	})
	if err != nil {
		return Profile{}, err
	}
	s.logger.Info("driver_verification_changed", "driver_id", string(driverID), "status", string(status))
	if s.notifier != nil {
		s.notifier.VerificationChanged(ctx, p)
	}
	return p, nil
}

func (s *Service) update(ctx context.Context, driverID types.ID, mutate func(*Profile) error) (Profile, error) {
	p, err := s.Get(ctx, driverID)
	if err != nil {
		return Profile{}, err
	}
	if err := mutate(&p); err != nil {
		return Profile{}, err
	}
	p.UpdatedAt = s.now()
	if err := s.store.Save(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}
