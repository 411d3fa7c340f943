// README: Driver profile store backed by PostgreSQL.
package profile

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"foodtrack/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, driverID types.ID) (Profile, bool, error) {
	p := Profile{DriverID: driverID}
	err := s.db.QueryRow(ctx, `
        SELECT is_available, share_location, has_shared_location,
               verification_status, verification_note, updated_at
        FROM driver_profiles WHERE driver_id = $1`, string(driverID),
	).Scan(&p.IsAvailable, &p.ShareLocation, &p.HasSharedLocation, &p.VerificationStatus, &p.VerificationNote, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, err
	}
	return p, true, nil
}

func (s *Store) Save(ctx context.Context, p Profile) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO driver_profiles (
            driver_id, is_available, share_location, has_shared_location,
            verification_status, verification_note, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (driver_id) DO UPDATE SET
            is_available = EXCLUDED.is_available,
            share_location = EXCLUDED.share_location,
            has_shared_location = driver_profiles.has_shared_location OR EXCLUDED.has_shared_location,
            verification_status = EXCLUDED.verification_status,
            verification_note = EXCLUDED.verification_note,
            updated_at = EXCLUDED.updated_at`,
		string(p.DriverID),
		p.IsAvailable,
		p.ShareLocation,
		p.HasSharedLocation,
		string(p.VerificationStatus),
		p.VerificationNote,
		p.UpdatedAt,
	)
	return err
}
