// README: Order store backed by PostgreSQL; status changes are conditional on status and version.
package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"foodtrack/internal/types"
)

const defaultListLimit = 50

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const selectOrder = `
        SELECT id, client_id, driver_id, restaurant_id,
               restaurant_lat, restaurant_lng, delivery_lat, delivery_lng,
               status, status_version, payment_status,
               total::text, penalty_amount::text, refund_amount::text, cancellation_reason,
               created_at, cancelled_at, delivered_at
        FROM orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	var driverID, penalty, refund, reason sql.NullString
	var total string
	var cancelledAt, deliveredAt sql.NullTime

	err := row.Scan(
		&o.ID, &o.ClientID, &driverID, &o.RestaurantID,
		&o.RestaurantLocation.Lat, &o.RestaurantLocation.Lng, &o.DeliveryLocation.Lat, &o.DeliveryLocation.Lng,
		&o.Status, &o.StatusVersion, &o.PaymentStatus,
		&total, &penalty, &refund, &reason,
		&o.CreatedAt, &cancelledAt, &deliveredAt,
	)
	if err != nil {
		return nil, err
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("order %s total: %w", o.ID, err)
	}
	if driverID.Valid {
		d := types.ID(driverID.String)
		o.DriverID = &d
	}
	if o.PenaltyAmount, err = toDecimalPtr(penalty); err != nil {
		return nil, err
	}
	if o.RefundAmount, err = toDecimalPtr(refund); err != nil {
		return nil, err
	}
	if reason.Valid {
		o.CancellationReason = &reason.String
	}
	o.CancelledAt = toTimePtr(cancelledAt)
	o.DeliveredAt = toTimePtr(deliveredAt)
	return &o, nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, selectOrder+` WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]*Order, error) {
	var where []string
	var args []any
	if f.ClientID != nil {
		args = append(args, string(*f.ClientID))
		where = append(where, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if f.DriverID != nil {
		args = append(args, string(*f.DriverID))
		where = append(where, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	q := selectOrder
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	return s.query(ctx, q, args...)
}

func (s *Store) ActiveByDriver(ctx context.Context, driverID types.ID) ([]*Order, error) {
	return s.query(ctx, selectOrder+`
        WHERE driver_id = $1
          AND status NOT IN ('completed','cancelled','cancelled_by_client','cancelled_by_client_with_penalty',
                             'cancelled_by_admin','cancelled_by_admin_with_penalty')
        ORDER BY created_at`, string(driverID))
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]*Order, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) UpdateStatus(ctx context.Context, ch StatusChange) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE orders
        SET status = $1::text,
            status_version = status_version + 1,
            driver_id = COALESCE($2, driver_id),
            delivered_at = CASE WHEN $1::text = 'delivered' THEN $3 ELSE delivered_at END
        WHERE id = $4 AND status = $5 AND status_version = $6`,
		string(ch.To),
		toStringPtr(ch.DriverID),
		ch.At,
		string(ch.OrderID),
		string(ch.From),
		ch.Version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ApplyCancellation(ctx context.Context, id types.ID, from Status, version int, c Cancellation) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE orders
        SET status = $1,
            status_version = status_version + 1,
            penalty_amount = $2::numeric,
            refund_amount = $3::numeric,
            cancellation_reason = $4,
            cancelled_at = $5
        WHERE id = $6 AND status = $7 AND status_version = $8`,
		string(c.Target),
		decimalString(c.Penalty),
		decimalString(c.Refund),
		c.Reason,
		c.At,
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpsertRating overwrites any previous rating for the order.
func (s *Store) UpsertRating(ctx context.Context, r Rating) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO order_ratings (
            order_id, client_id, driver_stars, driver_comment,
            restaurant_stars, restaurant_comment, rated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (order_id) DO UPDATE SET
            driver_stars = EXCLUDED.driver_stars,
            driver_comment = EXCLUDED.driver_comment,
            restaurant_stars = EXCLUDED.restaurant_stars,
            restaurant_comment = EXCLUDED.restaurant_comment,
            rated_at = EXCLUDED.rated_at`,
		string(r.OrderID),
		string(r.ClientID),
		r.DriverStars,
		r.DriverComment,
		r.RestaurantStars,
		r.RestaurantComment,
		r.RatedAt,
	)
	return err
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO order_state_events (
            order_id, from_status, to_status, actor_role, actor_id, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.OrderID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorRole,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func decimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(2)
	return &s
}

func toDecimalPtr(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
