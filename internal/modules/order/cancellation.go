// README: Cancellation policy and rating validation (pure functions, no storage).
package order

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"foodtrack/internal/types"
)

const (
	MaxReasonLength = 500
	MinStars        = 1
	MaxStars        = 5
)

var penaltyRate = decimal.RequireFromString("0.10")

// Cancellation is the outcome of applying the cancellation policy to an order.
type Cancellation struct {
	Target  Status
	Penalty *decimal.Decimal
	Refund  *decimal.Decimal
	Reason  *string
	At      time.Time
}

// SplitPenalty retains 10% of total as penalty and refunds the remainder, both rounded to cents.
func SplitPenalty(total decimal.Decimal) (penalty, refund decimal.Decimal) {
	penalty = total.Mul(penaltyRate).Round(2)
	refund = total.Sub(penalty).Round(2)
	return penalty, refund
}

// PlanCancellation validates a cancellation request and computes its economics.
func PlanCancellation(o *Order, actor Actor, reason string, now time.Time) (Cancellation, error) {
	if IsTerminal(o.Status) {
		return Cancellation{}, ErrInvalidState
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return Cancellation{}, ErrBadRequest
	}

	paid := o.PaymentStatus == PaymentPaid
	var target Status
	switch {
	case actor.System:
		target = StatusCancelled
	case actor.Role == types.RoleClient:
		if o.ClientID != actor.ID {
			return Cancellation{}, ErrForbidden
		}
		target = StatusCancelledByClient
		if paid {
			target = StatusCancelledByClientWithPenalty
		}
	case actor.Role == types.RoleAdmin:
		target = StatusCancelledByAdmin
		if paid {
			target = StatusCancelledByAdminWithPenalty
		}
	default:
		return Cancellation{}, ErrForbidden
	}

	c := Cancellation{Target: target, At: now}
	if paid {
		penalty, refund := SplitPenalty(o.Total)
		c.Penalty = &penalty
		c.Refund = &refund
	}
	if r := strings.TrimSpace(reason); r != "" {
		c.Reason = &r
	}
	return c, nil
}

func ValidateRating(r Rating) error {
	if r.DriverStars < MinStars || r.DriverStars > MaxStars {
		return ErrInvalidRating
	}
	if r.RestaurantStars < MinStars || r.RestaurantStars > MaxStars {
		return ErrInvalidRating
	}
	return nil
}

// Apply returns a copy of o with the cancellation recorded.
func (c Cancellation) Apply(o Order) Order {
	o.Status = c.Target
	o.StatusVersion++
	o.PenaltyAmount = c.Penalty
	o.RefundAmount = c.Refund
	o.CancellationReason = c.Reason
	at := c.At
	o.CancelledAt = &at
	return o
}
