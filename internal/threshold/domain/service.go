package domain

import (
	"context"
	"errors"
	"time"

	subdomain "github.com/smallbiznis/meterflow/internal/subscription/domain"
	"github.com/shopspring/decimal"
)

// Crossing reports one threshold that was crossed during this check.
type Crossing struct {
	Threshold            UsageThreshold `json:"threshold"`
	CrossedAt            time.Time      `json:"crossed_at"`
	ProjectedAmountCents int64          `json:"projected_amount_cents"`
}

type Service interface {
	// ProjectedAmount rates the subscription's period usage across the
	// plan's metered charges, in cents.
	ProjectedAmount(ctx context.Context, sub subdomain.Subscription, periodStart, periodEnd time.Time) (decimal.Decimal, error)
	// CheckThresholds records and returns every threshold newly crossed in
	// this period. Re-checking after a crossing returns nothing new.
	CheckThresholds(ctx context.Context, sub subdomain.Subscription, periodStart, periodEnd time.Time) ([]Crossing, error)
}

var ErrPlanRequired = errors.New("plan_required")
