// Package domain contains subscription and plan models. Lifecycle
// transitions live outside this core; these types are read-only inputs to
// period, threshold and progressive billing computations.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillingTime anchors period boundaries either to the calendar or to the
// subscription's own start date.
type BillingTime string

const (
	BillingTimeCalendar    BillingTime = "CALENDAR"
	BillingTimeAnniversary BillingTime = "ANNIVERSARY"
)

func (b BillingTime) Valid() bool {
	return b == BillingTimeCalendar || b == BillingTimeAnniversary
}

// Interval is the billing cadence.
type Interval string

const (
	IntervalWeekly    Interval = "WEEKLY"
	IntervalMonthly   Interval = "MONTHLY"
	IntervalQuarterly Interval = "QUARTERLY"
	IntervalYearly    Interval = "YEARLY"
)

func (i Interval) Valid() bool {
	switch i {
	case IntervalWeekly, IntervalMonthly, IntervalQuarterly, IntervalYearly:
		return true
	default:
		return false
	}
}

// Months returns the interval length in months, 0 for WEEKLY.
func (i Interval) Months() int {
	switch i {
	case IntervalMonthly:
		return 1
	case IntervalQuarterly:
		return 3
	case IntervalYearly:
		return 12
	default:
		return 0
	}
}

// Status is the subscription lifecycle state. Transitions happen outside
// this core.
type Status string

const (
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusTerminated Status = "terminated"
	StatusCanceled   Status = "canceled"
)

// Plan groups charges under a billing cadence and a base fee.
type Plan struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID       snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index:ux_plans_org_code,unique,priority:1"`
	Code        string       `json:"code" gorm:"type:text;not null;index:ux_plans_org_code,unique,priority:2"`
	Name        string       `json:"name" gorm:"type:text;not null"`
	Interval    Interval     `json:"interval" gorm:"type:text;not null"`
	AmountCents int64        `json:"amount_cents" gorm:"not null;default:0"`
	Currency    string       `json:"currency" gorm:"type:text;not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

// Subscription binds a customer to a plan. The billing anchor is the first
// non-nil of StartedAt, SubscriptionAt and a non-zero CreatedAt.
type Subscription struct {
	ID                 snowflake.ID  `json:"id" gorm:"primaryKey"`
	OrgID              snowflake.ID  `json:"organization_id" gorm:"column:org_id;not null;index"`
	ExternalCustomerID string        `json:"external_customer_id" gorm:"type:text;not null;index"`
	PlanID             snowflake.ID  `json:"plan_id" gorm:"not null;index"`
	PreviousPlanID     *snowflake.ID `json:"previous_plan_id"`
	Status             Status        `json:"status" gorm:"type:text;not null;default:'active'"`
	BillingTime        BillingTime   `json:"billing_time" gorm:"type:text;not null"`
	StartedAt          *time.Time    `json:"started_at"`
	SubscriptionAt     *time.Time    `json:"subscription_at"`
	EndingAt           *time.Time    `json:"ending_at"`
	TrialPeriodDays    int32         `json:"trial_period_days" gorm:"not null;default:0"`
	TrialEndedAt       *time.Time    `json:"trial_ended_at"`
	CreatedAt          time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time     `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Anchor returns the instant anniversary periods and trials count from,
// nil when the subscription has no usable date at all.
func (s Subscription) Anchor() *time.Time {
	if s.StartedAt != nil {
		return s.StartedAt
	}
	if s.SubscriptionAt != nil {
		return s.SubscriptionAt
	}
	if !s.CreatedAt.IsZero() {
		created := s.CreatedAt
		return &created
	}
	return nil
}

var (
	ErrPlanNotFound         = errors.New("plan_not_found")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidBillingTime   = errors.New("invalid_billing_time")
	ErrInvalidInterval      = errors.New("invalid_interval")
)
