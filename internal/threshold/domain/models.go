// Package domain contains usage threshold configuration and the immutable
// crossing records the monitor writes.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageThreshold triggers when projected period usage reaches AmountCents.
// It belongs to exactly one of a plan or a subscription; subscription-level
// thresholds take effect alongside the plan's.
type UsageThreshold struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	OrgID          snowflake.ID  `json:"organization_id" gorm:"column:org_id;not null;index"`
	PlanID         *snowflake.ID `json:"plan_id" gorm:"index"`
	SubscriptionID *snowflake.ID `json:"subscription_id" gorm:"index"`
	AmountCents    int64         `json:"amount_cents" gorm:"not null"`
	Currency       string        `json:"currency" gorm:"type:text;not null"`
	Recurring      bool          `json:"recurring" gorm:"not null;default:false"`
	CreatedAt      time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time     `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageThreshold) TableName() string { return "usage_thresholds" }

// AppliedUsageThreshold records one crossing. The unique index over
// (threshold, subscription, period bucket) makes a crossing at-most-once per
// period at the store, with no in-process locking.
type AppliedUsageThreshold struct {
	ID                       snowflake.ID `json:"id" gorm:"primaryKey"`
	UsageThresholdID         snowflake.ID `json:"usage_threshold_id" gorm:"not null;index:ux_applied_thresholds_period,unique,priority:1"`
	SubscriptionID           snowflake.ID `json:"subscription_id" gorm:"not null;index:ux_applied_thresholds_period,unique,priority:2"`
	PeriodBucket             string       `json:"period_bucket" gorm:"type:text;not null;index:ux_applied_thresholds_period,unique,priority:3"`
	CrossedAt                time.Time    `json:"crossed_at" gorm:"not null;index"`
	LifetimeUsageAmountCents int64        `json:"lifetime_usage_amount_cents" gorm:"not null"`
	CreatedAt                time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AppliedUsageThreshold) TableName() string { return "applied_usage_thresholds" }
