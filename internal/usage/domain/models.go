// Package domain contains persistence models for raw usage ingestion.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// UsageEvent stores a single unit of metered activity. Immutable once
// created; TransactionID is the org-scoped idempotency key.
type UsageEvent struct {
	ID                 snowflake.ID      `gorm:"primaryKey"`
	OrgID              snowflake.ID      `gorm:"not null;index:ux_usage_events_org_txn,unique,priority:1"`
	TransactionID      string            `gorm:"type:text;not null;index:ux_usage_events_org_txn,unique,priority:2"`
	ExternalCustomerID string            `gorm:"type:text;not null;index"`
	Code               string            `gorm:"type:text;not null;index"`
	Timestamp          time.Time         `gorm:"not null;index"`
	Properties         datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageEvent) TableName() string { return "usage_events" }
