// Package domain contains persistence models for billable meters.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterflow/internal/rounding"
)

// AggregationType is the closed set of aggregation semantics a meter can use.
type AggregationType string

const (
	AggregationCount       AggregationType = "COUNT"
	AggregationSum         AggregationType = "SUM"
	AggregationMax         AggregationType = "MAX"
	AggregationUniqueCount AggregationType = "UNIQUE_COUNT"
	AggregationLatest      AggregationType = "LATEST"
	AggregationWeightedSum AggregationType = "WEIGHTED_SUM"
	AggregationCustom      AggregationType = "CUSTOM"
)

// Valid reports whether the aggregation type is one of the supported variants.
func (a AggregationType) Valid() bool {
	switch a {
	case AggregationCount, AggregationSum, AggregationMax, AggregationUniqueCount,
		AggregationLatest, AggregationWeightedSum, AggregationCustom:
		return true
	default:
		return false
	}
}

// RequiresFieldName reports whether the aggregation reads a property field.
func (a AggregationType) RequiresFieldName() bool {
	switch a {
	case AggregationSum, AggregationMax, AggregationUniqueCount,
		AggregationLatest, AggregationWeightedSum:
		return true
	default:
		return false
	}
}

// RequiresExpression reports whether the aggregation evaluates a formula per event.
func (a AggregationType) RequiresExpression() bool {
	return a == AggregationCustom
}

// Meter defines a usage measurement unit. Code is immutable identity,
// display fields are mutable.
type Meter struct {
	ID                snowflake.ID       `json:"id" gorm:"primaryKey"`
	OrgID             snowflake.ID       `json:"organization_id" gorm:"column:org_id;not null;index:ux_meters_org_code,unique,priority:1"`
	Code              string             `json:"code" gorm:"type:text;not null;index:ux_meters_org_code,unique,priority:2"`
	Name              string             `json:"name" gorm:"type:text;not null"`
	Aggregation       AggregationType    `json:"aggregation" gorm:"type:text;not null"`
	FieldName         *string            `json:"field_name" gorm:"type:text"`
	Expression        *string            `json:"expression" gorm:"type:text"`
	RoundingFunction  *rounding.Function `json:"rounding_function" gorm:"type:text"`
	RoundingPrecision *int32             `json:"rounding_precision" gorm:"type:integer"`
	Unit              string             `json:"unit" gorm:"type:text;not null"`
	Active            bool               `json:"active" gorm:"not null;default:true"`
	CreatedAt         time.Time          `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time          `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Meter) TableName() string { return "meters" }
