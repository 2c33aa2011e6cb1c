package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, organizationID string) ([]Response, error)
	GetByID(ctx context.Context, organizationID, id string) (*Response, error)
	GetByCode(ctx context.Context, organizationID, code string) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, organizationID, id string) error
}

type CreateRequest struct {
	OrganizationID    string  `json:"organization_id"`
	Code              string  `json:"code"`
	Name              string  `json:"name"`
	Aggregation       string  `json:"aggregation_type"`
	FieldName         *string `json:"field_name,omitempty"`
	Expression        *string `json:"expression,omitempty"`
	RoundingFunction  *string `json:"rounding_function,omitempty"`
	RoundingPrecision *int32  `json:"rounding_precision,omitempty"`
	Unit              string  `json:"unit"`
	Active            *bool   `json:"active"`
}

type UpdateRequest struct {
	OrganizationID string  `json:"organization_id"`
	ID             string  `json:"id"`
	Name           *string `json:"name,omitempty"`
	Unit           *string `json:"unit,omitempty"`
	Active         *bool   `json:"active,omitempty"`
}

type Response struct {
	ID                string    `json:"id"`
	OrganizationID    string    `json:"organization_id"`
	Code              string    `json:"code"`
	Name              string    `json:"name"`
	Aggregation       string    `json:"aggregation"`
	FieldName         *string   `json:"field_name,omitempty"`
	Expression        *string   `json:"expression,omitempty"`
	RoundingFunction  *string   `json:"rounding_function,omitempty"`
	RoundingPrecision *int32    `json:"rounding_precision,omitempty"`
	Unit              string    `json:"unit"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidCode         = errors.New("invalid_code")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidAggregation  = errors.New("invalid_aggregation_type")
	ErrInvalidUnit         = errors.New("invalid_unit")
	ErrMissingFieldName    = errors.New("missing_field_name")
	ErrMissingExpression   = errors.New("missing_expression")
	ErrInvalidExpression   = errors.New("invalid_expression")
	ErrInvalidRounding     = errors.New("invalid_rounding")
	ErrNotFound            = errors.New("not_found")
	ErrInvalidID           = errors.New("invalid_id")
	ErrDuplicateCode       = errors.New("duplicate_code")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
