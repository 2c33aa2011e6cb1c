// Package domain defines the aggregation engine contract.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Request identifies one meter, one customer and one half-open window
// [From, To). Filters narrow the event set by exact property match.
type Request struct {
	OrganizationID     string            `json:"organization_id"`
	MeterCode          string            `json:"meter_code"`
	ExternalCustomerID string            `json:"external_customer_id"`
	From               time.Time         `json:"from"`
	To                 time.Time         `json:"to"`
	Filters            map[string]string `json:"filters"`
}

// Result is the aggregated value plus the number of events that produced it.
// EventsCount == 0 always implies Value == 0.
type Result struct {
	Value       decimal.Decimal `json:"value"`
	EventsCount int64           `json:"events_count"`
}

type Service interface {
	// Aggregate resolves the meter fresh on every call and computes its
	// configured aggregation over the window.
	Aggregate(ctx context.Context, req Request) (Result, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrMeterNotFound       = errors.New("meter_not_found")
	ErrMissingFieldName    = errors.New("missing_field_name")
	ErrMissingExpression   = errors.New("missing_expression")
	ErrEmptyWindow         = errors.New("empty_window")
)
