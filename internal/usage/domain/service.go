package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/meterflow/pkg/db/pagination"
)

type IngestRequest struct {
	OrganizationID     string         `json:"organization_id"`
	TransactionID      string         `json:"transaction_id"`
	ExternalCustomerID string         `json:"external_customer_id"`
	Code               string         `json:"code"`
	Timestamp          time.Time      `json:"timestamp"`
	Properties         map[string]any `json:"properties"`
}

type ListRequest struct {
	OrganizationID     string `json:"organization_id"`
	ExternalCustomerID string `json:"external_customer_id"`
	Code               string `json:"code"`
	PageToken          string `json:"page_token"`
	PageSize           int32  `json:"page_size"`
}

type ListResponse struct {
	pagination.PageInfo
	UsageEvents []UsageEvent `json:"usage_events"`
}

type Service interface {
	// Ingest writes the event once per (org, transaction_id). A duplicate
	// returns the original event unchanged with wasNew=false.
	Ingest(ctx context.Context, req IngestRequest) (event *UsageEvent, wasNew bool, err error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidCustomer     = errors.New("invalid_customer")
	ErrInvalidCode         = errors.New("invalid_code")
	ErrUnknownMeterCode    = errors.New("unknown_meter_code")
	ErrInvalidProperties   = errors.New("invalid_properties")
	ErrRateLimited         = errors.New("rate_limited")
)
