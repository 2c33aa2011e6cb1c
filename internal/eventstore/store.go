// Package eventstore exposes the event source consumed by the aggregation
// engine. Two backends implement the same contract: a row-oriented store
// reading usage_events and an in-memory column-oriented store. Both must
// produce identical results for every aggregation type; the shared
// conformance suite in this package holds them to that.
package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Event is a single usage event as seen by the aggregation engine. Events
// are returned ordered by timestamp ascending, insertion order breaking ties.
type Event struct {
	ID         snowflake.ID
	Timestamp  time.Time
	Properties map[string]any
}

// QueryParams selects events for one customer, meter and half-open window
// [From, To). Filters is an exact-match conjunction over event properties.
type QueryParams struct {
	OrgID              snowflake.ID
	ExternalCustomerID string
	Code               string
	From               time.Time
	To                 time.Time
	Filters            map[string]string
}

// Store is the event source strategy. Implementations are read-only; the
// engine never mutates events.
type Store interface {
	Name() string
	Query(ctx context.Context, params QueryParams) ([]Event, error)
	FetchProperties(ctx context.Context, params QueryParams) ([]map[string]any, error)
}

func matchesFilters(properties map[string]any, filters map[string]string) bool {
	for key, want := range filters {
		value, ok := properties[key]
		if !ok {
			return false
		}
		if PropertyString(value) != want {
			return false
		}
	}
	return true
}

// PropertyString canonicalizes a property value for comparison, so the same
// value matches whether it arrived as an int, a float or a JSON number.
func PropertyString(value any) string {
	if value == nil {
		return ""
	}
	if d, ok := DecimalValue(value); ok {
		return d.String()
	}
	return fmt.Sprintf("%v", value)
}

// DecimalValue converts a property value to a decimal when it is numeric.
func DecimalValue(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, true
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int32:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		if v == "" {
			return decimal.Zero, false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(v)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}
