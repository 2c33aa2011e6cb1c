package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	aggdomain "github.com/smallbiznis/meterflow/internal/aggregation/domain"
	"github.com/smallbiznis/meterflow/internal/eventstore"
	"github.com/smallbiznis/meterflow/internal/expression"
	meterdomain "github.com/smallbiznis/meterflow/internal/meter/domain"
	obsmetrics "github.com/smallbiznis/meterflow/internal/observability/metrics"
	"github.com/smallbiznis/meterflow/internal/rounding"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	MeterRepo  meterdomain.Repository
	Events     eventstore.Store
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	meterRepo  meterdomain.Repository
	events     eventstore.Store
	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) aggdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("aggregation.service"),

		meterRepo:  p.MeterRepo,
		events:     p.Events,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Aggregate(ctx context.Context, req aggdomain.Request) (aggdomain.Result, error) {
	orgID, err := snowflake.ParseString(strings.TrimSpace(req.OrganizationID))
	if err != nil || orgID == 0 {
		return aggdomain.Result{}, aggdomain.ErrInvalidOrganization
	}

	// The meter is read on every call so a config change between invocations
	// takes effect immediately.
	meter, err := s.meterRepo.FindByCode(ctx, s.db, orgID, strings.TrimSpace(req.MeterCode))
	if err != nil {
		return aggdomain.Result{}, err
	}
	if meter == nil {
		return aggdomain.Result{}, aggdomain.ErrMeterNotFound
	}

	if req.To.Before(req.From) {
		return aggdomain.Result{}, aggdomain.ErrEmptyWindow
	}

	if meter.Aggregation.RequiresFieldName() && (meter.FieldName == nil || *meter.FieldName == "") {
		return aggdomain.Result{}, aggdomain.ErrMissingFieldName
	}
	if meter.Aggregation.RequiresExpression() && (meter.Expression == nil || *meter.Expression == "") {
		return aggdomain.Result{}, aggdomain.ErrMissingExpression
	}

	events, err := s.events.Query(ctx, eventstore.QueryParams{
		OrgID:              orgID,
		ExternalCustomerID: strings.TrimSpace(req.ExternalCustomerID),
		Code:               meter.Code,
		From:               req.From,
		To:                 req.To,
		Filters:            req.Filters,
	})
	if err != nil {
		return aggdomain.Result{}, err
	}

	value, err := s.compute(meter, events, req)
	if err != nil {
		return aggdomain.Result{}, err
	}

	if meter.RoundingFunction != nil {
		value = rounding.Apply(value, *meter.RoundingFunction, meter.RoundingPrecision)
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordAggregation(ctx, string(meter.Aggregation), s.events.Name())
	}

	return aggdomain.Result{Value: value, EventsCount: int64(len(events))}, nil
}

func (s *Service) compute(meter *meterdomain.Meter, events []eventstore.Event, req aggdomain.Request) (decimal.Decimal, error) {
	switch meter.Aggregation {
	case meterdomain.AggregationCount:
		return decimal.NewFromInt(int64(len(events))), nil
	case meterdomain.AggregationSum:
		return sumField(events, *meter.FieldName), nil
	case meterdomain.AggregationMax:
		return maxField(events, *meter.FieldName), nil
	case meterdomain.AggregationUniqueCount:
		return uniqueCount(events, *meter.FieldName), nil
	case meterdomain.AggregationLatest:
		return latestField(events, *meter.FieldName), nil
	case meterdomain.AggregationWeightedSum:
		return weightedSum(events, *meter.FieldName, req.From, req.To), nil
	case meterdomain.AggregationCustom:
		return s.evaluatePerEvent(events, *meter.Expression)
	default:
		return decimal.Zero, meterdomain.ErrInvalidAggregation
	}
}

// sumField adds the numeric field across events. Events without the field,
// or with a non-numeric value, contribute zero.
func sumField(events []eventstore.Event, field string) decimal.Decimal {
	total := decimal.Zero
	for _, event := range events {
		if value, ok := eventstore.DecimalValue(event.Properties[field]); ok {
			total = total.Add(value)
		}
	}
	return total
}

func maxField(events []eventstore.Event, field string) decimal.Decimal {
	max := decimal.Zero
	found := false
	for _, event := range events {
		value, ok := eventstore.DecimalValue(event.Properties[field])
		if !ok {
			continue
		}
		if !found || value.GreaterThan(max) {
			max = value
			found = true
		}
	}
	return max
}

// uniqueCount counts distinct canonicalized non-null values of the field.
func uniqueCount(events []eventstore.Event, field string) decimal.Decimal {
	seen := make(map[string]struct{})
	for _, event := range events {
		value, ok := event.Properties[field]
		if !ok || value == nil {
			continue
		}
		seen[eventstore.PropertyString(value)] = struct{}{}
	}
	return decimal.NewFromInt(int64(len(seen)))
}

// latestField returns the field value of the event with the greatest
// timestamp. Events arrive ordered with insertion order breaking timestamp
// ties, so the last element wins.
func latestField(events []eventstore.Event, field string) decimal.Decimal {
	if len(events) == 0 {
		return decimal.Zero
	}
	value, ok := eventstore.DecimalValue(events[len(events)-1].Properties[field])
	if !ok {
		return decimal.Zero
	}
	return value
}

// weightedSum time-weights each value by the span until the next event (or
// the window end), normalized over the window. A single event covering the
// whole window therefore equals its value.
func weightedSum(events []eventstore.Event, field string, from, to time.Time) decimal.Decimal {
	windowSeconds := decimal.NewFromFloat(to.Sub(from).Seconds())
	if windowSeconds.Sign() <= 0 {
		return decimal.Zero
	}

	total := decimal.Zero
	for i, event := range events {
		value, ok := eventstore.DecimalValue(event.Properties[field])
		if !ok {
			continue
		}
		spanEnd := to
		if i+1 < len(events) {
			spanEnd = events[i+1].Timestamp
		}
		span := decimal.NewFromFloat(spanEnd.Sub(event.Timestamp).Seconds())
		if span.Sign() <= 0 {
			continue
		}
		total = total.Add(value.Mul(span))
	}
	return total.Div(windowSeconds)
}

// evaluatePerEvent runs the meter expression once per event over its numeric
// properties and sums the results. Events missing a referenced variable
// contribute zero rather than failing the whole window.
func (s *Service) evaluatePerEvent(events []eventstore.Event, formula string) (decimal.Decimal, error) {
	expr, err := expression.Parse(formula)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, event := range events {
		vars := make(map[string]decimal.Decimal, len(event.Properties))
		for name, raw := range event.Properties {
			if value, ok := eventstore.DecimalValue(raw); ok {
				vars[name] = value
			}
		}
		value, err := expr.Evaluate(vars)
		if err != nil {
			s.log.Debug("expression skipped event", zap.Error(err))
			continue
		}
		total = total.Add(value)
	}
	return total, nil
}
