package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	aggdomain "github.com/smallbiznis/meterflow/internal/aggregation/domain"
	"github.com/smallbiznis/meterflow/internal/charge/calculator"
	chargedomain "github.com/smallbiznis/meterflow/internal/charge/domain"
	"github.com/smallbiznis/meterflow/internal/clock"
	"github.com/smallbiznis/meterflow/internal/eventstore"
	obsmetrics "github.com/smallbiznis/meterflow/internal/observability/metrics"
	subdomain "github.com/smallbiznis/meterflow/internal/subscription/domain"
	thresholddomain "github.com/smallbiznis/meterflow/internal/threshold/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Aggregation aggdomain.Service
	Events      eventstore.Store
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	aggregation aggdomain.Service
	events      eventstore.Store
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) thresholddomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("threshold.service"),

		genID:       p.GenID,
		clock:       p.Clock,
		aggregation: p.Aggregation,
		events:      p.Events,
		obsMetrics:  p.ObsMetrics,
	}
}

// ProjectedAmount sums the charge calculator output over every metered
// charge on the subscription's plan. Flat fees carry no usage and are not
// part of the projection.
func (s *Service) ProjectedAmount(ctx context.Context, sub subdomain.Subscription, periodStart, periodEnd time.Time) (decimal.Decimal, error) {
	if sub.PlanID == 0 {
		return decimal.Zero, thresholddomain.ErrPlanRequired
	}

	var charges []chargedomain.Charge
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND plan_id = ?", sub.OrgID, sub.PlanID).
		Find(&charges).Error
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, charge := range charges {
		if charge.MeterCode == nil {
			continue
		}
		amount, err := s.rateCharge(ctx, sub, charge, periodStart, periodEnd)
		if err != nil {
			return decimal.Zero, err
		}
		if amount != nil {
			total = total.Add(*amount)
		}
	}
	return total, nil
}

func (s *Service) rateCharge(ctx context.Context, sub subdomain.Subscription, charge chargedomain.Charge, periodStart, periodEnd time.Time) (*decimal.Decimal, error) {
	props, err := charge.DecodeProperties()
	if err != nil {
		return nil, err
	}

	result, err := s.aggregation.Aggregate(ctx, aggdomain.Request{
		OrganizationID:     sub.OrgID.String(),
		MeterCode:          *charge.MeterCode,
		ExternalCustomerID: sub.ExternalCustomerID,
		From:               periodStart,
		To:                 periodEnd,
	})
	if err != nil {
		return nil, err
	}

	extras := calculator.Extras{}
	switch charge.Model {
	case chargedomain.ModelPercentage, chargedomain.ModelGraduatedPercentage:
		// The aggregated value is the monetary base for percentage models.
		extras.BaseAmount = result.Value
	case chargedomain.ModelDynamic:
		extras.EventProperties, err = s.events.FetchProperties(ctx, eventstore.QueryParams{
			OrgID:              sub.OrgID,
			ExternalCustomerID: sub.ExternalCustomerID,
			Code:               *charge.MeterCode,
			From:               periodStart,
			To:                 periodEnd,
		})
		if err != nil {
			return nil, err
		}
	}

	return calculator.Calculate(charge.Model, result.Value, props, extras)
}

func (s *Service) CheckThresholds(ctx context.Context, sub subdomain.Subscription, periodStart, periodEnd time.Time) ([]thresholddomain.Crossing, error) {
	var thresholds []thresholddomain.UsageThreshold
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND (subscription_id = ? OR (plan_id = ? AND subscription_id IS NULL))",
			sub.OrgID, sub.ID, sub.PlanID).
		Order("amount_cents ASC").
		Find(&thresholds).Error
	if err != nil {
		return nil, err
	}
	if len(thresholds) == 0 {
		return nil, nil
	}

	projected, err := s.ProjectedAmount(ctx, sub, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	projectedCents := projected.Round(0).IntPart()

	bucket := periodStart.UTC().Format(time.RFC3339)
	now := s.clock.Now()

	var crossings []thresholddomain.Crossing
	for _, threshold := range thresholds {
		// Reaching the amount exactly counts as a crossing.
		if !projected.GreaterThanOrEqual(decimal.NewFromInt(threshold.AmountCents)) {
			continue
		}

		if !threshold.Recurring {
			crossed, err := s.everCrossed(ctx, threshold.ID, sub.ID)
			if err != nil {
				return nil, err
			}
			if crossed {
				continue
			}
		}

		applied := thresholddomain.AppliedUsageThreshold{
			ID:                       s.genID.Generate(),
			UsageThresholdID:         threshold.ID,
			SubscriptionID:           sub.ID,
			PeriodBucket:             bucket,
			CrossedAt:                now,
			LifetimeUsageAmountCents: projectedCents,
			CreatedAt:                now,
		}
		result := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "usage_threshold_id"},
					{Name: "subscription_id"},
					{Name: "period_bucket"},
				},
				DoNothing: true,
			}).
			Create(&applied)
		if result.Error != nil {
			return nil, result.Error
		}
		// Zero rows means another checker already recorded this crossing.
		if result.RowsAffected == 0 {
			continue
		}

		if s.obsMetrics != nil {
			s.obsMetrics.RecordThresholdCrossing(ctx, threshold.Currency)
		}
		crossings = append(crossings, thresholddomain.Crossing{
			Threshold:            threshold,
			CrossedAt:            now,
			ProjectedAmountCents: projectedCents,
		})
	}
	return crossings, nil
}

func (s *Service) everCrossed(ctx context.Context, thresholdID, subscriptionID snowflake.ID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&thresholddomain.AppliedUsageThreshold{}).
		Where("usage_threshold_id = ? AND subscription_id = ?", thresholdID, subscriptionID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
