package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	aggservice "github.com/smallbiznis/meterflow/internal/aggregation/service"
	chargedomain "github.com/smallbiznis/meterflow/internal/charge/domain"
	"github.com/smallbiznis/meterflow/internal/clock"
	"github.com/smallbiznis/meterflow/internal/eventstore"
	meterdomain "github.com/smallbiznis/meterflow/internal/meter/domain"
	meterrepo "github.com/smallbiznis/meterflow/internal/meter/repository"
	subdomain "github.com/smallbiznis/meterflow/internal/subscription/domain"
	thresholddomain "github.com/smallbiznis/meterflow/internal/threshold/domain"
	"github.com/smallbiznis/meterflow/internal/threshold/service"
	usagedomain "github.com/smallbiznis/meterflow/internal/usage/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   thresholddomain.Service
	sub   subdomain.Subscription
	start time.Time
	end   time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&meterdomain.Meter{},
		&usagedomain.UsageEvent{},
		&chargedomain.Charge{},
		&thresholddomain.UsageThreshold{},
		&thresholddomain.AppliedUsageThreshold{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(start.Add(10 * 24 * time.Hour))

	store := eventstore.NewRowStore(db)
	agg := aggservice.NewService(aggservice.ServiceParam{
		DB:        db,
		Log:       zap.NewNop(),
		MeterRepo: meterrepo.Provide(),
		Events:    store,
	})
	svc := service.NewService(service.ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fake,
		Aggregation: agg,
		Events:      store,
	})

	orgID := node.Generate()
	f := &fixture{
		db:    db,
		node:  node,
		clock: fake,
		svc:   svc,
		start: start,
		end:   start.AddDate(0, 1, 0),
		sub: subdomain.Subscription{
			ID:                 node.Generate(),
			OrgID:              orgID,
			ExternalCustomerID: "cust-1",
			PlanID:             node.Generate(),
			BillingTime:        subdomain.BillingTimeCalendar,
		},
	}

	// Meter api_calls, SUM over "count"; charge: 100 cents per unit.
	field := "count"
	code := "api_calls"
	require.NoError(t, meterrepo.Provide().Insert(context.Background(), db, &meterdomain.Meter{
		ID:          node.Generate(),
		OrgID:       orgID,
		Code:        code,
		Name:        code,
		Aggregation: meterdomain.AggregationSum,
		FieldName:   &field,
		Unit:        "call",
		Active:      true,
		CreatedAt:   start,
		UpdatedAt:   start,
	}))
	require.NoError(t, db.Create(&chargedomain.Charge{
		ID:         node.Generate(),
		OrgID:      orgID,
		PlanID:     f.sub.PlanID,
		MeterCode:  &code,
		Model:      chargedomain.ModelStandard,
		Properties: datatypes.JSONMap{"unit_price": float64(100)},
		CreatedAt:  start,
		UpdatedAt:  start,
	}).Error)
	return f
}

func (f *fixture) addUsage(t *testing.T, txn string, count float64) {
	t.Helper()
	require.NoError(t, f.db.Create(&usagedomain.UsageEvent{
		ID:                 f.node.Generate(),
		OrgID:              f.sub.OrgID,
		TransactionID:      txn,
		ExternalCustomerID: "cust-1",
		Code:               "api_calls",
		Timestamp:          f.start.Add(time.Hour),
		Properties:         datatypes.JSONMap{"count": count},
		CreatedAt:          f.start,
	}).Error)
}

func (f *fixture) addThreshold(t *testing.T, amountCents int64, recurring bool) thresholddomain.UsageThreshold {
	t.Helper()
	threshold := thresholddomain.UsageThreshold{
		ID:          f.node.Generate(),
		OrgID:       f.sub.OrgID,
		PlanID:      &f.sub.PlanID,
		AmountCents: amountCents,
		Currency:    "USD",
		Recurring:   recurring,
		CreatedAt:   f.start,
		UpdatedAt:   f.start,
	}
	require.NoError(t, f.db.Create(&threshold).Error)
	return threshold
}

func TestProjectedAmount(t *testing.T) {
	f := setup(t)
	f.addUsage(t, "txn-1", 30)
	f.addUsage(t, "txn-2", 20)

	projected, err := f.svc.ProjectedAmount(context.Background(), f.sub, f.start, f.end)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(5000).Equal(projected), projected.String())
}

func TestProjectedAmountDynamicCharge(t *testing.T) {
	f := setup(t)

	// Second meter rated per event: 5 cents per gb transferred.
	field := "gb"
	code := "data_transfer"
	require.NoError(t, meterrepo.Provide().Insert(context.Background(), f.db, &meterdomain.Meter{
		ID:          f.node.Generate(),
		OrgID:       f.sub.OrgID,
		Code:        code,
		Name:        code,
		Aggregation: meterdomain.AggregationSum,
		FieldName:   &field,
		Unit:        "gb",
		Active:      true,
		CreatedAt:   f.start,
		UpdatedAt:   f.start,
	}))
	require.NoError(t, f.db.Create(&chargedomain.Charge{
		ID:         f.node.Generate(),
		OrgID:      f.sub.OrgID,
		PlanID:     f.sub.PlanID,
		MeterCode:  &code,
		Model:      chargedomain.ModelDynamic,
		Properties: datatypes.JSONMap{"expression": "gb * 5"},
		CreatedAt:  f.start,
		UpdatedAt:  f.start,
	}).Error)

	for i, gb := range []float64{10, 20} {
		require.NoError(t, f.db.Create(&usagedomain.UsageEvent{
			ID:                 f.node.Generate(),
			OrgID:              f.sub.OrgID,
			TransactionID:      fmt.Sprintf("txn-transfer-%d", i),
			ExternalCustomerID: "cust-1",
			Code:               code,
			Timestamp:          f.start.Add(time.Duration(i+1) * time.Hour),
			Properties:         datatypes.JSONMap{"gb": gb},
			CreatedAt:          f.start,
		}).Error)
	}

	projected, err := f.svc.ProjectedAmount(context.Background(), f.sub, f.start, f.end)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(150).Equal(projected), projected.String())
}

func TestCheckThresholdsExactEqualityCrossesOnce(t *testing.T) {
	f := setup(t)
	f.addThreshold(t, 10000, true)
	// 100 units at 100 cents lands exactly on the threshold.
	f.addUsage(t, "txn-1", 100)

	crossings, err := f.svc.CheckThresholds(context.Background(), f.sub, f.start, f.end)
	require.NoError(t, err)
	require.Len(t, crossings, 1)
	require.Equal(t, int64(10000), crossings[0].ProjectedAmountCents)

	// The same period never records a second crossing.
	crossings, err = f.svc.CheckThresholds(context.Background(), f.sub, f.start, f.end)
	require.NoError(t, err)
	require.Empty(t, crossings)

	var count int64
	require.NoError(t, f.db.Model(&thresholddomain.AppliedUsageThreshold{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestCheckThresholdsBelowAmount(t *testing.T) {
	f := setup(t)
	f.addThreshold(t, 10000, true)
	f.addUsage(t, "txn-1", 99)

	crossings, err := f.svc.CheckThresholds(context.Background(), f.sub, f.start, f.end)
	require.NoError(t, err)
	require.Empty(t, crossings)
}

func TestCheckThresholdsAscendingMultiple(t *testing.T) {
	f := setup(t)
	low := f.addThreshold(t, 2000, true)
	high := f.addThreshold(t, 8000, true)
	f.addUsage(t, "txn-1", 90)

	crossings, err := f.svc.CheckThresholds(context.Background(), f.sub, f.start, f.end)
	require.NoError(t, err)
	require.Len(t, crossings, 2)
	require.Equal(t, low.ID, crossings[0].Threshold.ID)
	require.Equal(t, high.ID, crossings[1].Threshold.ID)
}

func TestRecurringThresholdRecrossesInNewPeriod(t *testing.T) {
	f := setup(t)
	f.addThreshold(t, 5000, true)
	f.addUsage(t, "txn-1", 60)

	crossings, err := f.svc.CheckThresholds(context.Background(), f.sub, f.start, f.end)
	require.NoError(t, err)
	require.Len(t, crossings, 1)

	// Next period: usage there crosses again under a new bucket.
	nextStart := f.end
	nextEnd := nextStart.AddDate(0, 1, 0)
	require.NoError(t, f.db.Create(&usagedomain.UsageEvent{
		ID:                 f.node.Generate(),
		OrgID:              f.sub.OrgID,
		TransactionID:      "txn-next",
		ExternalCustomerID: "cust-1",
		Code:               "api_calls",
		Timestamp:          nextStart.Add(time.Hour),
		Properties:         datatypes.JSONMap{"count": float64(60)},
		CreatedAt:          nextStart,
	}).Error)

	crossings, err = f.svc.CheckThresholds(context.Background(), f.sub, nextStart, nextEnd)
	require.NoError(t, err)
	require.Len(t, crossings, 1)
}

func TestNonRecurringThresholdCrossesOnlyOnce(t *testing.T) {
	f := setup(t)
	f.addThreshold(t, 5000, false)
	f.addUsage(t, "txn-1", 60)

	crossings, err := f.svc.CheckThresholds(context.Background(), f.sub, f.start, f.end)
	require.NoError(t, err)
	require.Len(t, crossings, 1)

	nextStart := f.end
	nextEnd := nextStart.AddDate(0, 1, 0)
	require.NoError(t, f.db.Create(&usagedomain.UsageEvent{
		ID:                 f.node.Generate(),
		OrgID:              f.sub.OrgID,
		TransactionID:      "txn-next",
		ExternalCustomerID: "cust-1",
		Code:               "api_calls",
		Timestamp:          nextStart.Add(time.Hour),
		Properties:         datatypes.JSONMap{"count": float64(60)},
		CreatedAt:          nextStart,
	}).Error)

	crossings, err = f.svc.CheckThresholds(context.Background(), f.sub, nextStart, nextEnd)
	require.NoError(t, err)
	require.Empty(t, crossings)
}

func TestSubscriptionThresholdsUnionPlanThresholds(t *testing.T) {
	f := setup(t)
	f.addThreshold(t, 2000, true)
	subThreshold := thresholddomain.UsageThreshold{
		ID:             f.node.Generate(),
		OrgID:          f.sub.OrgID,
		SubscriptionID: &f.sub.ID,
		AmountCents:    4000,
		Currency:       "USD",
		CreatedAt:      f.start,
		UpdatedAt:      f.start,
	}
	require.NoError(t, f.db.Create(&subThreshold).Error)
	f.addUsage(t, "txn-1", 50)

	crossings, err := f.svc.CheckThresholds(context.Background(), f.sub, f.start, f.end)
	require.NoError(t, err)
	require.Len(t, crossings, 2)
}
