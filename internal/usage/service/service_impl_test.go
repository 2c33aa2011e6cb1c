package service_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/meterflow/internal/clock"
	"github.com/smallbiznis/meterflow/internal/eventstore"
	meterdomain "github.com/smallbiznis/meterflow/internal/meter/domain"
	meterrepo "github.com/smallbiznis/meterflow/internal/meter/repository"
	usagedomain "github.com/smallbiznis/meterflow/internal/usage/domain"
	"github.com/smallbiznis/meterflow/internal/usage/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	sink  *eventstore.ColumnStore
	svc   usagedomain.Service
	orgID snowflake.ID
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&meterdomain.Meter{}, &usagedomain.UsageEvent{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC))
	sink := eventstore.NewColumnStore()

	svc := service.NewService(service.ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fake,
		MeterRepo:  meterrepo.Provide(),
		ColumnSink: sink,
	})

	orgID := node.Generate()
	field := "count"
	require.NoError(t, meterrepo.Provide().Insert(context.Background(), db, &meterdomain.Meter{
		ID:          node.Generate(),
		OrgID:       orgID,
		Code:        "api_calls",
		Name:        "API calls",
		Aggregation: meterdomain.AggregationSum,
		FieldName:   &field,
		Unit:        "call",
		Active:      true,
		CreatedAt:   fake.Now(),
		UpdatedAt:   fake.Now(),
	}))

	return &fixture{db: db, node: node, clock: fake, sink: sink, svc: svc, orgID: orgID}
}

func (f *fixture) ingestReq() usagedomain.IngestRequest {
	return usagedomain.IngestRequest{
		OrganizationID:     f.orgID.String(),
		TransactionID:      "txn-1",
		ExternalCustomerID: "cust-1",
		Code:               "api_calls",
		Properties:         map[string]any{"count": float64(5)},
	}
}

func TestIngest(t *testing.T) {
	f := setup(t)

	event, wasNew, err := f.svc.Ingest(context.Background(), f.ingestReq())
	require.NoError(t, err)
	require.True(t, wasNew)
	require.Equal(t, "txn-1", event.TransactionID)
	require.Equal(t, "cust-1", event.ExternalCustomerID)
	// No timestamp in the request: ingestion time is used.
	require.Equal(t, f.clock.Now(), event.Timestamp)
}

func TestIngestDuplicateTransactionID(t *testing.T) {
	f := setup(t)

	first, wasNew, err := f.svc.Ingest(context.Background(), f.ingestReq())
	require.NoError(t, err)
	require.True(t, wasNew)

	// The retry carries different properties; the original wins untouched.
	retry := f.ingestReq()
	retry.Properties = map[string]any{"count": float64(999)}
	second, wasNew, err := f.svc.Ingest(context.Background(), retry)
	require.NoError(t, err)
	require.False(t, wasNew)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, float64(5), second.Properties["count"])

	var count int64
	require.NoError(t, f.db.Model(&usagedomain.UsageEvent{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestIngestGeneratesTransactionID(t *testing.T) {
	f := setup(t)

	req := f.ingestReq()
	req.TransactionID = ""
	event, wasNew, err := f.svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	require.True(t, wasNew)
	require.NotEmpty(t, event.TransactionID)
}

func TestIngestFeedsColumnSink(t *testing.T) {
	f := setup(t)

	event, _, err := f.svc.Ingest(context.Background(), f.ingestReq())
	require.NoError(t, err)

	events, err := f.sink.Query(context.Background(), eventstore.QueryParams{
		OrgID:              f.orgID,
		ExternalCustomerID: "cust-1",
		Code:               "api_calls",
		From:               event.Timestamp.Add(-time.Minute),
		To:                 event.Timestamp.Add(time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, event.ID, events[0].ID)
}

func TestIngestValidation(t *testing.T) {
	f := setup(t)

	cases := []struct {
		name    string
		mutate  func(*usagedomain.IngestRequest)
		wantErr error
	}{
		{"bad org", func(r *usagedomain.IngestRequest) { r.OrganizationID = "nope" }, usagedomain.ErrInvalidOrganization},
		{"empty customer", func(r *usagedomain.IngestRequest) { r.ExternalCustomerID = " " }, usagedomain.ErrInvalidCustomer},
		{"empty code", func(r *usagedomain.IngestRequest) { r.Code = "" }, usagedomain.ErrInvalidCode},
		{"unknown meter", func(r *usagedomain.IngestRequest) { r.Code = "nope" }, usagedomain.ErrUnknownMeterCode},
		{"nan property", func(r *usagedomain.IngestRequest) { r.Properties = map[string]any{"count": math.NaN()} }, usagedomain.ErrInvalidProperties},
		{"inf property", func(r *usagedomain.IngestRequest) { r.Properties = map[string]any{"count": math.Inf(1)} }, usagedomain.ErrInvalidProperties},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := f.ingestReq()
			tc.mutate(&req)
			_, _, err := f.svc.Ingest(context.Background(), req)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestList(t *testing.T) {
	f := setup(t)

	for _, txn := range []string{"txn-1", "txn-2", "txn-3"} {
		req := f.ingestReq()
		req.TransactionID = txn
		_, _, err := f.svc.Ingest(context.Background(), req)
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	resp, err := f.svc.List(context.Background(), usagedomain.ListRequest{
		OrganizationID: f.orgID.String(),
		Code:           "api_calls",
		PageSize:       2,
	})
	require.NoError(t, err)
	require.Len(t, resp.UsageEvents, 2)
	require.True(t, resp.HasMore)
}
