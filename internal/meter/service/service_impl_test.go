package service_test

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	meterdomain "github.com/smallbiznis/meterflow/internal/meter/domain"
	meterrepo "github.com/smallbiznis/meterflow/internal/meter/repository"
	"github.com/smallbiznis/meterflow/internal/meter/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (meterdomain.Service, string) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&meterdomain.Meter{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  meterrepo.Provide(),
	})
	return svc, node.Generate().String()
}

func strptr(s string) *string { return &s }

func createReq(orgID string) meterdomain.CreateRequest {
	return meterdomain.CreateRequest{
		OrganizationID: orgID,
		Code:           "api_calls",
		Name:           "API calls",
		Aggregation:    "SUM",
		FieldName:      strptr("count"),
		Unit:           "call",
	}
}

func TestCreateMeter(t *testing.T) {
	svc, orgID := setup(t)

	resp, err := svc.Create(context.Background(), createReq(orgID))
	require.NoError(t, err)
	require.Equal(t, "api_calls", resp.Code)
	require.Equal(t, "SUM", resp.Aggregation)
	require.True(t, resp.Active)

	got, err := svc.GetByCode(context.Background(), orgID, "api_calls")
	require.NoError(t, err)
	require.Equal(t, resp.ID, got.ID)
}

func TestCreateMeterValidation(t *testing.T) {
	svc, orgID := setup(t)

	cases := []struct {
		name    string
		mutate  func(*meterdomain.CreateRequest)
		wantErr error
	}{
		{"bad aggregation", func(r *meterdomain.CreateRequest) { r.Aggregation = "MEDIAN" }, meterdomain.ErrInvalidAggregation},
		{"sum without field", func(r *meterdomain.CreateRequest) { r.FieldName = nil }, meterdomain.ErrMissingFieldName},
		{"custom without expression", func(r *meterdomain.CreateRequest) {
			r.Aggregation = "CUSTOM"
			r.Expression = nil
		}, meterdomain.ErrMissingExpression},
		{"custom bad expression", func(r *meterdomain.CreateRequest) {
			r.Aggregation = "CUSTOM"
			r.Expression = strptr("count *")
		}, meterdomain.ErrInvalidExpression},
		{"bad rounding function", func(r *meterdomain.CreateRequest) { r.RoundingFunction = strptr("truncate") }, meterdomain.ErrInvalidRounding},
		{"empty code", func(r *meterdomain.CreateRequest) { r.Code = " " }, meterdomain.ErrInvalidCode},
		{"empty unit", func(r *meterdomain.CreateRequest) { r.Unit = "" }, meterdomain.ErrInvalidUnit},
		{"bad org", func(r *meterdomain.CreateRequest) { r.OrganizationID = "x" }, meterdomain.ErrInvalidOrganization},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := createReq(orgID)
			tc.mutate(&req)
			_, err := svc.Create(context.Background(), req)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCreateMeterCountNeedsNoField(t *testing.T) {
	svc, orgID := setup(t)

	req := createReq(orgID)
	req.Code = "requests"
	req.Aggregation = "COUNT"
	req.FieldName = nil
	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
}

func TestCreateMeterDuplicateCode(t *testing.T) {
	svc, orgID := setup(t)

	_, err := svc.Create(context.Background(), createReq(orgID))
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), createReq(orgID))
	require.ErrorIs(t, err, meterdomain.ErrDuplicateCode)
}

func TestUpdateMeterOnlyDisplayFields(t *testing.T) {
	svc, orgID := setup(t)

	created, err := svc.Create(context.Background(), createReq(orgID))
	require.NoError(t, err)

	active := false
	updated, err := svc.Update(context.Background(), meterdomain.UpdateRequest{
		OrganizationID: orgID,
		ID:             created.ID,
		Name:           strptr("Renamed"),
		Active:         &active,
	})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)
	require.False(t, updated.Active)
	// Identity stays put.
	require.Equal(t, created.Code, updated.Code)
	require.Equal(t, created.Aggregation, updated.Aggregation)
}

func TestDeleteMeter(t *testing.T) {
	svc, orgID := setup(t)

	created, err := svc.Create(context.Background(), createReq(orgID))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), orgID, created.ID))
	_, err = svc.GetByID(context.Background(), orgID, created.ID)
	require.ErrorIs(t, err, meterdomain.ErrNotFound)
}

func TestListMeters(t *testing.T) {
	svc, orgID := setup(t)

	_, err := svc.Create(context.Background(), createReq(orgID))
	require.NoError(t, err)
	second := createReq(orgID)
	second.Code = "storage_gb"
	_, err = svc.Create(context.Background(), second)
	require.NoError(t, err)

	items, err := svc.List(context.Background(), orgID)
	require.NoError(t, err)
	require.Len(t, items, 2)
}
