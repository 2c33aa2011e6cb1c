package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterflow/internal/expression"
	meterdomain "github.com/smallbiznis/meterflow/internal/meter/domain"
	"github.com/smallbiznis/meterflow/internal/rounding"
	"github.com/smallbiznis/meterflow/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  meterdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  meterdomain.Repository
	genID *snowflake.Node
}

func New(p Params) meterdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("meter.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, req meterdomain.CreateRequest) (*meterdomain.Response, error) {
	orgID, err := s.parseOrganizationID(req.OrganizationID)
	if err != nil {
		return nil, err
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, meterdomain.ErrInvalidCode
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, meterdomain.ErrInvalidName
	}

	aggregation := meterdomain.AggregationType(strings.ToUpper(strings.TrimSpace(req.Aggregation)))
	if !aggregation.Valid() {
		return nil, meterdomain.ErrInvalidAggregation
	}

	fieldName := trimPtr(req.FieldName)
	if aggregation.RequiresFieldName() && fieldName == nil {
		return nil, meterdomain.ErrMissingFieldName
	}

	expr := trimPtr(req.Expression)
	if aggregation.RequiresExpression() {
		if expr == nil {
			return nil, meterdomain.ErrMissingExpression
		}
		if _, err := expression.Parse(*expr); err != nil {
			return nil, meterdomain.ErrInvalidExpression
		}
	}

	roundingFn, err := parseRounding(req.RoundingFunction, req.RoundingPrecision)
	if err != nil {
		return nil, err
	}

	unit := strings.TrimSpace(req.Unit)
	if unit == "" {
		return nil, meterdomain.ErrInvalidUnit
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := time.Now().UTC()
	m := &meterdomain.Meter{
		ID:                s.genID.Generate(),
		OrgID:             orgID,
		Code:              code,
		Name:              name,
		Aggregation:       aggregation,
		FieldName:         fieldName,
		Expression:        expr,
		RoundingFunction:  roundingFn,
		RoundingPrecision: req.RoundingPrecision,
		Unit:              unit,
		Active:            active,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Insert(ctx, s.db, m); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, meterdomain.ErrDuplicateCode
		}
		return nil, err
	}

	return s.toResponse(m), nil
}

func (s *Service) List(ctx context.Context, organizationID string) ([]meterdomain.Response, error) {
	orgID, err := s.parseOrganizationID(organizationID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.List(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	resp := make([]meterdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *s.toResponse(&items[i]))
	}

	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, organizationID, id string) (*meterdomain.Response, error) {
	orgID, err := s.parseOrganizationID(organizationID)
	if err != nil {
		return nil, err
	}

	meterID, err := meterdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, meterdomain.ErrInvalidID
	}

	m, err := s.repo.FindByID(ctx, s.db, orgID, meterID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, meterdomain.ErrNotFound
	}

	return s.toResponse(m), nil
}

func (s *Service) GetByCode(ctx context.Context, organizationID, code string) (*meterdomain.Response, error) {
	orgID, err := s.parseOrganizationID(organizationID)
	if err != nil {
		return nil, err
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, meterdomain.ErrInvalidCode
	}

	m, err := s.repo.FindByCode(ctx, s.db, orgID, code)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, meterdomain.ErrNotFound
	}

	return s.toResponse(m), nil
}

func (s *Service) Update(ctx context.Context, req meterdomain.UpdateRequest) (*meterdomain.Response, error) {
	orgID, err := s.parseOrganizationID(req.OrganizationID)
	if err != nil {
		return nil, err
	}

	meterID, err := meterdomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, meterdomain.ErrInvalidID
	}

	m, err := s.repo.FindByID(ctx, s.db, orgID, meterID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, meterdomain.ErrNotFound
	}

	// Code and aggregation are immutable identity; only display fields change.
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, meterdomain.ErrInvalidName
		}
		m.Name = name
	}
	if req.Unit != nil {
		unit := strings.TrimSpace(*req.Unit)
		if unit == "" {
			return nil, meterdomain.ErrInvalidUnit
		}
		m.Unit = unit
	}
	if req.Active != nil {
		m.Active = *req.Active
	}
	m.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, m); err != nil {
		return nil, err
	}

	return s.toResponse(m), nil
}

func (s *Service) Delete(ctx context.Context, organizationID, id string) error {
	orgID, err := s.parseOrganizationID(organizationID)
	if err != nil {
		return err
	}

	meterID, err := meterdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return meterdomain.ErrInvalidID
	}

	return s.repo.Delete(ctx, s.db, orgID, meterID)
}

func (s *Service) parseOrganizationID(value string) (snowflake.ID, error) {
	orgID, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || orgID == 0 {
		return 0, meterdomain.ErrInvalidOrganization
	}
	return orgID, nil
}

func parseRounding(fn *string, precision *int32) (*rounding.Function, error) {
	if fn == nil || strings.TrimSpace(*fn) == "" {
		if precision != nil && *precision < 0 {
			return nil, meterdomain.ErrInvalidRounding
		}
		return nil, nil
	}

	parsed := rounding.Function(strings.ToLower(strings.TrimSpace(*fn)))
	switch parsed {
	case rounding.FunctionNone, rounding.FunctionRound, rounding.FunctionCeil, rounding.FunctionFloor:
	default:
		return nil, meterdomain.ErrInvalidRounding
	}
	if precision != nil && *precision < 0 {
		return nil, meterdomain.ErrInvalidRounding
	}
	return &parsed, nil
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func (s *Service) toResponse(m *meterdomain.Meter) *meterdomain.Response {
	resp := &meterdomain.Response{
		ID:                m.ID.String(),
		OrganizationID:    m.OrgID.String(),
		Code:              m.Code,
		Name:              m.Name,
		Aggregation:       string(m.Aggregation),
		FieldName:         m.FieldName,
		Expression:        m.Expression,
		RoundingPrecision: m.RoundingPrecision,
		Unit:              m.Unit,
		Active:            m.Active,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.RoundingFunction != nil {
		fn := string(*m.RoundingFunction)
		resp.RoundingFunction = &fn
	}
	return resp
}
