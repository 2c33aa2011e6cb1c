package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/meterflow/internal/clock"
	"github.com/smallbiznis/meterflow/internal/eventstore"
	meterdomain "github.com/smallbiznis/meterflow/internal/meter/domain"
	obsmetrics "github.com/smallbiznis/meterflow/internal/observability/metrics"
	"github.com/smallbiznis/meterflow/internal/ratelimit"
	usagedomain "github.com/smallbiznis/meterflow/internal/usage/domain"
	"github.com/smallbiznis/meterflow/pkg/db/option"
	"github.com/smallbiznis/meterflow/pkg/db/pagination"
	"github.com/smallbiznis/meterflow/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	MeterRepo  meterdomain.Repository
	Limiter    *ratelimit.IngestLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics      `optional:"true"`
	ColumnSink *eventstore.ColumnStore  `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	meterRepo  meterdomain.Repository
	usagerepo  repository.Repository[usagedomain.UsageEvent]
	limiter    *ratelimit.IngestLimiter
	obsMetrics *obsmetrics.Metrics
	columnSink *eventstore.ColumnStore
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("usage.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		meterRepo:  p.MeterRepo,
		usagerepo:  repository.ProvideStore[usagedomain.UsageEvent](p.DB),
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
		columnSink: p.ColumnSink,
	}
}

func (s *Service) Ingest(ctx context.Context, req usagedomain.IngestRequest) (*usagedomain.UsageEvent, bool, error) {
	orgID, err := parseOrgID(req.OrganizationID)
	if err != nil {
		return nil, false, err
	}

	customerID := strings.TrimSpace(req.ExternalCustomerID)
	if customerID == "" {
		return nil, false, usagedomain.ErrInvalidCustomer
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, false, usagedomain.ErrInvalidCode
	}

	if err := validateProperties(req.Properties); err != nil {
		return nil, false, err
	}

	transactionID := strings.TrimSpace(req.TransactionID)
	if transactionID == "" {
		transactionID = uuid.NewString()
	}

	// Idempotency first: a retry must return the accepted event as-is and
	// never re-run validation against state that may have changed since.
	existing, err := s.findByTransactionID(ctx, orgID, transactionID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		s.recordDeduplicated(ctx, code)
		return existing, false, nil
	}

	if s.limiter.Enabled() {
		allowed, err := s.limiter.AllowOrg(ctx, orgID.String())
		if err != nil {
			return nil, false, err
		}
		if !allowed {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(ctx, orgID.String())
			}
			return nil, false, usagedomain.ErrRateLimited
		}
	}

	meter, err := s.meterRepo.FindByCode(ctx, s.db, orgID, code)
	if err != nil {
		return nil, false, err
	}
	if meter == nil {
		return nil, false, usagedomain.ErrUnknownMeterCode
	}

	now := s.clock.Now()
	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = now
	}

	record := &usagedomain.UsageEvent{
		ID:                 s.genID.Generate(),
		OrgID:              orgID,
		TransactionID:      transactionID,
		ExternalCustomerID: customerID,
		Code:               code,
		Timestamp:          timestamp.UTC(),
		CreatedAt:          now,
	}
	if req.Properties != nil {
		record.Properties = datatypes.JSONMap(req.Properties)
	}

	inserted, err := s.insertEvent(ctx, record)
	if err != nil {
		return nil, false, err
	}

	// Conflict: another writer won the (org, transaction_id) race.
	if !inserted {
		existing, err := s.findByTransactionID(ctx, orgID, transactionID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			s.recordDeduplicated(ctx, code)
			return existing, false, nil
		}
		return nil, false, errors.New("usage_event_insert_conflict")
	}

	if s.columnSink != nil {
		s.columnSink.Append(*record)
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordIngestAccepted(ctx, code)
	}

	return record, true, nil
}

func (s *Service) List(ctx context.Context, req usagedomain.ListRequest) (usagedomain.ListResponse, error) {
	orgID, err := parseOrgID(req.OrganizationID)
	if err != nil {
		return usagedomain.ListResponse{}, err
	}

	filter := &usagedomain.UsageEvent{OrgID: orgID}
	if customerID := strings.TrimSpace(req.ExternalCustomerID); customerID != "" {
		filter.ExternalCustomerID = customerID
	}
	if code := strings.TrimSpace(req.Code); code != "" {
		filter.Code = code
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.usagerepo.Find(ctx, filter,
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
	)
	if err != nil {
		return usagedomain.ListResponse{}, err
	}

	return buildListResponse(items, pageSize), nil
}

func (s *Service) insertEvent(ctx context.Context, record *usagedomain.UsageEvent) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "org_id"}, {Name: "transaction_id"}},
			DoNothing: true,
		}).
		Create(record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) findByTransactionID(ctx context.Context, orgID snowflake.ID, transactionID string) (*usagedomain.UsageEvent, error) {
	var record usagedomain.UsageEvent
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND transaction_id = ?", orgID, transactionID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (s *Service) recordDeduplicated(ctx context.Context, code string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordIngestDeduplicated(ctx, code)
	}
}

func parseOrgID(value string) (snowflake.ID, error) {
	orgID, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || orgID == 0 {
		return 0, usagedomain.ErrInvalidOrganization
	}
	return orgID, nil
}

func validateProperties(properties map[string]any) error {
	for _, value := range properties {
		switch v := value.(type) {
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return usagedomain.ErrInvalidProperties
			}
		case float32:
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return usagedomain.ErrInvalidProperties
			}
		}
	}
	return nil
}

func buildListResponse(items []*usagedomain.UsageEvent, pageSize int32) usagedomain.ListResponse {
	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(record *usagedomain.UsageEvent) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        record.ID.String(),
			CreatedAt: record.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	records := make([]usagedomain.UsageEvent, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		records = append(records, *item)
	}

	resp := usagedomain.ListResponse{UsageEvents: records}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp
}
