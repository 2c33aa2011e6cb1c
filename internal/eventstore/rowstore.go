package eventstore

import (
	"context"

	usagedomain "github.com/smallbiznis/meterflow/internal/usage/domain"
	"gorm.io/gorm"
)

// RowStore reads events straight from the usage_events table. Ordering is
// (timestamp, id): snowflake IDs are monotonic per node, so id order is
// insertion order within a timestamp.
type RowStore struct {
	db *gorm.DB
}

func NewRowStore(db *gorm.DB) *RowStore {
	return &RowStore{db: db}
}

func (s *RowStore) Name() string { return "row" }

func (s *RowStore) Query(ctx context.Context, params QueryParams) ([]Event, error) {
	var records []usagedomain.UsageEvent
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND external_customer_id = ? AND code = ?",
			params.OrgID, params.ExternalCustomerID, params.Code).
		Where("timestamp >= ? AND timestamp < ?", params.From, params.To).
		Order("timestamp ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(records))
	for _, record := range records {
		properties := map[string]any(record.Properties)
		if properties == nil {
			properties = map[string]any{}
		}
		if len(params.Filters) > 0 && !matchesFilters(properties, params.Filters) {
			continue
		}
		events = append(events, Event{
			ID:         record.ID,
			Timestamp:  record.Timestamp,
			Properties: properties,
		})
	}
	return events, nil
}

func (s *RowStore) FetchProperties(ctx context.Context, params QueryParams) ([]map[string]any, error) {
	events, err := s.Query(ctx, params)
	if err != nil {
		return nil, err
	}
	properties := make([]map[string]any, 0, len(events))
	for _, event := range events {
		properties = append(properties, event.Properties)
	}
	return properties, nil
}
