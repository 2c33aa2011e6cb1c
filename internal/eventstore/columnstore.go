package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/meterflow/internal/usage/domain"
	"gorm.io/gorm"
)

// ColumnStore keeps events in memory, one columnar partition per
// (org, customer, code). Each property lives in its own column slice so an
// aggregation touching a single field never materializes whole rows.
type ColumnStore struct {
	mu         sync.RWMutex
	partitions map[partitionKey]*partition
}

type partitionKey struct {
	orgID      snowflake.ID
	customerID string
	code       string
}

type partition struct {
	ids        []snowflake.ID
	timestamps []time.Time
	// columns[name][i] is the property value of the i-th appended event,
	// nil when the event did not carry that property.
	columns map[string][]any
}

func NewColumnStore() *ColumnStore {
	return &ColumnStore{partitions: make(map[partitionKey]*partition)}
}

func (s *ColumnStore) Name() string { return "column" }

// Append adds one event to its partition. Append order is the tiebreak for
// equal timestamps, mirroring id order in the row backend.
func (s *ColumnStore) Append(record usagedomain.UsageEvent) {
	key := partitionKey{
		orgID:      record.OrgID,
		customerID: record.ExternalCustomerID,
		code:       record.Code,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	part, ok := s.partitions[key]
	if !ok {
		part = &partition{columns: make(map[string][]any)}
		s.partitions[key] = part
	}

	n := len(part.ids)
	part.ids = append(part.ids, record.ID)
	part.timestamps = append(part.timestamps, record.Timestamp)

	for name, value := range record.Properties {
		column, ok := part.columns[name]
		if !ok {
			column = make([]any, n)
		}
		part.columns[name] = append(column, value)
	}
	// Backfill columns the event did not carry.
	for name, column := range part.columns {
		if len(column) < n+1 {
			part.columns[name] = append(column, nil)
		}
	}
}

// Hydrate loads every persisted event into memory. Called once on startup
// when this backend is selected.
func (s *ColumnStore) Hydrate(ctx context.Context, db *gorm.DB) error {
	var records []usagedomain.UsageEvent
	err := db.WithContext(ctx).
		Order("timestamp ASC, id ASC").
		FindInBatches(&records, 1000, func(_ *gorm.DB, _ int) error {
			for _, record := range records {
				s.Append(record)
			}
			return nil
		}).Error
	return err
}

func (s *ColumnStore) Query(ctx context.Context, params QueryParams) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := partitionKey{
		orgID:      params.OrgID,
		customerID: params.ExternalCustomerID,
		code:       params.Code,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	part, ok := s.partitions[key]
	if !ok {
		return []Event{}, nil
	}

	events := make([]Event, 0)
	for i, ts := range part.timestamps {
		if ts.Before(params.From) || !ts.Before(params.To) {
			continue
		}
		properties := make(map[string]any, len(part.columns))
		for name, column := range part.columns {
			if column[i] != nil {
				properties[name] = column[i]
			}
		}
		if len(params.Filters) > 0 && !matchesFilters(properties, params.Filters) {
			continue
		}
		events = append(events, Event{
			ID:         part.ids[i],
			Timestamp:  ts,
			Properties: properties,
		})
	}

	// Partitions are append-ordered, not time-ordered; a stable sort keeps
	// append order as the tiebreak for equal timestamps.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

func (s *ColumnStore) FetchProperties(ctx context.Context, params QueryParams) ([]map[string]any, error) {
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
