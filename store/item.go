package store

import "context"

// ProcessingStatus is the lifecycle state of an item in the background
// processing pipeline. Only the pipeline mutates it.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusComplete   ProcessingStatus = "complete"
	StatusFailed     ProcessingStatus = "failed"
)

// Item is a captured asset received by the ingestion endpoint. Items are
// never deleted by the pipeline; retention is an external concern.
type Item struct {
	// ID is the client-assigned UUID, stable across duplicate deliveries.
	ID string

	// Standard fields
	CreatedTs int64
	UpdatedTs int64

	// Domain specific fields
	StoragePath      string
	ReceivedTs       int64
	CapturedTs       int64
	MonitorIndex     int32
	Source           string
	MimeType         string
	ProcessingStatus ProcessingStatus
	ExtractedText    string
}

// FindItem is the find condition for items.
type FindItem struct {
	ID                 *string
	ProcessingStatuses []ProcessingStatus
	// UpdatedBefore excludes items touched after the given timestamp. The
	// backlog job uses it as the grace period so freshly enqueued items are
	// not rescanned.
	UpdatedBefore *int64
	Limit         *int
	Offset        *int
}

// UpdateItem is the partial update for an item. Nil fields are untouched.
type UpdateItem struct {
	ID               string
	UpdatedTs        *int64
	ProcessingStatus *ProcessingStatus
	ExtractedText    *string
}

func (s *Store) CreateItem(ctx context.Context, create *Item) (*Item, error) {
	return s.driver.CreateItem(ctx, create)
}

func (s *Store) ListItems(ctx context.Context, find *FindItem) ([]*Item, error) {
	// Default limit to keep backlog scans and API listings bounded.
	if find.Limit == nil {
		defaultLimit := 100
		find.Limit = &defaultLimit
	}
	return s.driver.ListItems(ctx, find)
}

func (s *Store) GetItem(ctx context.Context, find *FindItem) (*Item, error) {
	items, err := s.ListItems(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func (s *Store) UpdateItem(ctx context.Context, update *UpdateItem) error {
	return s.driver.UpdateItem(ctx, update)
}
