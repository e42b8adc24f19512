package ledger

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDGenerator generates unique IDs for events and items
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates time-ordered UUIDv7 strings so that event ids
// double as a stable pagination cursor
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// Service handles event and item operations
type Service struct {
	db          DB
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB) *Service {
	return &Service{
		db:          db,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// CreateEvent creates an empty event. Names are not required to be unique.
func (s *Service) CreateEvent(name, description string) (*Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: event name is required", ErrInvalidEvent)
	}

	now := s.timeSource.Now()
	event := &Event{
		ID:          s.idGenerator.Generate(),
		EventName:   name,
		Description: description,
		Goods:       []Item{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.CreateEvent(event); err != nil {
		return nil, fmt.Errorf("creating event: %w", err)
	}

	slog.Info("Event created", "event_id", event.ID, "name", event.EventName)
	return event, nil
}

// GetEvent retrieves an event with its goods
func (s *Service) GetEvent(id string) (*Event, error) {
	event, err := s.db.GetEvent(id)
	if err != nil {
		return nil, fmt.Errorf("getting event: %w", err)
	}
	return event, nil
}

// ListEvents returns one page of events. A limit outside 1..MaxPageSize is
// treated as MaxPageSize.
func (s *Service) ListEvents(after string, limit int) (*EventPage, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	events, next, err := s.db.ListEvents(after, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return &EventPage{Events: events, Next: next}, nil
}

// ListGoods returns the event's items in stored order
func (s *Service) ListGoods(eventID string) ([]Item, error) {
	event, err := s.db.GetEvent(eventID)
	if err != nil {
		return nil, fmt.Errorf("listing goods: %w", err)
	}
	return event.Goods, nil
}

// AppendItem validates a draft and appends it to the event
func (s *Service) AppendItem(eventID string, draft Draft) (*Item, error) {
	item, err := s.itemFromDraft(draft)
	if err != nil {
		return nil, err
	}
	if err := s.db.AppendItem(eventID, item); err != nil {
		return nil, fmt.Errorf("appending item %s: %w", item.ID, err)
	}
	return &item, nil
}

// AppendItems appends each draft independently. A draft that fails
// validation or is rejected by the store is reported in Failed and does not
// stop the remaining drafts. The event must exist.
func (s *Service) AppendItems(eventID string, drafts []Draft) (*BatchResult, error) {
	if err := s.db.EventExists(eventID); err != nil {
		return nil, fmt.Errorf("appending items: %w", err)
	}

	result := &BatchResult{
		Succeeded: make([]Item, 0, len(drafts)),
		Failed:    make([]BatchFailure, 0),
	}
	for i, draft := range drafts {
		item, err := s.AppendItem(eventID, draft)
		if err != nil {
			slog.Warn("Batch item rejected", "event_id", eventID, "index", i, "item", draft.Item, "error", err)
			result.Failed = append(result.Failed, BatchFailure{
				Index: i,
				ID:    draft.ID,
				Item:  draft.Item,
				Price: string(draft.Price),
				Error: err.Error(),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, *item)
	}

	slog.Info("Batch append finished",
		"event_id", eventID,
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
	)
	return result, nil
}

// UpdateItem replaces the name, price and payers of an item. The item id is
// kept. Concurrent updates of the same item are last-write-wins.
func (s *Service) UpdateItem(eventID, itemID, name string, price RawPrice, payers []string) (*Item, error) {
	item, err := s.itemFromDraft(Draft{ID: itemID, Item: name, Price: price, Payers: payers})
	if err != nil {
		return nil, err
	}
	if err := s.db.UpdateItem(eventID, item); err != nil {
		return nil, fmt.Errorf("updating item %s: %w", itemID, err)
	}
	return &item, nil
}

// RemoveItem deletes an item from the event
func (s *Service) RemoveItem(eventID, itemID string) error {
	if err := s.db.RemoveItem(eventID, itemID); err != nil {
		return fmt.Errorf("removing item %s: %w", itemID, err)
	}
	return nil
}

// Ping checks the store is reachable
func (s *Service) Ping() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("pinging store: %w", err)
	}
	return nil
}

func (s *Service) itemFromDraft(draft Draft) (Item, error) {
	name := strings.TrimSpace(draft.Item)
	if name == "" {
		return Item{}, fmt.Errorf("%w: item name is required", ErrInvalidItem)
	}
	price, err := draft.Price.Parse()
	if err != nil {
		return Item{}, fmt.Errorf("item %q: %w", name, err)
	}
	id := strings.TrimSpace(draft.ID)
	if id == "" {
		id = s.idGenerator.Generate()
	}
	payers := draft.Payers
	if payers == nil {
		payers = []string{}
	}
	return Item{ID: id, Item: name, Price: price, Payers: payers}, nil
}
